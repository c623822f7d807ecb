// Package approval tracks whether the signed-in user's account has been approved.
// Record types that require an approved user do not sync while the gate is closed.
package approval

import "sync/atomic"

// Gate reports whether syncing on behalf of an approved user is allowed
type Gate interface {
	Approved() bool
}

// Switch is a Gate flipped by the host application (login, approval poll, API call)
type Switch struct {
	approved atomic.Bool
}

var _ Gate = (*Switch)(nil)

// NewSwitch creates a switch in the given position
func NewSwitch(approved bool) *Switch {
	s := &Switch{}
	s.approved.Store(approved)
	return s
}

// Approved implements Gate
func (s *Switch) Approved() bool {
	return s.approved.Load()
}

// Set moves the switch and reports whether its position changed
func (s *Switch) Set(approved bool) bool {
	return s.approved.Swap(approved) != approved
}

// Open is a Gate that is always approved
type Open struct{}

// Approved implements Gate
func (Open) Approved() bool { return true }
