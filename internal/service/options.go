package service

import (
	"fmt"
)

// Option is a function that sets an option for service operations
type Option func(T any) error

type cursorOption interface {
	setCursor(cursor string) error
}

type limitOption interface {
	setLimit(limit int) error
}

// WithCursor sets the position a listing continues from
func WithCursor(cursor string) Option {
	return func(o any) error {
		if cursor == "" {
			return fmt.Errorf("invalid cursor: %s", cursor)
		}

		switch o := o.(type) {
		case cursorOption:
			return o.setCursor(cursor)
		default:
			return fmt.Errorf("invalid option type: %T", o)
		}
	}
}

// WithLimit sets the page size of a listing
func WithLimit(limit int) Option {
	return func(o any) error {
		if limit <= 0 {
			return fmt.Errorf("invalid limit: %d", limit)
		}

		switch o := o.(type) {
		case limitOption:
			return o.setLimit(limit)
		default:
			return fmt.Errorf("invalid option type: %T", o)
		}
	}
}

func (o *ListInvalidOptions) setCursor(cursor string) error {
	o.Cursor = cursor
	return nil
}

func (o *ListInvalidOptions) setLimit(limit int) error {
	if limit > MaxListLimit {
		return fmt.Errorf("limit must not exceed %d", MaxListLimit)
	}
	o.Limit = limit
	return nil
}
