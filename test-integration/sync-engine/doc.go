// Package integration runs the sync engine end to end: a device database on sqlite,
// the control API on a real port and an in-process sync server on the other side.
package integration
