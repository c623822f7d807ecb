package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/remote"
)

// Kind classifies why a sync stage failed
type Kind string

const (
	// KindNetwork means no response was received: timeout, lost connectivity or cancellation
	KindNetwork Kind = "NetworkError"

	// KindServer means the server answered 5xx, throttled, or sent a malformed envelope
	KindServer Kind = "ServerError"

	// KindValidation marks per-record rejections. They settle records as INVALID and
	// never fail a cycle.
	KindValidation Kind = "ValidationError"

	// KindUnexpected covers everything else, such as an unhandled 4xx status
	KindUnexpected Kind = "UnexpectedError"

	// KindStorage means the local store failed to read or write
	KindStorage Kind = "StorageError"
)

// Stage names the part of a cycle an error came from
type Stage string

const (
	// StagePush is the upload of pending records
	StagePush Stage = "push"

	// StagePull is the download of remote changes
	StagePull Stage = "pull"
)

// Error is a classified sync failure
type Error struct {
	Err     error
	Message string
	Kind    Kind
	Stage   Stage
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err. Errors that already carry a Kind keep it; remote sentinels and
// context errors are mapped onto their kinds; anything else is unexpected.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}

	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}

	switch {
	case errors.Is(err, remote.ErrNetwork),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, remote.ErrServer):
		return KindServer
	default:
		return KindUnexpected
	}
}

func newRemoteError(stage Stage, err error, format string, args ...any) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s: %v", fmt.Sprintf(format, args...), err),
		Kind:    ErrorKind(err),
		Stage:   stage,
	}
}

// newStorageError classifies a local store failure. A store call aborted by cancellation
// is reported as a network error like any other cancelled stage.
func newStorageError(stage Stage, err error, format string, args ...any) *Error {
	kind := KindStorage
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindNetwork
	}
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s: %v", fmt.Sprintf(format, args...), err),
		Kind:    kind,
		Stage:   stage,
	}
}

func newCancelledError(stage Stage, err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s cancelled: %v", stage, err),
		Kind:    KindNetwork,
		Stage:   stage,
	}
}
