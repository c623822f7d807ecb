// Package remote is the client of the sync server's per-record-type sync endpoints.
package remote

import (
	"encoding/json"
	"errors"

	"github.com/fieldsync/fieldsync/internal/record"
)

var (
	// ErrNetwork means the server could not be reached, the request timed out or was cancelled
	ErrNetwork = errors.New("network error")

	// ErrServer means the server answered with a 5xx or 429 status or a malformed body
	ErrServer = errors.New("server error")

	// ErrUnexpectedStatus means the server answered with a status the client does not handle
	ErrUnexpectedStatus = errors.New("unexpected response")
)

// PullPage is one page of the pull endpoint
type PullPage struct {
	// Records are the raw wire payloads of the page
	Records []json.RawMessage `json:"records"`

	// NextCursor is the cursor to send with the next request
	NextCursor string `json:"processed_since"`
}

// IsFull reports whether the page was filled to the requested limit, meaning more may follow
func (p *PullPage) IsFull(limit int) bool {
	return len(p.Records) >= limit
}

// PushRequest is the body of the push endpoint
type PushRequest struct {
	Records []json.RawMessage `json:"records"`
}

// PushResponse is the answer of the push endpoint. Records absent from Errors were accepted.
type PushResponse struct {
	Errors []RecordError `json:"errors"`
}

// RecordError lists the field errors of one rejected record
type RecordError struct {
	ID          string              `json:"id"`
	FieldErrors []record.FieldError `json:"field_errors"`
}

// RejectedIDs indexes the rejections by record id
func (r *PushResponse) RejectedIDs() map[string][]record.FieldError {
	out := make(map[string][]record.FieldError, len(r.Errors))
	for _, e := range r.Errors {
		out[e.ID] = append(out[e.ID], e.FieldErrors...)
	}
	return out
}
