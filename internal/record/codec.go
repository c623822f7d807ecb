package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fieldsync/fieldsync/internal/status"
)

// Wire keys of the bookkeeping fields carried next to the domain fields
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
	KeyDeletedAt = "deleted_at"
)

var bookkeepingKeys = []string{KeyID, KeyCreatedAt, KeyUpdatedAt, KeyDeletedAt}

// Codec converts records to and from the server's payload representation
type Codec interface {
	Encode(rec *Record) (json.RawMessage, error)
	Decode(payload json.RawMessage) (*Record, error)
}

// JSONCodec flattens the bookkeeping fields into the domain JSON object.
// Domain field names pass through untouched.
type JSONCodec struct{}

// NewJSONCodec returns the default codec
func NewJSONCodec() Codec {
	return JSONCodec{}
}

// Encode builds the wire payload of a record
func (JSONCodec) Encode(rec *Record) (json.RawMessage, error) {
	body := []byte(rec.Payload)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("record %s: payload is not a JSON object", rec.ID)
	}

	var err error
	if body, err = sjson.SetBytes(body, KeyID, rec.ID.String()); err != nil {
		return nil, fmt.Errorf("record %s: failed to set id: %w", rec.ID, err)
	}
	if body, err = sjson.SetBytes(body, KeyCreatedAt, formatTime(rec.CreatedAt)); err != nil {
		return nil, fmt.Errorf("record %s: failed to set created_at: %w", rec.ID, err)
	}
	if body, err = sjson.SetBytes(body, KeyUpdatedAt, formatTime(rec.UpdatedAt)); err != nil {
		return nil, fmt.Errorf("record %s: failed to set updated_at: %w", rec.ID, err)
	}
	if rec.DeletedAt != nil {
		body, err = sjson.SetBytes(body, KeyDeletedAt, formatTime(*rec.DeletedAt))
	} else {
		body, err = sjson.SetRawBytes(body, KeyDeletedAt, []byte("null"))
	}
	if err != nil {
		return nil, fmt.Errorf("record %s: failed to set deleted_at: %w", rec.ID, err)
	}

	return body, nil
}

// Decode parses a wire payload into a record ready to be merged (status DONE)
func (JSONCodec) Decode(payload json.RawMessage) (*Record, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	parsed := gjson.ParseBytes(payload)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	idField := parsed.Get(KeyID)
	if !idField.Exists() {
		return nil, fmt.Errorf("payload has no %s", KeyID)
	}
	id, err := uuid.Parse(idField.String())
	if err != nil {
		return nil, fmt.Errorf("payload has invalid %s %q: %w", KeyID, idField.String(), err)
	}

	updatedAt, err := parseTimeField(parsed, KeyUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	if updatedAt == nil {
		return nil, fmt.Errorf("record %s: payload has no %s", id, KeyUpdatedAt)
	}

	createdAt, err := parseTimeField(parsed, KeyCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	if createdAt == nil {
		createdAt = updatedAt
	}

	deletedAt, err := parseTimeField(parsed, KeyDeletedAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}

	body := []byte(payload)
	for _, key := range bookkeepingKeys {
		if body, err = sjson.DeleteBytes(body, key); err != nil {
			return nil, fmt.Errorf("record %s: failed to strip %s: %w", id, key, err)
		}
	}

	return &Record{
		ID:        id,
		Payload:   json.RawMessage(body),
		CreatedAt: *createdAt,
		UpdatedAt: *updatedAt,
		DeletedAt: deletedAt,
		Status:    status.StatusDone,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimeField returns nil for an absent or null field
func parseTimeField(parsed gjson.Result, key string) (*time.Time, error) {
	field := parsed.Get(key)
	if !field.Exists() || field.Type == gjson.Null {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, field.String())
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, field.String(), err)
	}
	t = t.UTC().Truncate(time.Microsecond)
	return &t, nil
}
