package service

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CursorSeparator is the delimiter used to separate the timestamp and id in the cursor
const CursorSeparator = "|"

// DecodeCursor decodes a base64-encoded cursor string into the position of the last listed record.
// The cursor format is: base64(updated_at|id)
// Returns zero values if the cursor is empty.
func DecodeCursor(cursor string) (updatedAt time.Time, id uuid.UUID, err error) {
	if cursor == "" {
		return time.Time{}, uuid.Nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	parts := strings.SplitN(string(decoded), CursorSeparator, 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: expected updated_at|id", ErrInvalidCursor)
	}

	updatedAt, err = time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	id, err = uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return updatedAt.UTC(), id, nil
}

// EncodeCursor encodes the position of a record into a cursor string.
// The cursor format is: base64(updated_at|id)
func EncodeCursor(updatedAt time.Time, id uuid.UUID) string {
	cursorValue := updatedAt.UTC().Format(time.RFC3339Nano) + CursorSeparator + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(cursorValue))
}
