package service_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync/internal/service"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		updatedAt time.Time
	}{
		{name: "whole seconds", updatedAt: time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)},
		{name: "microseconds", updatedAt: time.Date(2025, 3, 2, 9, 30, 0, 123456000, time.UTC)},
		{name: "non-UTC zone", updatedAt: time.Date(2025, 3, 2, 12, 30, 0, 0, time.FixedZone("EAT", 3*3600))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id := uuid.New()
			cursor := service.EncodeCursor(tt.updatedAt, id)

			gotTime, gotID, err := service.DecodeCursor(cursor)
			require.NoError(t, err)
			assert.True(t, tt.updatedAt.Equal(gotTime))
			assert.Equal(t, time.UTC, gotTime.Location())
			assert.Equal(t, id, gotID)
		})
	}
}

func TestDecodeCursor(t *testing.T) {
	t.Parallel()

	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		cursor  string
		wantErr bool
	}{
		{name: "empty cursor", cursor: ""},
		{name: "not base64", cursor: "!!!", wantErr: true},
		{name: "missing separator", cursor: encode("2025-03-02T09:30:00Z"), wantErr: true},
		{name: "bad timestamp", cursor: encode("yesterday|" + uuid.NewString()), wantErr: true},
		{name: "bad id", cursor: encode("2025-03-02T09:30:00Z|patient-7"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			updatedAt, id, err := service.DecodeCursor(tt.cursor)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, service.ErrInvalidCursor)
				return
			}
			require.NoError(t, err)
			assert.True(t, updatedAt.IsZero())
			assert.Equal(t, uuid.Nil, id)
		})
	}
}
