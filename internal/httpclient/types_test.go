package httpclient_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldsync/fieldsync/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		statusCode     int
		message        string
		expectedError  string
		wantServerSide bool
	}{
		{
			name:          "not found",
			statusCode:    http.StatusNotFound,
			message:       "Not Found",
			expectedError: "HTTP 404 for URL http://sync.local/patients/sync: Not Found",
		},
		{
			name:          "unprocessable entity",
			statusCode:    http.StatusUnprocessableEntity,
			message:       `{"error":"bad batch"}`,
			expectedError: `HTTP 422 for URL http://sync.local/patients/sync: {"error":"bad batch"}`,
		},
		{
			name:           "internal error",
			statusCode:     http.StatusInternalServerError,
			message:        "",
			expectedError:  "HTTP 500 for URL http://sync.local/patients/sync: ",
			wantServerSide: true,
		},
		{
			name:           "throttled",
			statusCode:     http.StatusTooManyRequests,
			message:        "slow down",
			expectedError:  "HTTP 429 for URL http://sync.local/patients/sync: slow down",
			wantServerSide: true,
		},
		{
			name:           "bad gateway",
			statusCode:     http.StatusBadGateway,
			message:        "Bad Gateway",
			expectedError:  "HTTP 502 for URL http://sync.local/patients/sync: Bad Gateway",
			wantServerSide: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, "http://sync.local/patients/sync", tt.message)
			assert.Equal(t, tt.expectedError, err.Error())
			assert.Equal(t, tt.wantServerSide, err.IsServerSide())
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &httpclient.TransportError{Op: "execute request", Err: cause}

	assert.Equal(t, "failed to execute request: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}
