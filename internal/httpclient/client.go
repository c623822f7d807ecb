package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout bounds one request when no timeout is configured
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when no user agent is configured
	DefaultUserAgent = "fieldsync/1.0"

	// MaxResponseSize caps how much of a response body is read (100MB)
	MaxResponseSize = 100 * 1024 * 1024
)

// Client performs JSON requests against the sync server
type Client interface {
	// Get fetches a URL and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Post sends a JSON body and returns the response body
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// Option configures the default client
type Option func(*defaultClient)

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *defaultClient) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithBearerToken sends an Authorization header on every request
func WithBearerToken(token string) Option {
	return func(c *defaultClient) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(c *defaultClient) {
		c.client = client
	}
}

type defaultClient struct {
	client    *http.Client
	userAgent string
	token     string
}

// NewDefaultClient creates a client whose transport is instrumented with OpenTelemetry.
// A zero timeout selects DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &defaultClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *defaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *defaultClient) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *defaultClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "execute request", Err: err}
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %.2f MB)",
			ErrResponseTooLarge, resp.ContentLength, float64(MaxResponseSize)/(1024*1024))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &TransportError{Op: "read response body", Err: err}
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("%w (limit %.2f MB)", ErrResponseTooLarge, float64(MaxResponseSize)/(1024*1024))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, req.URL.String(), truncate(string(data), 512))
	}

	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
