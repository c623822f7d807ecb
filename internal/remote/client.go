package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fieldsync/fieldsync/internal/httpclient"
)

const defaultMaxTries = 3

// Client talks to the sync endpoints of every record type
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// Pull fetches one page of records changed after since; an empty since requests a full sync
	Pull(ctx context.Context, recordType string, limit int, since string) (*PullPage, error)

	// Push uploads a batch of wire payloads and returns the server's per-record verdict
	Push(ctx context.Context, recordType string, payloads []json.RawMessage) (*PushResponse, error)
}

// Endpoint holds the pull and push paths of one record type, relative to the base URL
type Endpoint struct {
	PushPath string
	PullPath string
}

// Option configures the client
type Option func(*client)

// WithEndpoint overrides the paths of one record type
func WithEndpoint(recordType string, endpoint Endpoint) Option {
	return func(c *client) {
		c.endpoints[recordType] = endpoint
	}
}

// WithMaxTries sets how many attempts a page fetch gets
func WithMaxTries(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff overrides the wait policy between page fetch attempts
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *client) {
		c.newBackOff = newBackOff
	}
}

type client struct {
	http       httpclient.Client
	baseURL    string
	endpoints  map[string]Endpoint
	maxTries   int
	newBackOff func() backoff.BackOff
}

// NewClient creates a client for the sync API rooted at baseURL
func NewClient(httpClient httpclient.Client, baseURL string, opts ...Option) Client {
	c := &client{
		http:      httpClient,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		endpoints: make(map[string]Endpoint),
		maxTries:  defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) endpoint(recordType string) Endpoint {
	ep, ok := c.endpoints[recordType]
	if !ok {
		ep = Endpoint{}
	}
	if ep.PushPath == "" {
		ep.PushPath = recordType + "/sync"
	}
	if ep.PullPath == "" {
		ep.PullPath = recordType + "/sync"
	}
	return ep
}

func (c *client) Pull(ctx context.Context, recordType string, limit int, since string) (*PullPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if since != "" {
		query.Set("process_token", since)
	}
	target := c.baseURL + "/" + strings.TrimPrefix(c.endpoint(recordType).PullPath, "/") + "?" + query.Encode()

	fetch := func() (*PullPage, error) {
		body, err := c.http.Get(ctx, target)
		if err != nil {
			classified := classify(err)
			if isRetryable(classified) {
				return nil, classified
			}
			return nil, backoff.Permanent(classified)
		}

		var page PullPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: malformed pull response: %w", ErrServer, err))
		}
		if page.Records == nil {
			page.Records = []json.RawMessage{}
		}
		return &page, nil
	}

	page, err := backoff.Retry(ctx, fetch,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxTries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("Pull page fetch failed, retrying",
				"record_type", recordType, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return nil, classify(err)
	}
	return page, nil
}

func (c *client) Push(ctx context.Context, recordType string, payloads []json.RawMessage) (*PushResponse, error) {
	if payloads == nil {
		payloads = []json.RawMessage{}
	}
	body, err := json.Marshal(PushRequest{Records: payloads})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode push request: %w", ErrUnexpectedStatus, err)
	}
	target := c.baseURL + "/" + strings.TrimPrefix(c.endpoint(recordType).PushPath, "/")

	respBody, err := c.http.Post(ctx, target, body)
	if err != nil {
		return nil, classify(err)
	}

	var resp PushResponse
	if len(strings.TrimSpace(string(respBody))) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed push response: %w", ErrServer, err)
	}
	return &resp, nil
}

// classify maps a transport failure onto the remote error sentinels
func classify(err error) error {
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer) || errors.Is(err, ErrUnexpectedStatus) {
		return err
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.IsServerSide() {
			return fmt.Errorf("%w: %w", ErrServer, err)
		}
		return fmt.Errorf("%w: %w", ErrUnexpectedStatus, err)
	}

	var transportErr *httpclient.TransportError
	if errors.As(err, &transportErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	if errors.Is(err, httpclient.ErrResponseTooLarge) {
		return fmt.Errorf("%w: %w", ErrServer, err)
	}

	return fmt.Errorf("%w: %w", ErrUnexpectedStatus, err)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}
