package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/fieldsync/fieldsync/internal/api/v1"
	"github.com/fieldsync/fieldsync/internal/app"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote/fakeserver"
	"github.com/fieldsync/fieldsync/internal/service"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
)

// EngineTestHelper manages a sync engine and the sync server it talks to
type EngineTestHelper struct {
	ctx        context.Context
	dataDir    string
	baseURL    string
	httpClient *http.Client
	engine     *app.SyncApp

	// Server is the sync server the engine pushes to and pulls from
	Server *fakeserver.Server
	remote *httptest.Server
}

// NewEngineTestHelper starts a sync server and prepares an engine configuration under dataDir
func NewEngineTestHelper(ctx context.Context, dataDir string, opts ...fakeserver.Option) *EngineTestHelper {
	server := fakeserver.New(opts...)
	return &EngineTestHelper{
		ctx:        ctx,
		dataDir:    dataDir,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		Server:     server,
		remote:     httptest.NewServer(server.Handler()),
	}
}

// StartEngine builds the engine from a configuration file and starts it on a free port
func (h *EngineTestHelper) StartEngine(opts ...app.SyncAppOption) error {
	cfg, err := config.LoadConfig(config.WithConfigPath(WriteConfigYAML(h.dataDir, h.remote.URL)))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	port, err := freePort()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	engine, err := app.NewSyncApp(h.ctx, append([]app.SyncAppOption{
		app.WithConfig(cfg),
		app.WithAddress(addr),
	}, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	h.engine = engine
	h.baseURL = "http://" + addr

	go func() {
		if err := engine.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Engine start failed: %v\n", err)
		}
	}()
	return nil
}

// StopEngine stops the engine and the sync server
func (h *EngineTestHelper) StopEngine() error {
	defer h.remote.Close()
	if h.engine != nil {
		return h.engine.Stop(5 * time.Second)
	}
	return nil
}

// WaitForEngineReady waits until the readiness probe succeeds
func (h *EngineTestHelper) WaitForEngineReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := h.httpClient.Get(h.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("engine returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 200*time.Millisecond).Should(gomega.Succeed(), "Engine should be ready")
}

// Store returns the local store of a record type, as the domain layer of the app would use it
func (h *EngineTestHelper) Store(recordType string) record.Store {
	return h.engine.Components().Storage.Store(recordType)
}

// SyncAll makes a POST request to /v1/sync
func (h *EngineTestHelper) SyncAll() (*coordinator.AggregatedResult, error) {
	var result coordinator.AggregatedResult
	if err := h.do(http.MethodPost, "/v1/sync", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncRecordType makes a POST request to /v1/sync/{recordType} and returns the status code
func (h *EngineTestHelper) SyncRecordType(recordType string) (int, error) {
	resp, err := h.request(http.MethodPost, "/v1/sync/"+url.PathEscape(recordType), nil)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// GetStatus makes a GET request to /v1/sync/status
func (h *EngineTestHelper) GetStatus() (*v1.StatusListResponse, error) {
	var body v1.StatusListResponse
	if err := h.do(http.MethodGet, "/v1/sync/status", nil, http.StatusOK, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// RecordTypeStatus returns the status of one record type, failing when it is not listed
func (h *EngineTestHelper) RecordTypeStatus(recordType string) (*service.RecordTypeStatus, error) {
	statuses, err := h.GetStatus()
	if err != nil {
		return nil, err
	}
	for _, s := range statuses.RecordTypes {
		if s.RecordType == recordType {
			return s, nil
		}
	}
	return nil, fmt.Errorf("record type %s not listed", recordType)
}

// ListInvalid makes a GET request to /v1/sync/{recordType}/invalid
func (h *EngineTestHelper) ListInvalid(recordType, cursor string, limit int) (*service.InvalidRecordPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	path := "/v1/sync/" + url.PathEscape(recordType) + "/invalid"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page service.InvalidRecordPage
	if err := h.do(http.MethodGet, path, nil, http.StatusOK, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetApproval makes a PUT request to /v1/approval
func (h *EngineTestHelper) SetApproval(approved bool) (*v1.ApprovalResponse, error) {
	var body v1.ApprovalResponse
	if err := h.do(http.MethodPut, "/v1/approval", v1.ApprovalRequest{Approved: &approved}, http.StatusOK, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (h *EngineTestHelper) request(method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(h.ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.httpClient.Do(req)
}

func (h *EngineTestHelper) do(method, path string, body any, wantStatus int, out any) error {
	resp, err := h.request(method, path, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() {
		_ = l.Close()
	}()
	return l.Addr().(*net.TCPAddr).Port, nil
}
