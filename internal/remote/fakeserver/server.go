// Package fakeserver is an in-memory implementation of the sync server's record type endpoints.
// It backs the client tests and the devserver command used for field testing without a backend.
package fakeserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"

	"github.com/fieldsync/fieldsync/internal/api/common"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote"
)

// Validator returns the field errors of a pushed payload; nil accepts it
type Validator func(recordType string, payload json.RawMessage) []record.FieldError

// RequiredFields rejects payloads missing any of the given top-level fields
func RequiredFields(fields ...string) Validator {
	return func(_ string, payload json.RawMessage) []record.FieldError {
		var errs []record.FieldError
		parsed := gjson.ParseBytes(payload)
		for _, f := range fields {
			v := parsed.Get(gjson.Escape(f))
			if !v.Exists() || v.Type == gjson.Null || (v.Type == gjson.String && v.Str == "") {
				errs = append(errs, record.FieldError{Field: f, Messages: []string{"can't be blank"}})
			}
		}
		return errs
	}
}

// Option configures the server
type Option func(*Server)

// WithValidator sets the push validator
func WithValidator(v Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

type entry struct {
	seq     int64
	payload json.RawMessage
}

type fault struct {
	status    int
	remaining int
}

// Server keeps every record type's records ordered by a global change sequence.
// The pull cursor is the sequence number of the last record returned.
type Server struct {
	mu        sync.Mutex
	seq       int64
	types     map[string]map[string]*entry
	faults    map[string]*fault
	validator Validator
	pulls     map[string]int
	pushes    map[string]int
}

// New creates an empty server
func New(opts ...Option) *Server {
	s := &Server{
		types:  make(map[string]map[string]*entry),
		faults: make(map[string]*fault),
		pulls:  make(map[string]int),
		pushes: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/{recordType}/sync", s.handlePull)
	r.Post("/{recordType}/sync", s.handlePush)
	return r
}

// Seed stores payloads as if another device had pushed them
func (s *Server) Seed(recordType string, payloads ...json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payloads {
		s.storeLocked(recordType, gjson.GetBytes(p, record.KeyID).String(), p)
	}
}

// Records returns the stored payloads of a record type in change order
func (s *Server) Records(recordType string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sortedLocked(recordType)
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.payload
	}
	return out
}

// FailNext makes the next n requests of the given method for a record type answer with status
func (s *Server) FailNext(method, recordType string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+recordType] = &fault{status: status, remaining: n}
}

// PullCount returns how many pull requests a record type received
func (s *Server) PullCount(recordType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls[recordType]
}

// PushCount returns how many push requests a record type received
func (s *Server) PushCount(recordType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes[recordType]
}

func (s *Server) injectedFault(method, recordType string) int {
	f, ok := s.faults[method+" "+recordType]
	if !ok || f.remaining == 0 {
		return 0
	}
	f.remaining--
	return f.status
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	recordType, err := common.RecordTypeParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		common.WriteErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	var since int64
	if token := r.URL.Query().Get("process_token"); token != "" {
		since, err = strconv.ParseInt(token, 10, 64)
		if err != nil {
			common.WriteErrorResponse(w, "invalid process_token", http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	s.pulls[recordType]++
	if status := s.injectedFault(http.MethodGet, recordType); status != 0 {
		s.mu.Unlock()
		common.WriteErrorResponse(w, http.StatusText(status), status)
		return
	}

	page := remote.PullPage{Records: []json.RawMessage{}, NextCursor: strconv.FormatInt(since, 10)}
	for _, e := range s.sortedLocked(recordType) {
		if e.seq <= since {
			continue
		}
		if len(page.Records) == limit {
			break
		}
		page.Records = append(page.Records, e.payload)
		page.NextCursor = strconv.FormatInt(e.seq, 10)
	}
	s.mu.Unlock()

	slog.Debug("Served pull page", "record_type", recordType, "since", since, "count", len(page.Records))
	common.WriteJSONResponse(w, page, http.StatusOK)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	recordType, err := common.RecordTypeParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req remote.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "invalid push body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushes[recordType]++
	if status := s.injectedFault(http.MethodPost, recordType); status != 0 {
		common.WriteErrorResponse(w, http.StatusText(status), status)
		return
	}

	resp := remote.PushResponse{Errors: []remote.RecordError{}}
	for _, payload := range req.Records {
		id := gjson.GetBytes(payload, record.KeyID).String()
		if id == "" {
			resp.Errors = append(resp.Errors, remote.RecordError{
				FieldErrors: []record.FieldError{{Field: record.KeyID, Messages: []string{"can't be blank"}}},
			})
			continue
		}
		if s.validator != nil {
			if fieldErrors := s.validator(recordType, payload); len(fieldErrors) > 0 {
				resp.Errors = append(resp.Errors, remote.RecordError{ID: id, FieldErrors: fieldErrors})
				continue
			}
		}
		s.storeLocked(recordType, id, payload)
	}

	slog.Debug("Accepted push batch",
		"record_type", recordType, "count", len(req.Records), "rejected", len(resp.Errors))
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func (s *Server) storeLocked(recordType, id string, payload json.RawMessage) {
	records, ok := s.types[recordType]
	if !ok {
		records = make(map[string]*entry)
		s.types[recordType] = records
	}
	s.seq++
	records[id] = &entry{seq: s.seq, payload: append(json.RawMessage(nil), payload...)}
}

func (s *Server) sortedLocked(recordType string) []*entry {
	entries := make([]*entry, 0, len(s.types[recordType]))
	for _, e := range s.types[recordType] {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return entries
}
