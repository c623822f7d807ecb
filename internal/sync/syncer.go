package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fieldsync/fieldsync/internal/approval"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/otel"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote"
	"github.com/fieldsync/fieldsync/internal/status"
	"github.com/fieldsync/fieldsync/internal/telemetry"
)

// Skip reasons
const (
	ReasonAlreadyInProgress = "sync-already-in-progress"
	ReasonApprovalRequired  = "approved-user-required"
)

// Outcome is how a cycle ended
type Outcome string

const (
	// OutcomeSynced means push and pull both completed
	OutcomeSynced Outcome = "synced"

	// OutcomeFailed means a stage stopped on an error
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the cycle did not run
	OutcomeSkipped Outcome = "skipped"
)

// Result is the completion report of one record type's cycle
type Result struct {
	RecordType string      `json:"recordType"`
	Outcome    Outcome     `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
	Push       *PushResult `json:"push,omitempty"`
	Pull       *PullResult `json:"pull,omitempty"`
	ErrorKind  Kind        `json:"errorKind,omitempty"`
	Stage      Stage       `json:"stage,omitempty"`
	Message    string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`

	// Err is the failure of a failed cycle
	Err *Error `json:"-"`
}

// Failed reports whether the cycle stopped on an error
func (r *Result) Failed() bool {
	return r != nil && r.Outcome == OutcomeFailed
}

// Duration is how long the cycle ran
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) fail(err *Error) {
	r.Outcome = OutcomeFailed
	r.Err = err
	r.ErrorKind = err.Kind
	r.Stage = err.Stage
	r.Message = err.Message
}

// Syncer runs the push-then-pull cycle of one record type
//
//go:generate mockgen -destination=mocks/mock_syncer.go -package=mocks github.com/fieldsync/fieldsync/internal/sync Syncer
type Syncer interface {
	// RecordType returns the name of the record type the syncer drives
	RecordType() string

	// Sync runs one cycle. It never blocks on another cycle of the same record type:
	// a concurrent call is skipped with ReasonAlreadyInProgress.
	Sync(ctx context.Context) *Result

	// ResetZombies returns records stranded IN_FLIGHT by a dead process to PENDING.
	// It waits for a running cycle to finish first.
	ResetZombies(ctx context.Context) (int, error)
}

// PhaseObserver is told about every phase a cycle enters
type PhaseObserver func(ctx context.Context, recordType string, phase status.Phase)

// Option configures a syncer
type Option func(*syncer)

// WithCodec overrides the wire codec
func WithCodec(codec record.Codec) Option {
	return func(s *syncer) {
		s.codec = codec
	}
}

// WithApprovalGate sets the gate consulted by record types that require an approved user
func WithApprovalGate(gate approval.Gate) Option {
	return func(s *syncer) {
		s.gate = gate
	}
}

// WithPhaseObserver registers a callback for phase transitions
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(s *syncer) {
		s.observers = append(s.observers, observer)
	}
}

// WithSyncMetrics sets the metrics the syncer records into
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *syncer) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer for cycle spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *syncer) {
		s.tracer = tracer
	}
}

// WithMaxPagesPerCycle bounds how many pages one pull stage may fetch; 0 means unbounded
func WithMaxPagesPerCycle(n int) Option {
	return func(s *syncer) {
		s.maxPages = n
	}
}

// WithClock overrides the clock used for result timestamps
func WithClock(now func() time.Time) Option {
	return func(s *syncer) {
		s.now = now
	}
}

type syncer struct {
	cfg     config.RecordTypeConfig
	store   record.Store
	client  remote.Client
	codec   record.Codec
	gate    approval.Gate
	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
	now     func() time.Time

	maxPages  int
	observers []PhaseObserver

	// mu is held for the whole cycle
	mu stdsync.Mutex
}

// New creates the syncer of one record type
func New(cfg config.RecordTypeConfig, store record.Store, client remote.Client, opts ...Option) Syncer {
	s := &syncer{
		cfg:      cfg,
		store:    store,
		client:   client,
		codec:    record.NewJSONCodec(),
		now:      time.Now,
		maxPages: DefaultMaxPagesPerCycle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *syncer) RecordType() string {
	return s.cfg.Name
}

func (s *syncer) Sync(ctx context.Context) *Result {
	result := &Result{RecordType: s.cfg.Name, StartedAt: s.now()}
	defer func() {
		result.FinishedAt = s.now()
	}()

	if s.cfg.RequiresApprovedUser && (s.gate == nil || !s.gate.Approved()) {
		slog.Debug("Sync skipped until the user is approved", "record_type", s.cfg.Name)
		result.Outcome = OutcomeSkipped
		result.Reason = ReasonApprovalRequired
		return result
	}

	if !s.mu.TryLock() {
		slog.Info("Sync skipped", "record_type", s.cfg.Name, "reason", ReasonAlreadyInProgress)
		result.Outcome = OutcomeSkipped
		result.Reason = ReasonAlreadyInProgress
		return result
	}
	defer s.mu.Unlock()

	ctx, span := otel.StartSpan(ctx, s.tracer, "sync.Cycle", otel.RecordTypeAttributes(s.cfg.Name, s.cfg.GetBatchSize()))
	defer span.End()

	s.runCycle(ctx, result)

	span.SetAttributes(otel.AttrOutcome.String(string(result.Outcome)))
	if result.Err != nil {
		otel.RecordError(span, result.Err)
		s.metrics.RecordFailure(ctx, s.cfg.Name, string(result.ErrorKind))
	}
	s.metrics.RecordCycleDuration(ctx, s.cfg.Name, s.now().Sub(result.StartedAt), string(result.Outcome))
	return result
}

func (s *syncer) runCycle(ctx context.Context, result *Result) {
	batchSize := s.cfg.GetBatchSize()
	slog.Info("Starting sync cycle", "record_type", s.cfg.Name, "batch_size", batchSize)

	s.observe(ctx, status.PhasePushing)
	p := &pusher{
		recordType: s.cfg.Name,
		batchSize:  batchSize,
		store:      s.store,
		client:     s.client,
		codec:      s.codec,
		tracer:     s.tracer,
	}
	pushResult, pushErr := p.push(ctx)
	result.Push = pushResult
	s.metrics.RecordPushed(ctx, s.cfg.Name, pushResult.Pushed)
	s.metrics.RecordRejected(ctx, s.cfg.Name, pushResult.Rejected)
	if pushErr != nil {
		// pulling now could overwrite records that are still IN_FLIGHT
		result.fail(pushErr)
		s.observe(ctx, status.PhaseFailed)
		slog.Error("Sync cycle failed",
			"record_type", s.cfg.Name, "stage", pushErr.Stage, "kind", pushErr.Kind, "error", pushErr.Message)
		return
	}

	s.observe(ctx, status.PhasePulling)
	pl := &puller{
		recordType: s.cfg.Name,
		batchSize:  batchSize,
		maxPages:   s.maxPages,
		store:      s.store,
		client:     s.client,
		codec:      s.codec,
		tracer:     s.tracer,
	}
	pullResult, pullErr := pl.pull(ctx)
	result.Pull = pullResult
	s.metrics.RecordPulled(ctx, s.cfg.Name, pullResult.Pulled)
	if pullErr != nil {
		result.fail(pullErr)
		s.observe(ctx, status.PhaseFailed)
		slog.Error("Sync cycle failed",
			"record_type", s.cfg.Name, "stage", pullErr.Stage, "kind", pullErr.Kind, "error", pullErr.Message)
		return
	}

	result.Outcome = OutcomeSynced
	s.observe(ctx, status.PhaseIdle)
	slog.Info("Sync cycle completed",
		"record_type", s.cfg.Name,
		"pushed", pushResult.Pushed,
		"rejected", pushResult.Rejected,
		"pulled", pullResult.Pulled)
}

func (s *syncer) ResetZombies(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := record.ResetZombies(ctx, s.store)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight %s records: %w", s.cfg.Name, err)
	}
	if n > 0 {
		slog.Warn("Reset records left in flight by an interrupted push", "record_type", s.cfg.Name, "count", n)
	}
	return n, nil
}

func (s *syncer) observe(ctx context.Context, phase status.Phase) {
	for _, observer := range s.observers {
		observer(ctx, s.cfg.Name, phase)
	}
}
