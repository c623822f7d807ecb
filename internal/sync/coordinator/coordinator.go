package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/otel"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/state"
	"github.com/fieldsync/fieldsync/internal/telemetry"
)

// pollingJitterDivisor bounds the random offset applied to the polling interval to ±1/4 of it
const pollingJitterDivisor = 4

var (
	// ErrUnknownRecordType is returned for record types that were never registered
	ErrUnknownRecordType = errors.New("unknown record type")

	// ErrAlreadyRegistered is returned when a record type is registered twice
	ErrAlreadyRegistered = errors.New("record type already registered")
)

// Coordinator owns the syncers of every record type and decides when they run
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/fieldsync/fieldsync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Register adds the syncer of one record type. Names must be unique.
	Register(syncer pkgsync.Syncer, cfg config.RecordTypeConfig) error

	// RecordTypes lists the registered record types in registration order
	RecordTypes() []string

	// SyncAll runs one cycle of every registered record type concurrently and waits for all of them.
	// A failing record type never stops the others.
	SyncAll(ctx context.Context) *AggregatedResult

	// SyncNow runs one cycle of a single record type
	SyncNow(ctx context.Context, recordType string) (*pkgsync.Result, error)

	// Trigger requests a full pass from the background loop. Requests made while one is
	// already pending are coalesced.
	Trigger(reason string)

	// ObservePhase publishes the phase of a running cycle to the state service.
	// It is meant to be passed to syncers through pkgsync.WithPhaseObserver.
	ObservePhase(ctx context.Context, recordType string, phase status.Phase)

	// Start resets records stranded in flight, runs an initial pass and then syncs
	// record types as their cadence elapses. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the background loop and any in-flight cycle, and waits for the loop to exit
	Stop() error
}

// StoreProvider hands out the record store of a record type
type StoreProvider interface {
	Store(recordType string) record.Store
}

type entry struct {
	syncer pkgsync.Syncer
	cfg    config.RecordTypeConfig
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	statusSvc state.CycleStateService
	schedule  config.ScheduleConfig
	intervals map[string]time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	order   []string
	entries map[string]*entry

	triggers chan string

	// Lifecycle management
	lifecycleMu sync.Mutex
	cancelFunc  context.CancelFunc
	done        chan struct{}

	storeMetrics *telemetry.StoreMetrics
	stores       StoreProvider
	tracer       trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithStoreMetrics records the per-status record counts of each record type after its cycles
func WithStoreMetrics(metrics *telemetry.StoreMetrics, stores StoreProvider) Option {
	return func(c *defaultCoordinator) {
		c.storeMetrics = metrics
		c.stores = stores
	}
}

// WithTracer sets the tracer for pass spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// WithClock overrides the clock used for cadence decisions
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a coordinator with no record types registered
func New(statusSvc state.CycleStateService, schedule config.ScheduleConfig, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		statusSvc: statusSvc,
		schedule:  schedule,
		intervals: schedule.GetIntervals(),
		now:       time.Now,
		entries:   make(map[string]*entry),
		triggers:  make(chan string, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the base polling interval with a random jitter applied
// so devices that come online together do not hit the server in lockstep.
func calculatePollingInterval(base time.Duration) time.Duration {
	jitter := base / pollingJitterDivisor
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return base + jitterOffset
}

func (c *defaultCoordinator) Register(syncer pkgsync.Syncer, cfg config.RecordTypeConfig) error {
	if syncer == nil {
		return fmt.Errorf("syncer of %s cannot be nil", cfg.Name)
	}
	if syncer.RecordType() != cfg.Name {
		return fmt.Errorf("syncer drives %q but was registered as %q", syncer.RecordType(), cfg.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[cfg.Name]; exists {
		return fmt.Errorf("%s: %w", cfg.Name, ErrAlreadyRegistered)
	}
	c.entries[cfg.Name] = &entry{syncer: syncer, cfg: cfg}
	c.order = append(c.order, cfg.Name)
	return nil
}

func (c *defaultCoordinator) RecordTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *defaultCoordinator) configs() []config.RecordTypeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]config.RecordTypeConfig, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].cfg)
	}
	return out
}

func (c *defaultCoordinator) lookup(recordType string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[recordType]
	return e, ok
}

func (c *defaultCoordinator) SyncAll(ctx context.Context) *AggregatedResult {
	return c.syncTypes(ctx, c.RecordTypes())
}

func (c *defaultCoordinator) SyncNow(ctx context.Context, recordType string) (*pkgsync.Result, error) {
	e, ok := c.lookup(recordType)
	if !ok {
		return nil, fmt.Errorf("%s: %w", recordType, ErrUnknownRecordType)
	}
	return c.runSyncer(ctx, e), nil
}

// syncTypes runs the named record types concurrently, bounded by the configured concurrency
func (c *defaultCoordinator) syncTypes(ctx context.Context, names []string) *AggregatedResult {
	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.Pass")
	defer span.End()
	span.SetAttributes(otel.AttrResultCount.Int(len(names)))

	aggregated := &AggregatedResult{Results: make([]*pkgsync.Result, len(names))}
	if len(names) == 0 {
		return aggregated
	}

	// the goroutines never return errors so one record type cannot cancel the others
	var g errgroup.Group
	if limit := c.schedule.GetMaxConcurrency(); limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			e, ok := c.lookup(name)
			if !ok {
				aggregated.Results[i] = &pkgsync.Result{
					RecordType: name,
					Outcome:    pkgsync.OutcomeFailed,
					ErrorKind:  pkgsync.KindUnexpected,
					Message:    ErrUnknownRecordType.Error(),
				}
				return nil
			}
			aggregated.Results[i] = c.runSyncer(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	failed := aggregated.Failed()
	if len(failed) > 0 {
		span.SetAttributes(otel.AttrOutcome.String(string(pkgsync.OutcomeFailed)))
	}
	slog.Info("Sync pass finished",
		"record_types", len(names),
		"synced", len(aggregated.Succeeded()),
		"failed", len(failed),
		"skipped", len(aggregated.Skipped()))
	return aggregated
}

// runSyncer executes one cycle and persists its final status
func (c *defaultCoordinator) runSyncer(ctx context.Context, e *entry) *pkgsync.Result {
	recordType := e.cfg.Name

	// Set up the final status update in a defer block so the status is always
	// cleaned up, even if the syncer panics. The default result covers that case.
	result := &pkgsync.Result{
		RecordType: recordType,
		Outcome:    pkgsync.OutcomeFailed,
		ErrorKind:  pkgsync.KindUnexpected,
		Message:    fmt.Sprintf("Unexpected failure while syncing %s", recordType),
		StartedAt:  c.now(),
	}
	defer func() {
		// the cycle may have ended because ctx was cancelled; its status must still be stored
		persistCtx := context.WithoutCancel(ctx)
		c.recordFinalStatus(persistCtx, recordType, result)
		c.recordStoreCounts(persistCtx, recordType)
	}()

	result = e.syncer.Sync(ctx)
	return result
}

func (c *defaultCoordinator) recordFinalStatus(ctx context.Context, recordType string, result *pkgsync.Result) {
	_, err := c.statusSvc.UpdateStatusAtomically(ctx, recordType, func(s *status.CycleStatus) bool {
		return applyResult(s, result)
	})
	if err != nil {
		slog.Error("Error updating cycle status", "record_type", recordType, "error", err)
	}
}

// applyResult folds a finished cycle into the stored status. It returns false when the
// status must be left alone.
func applyResult(s *status.CycleStatus, result *pkgsync.Result) bool {
	switch result.Outcome {
	case pkgsync.OutcomeSkipped:
		if result.Reason == pkgsync.ReasonAlreadyInProgress {
			// the running cycle owns the status
			return false
		}
		s.Message = fmt.Sprintf("Sync skipped: %s", result.Reason)
		return true

	case pkgsync.OutcomeSynced:
		finished := result.FinishedAt
		started := result.StartedAt
		s.Phase = status.PhaseIdle
		s.Message = "Sync completed successfully"
		s.LastAttempt = &started
		s.LastSyncTime = &finished
		s.AttemptCount = 0
		s.LastErrorKind = ""

	default:
		started := result.StartedAt
		s.Phase = status.PhaseFailed
		s.Message = result.Message
		s.LastAttempt = &started
		s.AttemptCount++
		s.LastErrorKind = string(result.ErrorKind)
	}

	s.Pushed, s.Rejected, s.Pulled = 0, 0, 0
	if result.Push != nil {
		s.Pushed = result.Push.Pushed
		s.Rejected = result.Push.Rejected
	}
	if result.Pull != nil {
		s.Pulled = result.Pull.Pulled
	}
	return true
}

func (c *defaultCoordinator) recordStoreCounts(ctx context.Context, recordType string) {
	if c.storeMetrics == nil || c.stores == nil {
		return
	}
	counts, err := c.stores.Store(recordType).CountByStatus(ctx)
	if err != nil {
		slog.Warn("Failed to count records by status", "record_type", recordType, "error", err)
		return
	}
	byName := make(map[string]int, len(counts))
	for s, n := range counts {
		byName[s.String()] = n
	}
	c.storeMetrics.RecordStatusCounts(ctx, recordType, byName)
}

func (c *defaultCoordinator) ObservePhase(ctx context.Context, recordType string, phase status.Phase) {
	if phase != status.PhasePushing && phase != status.PhasePulling {
		// terminal phases are written by runSyncer together with the cycle's counts
		return
	}

	_, err := c.statusSvc.UpdateStatusAtomically(ctx, recordType, func(s *status.CycleStatus) bool {
		if s.Phase == phase {
			return false
		}
		s.Phase = phase
		s.Message = "Sync in progress"
		return true
	})
	if err != nil {
		slog.Warn("Failed to publish sync phase", "record_type", recordType, "phase", phase, "error", err)
	}
}

func (c *defaultCoordinator) Trigger(reason string) {
	select {
	case c.triggers <- reason:
		slog.Info("Sync pass requested", "reason", reason)
	default:
		slog.Debug("Sync pass already requested", "reason", reason)
	}
}

// Start begins background sync coordination for all record types
func (c *defaultCoordinator) Start(ctx context.Context) error {
	configs := c.configs()
	slog.Info("Starting background sync coordinator", "record_type_count", len(configs))

	coordCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.lifecycleMu.Lock()
	c.cancelFunc = cancel
	c.done = done
	c.lifecycleMu.Unlock()
	defer func() {
		cancel()
		close(done)
		slog.Info("Background sync coordinator shutting down")
	}()

	if err := c.statusSvc.Initialize(coordCtx, configs); err != nil {
		return fmt.Errorf("failed to initialize cycle status: %w", err)
	}

	// nothing can be in flight before the first cycle of this process
	for _, name := range c.RecordTypes() {
		e, _ := c.lookup(name)
		if _, err := e.syncer.ResetZombies(coordCtx); err != nil {
			slog.Error("Failed to reset in-flight records", "record_type", name, "error", err)
		}
	}

	basePollingInterval := c.schedule.GetPollInterval()
	pollingInterval := calculatePollingInterval(basePollingInterval)
	slog.Info("Configured coordinator polling interval",
		"base_interval", basePollingInterval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	// Perform initial sync of every record type
	c.SyncAll(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.syncDue(coordCtx)

			// Recalculate interval with new jitter for next iteration
			ticker.Reset(calculatePollingInterval(basePollingInterval))
		case reason := <-c.triggers:
			slog.Info("Running requested sync pass", "reason", reason)
			c.SyncAll(coordCtx)
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// syncDue syncs the record types whose cadence elapsed since their last attempt
func (c *defaultCoordinator) syncDue(ctx context.Context) {
	statuses, err := c.statusSvc.ListStatuses(ctx)
	if err != nil {
		slog.Error("Error listing cycle statuses", "error", err)
		return
	}

	now := c.now()
	var due []string
	for _, rt := range c.configs() {
		var lastAttempt *time.Time
		// A persisted running phase is not trusted here: it outlives a lost terminal write.
		// A cycle that is really running skips itself with ReasonAlreadyInProgress.
		if s, ok := statuses[rt.Name]; ok {
			lastAttempt = s.LastAttempt
		}
		if isDue(lastAttempt, cadence(c.intervals, rt), now) {
			due = append(due, rt.Name)
		} else {
			slog.Debug("Record type does not need sync", "record_type", rt.Name)
		}
	}

	if len(due) > 0 {
		c.syncTypes(ctx, due)
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.lifecycleMu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.lifecycleMu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-done
	}
	return nil
}
