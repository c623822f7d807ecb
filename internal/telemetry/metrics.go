package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync cycle meter
	SyncMetricsMeterName = "github.com/fieldsync/fieldsync/sync"

	// StoreMetricsMeterName is the name used for the local store meter
	StoreMetricsMeterName = "github.com/fieldsync/fieldsync/store"
)

// StoreMetrics holds the OpenTelemetry instruments describing the local stores
type StoreMetrics struct {
	records metric.Int64Gauge
}

// NewStoreMetrics creates a new StoreMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewStoreMetrics(provider metric.MeterProvider) (*StoreMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(StoreMetricsMeterName)

	records, err := meter.Int64Gauge(
		"fieldsync_records",
		metric.WithDescription("Number of local records per record type and sync status"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{records: records}, nil
}

// RecordStatusCounts records the number of records in each sync status
func (m *StoreMetrics) RecordStatusCounts(ctx context.Context, recordType string, counts map[string]int) {
	if m == nil || m.records == nil {
		return
	}

	for status, n := range counts {
		m.records.Record(ctx, int64(n), metric.WithAttributes(
			attribute.String("record_type", recordType),
			attribute.String("status", status),
		))
	}
}

// SyncMetrics holds the OpenTelemetry instruments for sync cycles
type SyncMetrics struct {
	cycleDuration metric.Float64Histogram
	pushed        metric.Int64Counter
	rejected      metric.Int64Counter
	pulled        metric.Int64Counter
	failures      metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"fieldsync_sync_cycle_duration_seconds",
		metric.WithDescription("Duration of push-then-pull cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	pushed, err := meter.Int64Counter(
		"fieldsync_records_pushed_total",
		metric.WithDescription("Records accepted by the server"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter(
		"fieldsync_records_invalid_total",
		metric.WithDescription("Records rejected by the server with field errors"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	pulled, err := meter.Int64Counter(
		"fieldsync_records_pulled_total",
		metric.WithDescription("Records merged from the server"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"fieldsync_sync_failures_total",
		metric.WithDescription("Failed sync cycles by error kind"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleDuration: cycleDuration,
		pushed:        pushed,
		rejected:      rejected,
		pulled:        pulled,
		failures:      failures,
	}, nil
}

// RecordCycleDuration records how long a cycle of a record type took and how it ended
func (m *SyncMetrics) RecordCycleDuration(ctx context.Context, recordType string, duration time.Duration, outcome string) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("outcome", outcome),
	))
}

// RecordPushed counts records the server accepted
func (m *SyncMetrics) RecordPushed(ctx context.Context, recordType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pushed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("record_type", recordType)))
}

// RecordRejected counts records the server marked invalid
func (m *SyncMetrics) RecordRejected(ctx context.Context, recordType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rejected.Add(ctx, int64(n), metric.WithAttributes(attribute.String("record_type", recordType)))
}

// RecordPulled counts records merged from the server
func (m *SyncMetrics) RecordPulled(ctx context.Context, recordType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pulled.Add(ctx, int64(n), metric.WithAttributes(attribute.String("record_type", recordType)))
}

// RecordFailure counts a failed cycle under its error kind
func (m *SyncMetrics) RecordFailure(ctx context.Context, recordType, kind string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("kind", kind),
	))
}
