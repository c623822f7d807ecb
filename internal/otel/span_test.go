package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp
}

func attrsOf(span sdktrace.ReadOnlySpan) map[attribute.Key]any {
	out := make(map[attribute.Key]any)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.AsInterface()
	}
	return out
}

func TestStartSpan_WithoutTracer(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), nil, "sync.Cycle", RecordTypeAttributes("patients", 50))
	require.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() {
		span.SetAttributes(AttrOutcome.String("synced"))
		RecordError(span, errors.New("ignored"))
		span.End()
	})
}

func TestStartSpan_KeepsParentWithoutTracer(t *testing.T) {
	t.Parallel()

	_, tp := newRecorder(t)
	parentCtx, parent := tp.Tracer("test").Start(context.Background(), "sync.Pass")
	defer parent.End()

	_, span := StartSpan(parentCtx, nil, "sync.Cycle")
	assert.Equal(t, parent.SpanContext(), span.SpanContext())
}

func TestStartSpan_NestsCycleStages(t *testing.T) {
	t.Parallel()

	recorder, tp := newRecorder(t)
	tracer := tp.Tracer("test")

	ctx, cycle := StartSpan(context.Background(), tracer, "sync.Cycle", RecordTypeAttributes("patients", 50))
	_, push := StartSpan(ctx, tracer, "sync.Push", RecordTypeAttributes("patients", 50))
	push.SetAttributes(AttrResultCount.Int(7), AttrRejected.Int(1))
	push.End()
	_, pull := StartSpan(ctx, tracer, "sync.Pull", RecordTypeAttributes("patients", 50))
	pull.SetAttributes(AttrHasCursor.Bool(true), AttrPageIndex.Int(2))
	pull.End()
	cycle.SetAttributes(AttrOutcome.String("synced"))
	cycle.End()

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = s
	}

	cycleSpan := byName["sync.Cycle"]
	require.NotNil(t, cycleSpan)
	assert.Equal(t, map[attribute.Key]any{
		AttrRecordType: "patients",
		AttrBatchSize:  int64(50),
		AttrOutcome:    "synced",
	}, attrsOf(cycleSpan))

	for _, name := range []string{"sync.Push", "sync.Pull"} {
		stage := byName[name]
		require.NotNil(t, stage, name)
		assert.Equal(t, cycleSpan.SpanContext().SpanID(), stage.Parent().SpanID(), name)
	}
	assert.Equal(t, int64(1), attrsOf(byName["sync.Push"])[AttrRejected])
	assert.Equal(t, true, attrsOf(byName["sync.Pull"])[AttrHasCursor])
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   codes.Code
		wantEvents int
	}{
		{name: "nil error leaves the span alone", err: nil, wantCode: codes.Unset},
		{
			name:       "error hides details from the status",
			err:        errors.New(`pull page 3: decode {"full_name":"Achieng"}: unexpected EOF`),
			wantCode:   codes.Error,
			wantEvents: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder, tp := newRecorder(t)
			_, span := tp.Tracer("test").Start(context.Background(), "sync.Pull")
			RecordError(span, tt.err)
			span.End()

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)
			require.Len(t, spans[0].Events(), tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, "operation failed", spans[0].Status().Description)
				assert.Equal(t, "exception", spans[0].Events()[0].Name)
			}
		})
	}

	assert.NotPanics(t, func() { RecordError(nil, errors.New("no span")) })
}
