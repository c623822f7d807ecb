package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fieldsync/fieldsync/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{in: "", want: slog.LevelInfo, wantOK: true},
		{in: "debug", want: slog.LevelDebug, wantOK: true},
		{in: "INFO", want: slog.LevelInfo, wantOK: true},
		{in: "warning", want: slog.LevelWarn, wantOK: true},
		{in: "Error", want: slog.LevelError, wantOK: true},
		{in: "verbose", want: slog.LevelInfo, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestLevel_EnvironmentWins(t *testing.T) {
	t.Setenv("FIELDSYNC_LOG_LEVEL", "error")
	assert.Equal(t, slog.LevelError, Level(&config.LoggingConfig{Level: "debug"}))
}

func TestLevel_FallsBackToLogLevel(t *testing.T) {
	t.Setenv("FIELDSYNC_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, slog.LevelWarn, Level(nil))
}

func TestLevel_FromConfig(t *testing.T) {
	t.Setenv("FIELDSYNC_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, slog.LevelDebug, Level(&config.LoggingConfig{Level: "debug"}))
}

func TestNew_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer := New(&config.LoggingConfig{}, WithWriter(&buf), WithLevel(slog.LevelInfo))
	t.Cleanup(func() { _ = closer.Close() })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "sync.Cycle")
	logger.InfoContext(ctx, "Starting sync cycle", "record_type", "patients")
	span.End()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "patients", entry["record_type"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestNew_WithoutSpan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(nil, WithWriter(&buf), WithLevel(slog.LevelInfo))
	logger.With("device", "tablet-7").WithGroup("sync").Info("Sync pass finished", "failed", 0)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.Equal(t, "tablet-7", entry["device"])
}

func TestNew_TextFormatAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(&config.LoggingConfig{Format: "text"}, WithWriter(&buf), WithLevel(slog.LevelWarn))
	logger.Info("dropped")
	logger.Warn("kept", "record_type", "patients")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "record_type=patients")
}

func TestNew_RotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fieldsync.log")
	var buf bytes.Buffer
	logger, closer := New(&config.LoggingConfig{File: path}, WithWriter(&buf), WithLevel(slog.LevelInfo))
	logger.Info("Sync cycle completed", "record_type", "facilities")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Sync cycle completed")
	assert.Contains(t, buf.String(), "Sync cycle completed")
}
