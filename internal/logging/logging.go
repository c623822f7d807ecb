// Package logging builds the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldsync/fieldsync/internal/config"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// ParseLevel converts a level name to a slog.Level. The empty string is info.
func ParseLevel(levelStr string) (slog.Level, bool) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// levelFromEnv reads FIELDSYNC_LOG_LEVEL, falling back to LOG_LEVEL
func levelFromEnv() string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if levelStr := v.GetString("LOG_LEVEL"); levelStr != "" {
		return levelStr
	}
	return os.Getenv("LOG_LEVEL")
}

// Level returns the effective log level. The environment wins over the configuration file.
func Level(cfg *config.LoggingConfig) slog.Level {
	levelStr := levelFromEnv()
	if levelStr == "" && cfg != nil {
		levelStr = cfg.Level
	}
	level, ok := ParseLevel(levelStr)
	if !ok {
		slog.Warn("Invalid log level, using INFO", "value", levelStr)
	}
	return level
}

// Option configures New
type Option func(*options)

type options struct {
	stderr io.Writer
	level  *slog.Level
}

// WithWriter replaces stderr as the console output
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithLevel fixes the level instead of reading the environment and configuration
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = &level
	}
}

// New builds a logger writing JSON (or text) to stderr and, when configured, to a rotating
// log file. Every record logged with a span in its context carries trace_id and span_id.
// The returned closer flushes and closes the log file.
func New(cfg *config.LoggingConfig, opts ...Option) (*slog.Logger, io.Closer) {
	o := &options{stderr: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	if cfg == nil {
		cfg = &config.LoggingConfig{}
	}

	level := Level(cfg)
	if o.level != nil {
		level = *o.level
	}

	out := o.stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
			Compress:   true,
		}
		out = io.MultiWriter(o.stderr, rotating)
		closer = rotating
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(out, handlerOpts)
	} else {
		base = slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.New(&TraceHandler{Handler: base}), closer
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TraceHandler wraps an slog.Handler to automatically inject OpenTelemetry
// trace_id and span_id into every log record, enabling log-trace correlation.
type TraceHandler struct {
	slog.Handler
}

// Handle implements slog.Handler
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
