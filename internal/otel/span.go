// Package otel holds the tracing helpers shared by the sync pipelines and the control API.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on sync spans
const (
	AttrRecordType  = attribute.Key("sync.record_type")
	AttrBatchSize   = attribute.Key("sync.batch_size")
	AttrStage       = attribute.Key("sync.stage")
	AttrBatchIndex  = attribute.Key("push.batch")
	AttrRejected    = attribute.Key("push.rejected")
	AttrPageIndex   = attribute.Key("pull.page")
	AttrHasCursor   = attribute.Key("pull.has_cursor")
	AttrResultCount = attribute.Key("result.count")
	AttrOutcome     = attribute.Key("sync.outcome")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordTypeAttributes tags a span with the record type it works on
func RecordTypeAttributes(recordType string, batchSize int) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrRecordType.String(recordType),
		AttrBatchSize.Int(batchSize),
	)
}

// RecordError records an error on a span and sets the span status to error.
// The status description stays generic so payload fragments and connection strings only
// show up in the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
