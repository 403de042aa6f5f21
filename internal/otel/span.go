// Package otel holds span helpers and attribute keys shared by the sync components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on sync and scheduler spans
const (
	AttrRepositoryID     = attribute.Key("repository.id")
	AttrJobID            = attribute.Key("sync.job_id")
	AttrSyncType         = attribute.Key("sync.type")
	AttrBatchID          = attribute.Key("batch.id")
	AttrTrigger          = attribute.Key("batch.trigger")
	AttrErrorKind        = attribute.Key("error.kind")
	AttrRecordsProcessed = attribute.Key("sync.records_processed")
	AttrCandidateCount   = attribute.Key("batch.candidates")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil
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

// RecordError records err on span and marks it failed. The status message is
// kept generic so upstream URLs and tokens never land in span status.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
