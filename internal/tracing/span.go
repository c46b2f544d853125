package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on fetch spans.
const (
	AttrResourceID = attribute.Key("rangefetch.resource.id")
	AttrOutcome    = attribute.Key("rangefetch.outcome")
	AttrURL        = attribute.Key("url.full")
	AttrStatusCode = attribute.Key("http.response.status_code")
	AttrBodySize   = attribute.Key("http.response.body.size")
)

// Attribute keys describing a run.
const (
	AttrRangeStart = attribute.Key("rangefetch.range.start")
	AttrRangeEnd   = attribute.Key("rangefetch.range.end")
	AttrRangeSize  = attribute.Key("rangefetch.range.size")
	AttrWorkers    = attribute.Key("rangefetch.workers")
	AttrStore      = attribute.Key("rangefetch.store")
	AttrFetched    = attribute.Key("rangefetch.fetched")
	AttrSkipped    = attribute.Key("rangefetch.skipped")
	AttrFailed     = attribute.Key("rangefetch.failed")
)

// StartRunSpan starts the internal span covering a whole run. Fetch spans
// started from the returned context become its children.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, run Run) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fetch range",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(run.Attributes()...),
	)
}

// StartFetchSpan starts a client span for retrieving one resource.
func StartFetchSpan(ctx context.Context, tracer trace.Tracer, id int64, url string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "GET resource",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		AttrResourceID.Int64(id),
		attribute.String("http.request.method", http.MethodGet),
	)
	if url != "" {
		span.SetAttributes(AttrURL.String(url))
	}
	return ctx, span
}

// EndSpan finishes span, marking it as failed when err is non-nil.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes the W3C trace context of ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
