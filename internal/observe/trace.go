package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for voxbridge spans.
const tracerName = "github.com/jmolinaso/voxbridge"

// StartSpan opens a span on the globally registered tracer provider. The
// caller owns the returned span and must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID is the identifier voxbridge hands back to clients in the
// X-Correlation-ID header and in error envelopes. It is the active trace
// id, so a client report can be matched to its backend trace directly.
// Empty when ctx carries no span with a valid trace id.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
