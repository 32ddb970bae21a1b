// Package observe provides application-wide observability primitives for
// Voxbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxbridge metrics.
const meterName = "github.com/jmolinaso/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ClassifyDuration tracks intent classification latency.
	ClassifyDuration metric.Float64Histogram

	// ToolDispatchDuration tracks tool dispatch latency.
	ToolDispatchDuration metric.Float64Histogram

	// WorkflowStepDuration tracks workflow step execution latency.
	WorkflowStepDuration metric.Float64Histogram

	// --- Counters ---

	// Classifications counts classification requests. Use with attributes:
	//   attribute.String("category", ...), attribute.String("source", ...)
	Classifications metric.Int64Counter

	// CacheLookups counts classification cache lookups. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("result", ...)
	CacheLookups metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Error counters ---

	// ToolErrors counts tool dispatch errors. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("kind", ...)
	ToolErrors metric.Int64Counter

	// --- Gauges ---

	// OpenSessions tracks the number of connected duplex sessions.
	OpenSessions metric.Int64UpDownCounter

	// ActiveWorkflows tracks the number of in-flight workflows.
	ActiveWorkflows metric.Int64UpDownCounter

	// QueueDepth tracks the number of requests waiting in the batch queue.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for classification and tool dispatch latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ClassifyDuration, err = m.Float64Histogram("voxbridge.classify.duration",
		metric.WithDescription("Latency of intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDispatchDuration, err = m.Float64Histogram("voxbridge.tool_dispatch.duration",
		metric.WithDescription("Latency of tool dispatch through the broker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WorkflowStepDuration, err = m.Float64Histogram("voxbridge.workflow_step.duration",
		metric.WithDescription("Latency of workflow step execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Classifications, err = m.Int64Counter("voxbridge.classifications",
		metric.WithDescription("Total classification requests by category and source."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("voxbridge.cache.lookups",
		metric.WithDescription("Total classification cache lookups by tier and result."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxbridge.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ToolErrors, err = m.Int64Counter("voxbridge.tool.errors",
		metric.WithDescription("Total tool dispatch errors by tool and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OpenSessions, err = m.Int64UpDownCounter("voxbridge.open_sessions",
		metric.WithDescription("Number of connected duplex sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkflows, err = m.Int64UpDownCounter("voxbridge.active_workflows",
		metric.WithDescription("Number of in-flight workflows."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("voxbridge.queue.depth",
		metric.WithDescription("Number of requests waiting in the batch queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordClassification is a convenience method that records a classification
// counter increment with the standard attribute set.
func (m *Metrics) RecordClassification(ctx context.Context, category, source string) {
	m.Classifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("source", source),
		),
	)
}

// RecordCacheLookup is a convenience method that records a cache lookup
// counter increment with the standard attribute set.
func (m *Metrics) RecordCacheLookup(ctx context.Context, tier, result string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("result", result),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordToolError is a convenience method that records a tool error counter
// increment.
func (m *Metrics) RecordToolError(ctx context.Context, tool, kind string) {
	m.ToolErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("kind", kind),
		),
	)
}
