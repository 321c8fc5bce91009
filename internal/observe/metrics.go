// Package observe provides the observability primitives of Oratio:
// OpenTelemetry metrics, tracing spans, trace-aware structured logging and
// the HTTP middleware used by the serve command.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all Oratio metrics.
const meterName = "github.com/MrWong99/oratio"

// Metrics holds the OpenTelemetry instruments of the analysis pipeline.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Attribute: stage.
	StageDuration metric.Float64Histogram

	// AIRequestDuration tracks AI client call latency. Attribute: purpose.
	AIRequestDuration metric.Float64Histogram

	// AIRequests counts AI client calls. Attributes: purpose, status.
	AIRequests metric.Int64Counter

	// AITokens counts tokens reported by the LLM backend. Attribute: type
	// (prompt or completion).
	AITokens metric.Int64Counter

	// CacheLookups counts cache reads. Attributes: kind, result
	// (hit, miss, error).
	CacheLookups metric.Int64Counter

	// IssuesDetected counts issues emitted by a pipeline run. Attributes:
	// source, category.
	IssuesDetected metric.Int64Counter

	// Analyses counts finished pipeline runs. Attribute: status
	// (ok, fallback, error).
	Analyses metric.Int64Counter

	// Fallbacks counts stages that degraded to their deterministic fallback.
	// Attribute: stage.
	Fallbacks metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// breaker, state.
	BreakerTransitions metric.Int64Counter

	// ActiveAnalyses tracks pipeline runs in flight.
	ActiveAnalyses metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API request time. Attributes: method,
	// route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. AI calls dominate the
// upper range.
var latencyBuckets = []float64{
	0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("oratio.stage.duration",
		metric.WithDescription("Latency of analysis pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AIRequestDuration, err = m.Float64Histogram("oratio.ai.request.duration",
		metric.WithDescription("Latency of AI client calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AIRequests, err = m.Int64Counter("oratio.ai.requests",
		metric.WithDescription("AI client calls by purpose and status."),
	); err != nil {
		return nil, err
	}
	if met.AITokens, err = m.Int64Counter("oratio.ai.tokens",
		metric.WithDescription("Tokens consumed by AI calls by type."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("oratio.cache.lookups",
		metric.WithDescription("Cache reads by kind and result."),
	); err != nil {
		return nil, err
	}
	if met.IssuesDetected, err = m.Int64Counter("oratio.issues",
		metric.WithDescription("Issues emitted by source and category."),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("oratio.analyses",
		metric.WithDescription("Finished analyses by status."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("oratio.fallbacks",
		metric.WithDescription("Stages that fell back to deterministic output."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("oratio.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveAnalyses, err = m.Int64UpDownCounter("oratio.active_analyses",
		metric.WithDescription("Analyses currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("oratio.http.request.duration",
		metric.WithDescription("API request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first use from [otel.GetMeterProvider]. Panics if instrument creation fails,
// which does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordAIRequest records one AI client call with its outcome and latency.
func (m *Metrics) RecordAIRequest(ctx context.Context, purpose, status string, d time.Duration) {
	m.AIRequests.Add(ctx, 1, metric.WithAttributes(Attr("purpose", purpose), Attr("status", status)))
	m.AIRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("purpose", purpose)))
}

// RecordTokens adds token usage. Zero counts are skipped.
func (m *Metrics) RecordTokens(ctx context.Context, prompt, completion int) {
	if prompt > 0 {
		m.AITokens.Add(ctx, int64(prompt), metric.WithAttributes(Attr("type", "prompt")))
	}
	if completion > 0 {
		m.AITokens.Add(ctx, int64(completion), metric.WithAttributes(Attr("type", "completion")))
	}
}

// RecordCacheLookup records one cache read. result is hit, miss or error.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("result", result)))
}

// RecordIssues adds n issues of the given source and category.
func (m *Metrics) RecordIssues(ctx context.Context, source, category string, n int) {
	if n <= 0 {
		return
	}
	m.IssuesDetected.Add(ctx, int64(n), metric.WithAttributes(Attr("source", source), Attr("category", category)))
}

// RecordAnalysis records a finished analysis.
func (m *Metrics) RecordAnalysis(ctx context.Context, status string) {
	m.Analyses.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordFallback records a stage that degraded to its fallback.
func (m *Metrics) RecordFallback(ctx context.Context, stage string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage)))
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("state", state)))
}
