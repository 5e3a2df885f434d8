// Package observe provides observability primitives for subforge:
// OpenTelemetry metrics with a Prometheus exporter bridge, and tracer spans
// around pipeline stages.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all subforge metrics.
const meterName = "github.com/subforge/subforge"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", "normalize"|"segment"|"optimize"|"align")
	StageDuration metric.Float64Histogram

	// BatchDuration tracks latency of a single model batch (all retries and
	// reflective passes included).
	BatchDuration metric.Float64Histogram

	// ModelRequests counts model API calls. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ModelRequests metric.Int64Counter

	// ModelRetries counts retried model calls.
	ModelRetries metric.Int64Counter

	// BatchesDegraded counts batches that fell back to original text after
	// the retry budget was exhausted.
	BatchesDegraded metric.Int64Counter

	// SegmentsFlagged counts aligned segments by quality flag. Use with
	// attribute: attribute.String("flag", ...).
	SegmentsFlagged metric.Int64Counter

	// CacheLookups counts response-cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter
}

// latencyBuckets defines histogram boundaries (seconds) sized for batch LLM
// calls rather than interactive traffic.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("subforge.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("subforge.batch.duration",
		metric.WithDescription("End-to-end latency of one model batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelRequests, err = m.Int64Counter("subforge.model.requests",
		metric.WithDescription("Total model API requests by status."),
	); err != nil {
		return nil, err
	}
	if met.ModelRetries, err = m.Int64Counter("subforge.model.retries",
		metric.WithDescription("Total retried model calls."),
	); err != nil {
		return nil, err
	}
	if met.BatchesDegraded, err = m.Int64Counter("subforge.batches.degraded",
		metric.WithDescription("Batches that fell back to original text."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsFlagged, err = m.Int64Counter("subforge.segments.flagged",
		metric.WithDescription("Aligned segments by quality flag."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("subforge.cache.lookups",
		metric.WithDescription("Response cache lookups by result."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordModelRequest increments the model request counter with a status.
func (m *Metrics) RecordModelRequest(ctx context.Context, status string) {
	m.ModelRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordStage records one stage duration in seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordFlag increments the flagged-segment counter for one flag name.
func (m *Metrics) RecordFlag(ctx context.Context, flag string) {
	m.SegmentsFlagged.Add(ctx, 1, metric.WithAttributes(attribute.String("flag", flag)))
}

// RecordCacheLookup increments the cache lookup counter.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
