// Package observe provides application-wide observability primitives for
// speakerd: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all speakerd metrics.
const meterName = "github.com/voxmem/speakerd"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// IngestDuration tracks audio decode + normalisation latency.
	IngestDuration metric.Float64Histogram

	// EncodeDuration tracks speaker embedding inference latency.
	EncodeDuration metric.Float64Histogram

	// DiarizeDuration tracks diarization pipeline latency.
	DiarizeDuration metric.Float64Histogram

	// --- Counters ---

	// InferenceRequests counts model inference calls. Use with attributes:
	//   attribute.String("kind", "encode"|"diarize"), attribute.String("status", ...)
	InferenceRequests metric.Int64Counter

	// InferenceErrors counts model runtime failures. Use with attribute:
	//   attribute.String("kind", ...)
	InferenceErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveInferences tracks the number of inference calls currently
	// holding a worker slot.
	ActiveInferences metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// audio decode and model inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.IngestDuration, err = m.Float64Histogram("speakerd.ingest.duration",
		metric.WithDescription("Latency of audio decode and normalisation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("speakerd.encode.duration",
		metric.WithDescription("Latency of speaker embedding inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiarizeDuration, err = m.Float64Histogram("speakerd.diarize.duration",
		metric.WithDescription("Latency of the diarization pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.InferenceRequests, err = m.Int64Counter("speakerd.inference.requests",
		metric.WithDescription("Total model inference calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("speakerd.inference.errors",
		metric.WithDescription("Total model runtime failures by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInferences, err = m.Int64UpDownCounter("speakerd.active_inferences",
		metric.WithDescription("Number of inference calls currently holding a worker slot."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakerd.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordInference increments the inference request counter with the given
// kind ("encode" or "diarize") and status ("ok" or "error").
func (m *Metrics) RecordInference(ctx context.Context, kind, status string) {
	m.InferenceRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordInferenceError increments the inference error counter for the given
// kind.
func (m *Metrics) RecordInferenceError(ctx context.Context, kind string) {
	m.InferenceErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
