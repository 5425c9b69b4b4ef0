// Package observe provides application-wide observability primitives for
// earmatch: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware for the optional metrics/health listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] and served by
// [MetricsHandler]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
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

// meterName is the instrumentation scope name used for all earmatch metrics.
const meterName = "github.com/MrWong99/earmatch"

// Load outcomes reported on [Metrics.AssetLoads].
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeDecode      = "decode"
	OutcomeCapability  = "capability"
	OutcomeCancelled   = "cancelled"
	OutcomeSuperseded  = "superseded"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Engine ---

	// AssetLoads counts finished loads. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("outcome", ...)
	AssetLoads metric.Int64Counter

	// AssetLoadDuration tracks fetch plus decode latency.
	AssetLoadDuration metric.Float64Histogram

	// GraphBuilds counts playback graphs attached to the output.
	GraphBuilds metric.Int64Counter

	// LiveGraphs tracks graphs currently attached. It never exceeds the
	// number of engines.
	LiveGraphs metric.Int64UpDownCounter

	// Crossfades counts monitor switches on a live graph. Use with attribute:
	//   attribute.String("chain", ...)
	Crossfades metric.Int64Counter

	// Retunes counts live parameter updates. Use with attribute:
	//   attribute.String("chain", ...)
	Retunes metric.Int64Counter

	// --- Trainers ---

	// Rounds counts finished rounds. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("outcome", ...)
	Rounds metric.Int64Counter

	// Scores records every computed match score per mode.
	Scores metric.Int64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// loadBuckets defines histogram bucket boundaries (in seconds) for asset
// fetch and decode.
var loadBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// scoreBuckets splits the 0–100 score range into tenths.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssetLoads, err = m.Int64Counter("earmatch.asset.loads",
		metric.WithDescription("Total asset loads by engine and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AssetLoadDuration, err = m.Float64Histogram("earmatch.asset.load.duration",
		metric.WithDescription("Latency of asset fetch and decode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphBuilds, err = m.Int64Counter("earmatch.graph.builds",
		metric.WithDescription("Total playback graphs built."),
	); err != nil {
		return nil, err
	}
	if met.LiveGraphs, err = m.Int64UpDownCounter("earmatch.graphs.live",
		metric.WithDescription("Number of playback graphs attached to the output."),
	); err != nil {
		return nil, err
	}
	if met.Crossfades, err = m.Int64Counter("earmatch.crossfades",
		metric.WithDescription("Total monitor crossfades by target chain."),
	); err != nil {
		return nil, err
	}
	if met.Retunes, err = m.Int64Counter("earmatch.retunes",
		metric.WithDescription("Total live parameter updates by chain."),
	); err != nil {
		return nil, err
	}
	if met.Rounds, err = m.Int64Counter("earmatch.rounds",
		metric.WithDescription("Total finished rounds by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Scores, err = m.Int64Histogram("earmatch.score",
		metric.WithDescription("Distribution of match scores by mode."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("earmatch.http.request.duration",
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

// RecordAssetLoad records one finished load with its outcome and duration.
func (m *Metrics) RecordAssetLoad(ctx context.Context, engine, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("outcome", outcome),
	)
	m.AssetLoads.Add(ctx, 1, attrs)
	m.AssetLoadDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordGraphBuilt counts a new graph and marks it live.
func (m *Metrics) RecordGraphBuilt(ctx context.Context, engine string) {
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.GraphBuilds.Add(ctx, 1, attrs)
	m.LiveGraphs.Add(ctx, 1, attrs)
}

// RecordGraphReleased marks a graph as no longer live.
func (m *Metrics) RecordGraphReleased(ctx context.Context, engine string) {
	m.LiveGraphs.Add(ctx, -1, metric.WithAttributes(attribute.String("engine", engine)))
}

// RecordCrossfade counts a monitor switch towards chain.
func (m *Metrics) RecordCrossfade(ctx context.Context, engine, chain string) {
	m.Crossfades.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("chain", chain),
	))
}

// RecordRetune counts a live parameter update on chain.
func (m *Metrics) RecordRetune(ctx context.Context, engine, chain string) {
	m.Retunes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("chain", chain),
	))
}

// RecordRound counts a finished round.
func (m *Metrics) RecordRound(ctx context.Context, mode, outcome string) {
	m.Rounds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

// RecordScore records a computed score.
func (m *Metrics) RecordScore(ctx context.Context, mode string, score int) {
	m.Scores.Record(ctx, int64(score), metric.WithAttributes(attribute.String("mode", mode)))
}
