package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/pkg/audio/mixer"
)

// defaultSubscriberBuffer is the channel capacity handed out by Subscribe.
const defaultSubscriberBuffer = 8

type options struct {
	name             string
	logger           *slog.Logger
	metrics          *observe.Metrics
	tracer           trace.Tracer
	tau              time.Duration
	loop             bool
	subscriberBuffer int
}

func defaultOptions() options {
	return options{
		name:             "engine",
		logger:           slog.Default(),
		tracer:           observe.Tracer(),
		tau:              mixer.DefaultTimeConstant,
		loop:             true,
		subscriberBuffer: defaultSubscriberBuffer,
	}
}

// Option configures an [Engine] during construction.
type Option func(*options)

// WithName labels the engine's logs, metrics and spans.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. The engine adds an "engine" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for asset.load spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithTimeConstant sets the monitor crossfade time constant.
func WithTimeConstant(tau time.Duration) Option {
	return func(o *options) {
		if tau >= 0 {
			o.tau = tau
		}
	}
}

// WithLooping sets the initial loop flag. Engines loop by default.
func WithLooping(loop bool) Option {
	return func(o *options) {
		o.loop = loop
	}
}

// WithSubscriberBuffer sets the capacity of channels returned by Subscribe.
func WithSubscriberBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.subscriberBuffer = n
		}
	}
}
