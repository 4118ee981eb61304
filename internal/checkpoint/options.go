package checkpoint

import (
	"context"
	"time"

	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

// Metrics receives engine measurements. *metric.Registry satisfies it.
type Metrics interface {
	RecordCycle(result string, seconds float64, unix int64)
	ObservePhase(phase string, seconds float64)
	ObservePause(seconds float64)
	RecordTask(lane, event string)
	AddBytesCopied(n uint64)
	SetDirtyRegions(n int)
	SetStoredSessions(kind string, n int)
	SetCapMapSize(n int)
}

type nopMetrics struct{}

// DiscardMetrics returns a Metrics that drops every measurement.
func DiscardMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) RecordCycle(string, float64, int64) {}
func (nopMetrics) ObservePhase(string, float64)       {}
func (nopMetrics) ObservePause(float64)               {}
func (nopMetrics) RecordTask(string, string)          {}
func (nopMetrics) AddBytesCopied(uint64)              {}
func (nopMetrics) SetDirtyRegions(int)                {}
func (nopMetrics) SetStoredSessions(string, int)      {}
func (nopMetrics) SetCapMapSize(int)                  {}

// PhaseHook runs at the start of every phase. A non-nil error aborts the
// cycle as if the phase itself had failed. Used for fault injection.
type PhaseHook func(ctx context.Context, p Phase) error

type options struct {
	workers int
	pin     bool
	name    string
	logger  logger.Logger
	metrics Metrics
	hook    PhaseHook
	now     func() time.Time
}

func defaultOptions() options {
	return options{
		workers: 4,
		name:    "child",
		logger:  logger.Default(),
		metrics: nopMetrics{},
		now:     time.Now,
	}
}

// Option configures a Checkpointer.
type Option func(*options)

// WithWorkers sets the copy pool size. Zero runs every phase sequentially
// on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.workers = n
		}
	}
}

// WithPinWorkers pins each copy worker to its own CPU where supported.
func WithPinWorkers(pin bool) Option {
	return func(o *options) { o.pin = pin }
}

// WithName sets the child's name used in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithPhaseHook installs a hook called at the start of every phase.
func WithPhaseHook(h PhaseHook) Option {
	return func(o *options) { o.hook = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
