// Package base provides common statistics and OTEL instrumentation for
// Tapio trace observers.
package base

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BaseObserver provides common statistics tracking for all observers.
// Embed it to get counting and metrics for free.
type BaseObserver struct {
	// Basic info
	name      string
	startTime time.Time

	// Statistics tracking (atomic so Statistics can be read from any goroutine)
	eventsRecorded atomic.Int64
	eventsDropped  atomic.Int64
	eventsFiltered atomic.Int64
	eventsEvicted  atomic.Int64

	lastEventTime atomic.Value // stores time.Time

	// OTEL instrumentation
	tracer trace.Tracer
	meter  metric.Meter
	attrs  metric.MeasurementOption

	eventsRecordedCounter metric.Int64Counter
	eventsDroppedCounter  metric.Int64Counter
	eventsFilteredCounter metric.Int64Counter
	eventsEvictedCounter  metric.Int64Counter
	eventSizeHistogram    metric.Int64Histogram

	logger *zap.Logger
}

// BaseObserverConfig holds configuration for BaseObserver
type BaseObserverConfig struct {
	Name           string
	MetricsEnabled bool
	Labels         map[string]string
	Logger         *zap.Logger
}

// NewBaseObserver creates a base observer with metrics enabled
func NewBaseObserver(name string, logger *zap.Logger) *BaseObserver {
	return NewBaseObserverWithConfig(BaseObserverConfig{
		Name:           name,
		MetricsEnabled: true,
		Logger:         logger,
	})
}

// NewBaseObserverWithConfig creates a base observer with full configuration
func NewBaseObserverWithConfig(config BaseObserverConfig) *BaseObserver {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := noop.NewMeterProvider().Meter(config.Name)
	if config.MetricsEnabled {
		meter = otel.Meter(config.Name)
	}

	labels := make([]attribute.KeyValue, 0, len(config.Labels))
	for k, v := range config.Labels {
		labels = append(labels, attribute.String(k, v))
	}

	bo := &BaseObserver{
		name:      config.Name,
		startTime: time.Now(),
		tracer:    otel.Tracer(config.Name),
		meter:     meter,
		attrs:     metric.WithAttributeSet(attribute.NewSet(labels...)),
		logger:    logger,
	}
	bo.lastEventTime.Store(time.Time{})

	bo.initializeMetrics()

	return bo
}

// Name returns the observer name
func (bo *BaseObserver) Name() string {
	return bo.name
}

// StartSpan starts a span for a control operation
func (bo *BaseObserver) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return bo.tracer.Start(ctx, spanName, opts...)
}

// Tracer returns the tracer for custom instrumentation
func (bo *BaseObserver) Tracer() trace.Tracer {
	return bo.tracer
}

// Meter returns the meter for custom metrics
func (bo *BaseObserver) Meter() metric.Meter {
	return bo.meter
}

// Uptime returns how long the observer has existed
func (bo *BaseObserver) Uptime() time.Duration {
	return time.Since(bo.startTime)
}
