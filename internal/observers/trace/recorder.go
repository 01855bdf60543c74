// Package trace records device events into an in-memory ring buffer so the
// most recent activity can be inspected after the fact.
//
// A Recorder subscribes to an event source while enabled and appends every
// accepted event to its buffer, evicting the oldest records when full.
// Recorders are not safe for concurrent use: the event source must deliver
// on the goroutine that also controls and iterates the recorder.
package trace

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/yairfalse/tapio-trace/internal/observers/base"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/record"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/ring"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrDisposed is returned by operations on a disposed recorder
	ErrDisposed = errors.New("trace recorder disposed")

	// ErrNoSource is returned by New without an event source
	ErrNoSource = errors.New("trace recorder requires an event source")
)

// EventSource pushes events to subscribed handlers
type EventSource interface {
	Subscribe(handler domain.EventHandler) domain.Subscription
}

// DeviceRegistry resolves device ids to device handles
type DeviceRegistry interface {
	Resolve(id domain.DeviceID) (domain.Device, bool)
}

// Recorder captures events from an EventSource into a ring buffer
type Recorder struct {
	*base.BaseObserver

	id     string
	logger *zap.Logger

	source   EventSource
	registry DeviceRegistry
	filter   FilterFunc

	buffer       *ring.Buffer
	scratch      []byte
	deviceFilter domain.DeviceID

	enabled      bool
	disposed     bool
	subscription domain.Subscription
	cleanup      runtime.Cleanup

	dropLimiter     *rate.Limiter
	suppressedDrops int
}

// New creates a disabled recorder. The arena is allocated on the first Enable.
func New(source EventSource, opts ...Option) (*Recorder, error) {
	if source == nil {
		return nil, ErrNoSource
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.deviceFilter > domain.MaxDeviceID {
		return nil, fmt.Errorf("%w: device filter %d", record.ErrInvalidDevice, o.deviceFilter)
	}

	buffer, err := ring.New(o.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace buffer: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("recorder", o.name), zap.String("recorder_id", id))

	r := &Recorder{
		BaseObserver: base.NewBaseObserverWithConfig(base.BaseObserverConfig{
			Name:           o.name,
			MetricsEnabled: o.metricsEnabled,
			Labels:         o.labels,
			Logger:         logger,
		}),
		id:           id,
		logger:       logger,
		source:       source,
		registry:     o.registry,
		filter:       o.filter,
		buffer:       buffer,
		deviceFilter: o.deviceFilter,
		dropLimiter:  rate.NewLimiter(rate.Every(o.dropLogInterval), 1),
	}

	// Backstop for recorders dropped without Dispose
	r.cleanup = runtime.AddCleanup(r, releaseLeaked, leakGuard{buffer: buffer, logger: logger})

	return r, nil
}

type leakGuard struct {
	buffer *ring.Buffer
	logger *zap.Logger
}

func releaseLeaked(g leakGuard) {
	if g.buffer.Allocated() {
		g.logger.Warn("Trace recorder collected without Dispose, releasing buffer",
			zap.Int("capacity", g.buffer.Capacity()))
	}
	g.buffer.Release()
}

// ID returns the recorder instance id
func (r *Recorder) ID() string {
	return r.id
}

// Enable allocates the buffer if needed and subscribes to the event source
func (r *Recorder) Enable() (err error) {
	span := r.startSpan("enable")
	defer func() { endSpan(span, err) }()

	if r.disposed {
		return ErrDisposed
	}
	if r.enabled {
		return nil
	}

	allocate := !r.buffer.Allocated()
	if err := r.buffer.Allocate(); err != nil {
		return fmt.Errorf("failed to allocate trace buffer: %w", err)
	}
	if allocate {
		r.logger.Debug("Allocated trace buffer", zap.Int("capacity", r.buffer.Capacity()))
	}

	r.subscription = r.source.Subscribe(r.OnEvent)
	r.enabled = true
	span.SetAttributes(
		attribute.Bool("trace.allocated", allocate),
		attribute.Int("trace.retained_events", r.buffer.Len()))

	r.logger.Info("Trace recorder enabled",
		zap.Uint16("device_filter", uint16(r.deviceFilter)),
		zap.Int("retained_events", r.buffer.Len()))
	return nil
}

// Disable unsubscribes from the event source. Recorded events are kept.
func (r *Recorder) Disable() error {
	span := r.startSpan("disable")
	defer span.End()

	if r.disposed || !r.enabled {
		return nil
	}

	r.unsubscribe()
	r.enabled = false
	span.SetAttributes(attribute.Int("trace.retained_events", r.buffer.Len()))

	r.logger.Info("Trace recorder disabled", zap.Int("retained_events", r.buffer.Len()))
	return nil
}

// Dispose disables the recorder and releases its buffer. Iterators created
// earlier fail with ring.ErrUseAfterDispose. Calling it again is a no-op.
func (r *Recorder) Dispose() error {
	span := r.startSpan("dispose")
	defer span.End()

	if r.disposed {
		return nil
	}

	r.unsubscribe()
	r.enabled = false
	r.disposed = true
	r.buffer.Release()
	r.cleanup.Stop()

	r.logger.Debug("Trace recorder disposed")
	return nil
}

// startSpan opens a span for a control operation on this recorder
func (r *Recorder) startSpan(operation string) oteltrace.Span {
	_, span := r.StartSpan(context.Background(), "trace_recorder."+operation,
		oteltrace.WithAttributes(
			attribute.String("recorder.name", r.Name()),
			attribute.String("recorder.id", r.id),
			attribute.Int("trace.device_filter", int(r.deviceFilter))))
	return span
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Recorder) unsubscribe() {
	if r.subscription != nil {
		r.subscription.Cancel()
		r.subscription = nil
	}
}

// Enabled reports whether the recorder is subscribed to its source
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Disposed reports whether Dispose has been called
func (r *Recorder) Disposed() bool {
	return r.disposed
}

// DeviceFilter returns the device being recorded, or domain.AnyDevice
func (r *Recorder) DeviceFilter() domain.DeviceID {
	return r.deviceFilter
}

// SetDeviceFilter changes the recorded device. It applies to events
// received from now on; already recorded events are kept.
func (r *Recorder) SetDeviceFilter(id domain.DeviceID) error {
	if id > domain.MaxDeviceID {
		return fmt.Errorf("%w: device filter %d", record.ErrInvalidDevice, id)
	}
	if id != r.deviceFilter {
		r.logger.Debug("Device filter changed",
			zap.Uint16("from", uint16(r.deviceFilter)),
			zap.Uint16("to", uint16(id)))
	}
	r.deviceFilter = id
	return nil
}

// OnEvent records event if the recorder is enabled and the event passes the
// filters. Events that cannot be stored are dropped; the source is never
// told about failures.
func (r *Recorder) OnEvent(event *domain.DeviceEvent) {
	if !r.enabled || r.disposed || event == nil {
		return
	}

	if !r.deviceFilter.IsAny() && event.DeviceID != r.deviceFilter {
		r.RecordFilter()
		return
	}
	if r.filter != nil && !r.filter(event) {
		r.RecordFilter()
		return
	}

	rec, err := record.AppendEvent(r.scratch[:0], event)
	if err != nil {
		r.drop(event, err)
		return
	}
	r.scratch = rec

	evicted, err := r.buffer.Insert(rec)
	if err != nil {
		r.drop(event, err)
		return
	}

	r.RecordEvent(len(rec))
	r.RecordEvictions(evicted)
}

func (r *Recorder) drop(event *domain.DeviceEvent, err error) {
	reason := base.DropReasonInvalid
	switch {
	case errors.Is(err, ring.ErrRecordTooLarge):
		reason = base.DropReasonTooLarge
	case errors.Is(err, ring.ErrMalformedRecord):
		reason = base.DropReasonMalformed
	}
	r.RecordDrop(reason)

	if !r.dropLimiter.Allow() {
		r.suppressedDrops++
		return
	}
	r.logger.Warn("Dropping trace event",
		zap.String("type", event.Type.String()),
		zap.Uint16("device_id", uint16(event.DeviceID)),
		zap.Int("payload_bytes", len(event.Payload)),
		zap.String("reason", reason),
		zap.Int("suppressed", r.suppressedDrops),
		zap.Error(err))
	r.suppressedDrops = 0
}

// Snapshot returns an iterator over the retained events, oldest first.
// Recording another event invalidates it.
func (r *Recorder) Snapshot() *ring.Iterator {
	return r.buffer.Snapshot()
}

// Latest returns the most recently recorded event
func (r *Recorder) Latest() (record.View, bool) {
	return r.buffer.Newest()
}

// Clear discards all recorded events and keeps the buffer allocated
func (r *Recorder) Clear() (err error) {
	span := r.startSpan("clear")
	defer func() { endSpan(span, err) }()

	if r.disposed {
		return ErrDisposed
	}
	span.SetAttributes(attribute.Int("trace.cleared_events", r.buffer.Len()))
	r.buffer.Reset()
	r.logger.Debug("Trace buffer cleared")
	return nil
}

// Device resolves the device a recorded event came from
func (r *Recorder) Device(view record.View) (domain.Device, bool) {
	if r.registry == nil || !view.Valid() {
		return domain.Device{}, false
	}
	return r.registry.Resolve(view.DeviceID())
}

// Stats describes a recorder and its buffer
type Stats struct {
	base.Statistics `json:",inline" yaml:",inline"`

	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Enabled      bool            `json:"enabled" yaml:"enabled"`
	DeviceFilter domain.DeviceID `json:"device_filter" yaml:"device_filter"`
	Buffer       ring.Stats      `json:"buffer" yaml:"buffer"`
}

// Stats returns recorder and buffer statistics
func (r *Recorder) Stats() Stats {
	return Stats{
		Statistics:   r.Statistics(),
		ID:           r.id,
		Name:         r.Name(),
		Enabled:      r.enabled,
		DeviceFilter: r.deviceFilter,
		Buffer:       r.buffer.Stats(),
	}
}
