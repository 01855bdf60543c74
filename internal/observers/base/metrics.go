package base

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Drop reasons attached to the dropped counter
const (
	DropReasonTooLarge  = "too_large"
	DropReasonMalformed = "malformed"
	DropReasonInvalid   = "invalid"
)

// initializeMetrics registers the standard OTEL instruments
func (bo *BaseObserver) initializeMetrics() {
	var err error

	bo.eventsRecordedCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_recorded_total", bo.name),
		metric.WithDescription("Total events written to the trace buffer"),
		metric.WithUnit("1"),
	)
	if err != nil {
		// Metrics are optional
		bo.logger.Debug("Failed to create events recorded counter",
			zap.String("observer", bo.name),
			zap.Error(err))
		bo.eventsRecordedCounter = nil
	}

	bo.eventsDroppedCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_dropped_total", bo.name),
		metric.WithDescription("Total events rejected by the trace buffer"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bo.logger.Debug("Failed to create events dropped counter",
			zap.String("observer", bo.name),
			zap.Error(err))
		bo.eventsDroppedCounter = nil
	}

	bo.eventsFilteredCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_filtered_total", bo.name),
		metric.WithDescription("Total events skipped by filters"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bo.logger.Debug("Failed to create events filtered counter",
			zap.String("observer", bo.name),
			zap.Error(err))
		bo.eventsFilteredCounter = nil
	}

	bo.eventsEvictedCounter, err = bo.meter.Int64Counter(
		fmt.Sprintf("%s_events_evicted_total", bo.name),
		metric.WithDescription("Total recorded events overwritten by newer ones"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bo.logger.Debug("Failed to create events evicted counter",
			zap.String("observer", bo.name),
			zap.Error(err))
		bo.eventsEvictedCounter = nil
	}

	bo.eventSizeHistogram, err = bo.meter.Int64Histogram(
		fmt.Sprintf("%s_event_size_bytes", bo.name),
		metric.WithDescription("Recorded event size distribution"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(16, 32, 64, 128, 256, 1024, 4096, 16384, 65535),
	)
	if err != nil {
		bo.logger.Debug("Failed to create event size histogram",
			zap.String("observer", bo.name),
			zap.Error(err))
		bo.eventSizeHistogram = nil
	}
}

// RecordEvent should be called when an event is stored
func (bo *BaseObserver) RecordEvent(sizeBytes int) {
	bo.eventsRecorded.Add(1)
	bo.lastEventTime.Store(time.Now())

	ctx := context.Background()
	if bo.eventsRecordedCounter != nil {
		bo.eventsRecordedCounter.Add(ctx, 1, bo.attrs)
	}
	if bo.eventSizeHistogram != nil {
		bo.eventSizeHistogram.Record(ctx, int64(sizeBytes), bo.attrs)
	}
}

// RecordDrop should be called when an accepted event could not be stored
func (bo *BaseObserver) RecordDrop(reason string) {
	bo.eventsDropped.Add(1)

	if bo.eventsDroppedCounter != nil {
		bo.eventsDroppedCounter.Add(context.Background(), 1, bo.attrs,
			metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// RecordFilter should be called when a filter rejects an event
func (bo *BaseObserver) RecordFilter() {
	bo.eventsFiltered.Add(1)

	if bo.eventsFilteredCounter != nil {
		bo.eventsFilteredCounter.Add(context.Background(), 1, bo.attrs)
	}
}

// RecordEvictions should be called with the number of events overwritten
func (bo *BaseObserver) RecordEvictions(count int) {
	if count <= 0 {
		return
	}
	bo.eventsEvicted.Add(int64(count))

	if bo.eventsEvictedCounter != nil {
		bo.eventsEvictedCounter.Add(context.Background(), int64(count), bo.attrs)
	}
}
