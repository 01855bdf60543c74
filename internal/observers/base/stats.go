package base

import (
	"time"
)

// Statistics contains observer counters
type Statistics struct {
	EventsRecorded int64         `json:"events_recorded" yaml:"events_recorded"`
	EventsDropped  int64         `json:"events_dropped" yaml:"events_dropped"`
	EventsFiltered int64         `json:"events_filtered" yaml:"events_filtered"`
	EventsEvicted  int64         `json:"events_evicted" yaml:"events_evicted"`
	LastEventTime  time.Time     `json:"last_event_time,omitempty" yaml:"last_event_time,omitempty"`
	Uptime         time.Duration `json:"uptime" yaml:"uptime"`
}

// Statistics returns a snapshot of the observer counters
func (bo *BaseObserver) Statistics() Statistics {
	lastEventTime := time.Time{}
	if t, ok := bo.lastEventTime.Load().(time.Time); ok {
		lastEventTime = t
	}

	return Statistics{
		EventsRecorded: bo.eventsRecorded.Load(),
		EventsDropped:  bo.eventsDropped.Load(),
		EventsFiltered: bo.eventsFiltered.Load(),
		EventsEvicted:  bo.eventsEvicted.Load(),
		LastEventTime:  lastEventTime,
		Uptime:         time.Since(bo.startTime),
	}
}

// EventCount returns the total number of events recorded
func (bo *BaseObserver) EventCount() int64 {
	return bo.eventsRecorded.Load()
}

// DroppedCount returns the total number of dropped events
func (bo *BaseObserver) DroppedCount() int64 {
	return bo.eventsDropped.Load()
}
