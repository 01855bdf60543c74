package output

import (
	"fmt"

	"github.com/yairfalse/tapio-trace/internal/observers/trace"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/record"
)

// EventLine is one recorded event as presented to users
type EventLine struct {
	Index      int     `json:"index" yaml:"index"`
	Type       string  `json:"type" yaml:"type"`
	DeviceID   uint16  `json:"device_id" yaml:"device_id"`
	DeviceName string  `json:"device_name,omitempty" yaml:"device_name,omitempty"`
	Time       float64 `json:"time" yaml:"time"`
	Handled    bool    `json:"handled" yaml:"handled"`
	Size       int     `json:"size" yaml:"size"`
	Payload    []byte  `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Report is a snapshot of a recorder
type Report struct {
	Stats  trace.Stats `json:"stats" yaml:"stats"`
	Events []EventLine `json:"events" yaml:"events"`
}

// NewEventLine converts a record view, resolving the device name if the
// recorder has a registry
func NewEventLine(r *trace.Recorder, index int, view record.View) EventLine {
	line := EventLine{
		Index:    index,
		Type:     view.Type().String(),
		DeviceID: uint16(view.DeviceID()),
		Time:     view.Time(),
		Handled:  view.Handled(),
		Size:     view.Size(),
		Payload:  append([]byte(nil), view.Payload()...),
	}
	if device, ok := r.Device(view); ok {
		line.DeviceName = device.Name
	}
	return line
}

// BuildReport walks the recorder buffer oldest first
func BuildReport(r *trace.Recorder) (*Report, error) {
	report := &Report{Stats: r.Stats(), Events: []EventLine{}}

	index := 0
	for view, err := range r.Snapshot().All() {
		if err != nil {
			return nil, fmt.Errorf("failed to read trace buffer: %w", err)
		}
		report.Events = append(report.Events, NewEventLine(r, index, view))
		index++
	}
	return report, nil
}
