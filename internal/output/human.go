package output

import (
	"fmt"
	"io"
	"strings"
)

// payloadPreview is how many payload bytes the human format shows
const payloadPreview = 16

// HumanFormatter prints reports for terminals
type HumanFormatter struct {
	w io.Writer
}

// NewHumanFormatter creates a human readable formatter
func NewHumanFormatter(w io.Writer) *HumanFormatter {
	return &HumanFormatter{w: w}
}

// Print writes the summary followed by every event
func (f *HumanFormatter) Print(report *Report) error {
	f.printSummary(report)

	if len(report.Events) == 0 {
		fmt.Fprintln(f.w, "No events recorded")
		return nil
	}

	fmt.Fprintln(f.w)
	for _, event := range report.Events {
		if err := f.PrintEvent(event); err != nil {
			return err
		}
	}
	return nil
}

func (f *HumanFormatter) printSummary(report *Report) {
	stats := report.Stats

	state := Palette.Disabled(Markers.Disabled + " DISABLED")
	if stats.Enabled {
		state = Palette.Recording(Markers.Recording + " RECORDING")
	}
	filter := "any device"
	if !stats.DeviceFilter.IsAny() {
		filter = fmt.Sprintf("device %d", stats.DeviceFilter)
	}

	fmt.Fprintf(f.w, "%s %s (%s)\n", state, stats.Name, filter)
	fmt.Fprintf(f.w, "   %s %d events, %d/%d bytes (%.1f%%)\n",
		Palette.Label("BUFFER:"),
		stats.Buffer.Records, stats.Buffer.UsedBytes, stats.Buffer.Capacity,
		stats.Buffer.Utilization)
	fmt.Fprintf(f.w, "   %s %d recorded, %d evicted, %d filtered, %d dropped\n",
		Palette.Label("TOTALS:"),
		stats.EventsRecorded, stats.EventsEvicted, stats.EventsFiltered, stats.EventsDropped)

	if stats.EventsDropped > 0 {
		fmt.Fprintf(f.w, "   %s\n", Palette.Dropped(Markers.Dropped+" some events did not fit in the buffer"))
	}
}

// PrintEvent writes one event per line
func (f *HumanFormatter) PrintEvent(event EventLine) error {
	device := fmt.Sprintf("dev %d", event.DeviceID)
	if event.DeviceName != "" {
		device = fmt.Sprintf("%s (%d)", event.DeviceName, event.DeviceID)
	}

	handled := Markers.Pending
	if event.Handled {
		handled = Palette.Handled(Markers.Handled)
	}

	_, err := fmt.Fprintf(f.w, "%s %5d %12.6f %s %s %s\n",
		handled,
		event.Index,
		event.Time,
		Palette.EventType(event.Type),
		Palette.Device(fmt.Sprintf("%-20s", device)),
		Palette.Payload(formatPayload(event.Payload, event.Size)))
	return err
}

func formatPayload(payload []byte, size int) string {
	if len(payload) == 0 {
		return fmt.Sprintf("%dB", size)
	}

	n := min(len(payload), payloadPreview)
	var b strings.Builder
	fmt.Fprintf(&b, "%dB % x", size, payload[:n])
	if len(payload) > n {
		b.WriteString(" …")
	}
	return b.String()
}
