package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Formatter renders recorder reports
type Formatter interface {
	// Print writes a full report
	Print(report *Report) error
	// PrintEvent writes a single event as it is recorded
	PrintEvent(event EventLine) error
}

// NewFormatter creates a formatter for format writing to w.
// Unknown formats fall back to human readable output.
func NewFormatter(format string, w io.Writer) Formatter {
	if w == nil {
		w = os.Stdout
	}

	switch ParseFormat(format) {
	case "json":
		return NewJSONFormatter(w, true)
	case "yaml":
		return NewYAMLFormatter(w)
	default:
		return NewHumanFormatter(w)
	}
}

// Ensure our formatters implement the interface
var (
	_ Formatter = (*HumanFormatter)(nil)
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
)

// ValidateFormat checks if the format string is valid
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "human", "text", "json", "yaml", "yml", "":
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: human, json, yaml)", format)
	}
}

// ParseFormat normalizes the format string
func ParseFormat(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	default:
		return "human"
	}
}
