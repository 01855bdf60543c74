package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Writer io.Writer
	Indent bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{
		Writer: w,
		Indent: indent,
	}
}

// Print writes the report as a single JSON document
func (f *JSONFormatter) Print(report *Report) error {
	encoder := json.NewEncoder(f.Writer)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(report)
}

// PrintEvent writes one event per line so followers can stream it
func (f *JSONFormatter) PrintEvent(event EventLine) error {
	return json.NewEncoder(f.Writer).Encode(event)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	Writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{Writer: w}
}

// Print writes the report as a YAML document
func (f *YAMLFormatter) Print(report *Report) error {
	return f.encode(report)
}

// PrintEvent writes the event as its own YAML document
func (f *YAMLFormatter) PrintEvent(event EventLine) error {
	if _, err := fmt.Fprintln(f.Writer, "---"); err != nil {
		return err
	}
	return f.encode(event)
}

func (f *YAMLFormatter) encode(v interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
