package output

import (
	"github.com/fatih/color"
)

// Markers prefix recorder and record states in human output
var Markers = struct {
	Recording string
	Disabled  string
	Handled   string
	Pending   string
	Dropped   string
}{
	Recording: "●",
	Disabled:  "○",
	Handled:   "✓",
	Pending:   " ",
	Dropped:   "⚠",
}

// Palette colors each part of a rendered record
var Palette = struct {
	Recording func(a ...interface{}) string
	Disabled  func(a ...interface{}) string
	Label     func(a ...interface{}) string
	EventType func(a ...interface{}) string
	Device    func(a ...interface{}) string
	Handled   func(a ...interface{}) string
	Payload   func(a ...interface{}) string
	Dropped   func(a ...interface{}) string
}{
	Recording: color.New(color.FgGreen, color.Bold).SprintFunc(),
	Disabled:  color.New(color.FgYellow, color.Bold).SprintFunc(),
	Label:     color.New(color.FgWhite, color.Bold).SprintFunc(),
	EventType: color.New(color.FgCyan).SprintFunc(),
	Device:    color.New(color.FgMagenta).SprintFunc(),
	Handled:   color.New(color.FgGreen).SprintFunc(),
	Payload:   color.New(color.FgHiBlack).SprintFunc(),
	Dropped:   color.New(color.FgYellow).SprintFunc(),
}
