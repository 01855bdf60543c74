package domain

import (
	"fmt"
)

// DeviceID identifies the device an event originated from
type DeviceID uint16

// AnyDevice is the reserved device id meaning "no device filter"
const AnyDevice DeviceID = 0

// MaxDeviceID is the largest device id a trace record can carry
const MaxDeviceID DeviceID = 0x7FFF

// IsAny returns true for the unfiltered sentinel
func (d DeviceID) IsAny() bool {
	return d == AnyDevice
}

// FourCC is a four character event type code such as "STAT" or "DLTA"
type FourCC [4]byte

// Common event type codes
var (
	EventTypeState      = MakeFourCC("STAT")
	EventTypeDelta      = MakeFourCC("DLTA")
	EventTypeText       = MakeFourCC("TEXT")
	EventTypeDeviceInfo = MakeFourCC("DVCE")
)

// MakeFourCC builds a FourCC from the first four bytes of s, space padded
func MakeFourCC(s string) FourCC {
	code := FourCC{' ', ' ', ' ', ' '}
	copy(code[:], s)
	return code
}

// ParseFourCC validates s and converts it to a FourCC
func ParseFourCC(s string) (FourCC, error) {
	if len(s) == 0 || len(s) > 4 {
		return FourCC{}, fmt.Errorf("type code must be 1-4 bytes, got %q", s)
	}
	return MakeFourCC(s), nil
}

// String returns the code as text
func (c FourCC) String() string {
	return string(c[:])
}

// MarshalText implements encoding.TextMarshaler
func (c FourCC) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *FourCC) UnmarshalText(text []byte) error {
	code, err := ParseFourCC(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}

// DeviceEvent is a single event delivered by an event source.
// Payload is owned by the source and only valid during delivery.
type DeviceEvent struct {
	Type     FourCC   `json:"type" yaml:"type"`
	DeviceID DeviceID `json:"device" yaml:"device"`
	Time     float64  `json:"time" yaml:"time"`
	Handled  bool     `json:"handled,omitempty" yaml:"handled,omitempty"`
	Payload  []byte   `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Validate checks that the event can be represented in a trace record
func (e *DeviceEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.DeviceID > MaxDeviceID {
		return fmt.Errorf("device id %d exceeds maximum %d", e.DeviceID, MaxDeviceID)
	}
	return nil
}

// Device is the richer handle a device registry resolves ids to
type Device struct {
	ID     DeviceID          `json:"id" yaml:"id" mapstructure:"id"`
	Name   string            `json:"name" yaml:"name" mapstructure:"name"`
	Layout string            `json:"layout,omitempty" yaml:"layout,omitempty" mapstructure:"layout"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" mapstructure:"labels"`
}

// EventHandler receives one event per call
type EventHandler func(event *DeviceEvent)

// Subscription is the cancellation handle returned by an event source
type Subscription interface {
	// Cancel stops delivery to the subscribed handler. Safe to call more than once.
	Cancel()
}
