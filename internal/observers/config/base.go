package config

import (
	"fmt"
	"time"

	"github.com/yairfalse/tapio-trace/internal/observers/trace/record"
	"github.com/yairfalse/tapio-trace/pkg/domain"
)

const (
	// DefaultBufferSizeBytes is the default arena capacity (1 MiB)
	DefaultBufferSizeBytes = 1024 * 1024

	// MaxBufferSizeBytes caps the arena capacity (1 GiB)
	MaxBufferSizeBytes = 1024 * 1024 * 1024

	// DefaultDropLogInterval is the minimum spacing between drop warnings
	DefaultDropLogInterval = 5 * time.Second
)

// BaseConfig provides common configuration fields for all observers
type BaseConfig struct {
	// Name is the unique identifier for the observer instance
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// MetricsEnabled determines if the observer should expose metrics (default: true)
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled" mapstructure:"metrics_enabled"`

	// Labels to add to all metrics from this observer
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" mapstructure:"labels"`
}

// DefaultBaseConfig returns a BaseConfig with sensible defaults
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Name:           "trace",
		MetricsEnabled: true,
		Labels:         make(map[string]string),
	}
}

// Validate performs base configuration validation
func (c *BaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("observer name cannot be empty")
	}
	return nil
}

// SetDefaults applies default values to unset fields
func (c *BaseConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "trace"
	}
	if c.Labels == nil {
		c.Labels = make(map[string]string)
	}
}

// TraceConfig holds configuration for the event trace recorder
type TraceConfig struct {
	BaseConfig `json:",inline" yaml:",inline" mapstructure:",squash"`

	// BufferSizeBytes is the ring buffer arena capacity (default: 1 MiB)
	BufferSizeBytes int `json:"buffer_size_bytes" yaml:"buffer_size_bytes" mapstructure:"buffer_size_bytes"`

	// DeviceFilter restricts recording to one device; 0 records every device
	DeviceFilter domain.DeviceID `json:"device_filter" yaml:"device_filter" mapstructure:"device_filter"`

	// Enabled starts the recorder enabled
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// DropLogInterval throttles warnings about dropped events (default: 5s)
	DropLogInterval time.Duration `json:"drop_log_interval" yaml:"drop_log_interval" mapstructure:"drop_log_interval"`

	// Devices are registered so recorded events can be resolved to names
	Devices []domain.Device `json:"devices,omitempty" yaml:"devices,omitempty" mapstructure:"devices"`

	// StatePath is where recorder settings are saved between runs (optional)
	StatePath string `json:"state_path,omitempty" yaml:"state_path,omitempty" mapstructure:"state_path"`
}

// DefaultTraceConfig returns a TraceConfig with defaults applied
func DefaultTraceConfig() *TraceConfig {
	config := &TraceConfig{
		BaseConfig: DefaultBaseConfig(),
		Enabled:    true,
	}
	config.SetDefaults()
	return config
}

// SetDefaults applies trace-specific defaults
func (c *TraceConfig) SetDefaults() {
	c.BaseConfig.SetDefaults()

	if c.BufferSizeBytes == 0 {
		c.BufferSizeBytes = DefaultBufferSizeBytes
	}

	if c.DropLogInterval == 0 {
		c.DropLogInterval = DefaultDropLogInterval
	}
}

// Validate performs trace-specific validation
func (c *TraceConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return fmt.Errorf("base config validation failed: %w", err)
	}

	if c.BufferSizeBytes < record.HeaderSize {
		return fmt.Errorf("buffer_size_bytes must be at least %d, got %d", record.HeaderSize, c.BufferSizeBytes)
	}

	if c.BufferSizeBytes > MaxBufferSizeBytes {
		return fmt.Errorf("buffer_size_bytes too large, got %d (max: %d)", c.BufferSizeBytes, MaxBufferSizeBytes)
	}

	if c.DeviceFilter > domain.MaxDeviceID {
		return fmt.Errorf("device_filter out of range, got %d (max: %d)", c.DeviceFilter, domain.MaxDeviceID)
	}

	if c.DropLogInterval < 0 {
		return fmt.Errorf("drop_log_interval cannot be negative, got %v", c.DropLogInterval)
	}

	seen := make(map[domain.DeviceID]bool, len(c.Devices))
	for _, device := range c.Devices {
		if device.ID.IsAny() || device.ID > domain.MaxDeviceID {
			return fmt.Errorf("devices: id out of range, got %d (want 1-%d)", device.ID, domain.MaxDeviceID)
		}
		if seen[device.ID] {
			return fmt.Errorf("devices: duplicate id %d", device.ID)
		}
		seen[device.ID] = true
	}

	return nil
}
