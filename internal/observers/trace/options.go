package trace

import (
	"time"

	"github.com/yairfalse/tapio-trace/internal/observers/config"
	"github.com/yairfalse/tapio-trace/internal/observers/trace/ring"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap"
)

// FilterFunc decides whether an event that passed the device filter is recorded
type FilterFunc func(event *domain.DeviceEvent) bool

type options struct {
	name            string
	bufferSize      int
	deviceFilter    domain.DeviceID
	metricsEnabled  bool
	labels          map[string]string
	dropLogInterval time.Duration
	logger          *zap.Logger
	registry        DeviceRegistry
	filter          FilterFunc
}

func defaultOptions() options {
	return options{
		name:            "trace",
		bufferSize:      ring.DefaultCapacity,
		deviceFilter:    domain.AnyDevice,
		metricsEnabled:  true,
		dropLogInterval: config.DefaultDropLogInterval,
	}
}

// Option configures a Recorder
type Option func(*options)

// WithName sets the recorder name used in logs and metric names
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithBufferSize sets the arena capacity in bytes
func WithBufferSize(bytes int) Option {
	return func(o *options) {
		o.bufferSize = bytes
	}
}

// WithDeviceFilter restricts recording to a single device
func WithDeviceFilter(id domain.DeviceID) Option {
	return func(o *options) {
		o.deviceFilter = id
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDeviceRegistry attaches a registry used by Recorder.Device
func WithDeviceRegistry(registry DeviceRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithFilter adds a predicate evaluated after the device filter
func WithFilter(filter FilterFunc) Option {
	return func(o *options) {
		o.filter = filter
	}
}

// WithMetrics toggles OTEL metrics and sets labels attached to them
func WithMetrics(enabled bool, labels map[string]string) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
		o.labels = labels
	}
}

// WithDropLogInterval sets the minimum spacing between drop warnings
func WithDropLogInterval(interval time.Duration) Option {
	return func(o *options) {
		o.dropLogInterval = interval
	}
}

// WithConfig applies a TraceConfig. Enabled is not an option; callers
// decide when to call Enable.
func WithConfig(cfg *config.TraceConfig) Option {
	return func(o *options) {
		o.name = cfg.Name
		o.bufferSize = cfg.BufferSizeBytes
		o.deviceFilter = cfg.DeviceFilter
		o.metricsEnabled = cfg.MetricsEnabled
		o.labels = cfg.Labels
		o.dropLogInterval = cfg.DropLogInterval
	}
}
