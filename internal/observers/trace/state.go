package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/yairfalse/tapio-trace/internal/observers/trace/ring"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrBufferAllocated is returned when restoring a different buffer size
// after the arena has been allocated
var ErrBufferAllocated = errors.New("trace buffer already allocated")

// State is the part of a recorder that survives a restart. Recorded
// events are deliberately not part of it.
type State struct {
	BufferSizeBytes int             `yaml:"buffer_size_bytes"`
	DeviceFilter    domain.DeviceID `yaml:"device_filter"`
	Enabled         bool            `yaml:"enabled"`
}

// State captures the recorder settings
func (r *Recorder) State() State {
	return State{
		BufferSizeBytes: r.buffer.Capacity(),
		DeviceFilter:    r.deviceFilter,
		Enabled:         r.enabled,
	}
}

// RestoreState applies saved settings. A different buffer size replaces
// the buffer, which is only allowed before it has been allocated.
func (r *Recorder) RestoreState(s State) (err error) {
	span := r.startSpan("restore_state")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.Int("state.buffer_size_bytes", s.BufferSizeBytes),
		attribute.Int("state.device_filter", int(s.DeviceFilter)),
		attribute.Bool("state.enabled", s.Enabled))

	if r.disposed {
		return ErrDisposed
	}

	if s.BufferSizeBytes != r.buffer.Capacity() {
		if r.buffer.Allocated() {
			return fmt.Errorf("%w: cannot resize from %d to %d bytes",
				ErrBufferAllocated, r.buffer.Capacity(), s.BufferSizeBytes)
		}
		buffer, err := ring.New(s.BufferSizeBytes)
		if err != nil {
			return fmt.Errorf("failed to create trace buffer: %w", err)
		}
		r.cleanup.Stop()
		r.buffer = buffer
		r.cleanup = runtime.AddCleanup(r, releaseLeaked, leakGuard{buffer: buffer, logger: r.logger})
	}

	if err := r.SetDeviceFilter(s.DeviceFilter); err != nil {
		return err
	}

	if s.Enabled {
		return r.Enable()
	}
	return r.Disable()
}

// SaveState writes s as YAML, creating parent directories as needed
func SaveState(path string, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode recorder state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recorder state: %w", err)
	}
	return nil
}

// LoadState reads a State written by SaveState
func LoadState(path string) (State, error) {
	var s State

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read recorder state: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse recorder state: %w", err)
	}
	return s, nil
}

// SaveStateFile persists the recorder settings to path
func (r *Recorder) SaveStateFile(path string) error {
	if err := SaveState(path, r.State()); err != nil {
		return err
	}
	r.logger.Debug("Saved recorder state", zap.String("path", path))
	return nil
}

// RestoreStateFile loads settings from path and applies them
func (r *Recorder) RestoreStateFile(path string) error {
	s, err := LoadState(path)
	if err != nil {
		return err
	}
	if err := r.RestoreState(s); err != nil {
		return err
	}
	r.logger.Debug("Restored recorder state", zap.String("path", path))
	return nil
}
