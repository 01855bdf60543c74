// Package devices maps numeric device ids to device handles
package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateDevice is returned when registering an id twice
	ErrDuplicateDevice = errors.New("device already registered")

	// ErrInvalidDevice is returned for ids that cannot identify a device
	ErrInvalidDevice = errors.New("invalid device id")
)

// Registry is a concurrency safe device table
type Registry struct {
	mu      sync.RWMutex
	devices map[domain.DeviceID]domain.Device
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		devices: make(map[domain.DeviceID]domain.Device),
		logger:  logger,
	}
}

// Register adds a device
func (r *Registry) Register(device domain.Device) error {
	if device.ID.IsAny() || device.ID > domain.MaxDeviceID {
		return fmt.Errorf("%w: %d", ErrInvalidDevice, device.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateDevice, device.ID)
	}
	r.devices[device.ID] = device

	r.logger.Debug("Device registered",
		zap.Uint16("device_id", uint16(device.ID)),
		zap.String("name", device.Name))
	return nil
}

// Remove deletes a device, returning false if it was not registered
func (r *Registry) Remove(id domain.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; !exists {
		return false
	}
	delete(r.devices, id)
	return true
}

// Resolve returns the device registered under id
func (r *Registry) Resolve(id domain.DeviceID) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	return device, ok
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
