package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap/zaptest"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var order []string
	bus.Subscribe(func(*domain.DeviceEvent) { order = append(order, "a") })
	bus.Subscribe(func(*domain.DeviceEvent) { order = append(order, "b") })

	bus.Publish(&domain.DeviceEvent{Type: domain.EventTypeState, DeviceID: 1})
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, int64(1), bus.Published())
}

func TestBus_Cancel(t *testing.T) {
	bus := NewBus(nil)

	var a, b int
	subA := bus.Subscribe(func(*domain.DeviceEvent) { a++ })
	bus.Subscribe(func(*domain.DeviceEvent) { b++ })
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(&domain.DeviceEvent{})
	subA.Cancel()
	subA.Cancel()
	bus.Publish(&domain.DeviceEvent{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, bus.Subscribers())
}

func TestBus_CancelDuringDelivery(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	var sub domain.Subscription
	sub = bus.Subscribe(func(*domain.DeviceEvent) {
		calls++
		sub.Cancel()
	})
	var other int
	bus.Subscribe(func(*domain.DeviceEvent) { other++ })

	bus.Publish(&domain.DeviceEvent{})
	bus.Publish(&domain.DeviceEvent{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}
