// Package source provides an in-process event source that delivers
// device events synchronously to its subscribers.
package source

import (
	"sync"
	"sync/atomic"

	"github.com/yairfalse/tapio-trace/pkg/domain"
	"go.uber.org/zap"
)

// Bus fans each published event out to every subscriber, in subscription
// order, on the publishing goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	nextID      uint64

	published atomic.Int64
	logger    *zap.Logger
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	bus     *Bus
	once    sync.Once
}

// Cancel removes the handler from the bus
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

// NewBus creates an empty bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler and returns its cancellation handle
func (b *Bus) Subscribe(handler domain.EventHandler) domain.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler, bus: b}
	b.subscribers = append(b.subscribers, sub)

	b.logger.Debug("Subscriber added",
		zap.Uint64("subscription", sub.id),
		zap.Int("subscribers", len(b.subscribers)))
	return sub
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			b.logger.Debug("Subscriber removed",
				zap.Uint64("subscription", id),
				zap.Int("subscribers", len(b.subscribers)))
			return
		}
	}
}

// Publish delivers event to all current subscribers
func (b *Bus) Publish(event *domain.DeviceEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	b.published.Add(1)
	for _, sub := range subs {
		sub.handler(event)
	}
}

// Subscribers returns the number of registered handlers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Published returns the number of events published so far
func (b *Bus) Published() int64 {
	return b.published.Load()
}
