// Package pricesync keeps cached market data fresh: it fans realtime bars
// into a tiered cache, serves chart series, and notifies listeners of every
// price movement.
package pricesync

import (
	"sync"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// ObserverBus is a typed registry of price listeners. Publish dispatches
// synchronously under a read lock, so listeners may safely unregister
// themselves (or others) from inside OnPriceUpdate.
type ObserverBus struct {
	mu        sync.RWMutex
	listeners map[ports.PriceListener]struct{}
}

// NewObserverBus creates an empty bus.
func NewObserverBus() *ObserverBus {
	return &ObserverBus{listeners: make(map[ports.PriceListener]struct{})}
}

// Register adds a listener. Registering the same listener twice is a no-op.
func (b *ObserverBus) Register(l ports.PriceListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l] = struct{}{}
}

// Unregister removes a listener. Unknown listeners are ignored.
func (b *ObserverBus) Unregister(l ports.PriceListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, l)
}

// Len returns the number of registered listeners.
func (b *ObserverBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers the point to every registered listener. The snapshot is
// taken under the read lock so concurrent Register/Unregister calls do not
// affect an in-flight dispatch.
func (b *ObserverBus) Publish(p domain.PricePoint) {
	b.mu.RLock()
	snapshot := make([]ports.PriceListener, 0, len(b.listeners))
	for l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.OnPriceUpdate(p)
	}
}
