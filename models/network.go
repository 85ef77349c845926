package models

import (
	"sync"

	"github.com/rohanthewiz/logger"
)

// ============================================================================
// Network Status Monitor
//
// Process-wide connectivity state with a plain subscribe/unsubscribe
// listener model. Something outside the core (a platform hook, a health
// probe, a test) feeds transitions in via SetOnline; listeners hear about
// every transition. Lifecycle is trivial: no teardown beyond removing
// listeners.
// ============================================================================

// NetworkMonitor tracks connectivity transitions and notifies listeners.
type NetworkMonitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(online bool)
}

// NewNetworkMonitor creates a monitor that assumes connectivity until told
// otherwise, matching a fresh browser session's navigator.onLine default.
func NewNetworkMonitor() *NetworkMonitor {
	return &NetworkMonitor{
		online:    true,
		listeners: map[int]func(online bool){},
	}
}

// IsOnline reports the current connectivity state.
func (n *NetworkMonitor) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

// SetOnline records a connectivity transition and notifies listeners.
// Setting the same state twice is a no-op; listeners only hear actual
// transitions.
func (n *NetworkMonitor) SetOnline(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online

	// Copy listeners so callbacks run outside the lock. A listener may
	// subscribe or unsubscribe from within its callback.
	callbacks := make([]func(bool), 0, len(n.listeners))
	for _, cb := range n.listeners {
		callbacks = append(callbacks, cb)
	}
	n.mu.Unlock()

	logger.Info("Network status changed", "online", online)

	for _, cb := range callbacks {
		cb(online)
	}
}

// Subscribe registers a callback for connectivity transitions and returns
// an unsubscribe function. Unsubscribing twice is harmless.
func (n *NetworkMonitor) Subscribe(cb func(online bool)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = cb
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}
