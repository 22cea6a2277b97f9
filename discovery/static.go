package discovery

import "sync"

// StaticAdapter is a fixed-endpoint Adapter for tests and for hosts that
// already know their peers' addresses (spec.md §1 scope note: discovery's
// only required interaction with the core is supplying endpoints). It
// emits PeerLost only when the caller invokes Remove; the caller manages
// the endpoint set directly.
type StaticAdapter struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

// NewStaticAdapter returns an adapter seeded with a fixed set of known
// peers, delivered as PeerDiscovered events as soon as anything drains
// Events().
func NewStaticAdapter(peers map[string]string) *StaticAdapter {
	a := &StaticAdapter{events: make(chan Event, len(peers)+8)}
	for peerID, endpoint := range peers {
		a.events <- PeerDiscovered{PeerID: peerID, Endpoint: endpoint}
	}
	return a
}

func (a *StaticAdapter) Events() <-chan Event { return a.events }

// Add injects an additional discovery at runtime, for tests that simulate
// a peer appearing after startup.
func (a *StaticAdapter) Add(peerID, endpoint string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.events <- PeerDiscovered{PeerID: peerID, Endpoint: endpoint}:
	default:
	}
}

// Remove synthesizes a PeerLost for peerID.
func (a *StaticAdapter) Remove(peerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.events <- PeerLost{PeerID: peerID}:
	default:
	}
}

// Announce is a no-op: a StaticAdapter's peers are supplied out of band.
func (a *StaticAdapter) Announce(peerID string, port int) error { return nil }

func (a *StaticAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.events)
	return nil
}
