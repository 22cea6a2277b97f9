package discovery

// Event is the common type of everything an Adapter emits: PeerDiscovered
// and PeerLost, per spec.md §4.F.
type Event interface{}

// PeerDiscovered reports that endpoint is reachable as peer_id. Endpoint is
// a "host:port" string advisory only; the peer manager still authenticates
// the remote identity during the handshake.
type PeerDiscovered struct {
	PeerID   string
	Endpoint string
}

// PeerLost reports that peer_id has not been re-observed within the
// adapter's staleness window.
type PeerLost struct {
	PeerID string
}

// Adapter supplies (peer_id, endpoint) observations to the peer manager.
// It owns no connection lifecycle of its own.
type Adapter interface {
	// Events returns the channel of PeerDiscovered/PeerLost notifications.
	Events() <-chan Event

	// Announce advertises the local peer on the LAN as peerID, reachable on
	// port. Call once after the peer manager starts listening.
	Announce(peerID string, port int) error

	// Close stops announcing and releases any sockets held by the adapter.
	Close() error
}
