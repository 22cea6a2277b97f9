package peer

import (
	"time"

	"github.com/lanshare-dev/lanshare/message"
)

// Direction records which side initiated a connection.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Event is the common type of everything Manager emits on its Events
// channel, per spec.md §4.G.
type Event interface{}

// PeerDiscovered is forwarded from the discovery adapter, unchanged.
type PeerDiscovered struct {
	PeerID   string
	Endpoint string
}

// PeerConnected reports a newly established, authenticated session.
type PeerConnected struct {
	PeerID    string
	Direction Direction
}

// PeerDisconnected reports that a previously connected peer's session
// ended. Reason is the error that ended the session's receive loop. A
// local Manager.Close, or a session replaced by the tie-break, emits no
// PeerDisconnected.
type PeerDisconnected struct {
	PeerID string
	Reason error
}

// PeerConnectionFailed reports a dial or handshake that never reached
// PeerConnected.
type PeerConnectionFailed struct {
	PeerIDOrEndpoint string
	Reason           error
}

// MessageReceived carries one decrypted, typed message from a connected
// peer, for every kind the caller hasn't asked Manager to handle itself
// (Ping/Pong are handled internally; everything else, including
// file-transfer and clipboard kinds, is surfaced here for an external
// engine to dispatch).
type MessageReceived struct {
	PeerID  string
	Kind    message.Kind
	Payload []byte
}

// PongReceived surfaces round-trip latency for an internally-replied Ping.
type PongReceived struct {
	PeerID   string
	Sequence int64
	Latency  time.Duration
}
