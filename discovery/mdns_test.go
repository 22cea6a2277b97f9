package discovery

import (
	"net"
	"testing"
	"time"
)

func newTestAdapter() *MDNSAdapter {
	return &MDNSAdapter{
		events: make(chan Event, 8),
		seen:   make(map[string]time.Time),
	}
}

func TestEncodeAnnouncePacketRoundTrip(t *testing.T) {
	peerID := "0123456789abcdef0123456789abcdef"[:peerIDLen]
	buf := encodeAnnouncePacket(msgTypeAnnounce, peerID, 9001)
	if len(buf) != packetLen {
		t.Fatalf("packet length = %d, want %d", len(buf), packetLen)
	}

	a := newTestAdapter()
	a.peerID = "ffffffffffffffffffffffffffffffff"[:peerIDLen]
	a.handlePacket(buf, &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9001})

	ev := <-a.events
	pd, ok := ev.(PeerDiscovered)
	if !ok {
		t.Fatalf("event type = %T, want PeerDiscovered", ev)
	}
	if pd.PeerID != peerID || pd.Endpoint != "10.0.0.9:9001" {
		t.Errorf("event = %+v", pd)
	}
}

func TestHandlePacketIgnoresSelf(t *testing.T) {
	peerID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"[:peerIDLen]
	buf := encodeAnnouncePacket(msgTypeAnnounce, peerID, 9001)

	a := newTestAdapter()
	a.peerID = peerID
	a.handlePacket(buf, &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9001})

	select {
	case ev := <-a.events:
		t.Fatalf("unexpected event for self-announcement: %+v", ev)
	default:
	}
}

func TestHandlePacketGoodbyeEmitsPeerLost(t *testing.T) {
	peerID := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"[:peerIDLen]
	a := newTestAdapter()
	a.seen[peerID] = time.Now()

	buf := encodeAnnouncePacket(msgTypeGoodbye, peerID, 9001)
	a.handlePacket(buf, &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9001})

	ev := <-a.events
	pl, ok := ev.(PeerLost)
	if !ok || pl.PeerID != peerID {
		t.Fatalf("event = %+v, want PeerLost{%s}", ev, peerID)
	}
	if _, stillSeen := a.seen[peerID]; stillSeen {
		t.Error("seen map still contains peer after goodbye")
	}
}

func TestHandlePacketRejectsMalformed(t *testing.T) {
	a := newTestAdapter()
	a.handlePacket([]byte("too short"), &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 9001})

	select {
	case ev := <-a.events:
		t.Fatalf("unexpected event for malformed packet: %+v", ev)
	default:
	}
}

func TestEvictStaleEmitsPeerLost(t *testing.T) {
	a := newTestAdapter()
	a.seen["cccccccccccccccccccccccccccccccc"[:peerIDLen]] = time.Now().Add(-2 * staleAfter)

	a.evictStale()

	ev := <-a.events
	if _, ok := ev.(PeerLost); !ok {
		t.Fatalf("event type = %T, want PeerLost", ev)
	}
	if len(a.seen) != 0 {
		t.Error("stale peer not evicted from seen map")
	}
}
