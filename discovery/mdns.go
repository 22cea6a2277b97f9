package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/mdns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// pion/mdns's Server only resolves a known hostname to an address; it has
// no PTR/SRV-style browsing, so it cannot by itself answer "who else is on
// this LAN". MDNSAdapter uses it for hostname registration (so a peer_id is
// resolvable once known, the "DNS-SD-like" half of spec.md §4.F) and pairs
// it with a small multicast announce/listen protocol, built the same way
// pion/mdns itself joins its multicast group, to actually learn peer_ids.
const (
	announceGroup    = "239.255.42.99:53530"
	announceMagic    = "LNSH"
	announceVersion  = 1
	msgTypeAnnounce  = 1
	msgTypeGoodbye   = 2
	peerIDLen        = 32 // hex(sha256(pubkey))[:16], per crypto.DerivePeerID
	packetLen        = 4 + 1 + 1 + peerIDLen + 2
	announceInterval = 5 * time.Second
	staleAfter       = 3 * announceInterval
)

// MDNSAdapter implements Adapter over LAN multicast. Construct one per
// process with NewMDNSAdapter, then call Announce once the peer manager
// knows its listen port.
type MDNSAdapter struct {
	conn      *net.UDPConn
	groupAddr *net.UDPAddr

	events chan Event
	logger *logrus.Entry

	mu             sync.Mutex
	closed         bool
	peerID         string
	seen           map[string]time.Time
	mdnsServer     *mdns.Conn
	announceCancel context.CancelFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMDNSAdapter joins the announce multicast group on every viable
// interface and starts listening for peer announcements.
func NewMDNSAdapter() (*MDNSAdapter, error) {
	groupAddr, err := net.ResolveUDPAddr("udp4", announceGroup)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve announce group: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: groupAddr.Port})
	if err != nil {
		return nil, fmt.Errorf("discovery: listen udp: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}
	joined := 0
	for i := range ifaces {
		if err := pconn.JoinGroup(&ifaces[i], groupAddr); err == nil {
			joined++
		}
	}
	if joined == 0 {
		conn.Close()
		return nil, fmt.Errorf("discovery: no multicast-capable interface joined %s", announceGroup)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &MDNSAdapter{
		conn:      conn,
		groupAddr: groupAddr,
		events:    make(chan Event, 64),
		logger:    logrus.WithField("component", "discovery"),
		seen:      make(map[string]time.Time),
		cancel:    cancel,
	}

	a.wg.Add(2)
	go a.listenLoop(ctx)
	go a.staleLoop(ctx)
	return a, nil
}

// Announce registers peerID's mDNS hostname and begins periodically
// broadcasting it and port over the announce group until Close.
func (a *MDNSAdapter) Announce(peerID string, port int) error {
	if len(peerID) != peerIDLen {
		return fmt.Errorf("discovery: peer id must be %d hex chars, got %d", peerIDLen, len(peerID))
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("discovery: adapter closed")
	}
	a.peerID = peerID
	a.mu.Unlock()

	if err := a.startNameServer(peerID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.announceCancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.announceLoop(ctx, peerID, port)
	return nil
}

// startNameServer registers "<peer_id>.lanshare.local." with a standard
// mDNS server so the hostname resolves for hosts that query it directly.
func (a *MDNSAdapter) startNameServer(peerID string) error {
	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddress)
	if err != nil {
		return fmt.Errorf("discovery: resolve mdns address: %w", err)
	}
	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("discovery: listen mdns udp: %w", err)
	}
	pc := ipv4.NewPacketConn(l)
	if ifaces, err := net.Interfaces(); err == nil {
		for i := range ifaces {
			_ = pc.JoinGroup(&ifaces[i], &net.UDPAddr{IP: addr.IP})
		}
	}

	server, err := mdns.Server(pc, &mdns.Config{LocalNames: []string{peerID + ".lanshare.local."}})
	if err != nil {
		l.Close()
		return fmt.Errorf("discovery: start mdns server: %w", err)
	}

	a.mu.Lock()
	a.mdnsServer = server
	a.mu.Unlock()
	return nil
}

func (a *MDNSAdapter) announceLoop(ctx context.Context, peerID string, port int) {
	defer a.wg.Done()
	a.sendPacket(msgTypeAnnounce, peerID, port)

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.sendPacket(msgTypeGoodbye, peerID, port)
			return
		case <-ticker.C:
			a.sendPacket(msgTypeAnnounce, peerID, port)
		}
	}
}

func encodeAnnouncePacket(msgType byte, peerID string, port int) []byte {
	buf := make([]byte, packetLen)
	copy(buf[0:4], announceMagic)
	buf[4] = announceVersion
	buf[5] = msgType
	copy(buf[6:6+peerIDLen], peerID)
	binary.BigEndian.PutUint16(buf[6+peerIDLen:], uint16(port))
	return buf
}

func (a *MDNSAdapter) sendPacket(msgType byte, peerID string, port int) {
	buf := encodeAnnouncePacket(msgType, peerID, port)
	if _, err := a.conn.WriteToUDP(buf, a.groupAddr); err != nil {
		a.logger.WithError(err).Warn("failed to send discovery announce")
	}
}

func (a *MDNSAdapter) listenLoop(ctx context.Context) {
	defer a.wg.Done()
	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			a.logger.WithError(err).Debug("discovery read error")
			continue
		}
		a.handlePacket(buf[:n], src)
	}
}

func (a *MDNSAdapter) handlePacket(data []byte, src *net.UDPAddr) {
	if len(data) != packetLen || string(data[0:4]) != announceMagic || data[4] != announceVersion {
		return
	}
	msgType := data[5]
	peerID := string(data[6 : 6+peerIDLen])
	port := binary.BigEndian.Uint16(data[6+peerIDLen:])

	a.mu.Lock()
	self := a.peerID != "" && peerID == a.peerID
	a.mu.Unlock()
	if self {
		return
	}

	switch msgType {
	case msgTypeGoodbye:
		a.mu.Lock()
		delete(a.seen, peerID)
		a.mu.Unlock()
		a.emit(PeerLost{PeerID: peerID})
	case msgTypeAnnounce:
		endpoint := fmt.Sprintf("%s:%d", src.IP.String(), port)
		a.mu.Lock()
		_, known := a.seen[peerID]
		a.seen[peerID] = time.Now()
		a.mu.Unlock()
		if !known {
			a.emit(PeerDiscovered{PeerID: peerID, Endpoint: endpoint})
		}
	}
}

func (a *MDNSAdapter) staleLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evictStale()
		}
	}
}

func (a *MDNSAdapter) evictStale() {
	cutoff := time.Now().Add(-staleAfter)
	var lost []string
	a.mu.Lock()
	for peerID, last := range a.seen {
		if last.Before(cutoff) {
			lost = append(lost, peerID)
			delete(a.seen, peerID)
		}
	}
	a.mu.Unlock()
	for _, peerID := range lost {
		a.emit(PeerLost{PeerID: peerID})
	}
}

func (a *MDNSAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("discovery event channel full, dropping event")
	}
}

func (a *MDNSAdapter) Events() <-chan Event { return a.events }

func (a *MDNSAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	server := a.mdnsServer
	announceCancel := a.announceCancel
	a.mu.Unlock()

	if announceCancel != nil {
		announceCancel()
	}
	a.cancel()
	a.wg.Wait()

	if server != nil {
		server.Close()
	}
	err := a.conn.Close()
	close(a.events)
	return err
}
