package peer

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/lanshare-dev/lanshare/discovery"
	"github.com/lanshare-dev/lanshare/message"
	"github.com/lanshare-dev/lanshare/noise"
	"github.com/lanshare-dev/lanshare/record"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Send when peer_id has no live session.
var ErrNotConnected = errors.New("peer: not connected")

const (
	defaultDialTimeout      = 15 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultEventBuffer      = 256
	autoConnectDelayMin     = 100 * time.Millisecond
	autoConnectDelayMax     = 500 * time.Millisecond
)

// Config configures a Manager. Local is required; everything else has a
// spec-mandated default.
type Config struct {
	Local            *crypto.LocalIdentity
	ListenPort       int
	Discovery        discovery.Adapter // optional
	EventBuffer      int
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

// connEntry is one live, registered session.
type connEntry struct {
	session          *record.Session
	direction        Direction
	correctDirection bool
}

// Manager is the coordinator of spec.md §4.G.
type Manager struct {
	cfg   Config
	local *crypto.LocalIdentity

	listener net.Listener

	events chan Event
	logger *logrus.Entry

	mu             sync.Mutex
	connected      map[string]*connEntry
	knownEndpoints map[string]string
	dialing        map[string]struct{}
	closed         bool

	wg sync.WaitGroup
}

// NewManager constructs a Manager. Call Start to begin accepting
// connections and consuming discovery.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Local == nil {
		return nil, errors.New("peer: Config.Local is required")
	}
	cfg.setDefaults()

	return &Manager{
		cfg:            cfg,
		local:          cfg.Local,
		events:         make(chan Event, cfg.EventBuffer),
		logger:         logrus.WithField("component", "peer"),
		connected:      make(map[string]*connEntry),
		knownEndpoints: make(map[string]string),
		dialing:        make(map[string]struct{}),
	}, nil
}

// Events returns the channel observers should drain.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event channel full, dropping event")
	}
}

// Start binds a listener on cfg.ListenPort (0 for an ephemeral port, or as
// a fallback if the requested port is unavailable), begins accepting
// inbound connections, and begins consuming discovery observations if a
// discovery.Adapter was configured. It returns the port actually bound.
func (m *Manager) Start() (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.cfg.ListenPort))
	if err != nil && m.cfg.ListenPort != 0 {
		m.logger.WithError(err).Warn("requested listen port unavailable, selecting an ephemeral port")
		listener, err = net.Listen("tcp", ":0")
	}
	if err != nil {
		return 0, fmt.Errorf("peer: listen: %w", err)
	}
	m.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	m.wg.Add(1)
	go m.acceptLoop()

	if m.cfg.Discovery != nil {
		if err := m.cfg.Discovery.Announce(m.local.PeerID(), port); err != nil {
			m.logger.WithError(err).Warn("failed to announce on discovery adapter")
		}
		m.wg.Add(1)
		go m.consumeDiscovery()
	}

	m.logger.WithField("port", port).Info("peer manager listening")
	return port, nil
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if m.isClosed() {
				return
			}
			m.logger.WithError(err).Warn("accept failed")
			continue
		}
		go m.handleInbound(conn)
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) consumeDiscovery() {
	defer m.wg.Done()
	for ev := range m.cfg.Discovery.Events() {
		switch d := ev.(type) {
		case discovery.PeerDiscovered:
			m.handleDiscovered(d.PeerID, d.Endpoint)
		case discovery.PeerLost:
			m.mu.Lock()
			delete(m.knownEndpoints, d.PeerID)
			m.mu.Unlock()
		}
	}
}

func (m *Manager) handleDiscovered(peerID, endpoint string) {
	m.mu.Lock()
	m.knownEndpoints[peerID] = endpoint
	_, connected := m.connected[peerID]
	_, dialing := m.dialing[endpoint]
	m.mu.Unlock()

	m.emit(PeerDiscovered{PeerID: peerID, Endpoint: endpoint})
	if connected || dialing {
		return
	}

	delay := autoConnectDelayMin + time.Duration(rand.Int63n(int64(autoConnectDelayMax-autoConnectDelayMin)))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(delay)
		if m.isClosed() {
			return
		}
		if err := m.ConnectTo(endpoint); err != nil {
			m.logger.WithFields(logrus.Fields{"peer_id": peerID, "endpoint": endpoint, "error": err.Error()}).
				Debug("auto-connect failed")
		}
	}()
}

// ConnectTo dials endpoint (host:port) and performs the handshake as
// initiator. It succeeds idempotently if the peer turns out to already be
// connected.
func (m *Manager) ConnectTo(endpoint string) error {
	m.mu.Lock()
	if _, already := m.dialing[endpoint]; already {
		m.mu.Unlock()
		return nil
	}
	m.dialing[endpoint] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.dialing, endpoint)
		m.mu.Unlock()
	}()

	conn, err := net.DialTimeout("tcp", endpoint, m.cfg.DialTimeout)
	if err != nil {
		m.emit(PeerConnectionFailed{PeerIDOrEndpoint: endpoint, Reason: err})
		return fmt.Errorf("peer: dial %s: %w", endpoint, err)
	}

	result, err := m.runHandshake(conn, noise.Initiator)
	if err != nil {
		conn.Close()
		m.emit(PeerConnectionFailed{PeerIDOrEndpoint: endpoint, Reason: err})
		return err
	}

	peerID := result.Remote.PeerID
	m.mu.Lock()
	m.knownEndpoints[peerID] = endpoint
	m.mu.Unlock()

	sess := record.New(conn, result)
	kept, replaced := m.registerSession(noise.Initiator, sess)
	if !kept {
		// Another session for this peer already won the tie-break; this
		// dial still succeeds idempotently per spec.md §4.G.
		sess.Close()
		return nil
	}
	if replaced != nil {
		go replaced.session.Close()
	}

	m.emit(PeerConnected{PeerID: peerID, Direction: Outgoing})
	m.wg.Add(1)
	go m.sessionLoop(peerID, sess)
	return nil
}

func (m *Manager) handleInbound(conn net.Conn) {
	result, err := m.runHandshake(conn, noise.Responder)
	if err != nil {
		conn.Close()
		m.logger.WithError(err).Debug("inbound handshake failed")
		return
	}

	peerID := result.Remote.PeerID
	sess := record.New(conn, result)
	kept, replaced := m.registerSession(noise.Responder, sess)
	if !kept {
		sess.Close()
		return
	}
	if replaced != nil {
		go replaced.session.Close()
	}

	m.emit(PeerConnected{PeerID: peerID, Direction: Incoming})
	m.wg.Add(1)
	go m.sessionLoop(peerID, sess)
}

// runHandshake drives the Noise-XX handshake under the handshake timeout,
// enforced via the connection deadline regardless of caller cancellation
// (spec.md §4.G "Timeouts"). The separate dial timeout is applied by
// ConnectTo before the handshake starts.
func (m *Manager) runHandshake(conn net.Conn, role noise.Role) (*noise.Result, error) {
	staticDH, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("peer: generate ephemeral key pair: %w", err)
	}
	hs, err := noise.New(role, m.local, staticDH)
	if err != nil {
		return nil, err
	}

	conn.SetDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	result, err := hs.Run(conn)
	conn.SetDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("peer: handshake: %w", err)
	}
	return result, nil
}

// registerSession applies spec.md §4.G's duplicate-suppression and
// simultaneous-open tie-break policies. The session whose role matches the
// deterministic desired-initiator direction (lexicographically smaller
// peer_id initiates) wins; a replaced earlier session is reported via
// replaced so the caller can close it. Its session loop then ends without
// emitting PeerDisconnected, since it no longer owns the connected-peers
// entry, even though its own PeerConnected was already emitted.
func (m *Manager) registerSession(role noise.Role, sess *record.Session) (kept bool, replaced *connEntry) {
	peerID := sess.Remote().PeerID
	desiredInitiatorLocal := m.local.PeerID() < peerID
	correct := (role == noise.Initiator) == desiredInitiatorLocal

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, nil
	}

	existing, ok := m.connected[peerID]
	if ok {
		if correct && !existing.correctDirection {
			m.connected[peerID] = &connEntry{session: sess, direction: directionFor(role), correctDirection: true}
			return true, existing
		}
		return false, nil
	}

	m.connected[peerID] = &connEntry{session: sess, direction: directionFor(role), correctDirection: correct}
	return true, nil
}

func directionFor(role noise.Role) Direction {
	if role == noise.Initiator {
		return Outgoing
	}
	return Incoming
}

func (m *Manager) sessionLoop(peerID string, sess *record.Session) {
	defer m.wg.Done()

	var loopErr error
	for {
		kind, payload, err := sess.Recv()
		if err != nil {
			loopErr = err
			break
		}
		m.dispatch(peerID, kind, payload)
	}

	m.mu.Lock()
	entry, ok := m.connected[peerID]
	if ok && entry.session == sess {
		delete(m.connected, peerID)
	}
	m.mu.Unlock()

	if ok && entry.session == sess {
		m.emit(PeerDisconnected{PeerID: peerID, Reason: loopErr})
	}
}

func (m *Manager) dispatch(peerID string, kind message.Kind, payload []byte) {
	switch kind {
	case message.KindPing:
		m.handlePing(peerID, payload)
	case message.KindPong:
		m.handlePong(peerID, payload)
	default:
		m.emit(MessageReceived{PeerID: peerID, Kind: kind, Payload: payload})
	}
}

func (m *Manager) handlePing(peerID string, payload []byte) {
	ping, err := message.DecodePing(payload)
	if err != nil {
		m.logger.WithError(err).Debug("malformed ping, ignoring")
		return
	}
	pong := message.Pong{PingTimestampMs: ping.TimestampMs, Sequence: ping.Sequence}
	body, err := pong.Marshal()
	if err != nil {
		return
	}
	if err := m.Send(peerID, message.KindPong, body); err != nil {
		m.logger.WithError(err).Debug("failed to reply to ping")
	}
}

func (m *Manager) handlePong(peerID string, payload []byte) {
	pong, err := message.DecodePong(payload)
	if err != nil {
		m.logger.WithError(err).Debug("malformed pong, ignoring")
		return
	}
	latency := time.Since(time.UnixMilli(pong.PingTimestampMs))
	m.emit(PongReceived{PeerID: peerID, Sequence: pong.Sequence, Latency: latency})
}

// Ping sends a Ping with the given sequence number, timestamped now.
func (m *Manager) Ping(peerID string, sequence int64) error {
	ping := message.Ping{TimestampMs: time.Now().UnixMilli(), Sequence: sequence}
	body, err := ping.Marshal()
	if err != nil {
		return err
	}
	return m.Send(peerID, message.KindPing, body)
}

// Send enqueues one typed message on peer_id's outbound session.
func (m *Manager) Send(peerID string, kind message.Kind, payload []byte) error {
	m.mu.Lock()
	entry, ok := m.connected[peerID]
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	return entry.session.Send(kind, payload)
}

// Broadcast fans out to every connected session, best-effort: per-peer
// failures are logged, not raised.
func (m *Manager) Broadcast(kind message.Kind, payload []byte) {
	m.mu.Lock()
	sessions := make(map[string]*record.Session, len(m.connected))
	for peerID, entry := range m.connected {
		sessions[peerID] = entry.session
	}
	m.mu.Unlock()

	for peerID, sess := range sessions {
		if err := sess.Send(kind, payload); err != nil {
			m.logger.WithFields(logrus.Fields{"peer_id": peerID, "error": err.Error()}).
				Warn("broadcast to peer failed")
		}
	}
}

// Connected reports the peer_ids of every currently connected peer.
func (m *Manager) Connected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.connected))
	for peerID := range m.connected {
		ids = append(ids, peerID)
	}
	return ids
}

// Close shuts down the listener, stops discovery consumption, and closes
// every live session.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*record.Session, 0, len(m.connected))
	for _, entry := range m.connected {
		sessions = append(sessions, entry.session)
	}
	m.connected = make(map[string]*connEntry)
	m.mu.Unlock()

	if m.listener != nil {
		m.listener.Close()
	}
	if m.cfg.Discovery != nil {
		m.cfg.Discovery.Close()
	}
	for _, sess := range sessions {
		sess.Close()
	}
	m.wg.Wait()
	return nil
}
