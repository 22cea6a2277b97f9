package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/lanshare-dev/lanshare/message"
	"github.com/lanshare-dev/lanshare/noise"
	"github.com/sirupsen/logrus"
)

// aeadTagSize is the fixed overhead AES-256-GCM adds to every sealed
// message, as produced by the handshake's split noise.CipherState pair.
const aeadTagSize = 16

// minCiphertextLen is the smallest legal frame body: an empty-payload
// envelope (5-byte header, no payload bytes) plus the AEAD tag.
const minCiphertextLen = 5 + aeadTagSize

// maxCiphertextLen bounds a frame body at the largest envelope the
// message codec allows, plus its AEAD tag.
const maxCiphertextLen = 5 + message.MaxPayloadSize + aeadTagSize

// Sentinel errors making up the TransportError category of the spec's
// error taxonomy (§7): every one of them is fatal to the session.
var (
	ErrFrameTooShort    = errors.New("record: frame shorter than header")
	ErrLengthOutOfRange = errors.New("record: frame length out of range")
	ErrPrematureEOF     = errors.New("record: connection closed mid-frame")
	ErrAEADFailure      = errors.New("record: AEAD authentication failed")
)

// Session is a single authenticated, encrypted duplex stream established
// by a completed noise.Handshake. The send path and receive path each
// hold an exclusive lock so concurrent callers may use one in each
// direction at once, per spec.md §4.D's concurrency note, but never two
// callers in the same direction.
//
// Transport encryption reuses the split *noise.CipherState pair directly,
// the same way the teacher's crypto/noise_handshake.go (SendCipher /
// RecvCipher) drives its own Noise transport messages, rather than
// extracting raw AES-256-GCM key bytes CipherState does not expose.
type Session struct {
	conn   net.Conn
	result *noise.Result

	sendMu sync.Mutex
	recvMu sync.Mutex

	closed bool
	mu     sync.Mutex

	logger *logrus.Entry
}

// New wraps conn with the transport keys and authenticated identity
// produced by a completed handshake.
func New(conn net.Conn, result *noise.Result) *Session {
	return &Session{
		conn:   conn,
		result: result,
		logger: logrus.WithFields(logrus.Fields{
			"component": "record",
			"peer_id":   result.Remote.PeerID,
		}),
	}
}

// Remote returns the authenticated identity of the peer at the other end
// of this session.
func (s *Session) Remote() crypto.RemoteIdentity {
	return s.result.Remote
}

// Close closes the underlying connection. It is safe to call more than
// once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Send seals kind and payload as one typed message and writes it to the
// peer as a single length-prefixed frame. It is safe to call
// concurrently with Recv, but not with another Send.
func (s *Session) Send(kind message.Kind, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	env := message.Envelope{Kind: kind, Payload: payload}
	plaintext, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("record: marshal envelope: %w", err)
	}

	ciphertextLen := len(plaintext) + aeadTagSize
	if ciphertextLen > maxCiphertextLen {
		return fmt.Errorf("%w: %d bytes", ErrLengthOutOfRange, ciphertextLen)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(ciphertextLen))

	ciphertext, err := s.result.Send.Encrypt(nil, lenPrefix[:], plaintext)
	if err != nil {
		return fmt.Errorf("record: encrypt frame: %w", err)
	}

	if _, err := s.conn.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("record: write frame length: %w", err)
	}
	if _, err := s.conn.Write(ciphertext); err != nil {
		return fmt.Errorf("record: write frame body: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"bytes": len(ciphertext),
	}).Debug("sent frame")
	return nil
}

// Recv reads and opens the next frame, returning the typed message it
// carried. Any error returned is fatal: the caller must close the
// session. It is safe to call concurrently with Send, but not with
// another Recv.
func (s *Session) Recv() (message.Kind, []byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	var lenPrefix [4]byte
	if _, err := io.ReadFull(s.conn, lenPrefix[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("%w: %v", ErrPrematureEOF, err)
		}
		return 0, nil, fmt.Errorf("record: read frame length: %w", err)
	}

	ciphertextLen := binary.BigEndian.Uint32(lenPrefix[:])
	if ciphertextLen < minCiphertextLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, ciphertextLen)
	}
	if ciphertextLen > maxCiphertextLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrLengthOutOfRange, ciphertextLen)
	}

	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(s.conn, ciphertext); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrPrematureEOF, err)
	}

	plaintext, err := s.result.Recv.Decrypt(nil, lenPrefix[:], ciphertext)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrAEADFailure, err)
	}

	env, err := message.Unmarshal(plaintext)
	if err != nil {
		return 0, nil, fmt.Errorf("record: decode envelope: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"kind":  env.Kind,
		"bytes": len(ciphertext),
	}).Debug("received frame")
	return env.Kind, env.Payload, nil
}
