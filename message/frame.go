package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadSize is the maximum payload a single TypedMessage may carry,
// per spec §4.E / §6 (16 MiB).
const MaxPayloadSize = 16 * 1024 * 1024

// These sentinel errors make up the Protocol category of the spec's error
// taxonomy: unknown kind, malformed payload, or oversized payload.
var (
	ErrUnknownKind     = errors.New("message: unknown kind")
	ErrMalformedPayload = errors.New("message: malformed payload")
	ErrPayloadTooLarge  = errors.New("message: payload exceeds maximum size")
)

// Envelope is the decoded plaintext carried by one record-layer frame:
// [u32 BE payload_len][u8 kind][payload bytes].
type Envelope struct {
	Kind    Kind
	Payload []byte
}

// Marshal encodes the envelope into the exact plaintext layout the record
// layer seals as one AEAD message.
func (e Envelope) Marshal() ([]byte, error) {
	if len(e.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(e.Payload))
	}

	buf := make([]byte, 4+1+len(e.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(e.Payload)))
	buf[4] = byte(e.Kind)
	copy(buf[5:], e.Payload)
	return buf, nil
}

// Unmarshal decodes plaintext produced by Marshal back into an Envelope.
func Unmarshal(plaintext []byte) (Envelope, error) {
	if len(plaintext) < 5 {
		return Envelope{}, fmt.Errorf("%w: frame shorter than header", ErrMalformedPayload)
	}

	payloadLen := binary.BigEndian.Uint32(plaintext[0:4])
	if payloadLen > MaxPayloadSize {
		return Envelope{}, fmt.Errorf("%w: declared %d bytes", ErrPayloadTooLarge, payloadLen)
	}
	if uint32(len(plaintext)-5) != payloadLen {
		return Envelope{}, fmt.Errorf("%w: declared length %d does not match actual %d", ErrMalformedPayload, payloadLen, len(plaintext)-5)
	}

	payload := make([]byte, payloadLen)
	copy(payload, plaintext[5:])

	return Envelope{Kind: Kind(plaintext[4]), Payload: payload}, nil
}

// WriteFrame writes kind and payload as a single length-prefixed frame
// directly to w, with no AEAD sealing. It is used for all four handshake
// frames, which travel before a record-layer session exists (message 1
// carries no ciphertext at all; messages 2 and 3 carry the Noise library's
// own ciphertext as their payload; the HandshakeComplete payload is sealed
// by the handshake code itself with the freshly split keys).
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	env := Envelope{Kind: kind, Payload: payload}
	buf, err := env.Marshal()
	if err != nil {
		return err
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("message: write frame length: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("message: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame written by WriteFrame.
func ReadFrame(r io.Reader) (Envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Envelope{}, fmt.Errorf("message: read frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n == 0 || n > MaxPayloadSize+5 {
		return Envelope{}, fmt.Errorf("%w: frame length %d out of range", ErrMalformedPayload, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Envelope{}, fmt.Errorf("message: read frame body: %w", err)
	}

	return Unmarshal(buf)
}
