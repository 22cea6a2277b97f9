package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// TransferIDSize is the length in bytes of a hex-encoded transfer id
// (128-bit id, 32 hex characters).
const TransferIDSize = 32

func putTransferID(buf *bytes.Buffer, id string) error {
	if len(id) != TransferIDSize {
		return fmt.Errorf("%w: transfer_id must be %d chars, got %d", ErrMalformedPayload, TransferIDSize, len(id))
	}
	buf.WriteString(id)
	return nil
}

func takeTransferID(r *bytes.Reader) (string, error) {
	raw := make([]byte, TransferIDSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", fmt.Errorf("%w: short transfer_id: %w", ErrMalformedPayload, err)
	}
	return string(raw), nil
}

func putString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
}

func takeString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("%w: string length: %w", ErrMalformedPayload, err)
	}
	raw := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, raw); err != nil {
			return "", fmt.Errorf("%w: string body: %w", ErrMalformedPayload, err)
		}
	}
	return string(raw), nil
}

func putOptionalString(buf *bytes.Buffer, s *string) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	putString(buf, *s)
}

func takeOptionalString(r *bytes.Reader) (*string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: optional string presence: %w", ErrMalformedPayload, err)
	}
	if present == 0 {
		return nil, nil
	}
	s, err := takeString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func putBytesField(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func takeBytesField(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: bytes length: %w", ErrMalformedPayload, err)
	}
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("%w: bytes field %d exceeds max payload", ErrPayloadTooLarge, n)
	}
	raw := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: bytes body: %w", ErrMalformedPayload, err)
		}
	}
	return raw, nil
}

func putHash32(buf *bytes.Buffer, hash [32]byte) {
	buf.Write(hash[:])
}

func takeHash32(r *bytes.Reader) ([32]byte, error) {
	var hash [32]byte
	if _, err := io.ReadFull(r, hash[:]); err != nil {
		return hash, fmt.Errorf("%w: short hash: %w", ErrMalformedPayload, err)
	}
	return hash, nil
}

func putBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func takeBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("%w: bool: %w", ErrMalformedPayload, err)
	}
	return b != 0, nil
}

// FileAnnounce is broadcast by a sender to advertise a new transfer.
type FileAnnounce struct {
	TransferID   string
	FileName     string
	FileSize     int64
	FileHash     [32]byte
	ChunkSize    int32
	TotalChunks  int64
	MimeType     *string
}

func (m FileAnnounce) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	putString(&buf, m.FileName)
	binary.Write(&buf, binary.BigEndian, m.FileSize)
	putHash32(&buf, m.FileHash)
	binary.Write(&buf, binary.BigEndian, m.ChunkSize)
	binary.Write(&buf, binary.BigEndian, m.TotalChunks)
	putOptionalString(&buf, m.MimeType)
	return buf.Bytes(), nil
}

func DecodeFileAnnounce(payload []byte) (FileAnnounce, error) {
	r := bytes.NewReader(payload)
	var m FileAnnounce
	var err error

	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if m.FileName, err = takeString(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.FileSize); err != nil {
		return m, fmt.Errorf("%w: file_size: %w", ErrMalformedPayload, err)
	}
	if m.FileHash, err = takeHash32(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.ChunkSize); err != nil {
		return m, fmt.Errorf("%w: chunk_size: %w", ErrMalformedPayload, err)
	}
	if err := binary.Read(r, binary.BigEndian, &m.TotalChunks); err != nil {
		return m, fmt.Errorf("%w: total_chunks: %w", ErrMalformedPayload, err)
	}
	if m.MimeType, err = takeOptionalString(r); err != nil {
		return m, err
	}
	return m, nil
}

// FileRequest asks the sender for a contiguous run of chunks.
type FileRequest struct {
	TransferID      string
	FirstChunkIndex int64
	ChunkCount      int32
}

func (m FileRequest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	binary.Write(&buf, binary.BigEndian, m.FirstChunkIndex)
	binary.Write(&buf, binary.BigEndian, m.ChunkCount)
	return buf.Bytes(), nil
}

func DecodeFileRequest(payload []byte) (FileRequest, error) {
	r := bytes.NewReader(payload)
	var m FileRequest
	var err error
	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.FirstChunkIndex); err != nil {
		return m, fmt.Errorf("%w: first_chunk_index: %w", ErrMalformedPayload, err)
	}
	if err := binary.Read(r, binary.BigEndian, &m.ChunkCount); err != nil {
		return m, fmt.Errorf("%w: chunk_count: %w", ErrMalformedPayload, err)
	}
	return m, nil
}

// FileChunk carries one chunk's bytes and its own integrity hash.
type FileChunk struct {
	TransferID string
	ChunkIndex int64
	Data       []byte
	ChunkHash  [32]byte
}

func (m FileChunk) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	binary.Write(&buf, binary.BigEndian, m.ChunkIndex)
	putBytesField(&buf, m.Data)
	putHash32(&buf, m.ChunkHash)
	return buf.Bytes(), nil
}

func DecodeFileChunk(payload []byte) (FileChunk, error) {
	r := bytes.NewReader(payload)
	var m FileChunk
	var err error
	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.ChunkIndex); err != nil {
		return m, fmt.Errorf("%w: chunk_index: %w", ErrMalformedPayload, err)
	}
	if m.Data, err = takeBytesField(r); err != nil {
		return m, err
	}
	if m.ChunkHash, err = takeHash32(r); err != nil {
		return m, err
	}
	return m, nil
}

// FileChunkAck acknowledges (or negatively acknowledges) one chunk.
type FileChunkAck struct {
	TransferID string
	ChunkIndex int64
	Success    bool
}

func (m FileChunkAck) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	binary.Write(&buf, binary.BigEndian, m.ChunkIndex)
	putBool(&buf, m.Success)
	return buf.Bytes(), nil
}

func DecodeFileChunkAck(payload []byte) (FileChunkAck, error) {
	r := bytes.NewReader(payload)
	var m FileChunkAck
	var err error
	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.ChunkIndex); err != nil {
		return m, fmt.Errorf("%w: chunk_index: %w", ErrMalformedPayload, err)
	}
	if m.Success, err = takeBool(r); err != nil {
		return m, err
	}
	return m, nil
}

// FileComplete and FileCancel share the same wire shape: a transfer id, an
// outcome flag, and an optional human-readable reason.
type FileOutcome struct {
	TransferID   string
	Success      bool
	ErrorMessage *string
}

func (m FileOutcome) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	putBool(&buf, m.Success)
	putOptionalString(&buf, m.ErrorMessage)
	return buf.Bytes(), nil
}

func DecodeFileOutcome(payload []byte) (FileOutcome, error) {
	r := bytes.NewReader(payload)
	var m FileOutcome
	var err error
	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if m.Success, err = takeBool(r); err != nil {
		return m, err
	}
	if m.ErrorMessage, err = takeOptionalString(r); err != nil {
		return m, err
	}
	return m, nil
}

// FileResume tells the sender where a restarted receiver left off.
type FileResume struct {
	TransferID        string
	LastReceivedChunk int64
}

func (m FileResume) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := putTransferID(&buf, m.TransferID); err != nil {
		return nil, err
	}
	binary.Write(&buf, binary.BigEndian, m.LastReceivedChunk)
	return buf.Bytes(), nil
}

func DecodeFileResume(payload []byte) (FileResume, error) {
	r := bytes.NewReader(payload)
	var m FileResume
	var err error
	if m.TransferID, err = takeTransferID(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.LastReceivedChunk); err != nil {
		return m, fmt.Errorf("%w: last_received_chunk: %w", ErrMalformedPayload, err)
	}
	return m, nil
}

// Ping/Pong carry a millisecond timestamp and a caller-chosen sequence
// number used to pair replies with requests.
type Ping struct {
	TimestampMs int64
	Sequence    int64
}

func (m Ping) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, m.TimestampMs)
	binary.Write(&buf, binary.BigEndian, m.Sequence)
	return buf.Bytes(), nil
}

func DecodePing(payload []byte) (Ping, error) {
	r := bytes.NewReader(payload)
	var m Ping
	if err := binary.Read(r, binary.BigEndian, &m.TimestampMs); err != nil {
		return m, fmt.Errorf("%w: timestamp_ms: %w", ErrMalformedPayload, err)
	}
	if err := binary.Read(r, binary.BigEndian, &m.Sequence); err != nil {
		return m, fmt.Errorf("%w: sequence: %w", ErrMalformedPayload, err)
	}
	return m, nil
}

type Pong struct {
	PingTimestampMs int64
	Sequence        int64
}

func (m Pong) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, m.PingTimestampMs)
	binary.Write(&buf, binary.BigEndian, m.Sequence)
	return buf.Bytes(), nil
}

func DecodePong(payload []byte) (Pong, error) {
	r := bytes.NewReader(payload)
	var m Pong
	if err := binary.Read(r, binary.BigEndian, &m.PingTimestampMs); err != nil {
		return m, fmt.Errorf("%w: ping_timestamp_ms: %w", ErrMalformedPayload, err)
	}
	if err := binary.Read(r, binary.BigEndian, &m.Sequence); err != nil {
		return m, fmt.Errorf("%w: sequence: %w", ErrMalformedPayload, err)
	}
	return m, nil
}

// ClipboardData carries one clipboard payload shared between peers.
type ClipboardData struct {
	ClipboardID string
	ContentType ClipboardContentType
	Data        []byte
	TimestampMs int64
}

func (m ClipboardData) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	putString(&buf, m.ClipboardID)
	buf.WriteByte(byte(m.ContentType))
	putBytesField(&buf, m.Data)
	binary.Write(&buf, binary.BigEndian, m.TimestampMs)
	return buf.Bytes(), nil
}

func DecodeClipboardData(payload []byte) (ClipboardData, error) {
	r := bytes.NewReader(payload)
	var m ClipboardData
	var err error
	if m.ClipboardID, err = takeString(r); err != nil {
		return m, err
	}
	ct, err := r.ReadByte()
	if err != nil {
		return m, fmt.Errorf("%w: content_type: %w", ErrMalformedPayload, err)
	}
	m.ContentType = ClipboardContentType(ct)
	if m.Data, err = takeBytesField(r); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.BigEndian, &m.TimestampMs); err != nil {
		return m, fmt.Errorf("%w: timestamp_ms: %w", ErrMalformedPayload, err)
	}
	return m, nil
}

// ClipboardAck acknowledges receipt of a ClipboardData message.
type ClipboardAck struct {
	ClipboardID string
	Success     bool
}

func (m ClipboardAck) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	putString(&buf, m.ClipboardID)
	putBool(&buf, m.Success)
	return buf.Bytes(), nil
}

func DecodeClipboardAck(payload []byte) (ClipboardAck, error) {
	r := bytes.NewReader(payload)
	var m ClipboardAck
	var err error
	if m.ClipboardID, err = takeString(r); err != nil {
		return m, err
	}
	if m.Success, err = takeBool(r); err != nil {
		return m, err
	}
	return m, nil
}

// Disconnect optionally carries a human-readable reason for a graceful
// session teardown.
type Disconnect struct {
	Reason *string
}

func (m Disconnect) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	putOptionalString(&buf, m.Reason)
	return buf.Bytes(), nil
}

func DecodeDisconnect(payload []byte) (Disconnect, error) {
	r := bytes.NewReader(payload)
	reason, err := takeOptionalString(r)
	if err != nil {
		return Disconnect{}, err
	}
	return Disconnect{Reason: reason}, nil
}
