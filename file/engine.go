package file

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/lanshare-dev/lanshare/message"
	"github.com/sirupsen/logrus"
)

// Sender is the subset of peer.Manager the transfer engine needs: a way to
// deliver a typed message to one peer or to every connected peer. The
// engine never dials, accepts, or holds a session itself; it is driven
// entirely by the caller feeding it inbound messages through
// HandleMessage.
type Sender interface {
	Send(peerID string, kind message.Kind, payload []byte) error
	Broadcast(kind message.Kind, payload []byte)
}

// Event is the common type of everything the engine emits on its Events
// channel: TransferProgress and TransferCompleted, per spec.md §6.
type Event interface{}

// TransferProgress reports cumulative progress of one transfer.
type TransferProgress struct {
	TransferID       string
	BytesTransferred int64
	TotalBytes       int64
}

// TransferCompleted reports the terminal outcome of one transfer. Path is
// set only when Success is true: the inbox destination for an incoming
// transfer, or the source path for an outgoing one whose chunks were all
// acknowledged. Reason carries a human-readable explanation on failure.
type TransferCompleted struct {
	TransferID string
	Success    bool
	Path       string
	Reason     string
}

// Engine implements the chunked, resumable file-transfer engine of
// spec.md §4.H. At most one OutgoingTransfer and one IncomingTransfer
// exist per transfer id at any time (spec.md §3 invariant).
type Engine struct {
	sender   Sender
	inboxDir string
	events   chan Event
	time     crypto.TimeProvider

	mu       sync.Mutex
	outgoing map[string]*OutgoingTransfer
	incoming map[string]*IncomingTransfer

	logger *logrus.Entry
}

// NewEngine creates a transfer engine that delivers messages through
// sender and places completed downloads under inboxDir.
func NewEngine(sender Sender, inboxDir string) *Engine {
	return &Engine{
		sender:   sender,
		inboxDir: inboxDir,
		events:   make(chan Event, 256),
		time:     crypto.GetDefaultTimeProvider(),
		outgoing: make(map[string]*OutgoingTransfer),
		incoming: make(map[string]*IncomingTransfer),
		logger:   logrus.WithField("component", "file"),
	}
}

// Events returns the channel observers should drain for TransferProgress
// and TransferCompleted notifications.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event channel full, dropping transfer event")
	}
}

func newTransferID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

func strPtr(s string) *string { return &s }

// Announce computes the whole-file SHA-256 of path, selects a chunk size
// by the deterministic policy (spec.md §4.H), and broadcasts a
// FileAnnounce to every connected peer. It registers an OutgoingTransfer
// under the returned transfer id.
func (e *Engine) Announce(path string) (string, error) {
	size, hash, err := hashFile(path)
	if err != nil {
		return "", err
	}

	chunkSize := chunkSizeFor(size)
	totalChunks := totalChunksFor(size, chunkSize)
	transferID := newTransferID()

	ot := newOutgoingTransfer(transferID, path, size, hash, chunkSize, totalChunks)

	e.mu.Lock()
	e.outgoing[transferID] = ot
	e.mu.Unlock()

	announce := message.FileAnnounce{
		TransferID:  transferID,
		FileName:    filepath.Base(path),
		FileSize:    size,
		FileHash:    hash,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
	}
	payload, err := announce.Marshal()
	if err != nil {
		e.mu.Lock()
		delete(e.outgoing, transferID)
		e.mu.Unlock()
		return "", err
	}

	e.sender.Broadcast(message.KindFileAnnounce, payload)
	e.logger.WithFields(logrus.Fields{
		"transfer_id":  transferID,
		"file_size":    size,
		"chunk_size":   chunkSize,
		"total_chunks": totalChunks,
	}).Info("announced outgoing transfer")
	return transferID, nil
}

// Accept requests chunks for a transfer previously seen via FileAnnounce,
// resuming from the last checkpoint if one exists (spec.md §4.H).
func (e *Engine) Accept(peerID, transferID string) error {
	e.mu.Lock()
	it, ok := e.incoming[transferID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTransfer
	}

	first := int64(0)
	if cp, err := loadCheckpoint(e.inboxDir, transferID); err == nil {
		first = cp.Last + 1
	}

	remaining := it.TotalChunks - first
	if remaining < 0 {
		remaining = 0
	}
	count := int32(MaxInFlight)
	if remaining < int64(MaxInFlight) {
		count = int32(remaining)
	}
	it.setInitialWindow(first, count)

	req := message.FileRequest{TransferID: transferID, FirstChunkIndex: first, ChunkCount: count}
	payload, err := req.Marshal()
	if err != nil {
		return err
	}
	return e.sender.Send(peerID, message.KindFileRequest, payload)
}

// Cancel drops the local record of transferID, whichever direction it is,
// and notifies the peer with FileCancel.
func (e *Engine) Cancel(peerID, transferID string) error {
	e.mu.Lock()
	_, hadOut := e.outgoing[transferID]
	delete(e.outgoing, transferID)
	it, hadIn := e.incoming[transferID]
	delete(e.incoming, transferID)
	e.mu.Unlock()

	if hadIn {
		it.finalize()
		os.Remove(it.TempPath)
		removeCheckpoint(e.inboxDir, transferID)
	}
	if !hadOut && !hadIn {
		return ErrUnknownTransfer
	}

	outcome := message.FileOutcome{TransferID: transferID, Success: false, ErrorMessage: strPtr("cancelled")}
	payload, err := outcome.Marshal()
	if err != nil {
		return err
	}
	return e.sender.Send(peerID, message.KindFileCancel, payload)
}

// HandleMessage dispatches one inbound typed message to the appropriate
// sender- or receiver-side handler. Callers feed it every FileAnnounce,
// FileRequest, FileChunk, FileChunkAck, FileComplete, FileCancel, and
// FileResume message received on a session.
func (e *Engine) HandleMessage(peerID string, kind message.Kind, payload []byte) error {
	switch kind {
	case message.KindFileAnnounce:
		return e.handleFileAnnounce(peerID, payload)
	case message.KindFileRequest:
		return e.handleFileRequest(peerID, payload)
	case message.KindFileChunk:
		return e.handleFileChunk(peerID, payload)
	case message.KindFileChunkAck:
		return e.handleFileChunkAck(peerID, payload)
	case message.KindFileComplete, message.KindFileCancel:
		return e.handleFileOutcome(kind, peerID, payload)
	case message.KindFileResume:
		return e.handleFileResume(peerID, payload)
	default:
		return fmt.Errorf("file: unexpected kind %s", kind)
	}
}

func (e *Engine) handleFileAnnounce(peerID string, payload []byte) error {
	a, err := message.DecodeFileAnnounce(payload)
	if err != nil {
		return err
	}

	af := announceFields{
		transferID:  a.TransferID,
		fileName:    a.FileName,
		fileSize:    a.FileSize,
		fileHash:    a.FileHash,
		chunkSize:   a.ChunkSize,
		totalChunks: a.TotalChunks,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.incoming[a.TransferID]; exists {
		// At most one IncomingTransfer per transfer id (spec.md §3).
		return ErrTransferExists
	}

	var it *IncomingTransfer
	if cp, err := loadCheckpoint(e.inboxDir, a.TransferID); err == nil {
		if _, statErr := os.Stat(tempPath(e.inboxDir, a.TransferID)); statErr == nil {
			it, err = resumeIncomingTransfer(e.inboxDir, peerID, af, cp, e.time)
			if err != nil {
				return err
			}
		}
	}
	if it == nil {
		it, err = newIncomingTransfer(e.inboxDir, peerID, af, e.time)
		if err != nil {
			return err
		}
	}
	e.incoming[a.TransferID] = it

	e.logger.WithFields(logrus.Fields{
		"transfer_id": a.TransferID,
		"peer_id":     peerID,
		"file_name":   a.FileName,
	}).Info("registered incoming transfer announcement")
	return nil
}

func (e *Engine) handleFileRequest(peerID string, payload []byte) error {
	req, err := message.DecodeFileRequest(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	ot, ok := e.outgoing[req.TransferID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTransfer
	}

	for i := int64(0); i < int64(req.ChunkCount); i++ {
		idx := req.FirstChunkIndex + i
		if idx >= ot.TotalChunks {
			break
		}
		if err := e.sendChunk(peerID, ot, idx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sendChunk(peerID string, ot *OutgoingTransfer, idx int64) error {
	data, err := ot.readChunk(idx)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(data)
	chunk := message.FileChunk{TransferID: ot.TransferID, ChunkIndex: idx, Data: data, ChunkHash: hash}
	payload, err := chunk.Marshal()
	if err != nil {
		return err
	}
	return e.sender.Send(peerID, message.KindFileChunk, payload)
}

func (e *Engine) handleFileChunk(peerID string, payload []byte) error {
	c, err := message.DecodeFileChunk(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	it, ok := e.incoming[c.TransferID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTransfer
	}

	sum := sha256.Sum256(c.Data)
	matches := crypto.ConstantTimeCompare(sum[:], c.ChunkHash[:])

	complete, err := it.writeChunk(c.ChunkIndex, c.Data, matches)
	if err != nil {
		ack := message.FileChunkAck{TransferID: c.TransferID, ChunkIndex: c.ChunkIndex, Success: false}
		if ackPayload, merr := ack.Marshal(); merr == nil {
			e.sender.Send(peerID, message.KindFileChunkAck, ackPayload)
		}

		if it.recordChunkFailure(c.ChunkIndex) {
			e.abortIncoming(peerID, it, "corrupted")
			return ErrRetryBudgetExhausted
		}
		return nil
	}
	it.clearChunkFailures(c.ChunkIndex)

	ack := message.FileChunkAck{TransferID: c.TransferID, ChunkIndex: c.ChunkIndex, Success: true}
	ackPayload, err := ack.Marshal()
	if err != nil {
		return err
	}
	if err := e.sender.Send(peerID, message.KindFileChunkAck, ackPayload); err != nil {
		return err
	}

	e.emit(TransferProgress{
		TransferID:       c.TransferID,
		BytesTransferred: chunksToBytes(it),
		TotalBytes:       it.FileSize,
	})

	if nextFirst, count, ok := it.maybeAdvanceWindow(c.ChunkIndex); ok {
		req := message.FileRequest{TransferID: c.TransferID, FirstChunkIndex: nextFirst, ChunkCount: count}
		if reqPayload, merr := req.Marshal(); merr == nil {
			e.sender.Send(peerID, message.KindFileRequest, reqPayload)
		}
	}

	if complete {
		e.finalizeIncoming(peerID, it)
	}
	return nil
}

// chunksToBytes estimates bytes durably written so far from the number of
// chunks written (in any order), capped at the file size.
func chunksToBytes(it *IncomingTransfer) int64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := it.receivedCount
	bytes := n * int64(it.ChunkSize)
	if bytes > it.FileSize {
		bytes = it.FileSize
	}
	return bytes
}

func (e *Engine) abortIncoming(peerID string, it *IncomingTransfer, reason string) {
	e.mu.Lock()
	delete(e.incoming, it.TransferID)
	e.mu.Unlock()

	it.finalize()
	os.Remove(it.TempPath)
	removeCheckpoint(e.inboxDir, it.TransferID)

	e.emit(TransferCompleted{TransferID: it.TransferID, Success: false, Reason: reason})

	outcome := message.FileOutcome{TransferID: it.TransferID, Success: false, ErrorMessage: strPtr(reason)}
	if payload, err := outcome.Marshal(); err == nil {
		e.sender.Send(peerID, message.KindFileComplete, payload)
	}
}

func (e *Engine) finalizeIncoming(peerID string, it *IncomingTransfer) {
	if err := it.finalize(); err != nil {
		e.logger.WithError(err).Warn("failed to close completed temp file")
	}

	_, sum, err := hashFile(it.TempPath)
	if err != nil {
		e.logger.WithError(err).Warn("failed to hash completed temp file")
		e.abortIncoming(peerID, it, "io error")
		return
	}

	e.mu.Lock()
	delete(e.incoming, it.TransferID)
	e.mu.Unlock()

	if !crypto.ConstantTimeCompare(sum[:], it.FileHash[:]) {
		os.Remove(it.TempPath)
		removeCheckpoint(e.inboxDir, it.TransferID)
		e.emit(TransferCompleted{TransferID: it.TransferID, Success: false, Reason: "hash mismatch"})
		outcome := message.FileOutcome{TransferID: it.TransferID, Success: false, ErrorMessage: strPtr("hash mismatch")}
		if payload, err := outcome.Marshal(); err == nil {
			e.sender.Send(peerID, message.KindFileComplete, payload)
		}
		return
	}

	dest, err := uniqueInboxPath(it.InboxDir, it.FileName)
	if err != nil {
		e.logger.WithError(err).Warn("failed to resolve unique inbox path")
		e.abortIncoming(peerID, it, "io error")
		return
	}
	if err := os.Rename(it.TempPath, dest); err != nil {
		e.logger.WithError(err).Warn("failed to install completed file")
		e.abortIncoming(peerID, it, "io error")
		return
	}
	removeCheckpoint(it.InboxDir, it.TransferID)

	e.emit(TransferCompleted{TransferID: it.TransferID, Success: true, Path: dest})
	outcome := message.FileOutcome{TransferID: it.TransferID, Success: true}
	if payload, err := outcome.Marshal(); err == nil {
		e.sender.Send(peerID, message.KindFileComplete, payload)
	}
}

func (e *Engine) handleFileChunkAck(peerID string, payload []byte) error {
	ack, err := message.DecodeFileChunkAck(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	ot, ok := e.outgoing[ack.TransferID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownTransfer
	}

	if !ack.Success {
		if ot.recordRetry(ack.ChunkIndex) {
			e.mu.Lock()
			delete(e.outgoing, ack.TransferID)
			e.mu.Unlock()
			e.emit(TransferCompleted{TransferID: ack.TransferID, Success: false, Reason: "corrupted"})
			return ErrRetryBudgetExhausted
		}
		return e.sendChunk(peerID, ot, ack.ChunkIndex)
	}

	done := ot.ack(ack.ChunkIndex)
	e.emit(TransferProgress{
		TransferID:       ot.TransferID,
		BytesTransferred: ot.ackedChunks() * int64(ot.ChunkSize),
		TotalBytes:       ot.FileSize,
	})

	if done {
		e.mu.Lock()
		delete(e.outgoing, ack.TransferID)
		e.mu.Unlock()
		e.emit(TransferCompleted{TransferID: ot.TransferID, Success: true, Path: ot.SourcePath})
	}
	return nil
}

func (e *Engine) handleFileOutcome(kind message.Kind, peerID string, payload []byte) error {
	outcome, err := message.DecodeFileOutcome(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	_, isOutgoing := e.outgoing[outcome.TransferID]
	delete(e.outgoing, outcome.TransferID)
	it, isIncoming := e.incoming[outcome.TransferID]
	delete(e.incoming, outcome.TransferID)
	e.mu.Unlock()

	if isIncoming && kind == message.KindFileCancel {
		it.finalize()
		os.Remove(it.TempPath)
		removeCheckpoint(e.inboxDir, outcome.TransferID)
	}

	if isOutgoing || isIncoming {
		reason := ""
		if outcome.ErrorMessage != nil {
			reason = *outcome.ErrorMessage
		}
		e.emit(TransferCompleted{TransferID: outcome.TransferID, Success: outcome.Success, Reason: reason})
	}
	return nil
}

// handleFileResume is informational only: the actual resume mechanism is
// an ordinary FileRequest carrying the post-checkpoint first_chunk_index
// (spec.md §4.H Accept). A FileResume arriving out of band (for example
// sent eagerly by a receiver the moment it reconnects, before the sender
// re-announces) simply confirms to the sender where the peer left off.
func (e *Engine) handleFileResume(peerID string, payload []byte) error {
	resume, err := message.DecodeFileResume(payload)
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"peer_id":     peerID,
		"transfer_id": resume.TransferID,
		"last_chunk":  resume.LastReceivedChunk,
	}).Debug("peer advertised resume point")
	return nil
}

