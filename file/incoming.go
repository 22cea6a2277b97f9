package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/sirupsen/logrus"
)

// IncomingTransfer is the receiver-side record of a single file being
// pulled from a peer, per spec.md §3. It is created on FileAnnounce and
// destroyed on completion, cancel, or session loss (though its on-disk
// temp file and checkpoint survive session loss so the transfer can
// resume, per spec.md §4.H "Failure semantics").
type IncomingTransfer struct {
	TransferID   string
	OriginPeerID string
	FileName     string
	FileSize     int64
	FileHash     [32]byte
	ChunkSize    int32
	TotalChunks  int64
	InboxDir     string
	TempPath     string

	mu             sync.Mutex
	file           *os.File
	received       map[int64]bool
	receivedCount  int64
	contiguousLast int64 // -1 until chunk 0 is durably written
	highestWindow  int64 // highest chunk index end requested so far
	chunkFailures  map[int64]int
	timeProvider   crypto.TimeProvider
}

func tempPath(inboxDir, transferID string) string {
	return filepath.Join(inboxDir, fmt.Sprintf(".%s.tmp", transferID))
}

// newIncomingTransfer allocates the hidden temp file for a freshly
// announced transfer, preallocated to fileSize so writes at any chunk
// offset succeed without growing the file (spec.md §4.H).
func newIncomingTransfer(inboxDir, originPeerID string, a announceFields, tp crypto.TimeProvider) (*IncomingTransfer, error) {
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create inbox dir: %w", err)
	}

	path := tempPath(inboxDir, a.transferID)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("file: create temp file: %w", err)
	}
	if a.fileSize > 0 {
		if err := f.Truncate(a.fileSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("file: preallocate temp file: %w", err)
		}
	}

	return &IncomingTransfer{
		TransferID:     a.transferID,
		OriginPeerID:   originPeerID,
		FileName:       a.fileName,
		FileSize:       a.fileSize,
		FileHash:       a.fileHash,
		ChunkSize:      a.chunkSize,
		TotalChunks:    a.totalChunks,
		InboxDir:       inboxDir,
		TempPath:       path,
		file:           f,
		received:       make(map[int64]bool),
		contiguousLast: -1,
		highestWindow:  -1,
		chunkFailures:  make(map[int64]int),
		timeProvider:   tp,
	}, nil
}

// announceFields is the subset of a FileAnnounce message IncomingTransfer
// needs; kept separate from message.FileAnnounce so this package does not
// need to import message for its internal constructor signature.
type announceFields struct {
	transferID  string
	fileName    string
	fileSize    int64
	fileHash    [32]byte
	chunkSize   int32
	totalChunks int64
}

// resumeIncomingTransfer reopens an existing temp file and checkpoint for a transfer
// that was interrupted mid-flight, per spec.md §4.H resume semantics.
func resumeIncomingTransfer(inboxDir, originPeerID string, a announceFields, cp Checkpoint, tp crypto.TimeProvider) (*IncomingTransfer, error) {
	path := tempPath(inboxDir, a.transferID)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("file: reopen temp file for resume: %w", err)
	}

	received := make(map[int64]bool, cp.Last+1)
	for i := int64(0); i <= cp.Last; i++ {
		received[i] = true
	}

	return &IncomingTransfer{
		TransferID:     a.transferID,
		OriginPeerID:   originPeerID,
		FileName:       a.fileName,
		FileSize:       a.fileSize,
		FileHash:       a.fileHash,
		ChunkSize:      a.chunkSize,
		TotalChunks:    a.totalChunks,
		InboxDir:       inboxDir,
		TempPath:       path,
		file:           f,
		received:       received,
		receivedCount:  cp.Last + 1,
		contiguousLast: cp.Last,
		highestWindow:  cp.Last,
		chunkFailures:  make(map[int64]int),
		timeProvider:   tp,
	}, nil
}

// writeChunk rejects data whose hash check failed (matches is false, as
// computed by the caller against chunk_hash), otherwise writes it at its offset
// under the transfer's exclusive write lock, flushes, advances the
// checkpoint, and reports whether the whole file is now complete.
func (t *IncomingTransfer) writeChunk(index int64, data []byte, matches bool) (complete bool, err error) {
	if !matches {
		return false, ErrChunkHashMismatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.received[index] {
		return t.receivedCount >= t.TotalChunks, nil
	}

	start, _ := chunkBounds(index, t.ChunkSize, t.FileSize)
	if _, err := t.file.WriteAt(data, start); err != nil {
		return false, fmt.Errorf("file: write chunk %d: %w", index, err)
	}
	if err := t.file.Sync(); err != nil {
		return false, fmt.Errorf("file: flush chunk %d: %w", index, err)
	}

	t.received[index] = true
	t.receivedCount++
	delete(t.chunkFailures, index)

	for t.received[t.contiguousLast+1] {
		t.contiguousLast++
	}

	if err := saveCheckpoint(t.InboxDir, Checkpoint{
		TransferID: t.TransferID,
		Last:       t.contiguousLast,
		Timestamp:  t.timeProvider.Now(),
	}); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":   "file",
			"transfer_id": t.TransferID,
			"error":       err.Error(),
		}).Warn("failed to persist checkpoint")
	}

	return t.receivedCount >= t.TotalChunks, nil
}

// recordChunkFailure increments the consecutive-failure counter for index
// and reports whether the retry budget is exhausted.
func (t *IncomingTransfer) recordChunkFailure(index int64) (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunkFailures[index]++
	return t.chunkFailures[index] >= MaxChunkRetries
}

// clearChunkFailures resets the retry counter for index after a
// successful write.
func (t *IncomingTransfer) clearChunkFailures(index int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chunkFailures, index)
}

// maybeAdvanceWindow reports the next FileRequest window to issue, if the
// just-written chunk was the tail of the previously requested window and
// there is more file left to request (spec.md §4.H step 3).
func (t *IncomingTransfer) maybeAdvanceWindow(justWritten int64) (nextFirst int64, count int32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if justWritten != t.highestWindow {
		return 0, 0, false
	}
	if justWritten+1 >= t.TotalChunks {
		return 0, 0, false
	}

	nextFirst = justWritten + 1
	remaining := t.TotalChunks - nextFirst
	count = int32(MaxInFlight)
	if remaining < int64(MaxInFlight) {
		count = int32(remaining)
	}
	t.highestWindow = nextFirst + int64(count) - 1
	return nextFirst, count, true
}

// setInitialWindow records the window requested by the first FileRequest
// (issued by Engine.Accept), so maybeAdvanceWindow has a baseline.
func (t *IncomingTransfer) setInitialWindow(first int64, count int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.highestWindow = first + int64(count) - 1
}

func (t *IncomingTransfer) isComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receivedCount >= t.TotalChunks
}

// finalize closes the temp file. The caller is responsible for hash
// verification and rename/deletion per spec.md §4.H step 4.
func (t *IncomingTransfer) finalize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}
