package file

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
)

// OutgoingTransfer is the sender-side record of a single announced file,
// per spec.md §3. It is created by Engine.Announce and destroyed on final
// ack or cancel.
type OutgoingTransfer struct {
	TransferID  string
	SourcePath  string
	FileSize    int64
	FileHash    [32]byte
	ChunkSize   int32
	TotalChunks int64

	mu          sync.Mutex
	acked       map[int64]bool
	ackedCount  int64
	retryCounts map[int64]int
}

func newOutgoingTransfer(transferID, path string, size int64, hash [32]byte, chunkSize int32, totalChunks int64) *OutgoingTransfer {
	return &OutgoingTransfer{
		TransferID:  transferID,
		SourcePath:  path,
		FileSize:    size,
		FileHash:    hash,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		acked:       make(map[int64]bool),
		retryCounts: make(map[int64]int),
	}
}

// hashFile streams path through SHA-256 without holding the whole file in
// memory, per spec.md §3's O(chunk_size) memory invariant and the open
// question in §9: this implementation computes the declared hash up front
// at announce time rather than incrementally, because the transfer id and
// FileAnnounce message must already carry an authoritative file_hash
// before the first chunk request arrives.
func hashFile(path string) (int64, [32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, [32]byte{}, fmt.Errorf("file: open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, [32]byte{}, fmt.Errorf("file: stat source: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, [32]byte{}, fmt.Errorf("file: hash source: %w", err)
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return info.Size(), sum, nil
}

// readChunk reads the bytes of chunk index directly from the source file,
// so sender-side memory use stays O(chunk_size) regardless of file size.
func (t *OutgoingTransfer) readChunk(index int64) ([]byte, error) {
	start, end := chunkBounds(index, t.ChunkSize, t.FileSize)
	if start >= end && t.FileSize > 0 {
		return nil, fmt.Errorf("file: chunk index %d out of range", index)
	}

	f, err := os.Open(t.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("file: open source for chunk %d: %w", index, err)
	}
	defer f.Close()

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("file: read chunk %d: %w", index, err)
	}
	return buf, nil
}

// ack records a positive acknowledgement for chunkIndex and reports
// whether every chunk has now been acknowledged.
func (t *OutgoingTransfer) ack(chunkIndex int64) (done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.acked[chunkIndex] {
		t.acked[chunkIndex] = true
		t.ackedCount++
	}
	delete(t.retryCounts, chunkIndex)
	return t.ackedCount >= t.TotalChunks
}

// recordRetry increments the consecutive-failure counter for chunkIndex and
// reports whether the retry budget (MaxChunkRetries) is now exhausted.
func (t *OutgoingTransfer) recordRetry(chunkIndex int64) (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryCounts[chunkIndex]++
	return t.retryCounts[chunkIndex] >= MaxChunkRetries
}

// ackedChunks returns the number of chunks acknowledged so far.
func (t *OutgoingTransfer) ackedChunks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ackedCount
}
