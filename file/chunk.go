package file

// Chunk size policy thresholds and the fixed sizes they select, per
// spec.md §4.H. The policy is deterministic so sender and receiver always
// agree on chunk_size without negotiating it.
const (
	smallFileThreshold  = 1 << 20   // 1 MiB
	mediumFileThreshold = 100 << 20 // 100 MiB

	chunkSizeSmall  int32 = 64 << 10  // 64 KiB
	chunkSizeMedium int32 = 256 << 10 // 256 KiB
	chunkSizeLarge  int32 = 1 << 20   // 1 MiB
)

// MaxInFlight bounds how many chunks a receiver requests ahead of the last
// one it has durably written (spec.md §4.H).
const MaxInFlight = 8

// MaxChunkRetries is the number of consecutive negative acks for the same
// chunk index the sender tolerates before the transfer is aborted as
// corrupted (spec.md §4.H, "Failure semantics").
const MaxChunkRetries = 5

// chunkSizeFor selects the deterministic chunk size for a file of the given
// size.
func chunkSizeFor(fileSize int64) int32 {
	switch {
	case fileSize < smallFileThreshold:
		return chunkSizeSmall
	case fileSize < mediumFileThreshold:
		return chunkSizeMedium
	default:
		return chunkSizeLarge
	}
}

// totalChunksFor returns the number of chunks a file of fileSize splits
// into at chunkSize, rounding up for the final partial chunk.
func totalChunksFor(fileSize int64, chunkSize int32) int64 {
	if fileSize == 0 {
		return 0
	}
	cs := int64(chunkSize)
	return (fileSize + cs - 1) / cs
}

// chunkBounds returns the half-open byte range [start, end) a chunk index
// occupies within a file of fileSize at chunkSize.
func chunkBounds(index int64, chunkSize int32, fileSize int64) (start, end int64) {
	cs := int64(chunkSize)
	start = index * cs
	end = start + cs
	if end > fileSize {
		end = fileSize
	}
	return start, end
}
