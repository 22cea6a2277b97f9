package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Checkpoint records how far an IncomingTransfer has durably progressed, so
// a restarted receiver can resume from checkpoint.Last+1 instead of
// re-requesting chunks it already wrote (spec.md §3, §4.H). It is
// persisted in a forward-compatible self-describing text format alongside
// the temporary file; JSON is the idiomatic stdlib choice for that here —
// no library in the retrieval pack offers a lighter-weight self-describing
// text codec than encoding/json already provides.
type Checkpoint struct {
	TransferID string    `json:"transfer_id"`
	Last       int64     `json:"last_contiguous_chunk_index"`
	Timestamp  time.Time `json:"timestamp"`
}

// checkpointPath returns the path of the checkpoint file for transferID
// under inboxDir, per spec.md §6's persisted-state layout.
func checkpointPath(inboxDir, transferID string) string {
	return filepath.Join(inboxDir, fmt.Sprintf(".%s.checkpoint", transferID))
}

// saveCheckpoint durably writes cp, replacing any prior checkpoint for the
// same transfer id. The caller must ensure cp.Last only increases between
// calls (spec.md §3 invariant: checkpoints never rewind).
func saveCheckpoint(inboxDir string, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("file: marshal checkpoint: %w", err)
	}

	path := checkpointPath(inboxDir, cp.TransferID)
	tmp := path + ".writing"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("file: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("file: install checkpoint: %w", err)
	}
	return nil
}

// loadCheckpoint reads a previously persisted checkpoint, or ErrNoCheckpoint
// if none exists for transferID.
func loadCheckpoint(inboxDir, transferID string) (Checkpoint, error) {
	path := checkpointPath(inboxDir, transferID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, ErrNoCheckpoint
		}
		return Checkpoint{}, fmt.Errorf("file: read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("file: decode checkpoint: %w", err)
	}
	return cp, nil
}

// removeCheckpoint discards a transfer's checkpoint. Called on completion
// (no further resume is possible) or on whole-file hash mismatch.
func removeCheckpoint(inboxDir, transferID string) {
	path := checkpointPath(inboxDir, transferID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"component":   "file",
			"transfer_id": transferID,
			"error":       err.Error(),
		}).Warn("failed to remove checkpoint")
	}
}
