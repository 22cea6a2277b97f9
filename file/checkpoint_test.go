package file

import (
	"testing"
	"time"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cp := Checkpoint{TransferID: "abc123", Last: 41, Timestamp: time.Now().UTC()}

	if err := saveCheckpoint(dir, cp); err != nil {
		t.Fatalf("saveCheckpoint: %v", err)
	}

	got, err := loadCheckpoint(dir, "abc123")
	if err != nil {
		t.Fatalf("loadCheckpoint: %v", err)
	}
	if got.Last != cp.Last {
		t.Errorf("Last = %d, want %d", got.Last, cp.Last)
	}

	removeCheckpoint(dir, "abc123")
	if _, err := loadCheckpoint(dir, "abc123"); err != ErrNoCheckpoint {
		t.Errorf("loadCheckpoint after remove: err = %v, want ErrNoCheckpoint", err)
	}
}

func TestCheckpointMonotonic(t *testing.T) {
	dir := t.TempDir()
	for _, last := range []int64{0, 5, 10} {
		cp := Checkpoint{TransferID: "mono", Last: last, Timestamp: time.Now().UTC()}
		if err := saveCheckpoint(dir, cp); err != nil {
			t.Fatalf("saveCheckpoint(%d): %v", last, err)
		}
	}
	got, err := loadCheckpoint(dir, "mono")
	if err != nil {
		t.Fatalf("loadCheckpoint: %v", err)
	}
	if got.Last != 10 {
		t.Errorf("Last = %d, want 10", got.Last)
	}
}

func TestLoadCheckpointMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadCheckpoint(dir, "nonexistent"); err != ErrNoCheckpoint {
		t.Errorf("err = %v, want ErrNoCheckpoint", err)
	}
}
