package file

import "testing"

func TestChunkSizeFor(t *testing.T) {
	cases := []struct {
		size int64
		want int32
	}{
		{0, chunkSizeSmall},
		{1000, chunkSizeSmall},
		{smallFileThreshold - 1, chunkSizeSmall},
		{smallFileThreshold, chunkSizeMedium},
		{50 << 20, chunkSizeMedium},
		{mediumFileThreshold - 1, chunkSizeMedium},
		{mediumFileThreshold, chunkSizeLarge},
		{300 << 20, chunkSizeLarge},
	}
	for _, c := range cases {
		if got := chunkSizeFor(c.size); got != c.want {
			t.Errorf("chunkSizeFor(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestTotalChunksFor(t *testing.T) {
	if got := totalChunksFor(1000, chunkSizeSmall); got != 1 {
		t.Errorf("totalChunksFor(1000, 64KiB) = %d, want 1", got)
	}
	if got := totalChunksFor(300<<20, chunkSizeLarge); got != 300 {
		t.Errorf("totalChunksFor(300MiB, 1MiB) = %d, want 300", got)
	}
	if got := totalChunksFor(0, chunkSizeSmall); got != 0 {
		t.Errorf("totalChunksFor(0, _) = %d, want 0", got)
	}
}

func TestChunkBounds(t *testing.T) {
	start, end := chunkBounds(2, 100, 250)
	if start != 200 || end != 250 {
		t.Errorf("chunkBounds(2, 100, 250) = (%d, %d), want (200, 250)", start, end)
	}
	start, end = chunkBounds(0, 100, 250)
	if start != 0 || end != 100 {
		t.Errorf("chunkBounds(0, 100, 250) = (%d, %d), want (0, 100)", start, end)
	}
}
