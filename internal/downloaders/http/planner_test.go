package blitzhttp

import (
	"reflect"
	"testing"
)

func TestPlanChunksEvenSplit(t *testing.T) {
	plans := PlanChunks(1000, 4)
	want := []ChunkPlan{
		{Index: 0, StartByte: 0, EndByte: 249},
		{Index: 1, StartByte: 250, EndByte: 499},
		{Index: 2, StartByte: 500, EndByte: 749},
		{Index: 3, StartByte: 750, EndByte: 999},
	}
	if !reflect.DeepEqual(plans, want) {
		t.Errorf("PlanChunks(1000, 4) = %v, want %v", plans, want)
	}
}

func TestPlanChunksRemainderToLeadingChunks(t *testing.T) {
	plans := PlanChunks(1001, 4)
	sizes := make([]int64, len(plans))
	for i, p := range plans {
		sizes[i] = p.Size()
	}
	want := []int64{251, 250, 250, 250}
	if !reflect.DeepEqual(sizes, want) {
		t.Errorf("chunk sizes = %v, want %v", sizes, want)
	}
}

func TestPlanChunksZeroSize(t *testing.T) {
	plans := PlanChunks(0, 8)
	if len(plans) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(plans))
	}
	if plans[0].Size() != 0 {
		t.Errorf("expected empty chunk, got size %d", plans[0].Size())
	}
}

func TestPlanChunksClampsToTinyResource(t *testing.T) {
	plans := PlanChunks(3, 8)
	if len(plans) != 3 {
		t.Fatalf("expected 3 chunks for a 3-byte resource, got %d", len(plans))
	}
	for _, p := range plans {
		if p.Size() != 1 {
			t.Errorf("chunk %d: size %d, want 1", p.Index, p.Size())
		}
	}
}

func TestPlanChunksCoversExactly(t *testing.T) {
	cases := []struct {
		totalSize   int64
		connections int
	}{
		{1, 1},
		{1, 16},
		{999, 7},
		{1 << 20, 8},
		{(1 << 30) + 17, 13},
	}
	for _, tc := range cases {
		plans := PlanChunks(tc.totalSize, tc.connections)

		var next int64
		var total int64
		var minSize, maxSize int64 = 1<<62 - 1, 0
		for i, p := range plans {
			if p.Index != i {
				t.Errorf("plan(%d,%d): chunk %d has index %d", tc.totalSize, tc.connections, i, p.Index)
			}
			if p.StartByte != next {
				t.Errorf("plan(%d,%d): chunk %d starts at %d, want %d (gap or overlap)",
					tc.totalSize, tc.connections, i, p.StartByte, next)
			}
			size := p.Size()
			if size <= 0 {
				t.Errorf("plan(%d,%d): chunk %d has size %d", tc.totalSize, tc.connections, i, size)
			}
			if size < minSize {
				minSize = size
			}
			if size > maxSize {
				maxSize = size
			}
			total += size
			next = p.EndByte + 1
		}
		if total != tc.totalSize {
			t.Errorf("plan(%d,%d): covers %d bytes", tc.totalSize, tc.connections, total)
		}
		if maxSize-minSize > 1 {
			t.Errorf("plan(%d,%d): chunk sizes differ by %d bytes", tc.totalSize, tc.connections, maxSize-minSize)
		}
	}
}

func TestPlanChunksIdempotent(t *testing.T) {
	a := PlanChunks(123457, 9)
	b := PlanChunks(123457, 9)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs should yield an identical plan")
	}
}
