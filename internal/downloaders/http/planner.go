package blitzhttp

// ChunkPlan is one contiguous byte range of the resource. Ranges are
// disjoint and their union covers [0, totalSize).
type ChunkPlan struct {
	Index     int
	StartByte int64
	EndByte   int64 // inclusive
}

// Size returns the number of bytes the chunk covers.
func (c ChunkPlan) Size() int64 {
	return c.EndByte - c.StartByte + 1
}

// PlanChunks splits totalSize bytes into up to connections ranges of
// near-equal size: base size totalSize/connections, with the remainder
// distributed one byte at a time to the leading chunks, so sizes differ
// by at most one byte. For resources smaller than the connection count
// the effective chunk count is clamped to totalSize (floor 1), so no
// chunk is ever empty. A zero-size resource yields a single empty chunk.
// Pure function: identical inputs produce identical plans.
func PlanChunks(totalSize int64, connections int) []ChunkPlan {
	if connections < 1 {
		connections = 1
	}
	if totalSize <= 0 {
		return []ChunkPlan{{Index: 0, StartByte: 0, EndByte: -1}}
	}
	if int64(connections) > totalSize {
		connections = int(totalSize)
	}

	base := totalSize / int64(connections)
	remainder := totalSize % int64(connections)

	plans := make([]ChunkPlan, 0, connections)
	var offset int64
	for i := 0; i < connections; i++ {
		size := base
		if int64(i) < remainder {
			size++
		}
		plans = append(plans, ChunkPlan{
			Index:     i,
			StartByte: offset,
			EndByte:   offset + size - 1,
		})
		offset += size
	}
	return plans
}
