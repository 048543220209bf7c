package dimension

import "testing"

// These fixtures and expected values are taken directly from the original
// implementation's unit tests (common-chunk-internal-offset.cpp,
// common-tile-group-offset.cpp, common-chunk-lattice-index.cpp,
// common-shard-internal-index.cpp) to pin the index arithmetic exactly.

func fiveDimPlan(t *testing.T) *Plan {
	t.Helper()
	dims := []Dimension{
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 5},
		{Name: "c", Kind: KindChannel, ArraySizePx: 3, ChunkSizePx: 2},
		{Name: "z", Kind: KindSpace, ArraySizePx: 5, ChunkSizePx: 2},
		{Name: "y", Kind: KindSpace, ArraySizePx: 48, ChunkSizePx: 16},
		{Name: "x", Kind: KindSpace, ArraySizePx: 64, ChunkSizePx: 16},
	}
	p, err := NewPlan(dims, 2) // uint16
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return p
}

func TestChunkInternalOffset(t *testing.T) {
	p := fiveDimPlan(t)
	want := []uint64{
		0, 512, 0, 512, 0, 1024, 1536, 1024, 1536, 1024,
		0, 512, 0, 512, 0, 2048, 2560, 2048, 2560, 2048,
		3072, 3584, 3072, 3584, 3072, 2048, 2560, 2048, 2560, 2048,
		4096, 4608, 4096, 4608, 4096, 5120, 5632, 5120, 5632, 5120,
		4096, 4608, 4096, 4608, 4096, 6144, 6656, 6144, 6656, 6144,
		7168, 7680, 7168, 7680, 7168, 6144, 6656, 6144, 6656, 6144,
		8192, 8704, 8192, 8704, 8192, 9216, 9728, 9216, 9728, 9216,
		8192, 8704, 8192, 8704, 8192, 0,
	}
	for i, w := range want {
		got, err := p.ChunkInternalOffset(uint64(i))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Errorf("ChunkInternalOffset(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestTileGroupOffset(t *testing.T) {
	p := fiveDimPlan(t)
	want := []uint64{
		0, 0, 12, 12, 24, 0, 0, 12, 12, 24,
		36, 36, 48, 48, 60, 0, 0, 12, 12, 24,
		0, 0, 12, 12, 24, 36, 36, 48, 48, 60,
		0, 0, 12, 12, 24,
	}
	for i, w := range want {
		got, err := p.TileGroupOffset(uint64(i))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Errorf("TileGroupOffset(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestChunkLatticeIndex(t *testing.T) {
	p := fiveDimPlan(t)
	type row struct {
		frame, axis int
		want        uint64
	}
	rows := []row{
		{0, 2, 0}, {0, 1, 0}, {0, 0, 0},
		{1, 2, 0}, {1, 1, 0}, {1, 0, 0},
		{2, 2, 1}, {2, 1, 0}, {2, 0, 0},
		{3, 2, 1}, {3, 1, 0}, {3, 0, 0},
		{4, 2, 2}, {4, 1, 0}, {4, 0, 0},
		{5, 2, 0}, {5, 1, 0}, {5, 0, 0},
	}
	for _, r := range rows {
		got, err := p.ChunkLatticeIndex(uint64(r.frame), r.axis)
		if err != nil {
			t.Fatalf("frame %d axis %d: %v", r.frame, r.axis, err)
		}
		if got != r.want {
			t.Errorf("ChunkLatticeIndex(%d, %d) = %d, want %d", r.frame, r.axis, got, r.want)
		}
	}
}

func TestShardIndexAndInternalIndex(t *testing.T) {
	dims := []Dimension{
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 32, ShardSizeChunks: 1},
		{Name: "y", Kind: KindSpace, ArraySizePx: 960, ChunkSizePx: 320, ShardSizeChunks: 2},
		{Name: "x", Kind: KindSpace, ArraySizePx: 1080, ChunkSizePx: 270, ShardSizeChunks: 3},
	}
	p, err := NewPlan(dims, 1)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	type row struct {
		chunk                   uint64
		shardIndex, shardInside uint64
	}
	rows := []row{
		{0, 0, 0}, {1, 0, 1}, {2, 0, 2}, {3, 1, 0},
		{4, 0, 3}, {5, 0, 4}, {6, 0, 5}, {7, 1, 3},
		{8, 2, 0}, {9, 2, 1}, {10, 2, 2}, {11, 3, 0},
	}
	for _, r := range rows {
		// t is unsharded here (ShardSizeChunks: 1), so tChunkIdx 0 never
		// contributes to the shard coordinate; these fixtures exercise only
		// the non-append axes.
		gotShard, err := p.ShardIndexForChunk(0, r.chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", r.chunk, err)
		}
		gotInternal, err := p.ShardInternalIndex(0, r.chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", r.chunk, err)
		}
		if gotShard != r.shardIndex {
			t.Errorf("ShardIndexForChunk(%d) = %d, want %d", r.chunk, gotShard, r.shardIndex)
		}
		if gotInternal != r.shardInside {
			t.Errorf("ShardInternalIndex(%d) = %d, want %d", r.chunk, gotInternal, r.shardInside)
		}
	}
}

// TestShardIndexAppendAxisParticipates pins spec §4.6's "each shard
// aggregates ∏ shard_size_chunks[d] chunks" over *every* axis, the append
// axis included: two append-axis chunks sharing a t-shard must land in the
// same shard, and the append-axis-local position must be the
// most-significant component of ShardInternalIndex.
func TestShardIndexAppendAxisParticipates(t *testing.T) {
	dims := []Dimension{
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 5, ShardSizeChunks: 2},
		{Name: "y", Kind: KindSpace, ArraySizePx: 8, ChunkSizePx: 4, ShardSizeChunks: 2},
		{Name: "x", Kind: KindSpace, ArraySizePx: 8, ChunkSizePx: 4, ShardSizeChunks: 2},
	}
	p, err := NewPlan(dims, 1)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	// 2 y-chunks * 2 x-chunks = 4 non-append chunks, all in one shard along
	// y/x (2 chunks per shard on each), so every non-append flat index maps
	// to non-append shard index 0.
	const flatIdx = 0

	if got, want := p.TShardSize(), uint64(2); got != want {
		t.Fatalf("TShardSize() = %d, want %d", got, want)
	}
	if got, want := p.ChunksPerShard(), uint64(2*4); got != want {
		t.Fatalf("ChunksPerShard() = %d, want %d", got, want)
	}

	// t-chunks 0 and 1 share t-shard 0; t-chunk 2 starts t-shard 1.
	for _, tChunk := range []uint64{0, 1} {
		got, err := p.ShardIndexForChunk(tChunk, flatIdx)
		if err != nil {
			t.Fatalf("ShardIndexForChunk(%d, %d): %v", tChunk, flatIdx, err)
		}
		if got != 0 {
			t.Errorf("ShardIndexForChunk(%d, %d) = %d, want 0 (same shard)", tChunk, flatIdx, got)
		}
	}
	if got, err := p.ShardIndexForChunk(2, flatIdx); err != nil || got != 1 {
		t.Errorf("ShardIndexForChunk(2, %d) = %d, %v, want 1, nil", flatIdx, got, err)
	}

	// Within t-shard 0, t-chunk 0 occupies internal slots [0,4) and t-chunk 1
	// occupies [4,8): the append-axis-local index is the most-significant
	// component.
	got0, _ := p.ShardInternalIndex(0, flatIdx)
	got1, _ := p.ShardInternalIndex(1, flatIdx)
	if got0 != 0 {
		t.Errorf("ShardInternalIndex(0, %d) = %d, want 0", flatIdx, got0)
	}
	if got1 != 4 {
		t.Errorf("ShardInternalIndex(1, %d) = %d, want 4", flatIdx, got1)
	}
}

func TestNewPlanRejectsMisplacedAppendDim(t *testing.T) {
	dims := []Dimension{
		{Name: "c", Kind: KindChannel, ArraySizePx: 3, ChunkSizePx: 2},
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 5},
		{Name: "y", Kind: KindSpace, ArraySizePx: 48, ChunkSizePx: 16},
		{Name: "x", Kind: KindSpace, ArraySizePx: 64, ChunkSizePx: 16},
	}
	if _, err := NewPlan(dims, 2); err == nil {
		t.Fatal("expected error for non-outermost append dimension")
	}
}

func TestNewPlanRejectsMultipleAppendDims(t *testing.T) {
	dims := []Dimension{
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 5},
		{Name: "c", Kind: KindChannel, ArraySizePx: 0, ChunkSizePx: 2},
		{Name: "y", Kind: KindSpace, ArraySizePx: 48, ChunkSizePx: 16},
		{Name: "x", Kind: KindSpace, ArraySizePx: 64, ChunkSizePx: 16},
	}
	if _, err := NewPlan(dims, 2); err == nil {
		t.Fatal("expected error for two append dimensions")
	}
}

func TestChunkBytesAndTileBytes(t *testing.T) {
	p := fiveDimPlan(t)
	// 5*2*2*16*16 elements * 2 bytes/elem
	if got, want := p.ChunkBytes(), uint64(5*2*2*16*16*2); got != want {
		t.Errorf("ChunkBytes() = %d, want %d", got, want)
	}
	if got, want := p.TileBytes(), uint64(16*16*2); got != want {
		t.Errorf("TileBytes() = %d, want %d", got, want)
	}
}

func TestChunksPerShard(t *testing.T) {
	dims := []Dimension{
		{Name: "t", Kind: KindTime, ArraySizePx: 0, ChunkSizePx: 5, ShardSizeChunks: 2},
		{Name: "z", Kind: KindSpace, ArraySizePx: 6, ChunkSizePx: 2, ShardSizeChunks: 1},
		{Name: "c", Kind: KindChannel, ArraySizePx: 8, ChunkSizePx: 4, ShardSizeChunks: 2},
		{Name: "y", Kind: KindSpace, ArraySizePx: 48, ChunkSizePx: 16, ShardSizeChunks: 1},
		{Name: "x", Kind: KindSpace, ArraySizePx: 64, ChunkSizePx: 16, ShardSizeChunks: 2},
	}
	p, err := NewPlan(dims, 1)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	// shards_per_axis = t:2, z:1, c:2, y:1, x:2 => 8 chunks/shard; the append
	// axis participates in sharding exactly like every other axis.
	if got, want := p.ChunksPerShard(), uint64(2*1*2*1*2); got != want {
		t.Errorf("ChunksPerShard() = %d, want %d", got, want)
	}
}
