// Package dimension implements the pure index arithmetic mapping a
// monotonic frame counter to chunk coordinates, shard coordinates, and
// byte offsets. Every function here is side-effect free and operates only
// on unsigned 64-bit integers, matching restic's own preference for small,
// independently testable helpers ahead of the stateful writers that use
// them.
package dimension

import (
	"math"

	"github.com/acquire-zarr/zarrstream/internal/zerrs"
)

// Kind is the semantic role of an axis.
type Kind int

const (
	KindSpace Kind = iota
	KindChannel
	KindTime
	KindOther
)

// Dimension is one axis of an array, ordered outermost-first.
type Dimension struct {
	Name            string
	Kind            Kind
	ArraySizePx     uint64 // 0 means "append" (unbounded)
	ChunkSizePx     uint64
	ShardSizeChunks uint64 // 0 or 1 means unsharded; ignored for Zarr v2
}

// IsAppend reports whether d is the unbounded, stream-driven dimension.
func (d Dimension) IsAppend() bool { return d.ArraySizePx == 0 }

// Plan precomputes the strides needed to place a frame, tile, and chunk.
// It is built once by NewPlan and is immutable and safe for concurrent use
// by any number of readers thereafter.
type Plan struct {
	dims     []Dimension
	elemSize uint64

	appendAxis int // always 0, kept explicit for clarity at call sites

	// chunkStrides[d] = number of chunks along axis d (ceil(array/chunk));
	// meaningless (and unused) for the append axis.
	chunkStrides []uint64

	// outerProduct is the product of ArraySizePx over the non-append,
	// non-image axes, the divisor that separates the append coordinate
	// from the rest when decoding a frame index.
	outerProduct uint64

	tileBytes uint64 // bytes per (y,x) tile = chunkSizePx[y]*chunkSizePx[x]*elemSize
}

// NewPlan validates dims and precomputes strides.
// elemBytes is the element size of the configured data type.
func NewPlan(dims []Dimension, elemBytes uint64) (*Plan, error) {
	n := len(dims)
	if n < 3 {
		return nil, zerrs.InvalidArgument("need at least one non-image dimension plus the two image axes, got %d dims", n)
	}
	if elemBytes == 0 {
		return nil, zerrs.InvalidArgument("element size must be positive")
	}

	appendCount := 0
	appendIdx := -1
	for i, d := range dims {
		if d.Name == "" || len(d.Name) > 63 {
			return nil, zerrs.InvalidArgument("dimension name %q must be 1..63 bytes", d.Name)
		}
		if d.ChunkSizePx == 0 {
			return nil, zerrs.InvalidArgument("dimension %q: chunk_size_px must be > 0", d.Name)
		}
		if d.IsAppend() {
			appendCount++
			appendIdx = i
		} else if d.ChunkSizePx > d.ArraySizePx {
			return nil, zerrs.InvalidArgument("dimension %q: chunk_size_px (%d) exceeds array_size_px (%d)", d.Name, d.ChunkSizePx, d.ArraySizePx)
		}
	}
	if appendCount != 1 {
		return nil, zerrs.InvalidArgument("exactly one dimension must be the append (unbounded) axis, found %d", appendCount)
	}
	if appendIdx != 0 {
		return nil, zerrs.InvalidArgument("the append dimension must be outermost, found at index %d", appendIdx)
	}

	p := &Plan{
		dims:         append([]Dimension(nil), dims...),
		elemSize:     elemBytes,
		appendAxis:   0,
		chunkStrides: make([]uint64, n),
	}

	outerProduct := uint64(1)
	for i, d := range dims {
		if i == 0 {
			continue // append axis: no finite chunk stride
		}
		strides, err := ceilDiv(d.ArraySizePx, d.ChunkSizePx)
		if err != nil {
			return nil, err
		}
		p.chunkStrides[i] = strides
		if i < n-2 {
			var overflow bool
			outerProduct, overflow = mulOverflows(outerProduct, d.ArraySizePx)
			if overflow {
				return nil, zerrs.Overflow("product of outer dimension sizes overflows uint64")
			}
		}
	}
	p.outerProduct = outerProduct

	tileBytes, overflow := mulOverflows(dims[n-2].ChunkSizePx, dims[n-1].ChunkSizePx)
	if overflow {
		return nil, zerrs.Overflow("tile size overflows uint64")
	}
	tileBytes, overflow = mulOverflows(tileBytes, elemBytes)
	if overflow {
		return nil, zerrs.Overflow("tile byte size overflows uint64")
	}
	p.tileBytes = tileBytes

	return p, nil
}

func ceilDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, zerrs.InvalidArgument("division by zero chunk size")
	}
	return (a + b - 1) / b, nil
}

func mulOverflows(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	if a > math.MaxUint64/b {
		return 0, true
	}
	return a * b, false
}

// Dims returns the dimension list the plan was built from.
func (p *Plan) Dims() []Dimension { return p.dims }

// ElemSize returns the element byte size the plan was built with.
func (p *Plan) ElemSize() uint64 { return p.elemSize }

// ChunkBytes returns the fixed size, in bytes, of a fully-populated chunk.
func (p *Plan) ChunkBytes() uint64 {
	n := uint64(1)
	for _, d := range p.dims {
		n *= d.ChunkSizePx
	}
	return n * p.elemSize
}

// TileBytes returns the size, in bytes, of a single (y,x) tile contributed
// by one frame to one chunk.
func (p *Plan) TileBytes() uint64 { return p.tileBytes }

// ChunksAlong returns the number of chunks along axis d (meaningless for the
// append axis, whose chunk count grows with the stream).
func (p *Plan) ChunksAlong(axis int) uint64 { return p.chunkStrides[axis] }

// outerCoord decodes frameIdx into an absolute coordinate over every axis
// except the innermost two (the image plane). Index 0 is the (unbounded)
// append coordinate; the rest are decoded most-significant-first exactly as
// restic's row-major chunk indices are.
func (p *Plan) outerCoord(frameIdx uint64) ([]uint64, error) {
	n := len(p.dims)
	coord := make([]uint64, n-2)
	if p.outerProduct == 0 {
		coord[0] = frameIdx
		return coord, nil
	}

	appendCoord := frameIdx / p.outerProduct
	rem := frameIdx % p.outerProduct
	coord[0] = appendCoord

	for i := n - 3; i >= 1; i-- {
		size := p.dims[i].ArraySizePx
		coord[i] = rem % size
		rem /= size
	}
	return coord, nil
}

// FrameToTileLattice is the exported form of outerCoord.
func (p *Plan) FrameToTileLattice(frameIdx uint64) ([]uint64, error) {
	return p.outerCoord(frameIdx)
}

// ChunkLatticeIndex returns the chunk coordinate along axis for the frame at
// frameIdx.
func (p *Plan) ChunkLatticeIndex(frameIdx uint64, axis int) (uint64, error) {
	if axis < 0 || axis >= len(p.dims)-2 {
		return 0, zerrs.InvalidIndex("axis %d out of range for non-image dimensions", axis)
	}
	coord, err := p.outerCoord(frameIdx)
	if err != nil {
		return 0, err
	}
	return coord[axis] / p.dims[axis].ChunkSizePx, nil
}

// ChunkInternalOffset returns the byte offset, within a single chunk, at
// which frameIdx's tile row begins, verified against the original
// implementation's unit tests.
func (p *Plan) ChunkInternalOffset(frameIdx uint64) (uint64, error) {
	coord, err := p.outerCoord(frameIdx)
	if err != nil {
		return 0, err
	}

	n := len(p.dims)
	stride := p.tileBytes
	offset := uint64(0)
	for i := n - 3; i >= 0; i-- {
		pos := coord[i] % p.dims[i].ChunkSizePx
		offset += pos * stride
		stride *= p.dims[i].ChunkSizePx
	}
	if offset >= p.ChunkBytes() {
		return 0, zerrs.Fatal("chunk internal offset %d exceeds chunk size %d", offset, p.ChunkBytes())
	}
	return offset, nil
}

// TileGroupOffset returns the base chunk-count offset, among the chunks
// sharing the frame's non-append outer coordinate, at which this frame's
// tiles land. It is expressed in units of whole (y,x) chunks,
// not bytes: it is the starting index, in the flattened non-append chunk
// lattice, of the chunk-group this frame belongs to.
func (p *Plan) TileGroupOffset(frameIdx uint64) (uint64, error) {
	coord, err := p.outerCoord(frameIdx)
	if err != nil {
		return 0, err
	}

	n := len(p.dims)
	imageChunks := p.chunkStrides[n-2] * p.chunkStrides[n-1]

	stride := imageChunks
	offset := uint64(0)
	for i := n - 3; i >= 1; i-- { // skip the append axis (index 0)
		chunkIdx := coord[i] / p.dims[i].ChunkSizePx
		offset += chunkIdx * stride
		stride *= p.chunkStrides[i]
	}
	return offset, nil
}

// ChunkFlatIndex flattens a per-axis chunk coordinate (covering every axis
// except the append axis, including the two image axes) into the row-major
// index used by ShardIndexForChunk/ShardInternalIndex. coord must have
// len(dims)-1 entries, ordered the same as Dims()[1:].
func (p *Plan) ChunkFlatIndex(coord []uint64) (uint64, error) {
	n := len(p.dims)
	if len(coord) != n-1 {
		return 0, zerrs.InvalidArgument("expected %d chunk coordinates, got %d", n-1, len(coord))
	}
	idx := uint64(0)
	for i := 0; i < n-1; i++ {
		axis := i + 1
		if coord[i] >= p.chunkStrides[axis] {
			return 0, zerrs.InvalidIndex("chunk coordinate %d out of range on axis %q (have %d chunks)", coord[i], p.dims[axis].Name, p.chunkStrides[axis])
		}
		idx = idx*p.chunkStrides[axis] + coord[i]
	}
	return idx, nil
}

// shardStrides returns, per non-append axis, the number of shards
// along that axis.
func (p *Plan) shardStrides() []uint64 {
	n := len(p.dims)
	out := make([]uint64, n-1)
	for i := 1; i < n; i++ {
		shardSize := p.dims[i].ShardSizeChunks
		if shardSize == 0 {
			shardSize = 1
		}
		strides, _ := ceilDiv(p.chunkStrides[i], shardSize)
		out[i-1] = strides
	}
	return out
}

// decodeChunkCoord turns a flat chunk index (as produced by ChunkFlatIndex)
// back into a per-axis chunk coordinate over the non-append axes.
func (p *Plan) decodeChunkCoord(flatChunkIndex uint64) []uint64 {
	n := len(p.dims)
	coord := make([]uint64, n-1)
	rem := flatChunkIndex
	for i := n - 2; i >= 0; i-- {
		axis := i + 1
		stride := p.chunkStrides[axis]
		coord[i] = rem % stride
		rem /= stride
	}
	return coord
}

// DecodeChunkCoord is the exported form of decodeChunkCoord: it turns a flat
// chunk index (as produced by ChunkFlatIndex) back into a per-axis chunk
// coordinate over the non-append axes, in the same order as Dims()[1:].
func (p *Plan) DecodeChunkCoord(flatChunkIndex uint64) []uint64 {
	return p.decodeChunkCoord(flatChunkIndex)
}

// TShardSize returns the number of append-axis chunks aggregated into one
// shard along the append axis (1 when the append axis is unsharded).
func (p *Plan) TShardSize() uint64 {
	s := p.dims[0].ShardSizeChunks
	if s == 0 {
		return 1
	}
	return s
}

// TShardIndex returns the shard coordinate along the append axis containing
// the append-axis chunk at tChunkIdx.
func (p *Plan) TShardIndex(tChunkIdx uint64) uint64 {
	return tChunkIdx / p.TShardSize()
}

// nonAppendShardCount is the total number of distinct shard tiles across the
// non-append axes alone, i.e. the number of shards one append-axis chunk's
// worth of chunks is spread across.
func (p *Plan) nonAppendShardCount() uint64 {
	total := uint64(1)
	for _, s := range p.shardStrides() {
		total *= s
	}
	return total
}

// ShardIndexForChunk returns the row-major index of the shard containing the
// chunk at append-axis chunk index tChunkIdx and non-append flat index
// flatChunkIndex, across every axis including the append axis: the append
// shard coordinate is the most-significant component, matching the key
// layout's outermost c{t_shard} path segment (spec §4.6).
func (p *Plan) ShardIndexForChunk(tChunkIdx, flatChunkIndex uint64) (uint64, error) {
	nonT, err := p.nonAppendShardIndex(flatChunkIndex)
	if err != nil {
		return 0, err
	}
	return p.TShardIndex(tChunkIdx)*p.nonAppendShardCount() + nonT, nil
}

// nonAppendShardIndex is ShardIndexForChunk's non-append-axis component.
func (p *Plan) nonAppendShardIndex(flatChunkIndex uint64) (uint64, error) {
	chunkCoord := p.decodeChunkCoord(flatChunkIndex)
	n := len(p.dims)
	idx := uint64(0)
	shardStrides := p.shardStrides()
	for i := 0; i < n-1; i++ {
		axis := i + 1
		shardSize := p.dims[axis].ShardSizeChunks
		if shardSize == 0 {
			shardSize = 1
		}
		idx = idx*shardStrides[i] + chunkCoord[i]/shardSize
	}
	return idx, nil
}

// ShardCoordForChunk returns the per-axis shard coordinate (over the
// non-append axes, same order as Dims()[1:]) of the shard containing the
// chunk at flatChunkIndex. Used to build a shard's file/object key; see
// ShardIndexForChunk for the flattened form used to group chunks together.
func (p *Plan) ShardCoordForChunk(flatChunkIndex uint64) []uint64 {
	chunkCoord := p.decodeChunkCoord(flatChunkIndex)
	n := len(p.dims)
	coord := make([]uint64, n-1)
	for i := 0; i < n-1; i++ {
		axis := i + 1
		shardSize := p.dims[axis].ShardSizeChunks
		if shardSize == 0 {
			shardSize = 1
		}
		coord[i] = chunkCoord[i] / shardSize
	}
	return coord
}

// ShardInternalIndex returns the row-major index of the chunk at
// (tChunkIdx, flatChunkIndex) within its shard's local chunk lattice, the
// append-axis-local position being the most-significant component (spec
// §4.6's shard-local chunk lattice covers every axis, the append axis
// included).
func (p *Plan) ShardInternalIndex(tChunkIdx, flatChunkIndex uint64) (uint64, error) {
	nonT, err := p.nonAppendShardInternalIndex(flatChunkIndex)
	if err != nil {
		return 0, err
	}
	tLocal := tChunkIdx % p.TShardSize()
	return tLocal*p.nonAppendChunksPerShard() + nonT, nil
}

// nonAppendShardInternalIndex is ShardInternalIndex's non-append-axis
// component: the chunk's position within one append-axis chunk's slice of
// the shard.
func (p *Plan) nonAppendShardInternalIndex(flatChunkIndex uint64) (uint64, error) {
	chunkCoord := p.decodeChunkCoord(flatChunkIndex)
	n := len(p.dims)
	idx := uint64(0)
	for i := 0; i < n-1; i++ {
		axis := i + 1
		shardSize := p.dims[axis].ShardSizeChunks
		if shardSize == 0 {
			shardSize = 1
		}
		idx = idx*shardSize + chunkCoord[i]%shardSize
	}
	return idx, nil
}

// ChunksPerShard returns the fixed slot count of every shard, across every
// axis including the append axis (spec §4.6: "each shard aggregates
// ∏ shard_size_chunks[d] chunks" over all d).
func (p *Plan) ChunksPerShard() uint64 {
	return p.TShardSize() * p.nonAppendChunksPerShard()
}

// nonAppendChunksPerShard is the slot count contributed by the non-append
// axes alone: how many chunks one append-axis chunk's worth of a shard
// holds.
func (p *Plan) nonAppendChunksPerShard() uint64 {
	n := len(p.dims)
	total := uint64(1)
	for i := 1; i < n; i++ {
		shardSize := p.dims[i].ShardSizeChunks
		if shardSize == 0 {
			shardSize = 1
		}
		total *= shardSize
	}
	return total
}
