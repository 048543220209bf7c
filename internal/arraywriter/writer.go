package arraywriter

import (
	"context"
	"sync"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dimension"
	"github.com/acquire-zarr/zarrstream/internal/store"
	"github.com/acquire-zarr/zarrstream/internal/workerpool"
	"github.com/acquire-zarr/zarrstream/internal/zerrs"
	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// backend supplies the only two behaviors that differ between Zarr
// versions: how a full chunk is persisted, and how the array's
// metadata document is written. Rollover itself, the point when a chunk
// stops accepting frames, is identical between versions,
// since sharding only changes what happens to a chunk after it is full.
type backend interface {
	// flushSlab takes ownership of every buffer in a just-completed slab and
	// is responsible for getting their bytes durably written, however that
	// differs by version (independent files for v2, shard aggregation for
	// v3).
	flushSlab(ctx context.Context, w *Writer, tChunkIdx uint64, buffers map[uint64]*chunkbuf.Buffer)
	writeMetadata(ctx context.Context, w *Writer) error
}

// Writer accumulates frames into per-chunk buffers and dispatches flush jobs
// to a shared thread pool. One Writer exists per pyramid
// level; the stream façade owns the whole chain.
type Writer struct {
	Config Config

	plan    *dimension.Plan
	pool    *workerpool.Pool
	bufPool *chunkbuf.Pool
	codec   chunkbuf.Codec
	store   store.Store
	backend backend
	log     zlog.Logger

	chunksInY uint64
	chunksInX uint64

	mu          sync.Mutex
	state       State
	haveSlab    bool
	currentSlab uint64
	buffers     map[uint64]*chunkbuf.Buffer
	framesSeen  uint64
	lastFrame   uint64

	jobsWG sync.WaitGroup

	onError func(error)
}

// New builds a writer and returns it in the Armed state.
func New(cfg Config, pool *workerpool.Pool, st store.Store, log zlog.Logger, version int, onError func(error)) (*Writer, error) {
	plan, err := dimension.NewPlan(cfg.Dimensions, cfg.DType.Size())
	if err != nil {
		return nil, err
	}
	codec, err := chunkbuf.NewCodec(cfg.Compression, int(cfg.DType.Size()))
	if err != nil {
		return nil, err
	}

	n := len(cfg.Dimensions)
	w := &Writer{
		Config:    cfg,
		plan:      plan,
		pool:      pool,
		bufPool:   chunkbuf.NewPool(plan.ChunkBytes(), 0, 64),
		codec:     codec,
		store:     st,
		log:       log.With("array-writer"),
		chunksInY: plan.ChunksAlong(n - 2),
		chunksInX: plan.ChunksAlong(n - 1),
		buffers:   make(map[uint64]*chunkbuf.Buffer),
		state:     Configured,
		onError:   onError,
	}
	switch version {
	case 2:
		w.backend = v2Backend{}
	case 3:
		w.backend = &v3Backend{shards: make(map[uint64]*shardState)}
	default:
		return nil, zerrs.InvalidArgument("unknown zarr version %d", version)
	}
	w.state = Armed
	return w, nil
}

// Append deposits one frame's tiles into their chunk buffers, rolling over
// to a fresh slab when the append dimension crosses a chunk boundary (spec
// §4.5 steps 1-3 and "Rollover").
func (w *Writer) Append(ctx context.Context, frameIdx uint64, frame []byte) error {
	w.mu.Lock()
	if w.state == Armed {
		w.state = Running
	}
	if w.state != Running {
		w.mu.Unlock()
		return zerrs.InvalidArgument("array writer is not running (state %s)", w.state)
	}
	w.mu.Unlock()

	elem := w.plan.ElemSize()

	tChunkIdx, err := w.plan.ChunkLatticeIndex(frameIdx, 0)
	if err != nil {
		return err
	}
	internalOffset, err := w.plan.ChunkInternalOffset(frameIdx)
	if err != nil {
		return err
	}
	tileGroupBase, err := w.plan.TileGroupOffset(frameIdx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if !w.haveSlab {
		w.haveSlab = true
		w.currentSlab = tChunkIdx
	} else if tChunkIdx != w.currentSlab {
		if err := w.rolloverLocked(ctx); err != nil {
			w.mu.Unlock()
			return err
		}
		w.currentSlab = tChunkIdx
	}
	w.framesSeen++
	w.lastFrame = frameIdx
	w.mu.Unlock()

	dims := w.Config.Dimensions
	n := len(dims)
	arrayH := dims[n-2].ArraySizePx
	arrayW := dims[n-1].ArraySizePx
	chunkH := dims[n-2].ChunkSizePx
	chunkW := dims[n-1].ChunkSizePx

	for yChunk := uint64(0); yChunk < w.chunksInY; yChunk++ {
		yStart := yChunk * chunkH
		yCount := chunkH
		if yStart+yCount > arrayH {
			yCount = arrayH - yStart
		}
		for xChunk := uint64(0); xChunk < w.chunksInX; xChunk++ {
			xStart := xChunk * chunkW
			xCount := chunkW
			if xStart+xCount > arrayW {
				xCount = arrayW - xStart
			}

			flatIdx := tileGroupBase + yChunk*w.chunksInX + xChunk
			buf := w.bufferFor(flatIdx)

			for row := uint64(0); row < yCount; row++ {
				srcOff := ((yStart+row)*arrayW + xStart) * elem
				dstOff := internalOffset + (row*chunkW)*elem
				n := xCount * elem
				buf.WriteAt(dstOff, frame[srcOff:srcOff+n])
			}
		}
	}
	return nil
}

// bufferFor returns the buffer for flatIdx, allocating one from the pool on
// first touch within the current slab.
func (w *Writer) bufferFor(flatIdx uint64) *chunkbuf.Buffer {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf, ok := w.buffers[flatIdx]
	if !ok {
		buf = w.bufPool.Get()
		w.buffers[flatIdx] = buf
	}
	return buf
}

// rolloverLocked flushes every buffer in the current slab and clears the
// map for the next one. Caller holds w.mu.
func (w *Writer) rolloverLocked(ctx context.Context) error {
	tChunkIdx := w.currentSlab
	buffers := w.buffers
	w.buffers = make(map[uint64]*chunkbuf.Buffer)

	w.backend.flushSlab(ctx, w, tChunkIdx, buffers)
	return nil
}

// Stop drains in-flight jobs, flushes the partial final slab, and writes
// array metadata.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Running && w.state != Armed {
		w.mu.Unlock()
		return zerrs.InvalidArgument("array writer cannot stop from state %s", w.state)
	}
	w.state = Finalizing
	var err error
	if w.haveSlab {
		err = w.rolloverLocked(ctx)
		w.haveSlab = false
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}

	w.jobsWG.Wait()

	if err := w.backend.writeMetadata(ctx, w); err != nil {
		return err
	}

	w.mu.Lock()
	w.state = Armed
	w.mu.Unlock()
	return nil
}

// Shape returns the array's current shape: the append axis extent is
// derived from the highest frame index seen so far, since that axis grows
// as frames arrive.
func (w *Writer) Shape() []uint64 {
	dims := w.Config.Dimensions
	shape := make([]uint64, len(dims))
	coord, _ := w.plan.FrameToTileLattice(w.lastFrame)
	shape[0] = coord[0] + 1
	for i := 1; i < len(dims)-2; i++ {
		shape[i] = dims[i].ArraySizePx
	}
	shape[len(dims)-2] = dims[len(dims)-2].ArraySizePx
	shape[len(dims)-1] = dims[len(dims)-1].ArraySizePx
	return shape
}

func (w *Writer) ChunkShape() []uint64 {
	dims := w.Config.Dimensions
	shape := make([]uint64, len(dims))
	for i, d := range dims {
		shape[i] = d.ChunkSizePx
	}
	return shape
}

func (w *Writer) Plan() *dimension.Plan { return w.plan }
