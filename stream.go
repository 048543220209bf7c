package zarrstream

import (
	"context"
	"math"
	"strconv"
	"sync"

	_ "go.uber.org/automaxprocs"

	"github.com/acquire-zarr/zarrstream/internal/arraywriter"
	"github.com/acquire-zarr/zarrstream/internal/dimension"
	"github.com/acquire-zarr/zarrstream/internal/metadata"
	"github.com/acquire-zarr/zarrstream/internal/s3pool"
	"github.com/acquire-zarr/zarrstream/internal/scaler"
	"github.com/acquire-zarr/zarrstream/internal/store"
	"github.com/acquire-zarr/zarrstream/internal/workerpool"
	"github.com/acquire-zarr/zarrstream/internal/zerrs"
	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// State is the Stream façade's lifecycle.
type State int

const (
	Unarmed State = iota
	Armed
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Unarmed:
		return "unarmed"
	case Armed:
		return "armed"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// level is one pyramid level's writer, plus the scaler feeding the next
// level and that level's own independent frame counter (a paired/averaged
// frame only arrives once every two input frames, so each level advances
// its append axis at its own rate).
type level struct {
	dims     []dimension.Dimension
	writer   *arraywriter.Writer
	scaler   *scaler.Scaler // nil for the last level
	frameIdx uint64
}

// Stream is the top-level façade: one validated settings document, a
// thread pool, an optional S3 connection pool, the writer chain it feeds,
// and the monotonic frame counter driving level 0.
type Stream struct {
	mu          sync.Mutex
	state       State
	settings    *resolved
	zarrVersion int
	log         zlog.Logger

	pool   *workerpool.Pool
	s3Pool *s3pool.Pool
	store  store.Store

	levels   []*level
	frameIdx uint64

	lastErr error
}

// NewStream validates settings, probes S3 (if applicable), and builds the
// full writer/scaler chain in the Armed state, ready for Append.
func NewStream(settings Settings, zarrVersion int, log zlog.Logger) (*Stream, error) {
	if zarrVersion != 2 && zarrVersion != 3 {
		return nil, zerrs.InvalidArgument("unsupported zarr version %d", zarrVersion)
	}
	r, err := settings.Validate()
	if err != nil {
		return nil, err
	}

	s := &Stream{
		settings:    r,
		zarrVersion: zarrVersion,
		log:         log.With("stream"),
	}

	s.pool = workerpool.New(r.threadPoolSize, 0, s.handleJobError, log)

	if r.s3Bucket != "" {
		s3Pool, err := s3pool.New(r.s3Pool, r.s3Cfg)
		if err != nil {
			s.pool.AwaitStop()
			return nil, err
		}
		found, err := s3Pool.BucketExists(context.Background(), r.s3Bucket)
		if err != nil {
			s.pool.AwaitStop()
			return nil, err
		}
		if !found {
			s.pool.AwaitStop()
			return nil, zerrs.InvalidArgument("s3 bucket %q does not exist", r.s3Bucket)
		}
		s.s3Pool = s3Pool
		s.store = store.S3{Pool: s3Pool, Bucket: r.s3Bucket, Prefix: r.s3Prefix, Log: s.log}
	} else {
		s.store = store.Local{Root: r.localRoot}
	}

	if err := s.buildLevels(); err != nil {
		s.teardownPools()
		return nil, err
	}

	s.state = Armed
	return s, nil
}

func (s *Stream) handleJobError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.log.Errorf("job failed: %v", err)
}

func (s *Stream) teardownPools() {
	s.pool.AwaitStop()
	if s.s3Pool != nil {
		s.s3Pool.Shutdown()
	}
}

// buildLevels constructs the writer chain: level 0 at full resolution, then
// one additional level per scaler step while the next level's image extent
// stays >= 1 in both axes, bounded by settings.MaxLayers.
func (s *Stream) buildLevels() error {
	r := s.settings
	dims := r.dims
	n := len(dims)

	s.levels = nil
	levelIdx := 0
	for {
		cfg := arraywriter.Config{
			Dimensions:    dims,
			DType:         r.elem,
			LevelOfDetail: levelIdx,
			Compression:   r.compression,
		}
		w, err := arraywriter.New(cfg, s.pool, s.store, s.log, s.zarrVersion, s.handleJobError)
		if err != nil {
			return err
		}
		lvl := &level{dims: dims, writer: w}
		s.levels = append(s.levels, lvl)

		if !r.multiscale || len(s.levels) >= r.maxLayers {
			break
		}

		width, height := dims[n-1].ArraySizePx, dims[n-2].ArraySizePx
		outW, outH := (width+1)/2, (height+1)/2
		if outW < 1 || outH < 1 || (outW == width && outH == height) {
			break
		}

		lvl.scaler = scaler.New(r.elem, width, height)

		nextDims := make([]dimension.Dimension, n)
		copy(nextDims, dims)
		nextDims[n-1].ArraySizePx = outW
		nextDims[n-2].ArraySizePx = outH
		if nextDims[n-1].ChunkSizePx > outW {
			nextDims[n-1].ChunkSizePx = outW
		}
		if nextDims[n-2].ChunkSizePx > outH {
			nextDims[n-2].ChunkSizePx = outH
		}

		dims = nextDims
		levelIdx++
	}
	return nil
}

// Append dispatches one frame to level 0 and, when multiscale is enabled,
// cascades averaged frames down the scaler chain.
func (s *Stream) Append(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	if s.state == Armed {
		s.state = Running
	}
	if s.state != Running {
		s.mu.Unlock()
		return zerrs.InvalidArgument("stream is not running (state %s)", s.state)
	}
	if s.lastErr != nil {
		err := s.lastErr
		s.mu.Unlock()
		return err
	}
	frameIdx := s.frameIdx
	s.frameIdx++
	s.mu.Unlock()

	n := len(s.settings.dims)
	want := s.settings.dims[n-1].ArraySizePx * s.settings.dims[n-2].ArraySizePx * s.settings.elem.Size()
	if uint64(len(frame)) != want {
		return zerrs.InvalidArgument("frame is %d bytes, expected %d", len(frame), want)
	}

	return s.appendToLevel(ctx, 0, frameIdx, frame)
}

func (s *Stream) appendToLevel(ctx context.Context, i int, frameIdx uint64, frame []byte) error {
	lvl := s.levels[i]
	if err := lvl.writer.Append(ctx, frameIdx, frame); err != nil {
		return err
	}
	if lvl.scaler == nil {
		return nil
	}

	reduced, ok, err := lvl.scaler.Push(frame)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	next := s.levels[i+1]
	nextIdx := next.frameIdx
	next.frameIdx++
	return s.appendToLevel(ctx, i+1, nextIdx, reduced)
}

// Stop drains in-flight jobs, flushes every partial chunk and scaler tail,
// writes per-level and group metadata, and rearms the stream for another
// run against a fresh writer chain: the thread pool and S3 pool survive,
// but each level's writer/scaler is rebuilt so a restart begins a new
// dataset rather than resuming frame numbering into the one just closed.
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Running && s.state != Armed {
		s.mu.Unlock()
		return zerrs.InvalidArgument("stream cannot stop from state %s", s.state)
	}
	s.mu.Unlock()

	for i := 0; i < len(s.levels)-1; i++ {
		lvl := s.levels[i]
		if lvl.scaler == nil {
			continue
		}
		frame, ok := lvl.scaler.Flush()
		if !ok {
			continue
		}
		if err := s.appendToLevel(ctx, i+1, s.levels[i+1].frameIdx, frame); err != nil {
			return err
		}
		s.levels[i+1].frameIdx++
	}

	for _, lvl := range s.levels {
		if err := lvl.writer.Stop(ctx); err != nil {
			return err
		}
	}

	if err := s.writeGroupMetadata(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.frameIdx = 0
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.buildLevels(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Armed
	s.mu.Unlock()
	return nil
}

// Close permanently shuts down the stream's thread pool and S3 pool. No
// further Append/Stop calls are valid afterward.
func (s *Stream) Close() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.teardownPools()
}

func axisKind(k dimension.Kind) string {
	switch k {
	case dimension.KindTime:
		return "time"
	case dimension.KindChannel:
		return "channel"
	default:
		return "space"
	}
}

// writeGroupMetadata writes the store-root markers and the OME-NGFF
// multiscales document merged with any caller-supplied external metadata.
func (s *Stream) writeGroupMetadata(ctx context.Context) error {
	dims := s.settings.dims
	n := len(dims)

	axes := make([]metadata.AxisInfo, n)
	for i, d := range dims {
		axes[i] = metadata.AxisInfo{Name: d.Name, Kind: axisKind(d.Kind)}
	}

	levels := make([]metadata.Level, len(s.levels))
	for i := range s.levels {
		scale := make([]float64, n)
		for a := range scale {
			scale[a] = 1.0
		}
		factor := math.Pow(2, float64(i))
		scale[n-1] = factor
		scale[n-2] = factor
		levels[i] = metadata.Level{Path: strconv.Itoa(i), Scale: scale}
	}

	attrs, err := metadata.GroupZAttrs(axes, levels)
	if err != nil {
		return err
	}
	attrs, err = metadata.MergeExternal(attrs, s.settings.externalMetadata)
	if err != nil {
		return err
	}

	if s.zarrVersion == 2 {
		zgroup, err := metadata.ZGroup()
		if err != nil {
			return err
		}
		if err := s.store.WriteAll(ctx, zgroup, ".zgroup"); err != nil {
			return err
		}
		return s.store.WriteAll(ctx, attrs, ".zattrs")
	}

	zarrJSON, err := metadata.ZarrJSONGroup()
	if err != nil {
		return err
	}
	if err := s.store.WriteAll(ctx, zarrJSON, "zarr.json"); err != nil {
		return err
	}
	rootGroup, err := metadata.RootGroupJSONV3(attrs)
	if err != nil {
		return err
	}
	return s.store.WriteAll(ctx, rootGroup, "meta", "root.group.json")
}

// LevelInfo is one pyramid level's current shape, for the read-only
// introspection accessor below.
type LevelInfo struct {
	Level      int
	Shape      []uint64
	ChunkShape []uint64
}

// Metadata returns each level's shape so far and its chunk shape, without
// re-parsing anything off disk. The validated settings are not included.
func (s *Stream) Metadata() []LevelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LevelInfo, len(s.levels))
	for i, lvl := range s.levels {
		out[i] = LevelInfo{
			Level:      i,
			Shape:      lvl.writer.Shape(),
			ChunkShape: lvl.writer.ChunkShape(),
		}
	}
	return out
}
