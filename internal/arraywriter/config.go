// Package arraywriter implements the v2 and v3 array writers: the
// component that turns a stream of frames into chunk buffers, flush jobs,
// shard indices, and per-array metadata. The two versions share the
// frame-to-buffer bookkeeping (Writer) and differ only in how a completed
// chunk is persisted and how array metadata is shaped, modeled here as the
// backend interface rather than a base class with version-specific
// overrides.
package arraywriter

import (
	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dimension"
	"github.com/acquire-zarr/zarrstream/internal/dtype"
)

// State is the lifecycle of one array writer.
type State int

const (
	Configured State = iota
	Armed
	Running
	Finalizing
	Closed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Armed:
		return "armed"
	case Running:
		return "running"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config is the immutable description of one array (one pyramid level).
type Config struct {
	Dimensions    []dimension.Dimension
	DType         dtype.Kind
	LevelOfDetail int
	Compression   chunkbuf.CompressionParams
}
