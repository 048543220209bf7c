package zarrstream

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dimension"
	"github.com/acquire-zarr/zarrstream/internal/dtype"
	"github.com/acquire-zarr/zarrstream/internal/s3pool"
	"github.com/acquire-zarr/zarrstream/internal/zerrs"
)

// Dimension describes one axis of an array. ArraySizePx of 0
// marks the append (unbounded) axis; exactly one dimension must be the
// append axis, and it must be outermost.
type Dimension struct {
	Name            string
	Kind            string // "space", "channel", "time", "other" ("" defaults to "space")
	ArraySizePx     uint64
	ChunkSizePx     uint64
	ShardSizeChunks uint64 // 0 or 1 means unsharded; ignored for Zarr v2
}

// CompressionParams selects the Blosc-style codec/clevel/shuffle contract.
// A zero value (Codec == "") disables compression.
type CompressionParams struct {
	Codec   string // "blosc-lz4" or "blosc-zstd"
	Clevel  int    // 0..9
	Shuffle string // "none", "byte", "bit"
}

// Settings is the document validated once by Validate and threaded through
// NewStream. It is a plain struct, not a global registry: the
// caller builds one, validates it, and owns it for the stream's lifetime.
type Settings struct {
	// StorePath is either a filesystem directory or an "s3://bucket/prefix"
	// URI.
	StorePath string

	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UseTLS          bool

	Dimensions  []Dimension
	ElementType string // "uint8", "uint16", ..., "float64"
	Compression CompressionParams

	// Multiscale enables the frame scaler chain; MaxLayers
	// bounds the total number of pyramid levels, level 0 included
	// (0 or less defaults to 2; ignored when Multiscale is false).
	Multiscale bool
	MaxLayers  int

	// ExternalMetadata is an opaque caller-supplied JSON object whose
	// top-level keys are merged into the group-level attributes document,
	// replacing keys of the same name. The merged document is re-encoded, so
	// the caller's whitespace and key order are not kept.
	ExternalMetadata json.RawMessage

	// ThreadPoolSize is the fixed worker count; 0 means
	// hardware concurrency.
	ThreadPoolSize int
	// S3PoolSize is the number of pooled S3 client handles;
	// ignored for a local StorePath. 0 defaults to 4.
	S3PoolSize int
}

// resolved is the validated, immutable form of Settings consumed by the
// stream façade and its writer chain.
type resolved struct {
	localRoot string // "" when the store is S3

	s3Bucket string
	s3Prefix string
	s3Cfg    s3pool.Config
	s3Pool   int

	dims        []dimension.Dimension
	elem        dtype.Kind
	compression chunkbuf.CompressionParams

	multiscale bool
	maxLayers  int

	externalMetadata json.RawMessage
	threadPoolSize   int
}

// Validate checks every field of s: exactly one append dimension,
// outermost; chunk sizes > 0; shard sizes >= 0; innermost two axes are the
// image axes. It resolves the checked settings into
// the internal types the writer chain is built from. No I/O is performed
// here beyond what dimension.NewPlan itself does (pure arithmetic).
func (s Settings) Validate() (*resolved, error) {
	if s.StorePath == "" {
		return nil, zerrs.InvalidArgument("store_path must not be empty")
	}
	if len(s.Dimensions) < 3 {
		return nil, zerrs.InvalidArgument("need at least one non-image dimension plus the two image axes, got %d", len(s.Dimensions))
	}

	elem, err := dtype.Parse(s.ElementType)
	if err != nil {
		return nil, err
	}

	dims := make([]dimension.Dimension, len(s.Dimensions))
	for i, d := range s.Dimensions {
		kind, err := parseDimKind(d.Kind)
		if err != nil {
			return nil, err
		}
		dims[i] = dimension.Dimension{
			Name:            d.Name,
			Kind:            kind,
			ArraySizePx:     d.ArraySizePx,
			ChunkSizePx:     d.ChunkSizePx,
			ShardSizeChunks: d.ShardSizeChunks,
		}
	}
	// NewPlan performs the authoritative structural validation (append
	// axis count/position, chunk sizes, overflow); run it once here so
	// configuration errors surface before any writer is built.
	if _, err := dimension.NewPlan(dims, elem.Size()); err != nil {
		return nil, err
	}

	compression := chunkbuf.CompressionParams{
		Codec:   s.Compression.Codec,
		Clevel:  s.Compression.Clevel,
		Shuffle: chunkbuf.Shuffle(s.Compression.Shuffle),
	}
	if _, err := chunkbuf.NewCodec(compression, int(elem.Size())); err != nil {
		return nil, err
	}

	maxLayers := s.MaxLayers
	if s.Multiscale && maxLayers <= 0 {
		maxLayers = 2
	}

	r := &resolved{
		dims:             dims,
		elem:             elem,
		compression:      compression,
		multiscale:       s.Multiscale,
		maxLayers:        maxLayers,
		externalMetadata: s.ExternalMetadata,
		threadPoolSize:   s.ThreadPoolSize,
	}

	if after, ok := strings.CutPrefix(s.StorePath, "s3://"); ok {
		parts := strings.SplitN(after, "/", 2)
		if parts[0] == "" {
			return nil, zerrs.InvalidArgument("s3 store_path %q is missing a bucket name", s.StorePath)
		}
		r.s3Bucket = parts[0]
		if len(parts) == 2 {
			r.s3Prefix = parts[1]
		}
		if s.S3Endpoint == "" {
			return nil, zerrs.InvalidArgument("s3_endpoint must be set for an s3:// store_path")
		}
		r.s3Cfg = s3pool.Config{
			Endpoint:        s.S3Endpoint,
			AccessKeyID:     s.S3AccessKeyID,
			SecretAccessKey: s.S3SecretAccessKey,
			BucketName:      r.s3Bucket,
			UseTLS:          s.S3UseTLS,
		}
		r.s3Pool = s.S3PoolSize
		if r.s3Pool <= 0 {
			r.s3Pool = 4
		}
	} else {
		r.localRoot = s.StorePath
	}

	return r, nil
}

func parseDimKind(name string) (dimension.Kind, error) {
	switch name {
	case "", "space":
		return dimension.KindSpace, nil
	case "channel":
		return dimension.KindChannel, nil
	case "time":
		return dimension.KindTime, nil
	case "other":
		return dimension.KindOther, nil
	default:
		return 0, zerrs.InvalidArgument("unknown dimension kind %q", name)
	}
}
