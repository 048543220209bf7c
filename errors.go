// Package zarrstream is a streaming write engine for the Zarr array-storage
// format (v2 and v3): it accepts a sequence of equally-shaped image frames
// and persists them as a chunked, optionally sharded, optionally compressed,
// optionally multi-resolution Zarr dataset on a local filesystem or an
// S3-compatible object store.
package zarrstream

import "github.com/acquire-zarr/zarrstream/internal/zerrs"

// Error category constructors, re-exported for callers outside this module.
var (
	InvalidArgument   = zerrs.InvalidArgument
	InvalidIndex      = zerrs.InvalidIndex
	Overflow          = zerrs.Overflow
	NotYetImplemented = zerrs.NotYetImplemented
	Internal          = zerrs.Internal
)

// IsFatal reports whether err represents a fatal invariant violation: a bug
// in the engine's own index arithmetic or state machine rather than caller
// misuse or an environment failure.
func IsFatal(err error) bool { return zerrs.IsFatal(err) }

// Is reports whether err carries the named category (e.g. "IoError",
// "S3Error") anywhere in its chain.
func Is(err error, category string) bool { return zerrs.Is(err, category) }
