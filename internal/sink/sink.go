// Package sink implements write-once, append-only byte containers,
// uniformly over a filesystem file or an S3 object. The write/flush/
// finalize contract with non-decreasing contiguous offsets is modeled on
// restic's backend.Backend.Save, narrowed from "save a whole blob" to
// "append contiguous byte ranges to one object over its lifetime".
package sink

import "context"

// Sink is an abstract write-only byte container identified by a key.
type Sink interface {
	// Write appends bytes starting at offset. offset must equal the sum of
	// the lengths of all previous successful Write calls on this Sink;
	// gaps are rejected.
	Write(ctx context.Context, offset int64, p []byte) error

	// Flush forces durability of everything written so far.
	Flush(ctx context.Context) error

	// Finalize closes the sink. For multipart S3 uploads this completes
	// the upload with the accumulated parts; for files it closes the
	// handle. No further Write calls are accepted afterward.
	Finalize(ctx context.Context) error
}
