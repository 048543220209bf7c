// Package retry adapts restic's backoff-wrapped backend
// (internal/backend/retry/backend_retry.go, which wraps an entire
// backend.Backend in exponential backoff) to this engine's narrower need:
// retrying one fallible S3 call at a time around the sink and connection
// pool, rather than every Backend method.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// DefaultMaxElapsedTime bounds how long Do keeps retrying a single S3
// operation before giving up.
const DefaultMaxElapsedTime = 30 * time.Second

// Do retries op with exponential backoff until it succeeds, ctx is
// cancelled, or maxElapsed has passed, logging every failed attempt the way
// restic's Report callback does (internal/backend/retry/backend_retry.go).
func Do(ctx context.Context, maxElapsed time.Duration, log zlog.Logger, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	bctx := backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(op, bctx, func(err error, wait time.Duration) {
		attempt++
		log.Warnf("%s: attempt %d failed, retrying in %s: %v", name, attempt, wait, err)
	})
}
