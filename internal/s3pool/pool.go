// Package s3pool implements a bounded S3 connection pool, grounded on the
// original implementation's connection-pool source (a condition-variable-
// gated stack of client handles) and rebuilt on top of restic's minio-go
// client instead of the AWS/minio-cpp SDKs the original used. The pool
// itself is only a bounded-concurrency gate: minio.Client is safe for
// concurrent use, so every handle wraps the *same* client and the pool's
// job is purely to cap how many requests are in flight at once, the way
// restic's own channel-based semaphore gates concurrent backend operations.
package s3pool

import (
	"context"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/acquire-zarr/zarrstream/internal/zerrs"
)

// Config names the S3-compatible endpoint and credentials.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseTLS          bool
}

// Connection is a checked-out handle to the pool's shared client.
type Connection struct {
	Client *minio.Client
}

// Pool holds n pre-built connections and gates concurrent use of them with a
// buffered channel acting as the condition variable of the original design.
type Pool struct {
	cfg   Config
	conns chan *Connection

	mu       sync.Mutex
	stopping bool
}

// New builds a pool of n equivalent connections against cfg.
func New(n int, cfg Config) (*Pool, error) {
	if n <= 0 {
		return nil, zerrs.InvalidArgument("S3 connection pool size must be positive")
	}
	if cfg.Endpoint == "" {
		return nil, zerrs.InvalidArgument("S3 endpoint must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, zerrs.S3Errorf(err, "minio.New")
	}

	p := &Pool{cfg: cfg, conns: make(chan *Connection, n)}
	for i := 0; i < n; i++ {
		p.conns <- &Connection{Client: client}
	}
	return p, nil
}

// Acquire blocks until a connection is available or the pool is shutting
// down, in which case it returns (nil, false).
func (p *Pool) Acquire(ctx context.Context) (*Connection, bool) {
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, false
		}
		return conn, true
	case <-ctx.Done():
		return nil, false
	}
}

// Release returns conn to the pool and wakes one waiter.
func (p *Pool) Release(conn *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return
	}
	p.conns <- conn
}

// Shutdown stops accepting acquisitions; any blocked Acquire calls observe
// the channel close and return the absence sentinel.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return
	}
	p.stopping = true
	close(p.conns)
}

// BucketExists probes bucket existence at configuration time.
func (p *Pool) BucketExists(ctx context.Context, bucket string) (bool, error) {
	conn, ok := p.Acquire(ctx)
	if !ok {
		return false, zerrs.S3Error(context.Canceled)
	}
	defer p.Release(conn)

	found, err := conn.Client.BucketExists(ctx, bucket)
	if err != nil {
		return false, zerrs.S3Errorf(err, "BucketExists(%s)", bucket)
	}
	return found, nil
}

// ObjectExists probes object existence at configuration time.
func (p *Pool) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	conn, ok := p.Acquire(ctx)
	if !ok {
		return false, zerrs.S3Error(context.Canceled)
	}
	defer p.Release(conn)

	_, err := conn.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, zerrs.S3Errorf(err, "StatObject(%s/%s)", bucket, key)
	}
	return true, nil
}

// EnsureBucket creates bucket if it does not already exist, the way the
// teacher's s3.Create does (internal/backend/s3/s3.go).
func (p *Pool) EnsureBucket(ctx context.Context, bucket string) error {
	found, err := p.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	conn, ok := p.Acquire(ctx)
	if !ok {
		return zerrs.S3Error(context.Canceled)
	}
	defer p.Release(conn)

	if err := conn.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return zerrs.S3Errorf(err, "MakeBucket(%s)", bucket)
	}
	return nil
}
