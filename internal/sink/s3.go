package sink

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"

	"github.com/acquire-zarr/zarrstream/internal/retry"
	"github.com/acquire-zarr/zarrstream/internal/s3pool"
	"github.com/acquire-zarr/zarrstream/internal/zerrs"
	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// minPartSize is the smallest part S3 accepts for any part but the last one.
const minPartSize = 5 * 1024 * 1024

// S3Object is a Sink backed by an S3 (or S3-compatible) multipart upload,
// grounded on restic's s3.Backend.Save (internal/backend/s3/s3.go) but
// built on minio's low-level Core API instead of the high-level PutObject,
// since incremental Write calls need to accumulate parts across many calls
// rather than stream a single io.Reader in one shot.
type S3Object struct {
	pool   *s3pool.Pool
	bucket string
	key    string
	log    zlog.Logger

	core       *minio.Core
	uploadID   string
	partNumber int
	parts      []minio.CompletePart

	buf     bytes.Buffer
	written int64
}

// NewS3Object starts a multipart upload for bucket/key. Transient failures
// during setup are retried with backoff,
// grounded on restic's retry-wrapped backend
// (internal/backend/retry/backend_retry.go).
func NewS3Object(ctx context.Context, pool *s3pool.Pool, bucket, key string, log zlog.Logger) (*S3Object, error) {
	conn, ok := pool.Acquire(ctx)
	if !ok {
		return nil, zerrs.S3Error(context.Canceled)
	}
	defer pool.Release(conn)

	core := &minio.Core{Client: conn.Client}
	var uploadID string
	err := retry.Do(ctx, retry.DefaultMaxElapsedTime, log, "NewMultipartUpload", func() error {
		id, err := core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return err
		}
		uploadID = id
		return nil
	})
	if err != nil {
		return nil, zerrs.S3Errorf(err, "NewMultipartUpload(%s/%s)", bucket, key)
	}

	return &S3Object{
		pool:     pool,
		bucket:   bucket,
		key:      key,
		log:      log,
		core:     core,
		uploadID: uploadID,
	}, nil
}

func (s *S3Object) Write(ctx context.Context, offset int64, p []byte) error {
	if offset != s.written {
		return zerrs.InvalidArgument("non-contiguous write to %s/%s: offset %d, expected %d", s.bucket, s.key, offset, s.written)
	}
	s.written += int64(len(p))
	s.buf.Write(p)

	for s.buf.Len() >= minPartSize {
		if err := s.uploadPart(ctx, minPartSize); err != nil {
			return err
		}
	}
	return nil
}

// uploadPart ships the first n bytes of the buffer as the next part.
func (s *S3Object) uploadPart(ctx context.Context, n int) error {
	part := make([]byte, n)
	if _, err := s.buf.Read(part); err != nil {
		return zerrs.IoErrorf(err, "draining upload buffer for %s/%s", s.bucket, s.key)
	}

	s.partNumber++
	var completed minio.CompletePart
	err := retry.Do(ctx, retry.DefaultMaxElapsedTime, s.log, "PutObjectPart", func() error {
		objPart, err := s.core.PutObjectPart(ctx, s.bucket, s.key, s.uploadID, s.partNumber,
			bytes.NewReader(part), int64(len(part)), minio.PutObjectPartOptions{})
		if err != nil {
			return err
		}
		completed = minio.CompletePart{PartNumber: objPart.PartNumber, ETag: objPart.ETag}
		return nil
	})
	if err != nil {
		return zerrs.S3Errorf(err, "PutObjectPart(%s/%s, part %d)", s.bucket, s.key, s.partNumber)
	}

	s.parts = append(s.parts, completed)
	return nil
}

// Flush is a no-op: every part already shipped is already durable in S3, and
// a part smaller than minPartSize cannot be shipped early except as the
// final part, which only Finalize knows it has reached.
func (s *S3Object) Flush(context.Context) error {
	return nil
}

func (s *S3Object) Finalize(ctx context.Context) error {
	if s.buf.Len() > 0 || s.partNumber == 0 {
		if err := s.uploadPart(ctx, s.buf.Len()); err != nil {
			return err
		}
	}

	err := retry.Do(ctx, retry.DefaultMaxElapsedTime, s.log, "CompleteMultipartUpload", func() error {
		_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, s.key, s.uploadID, s.parts, minio.PutObjectOptions{})
		return err
	})
	if err != nil {
		return zerrs.S3Errorf(err, "CompleteMultipartUpload(%s/%s)", s.bucket, s.key)
	}
	return nil
}

// Abort cancels the multipart upload, releasing S3-side storage held by
// parts already uploaded. The stream façade does not call it.
func (s *S3Object) Abort(ctx context.Context) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, s.key, s.uploadID); err != nil {
		return zerrs.S3Errorf(err, "AbortMultipartUpload(%s/%s)", s.bucket, s.key)
	}
	return nil
}
