// Package store adapts the filesystem and S3 sinks (internal/sink) to a
// single key-addressed opener, so array writers and metadata emitters can
// build a path out of ordered components without caring whether the
// destination is a local directory tree or an S3 bucket prefix, each with
// its own path separator convention.
package store

import (
	"context"
	"path"
	"path/filepath"

	"github.com/acquire-zarr/zarrstream/internal/s3pool"
	"github.com/acquire-zarr/zarrstream/internal/sink"
	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// Store opens a Sink addressed by ordered key components and offers a
// one-shot helper for small documents like metadata files.
type Store interface {
	Open(ctx context.Context, parts ...string) (sink.Sink, error)
	WriteAll(ctx context.Context, data []byte, parts ...string) error
}

// Local addresses sinks as files under Root, using the platform path
// separator between key components.
type Local struct {
	Root string
}

func (l Local) Open(_ context.Context, parts ...string) (sink.Sink, error) {
	return sink.NewLocalFile(filepath.Join(append([]string{l.Root}, parts...)...))
}

func (l Local) WriteAll(ctx context.Context, data []byte, parts ...string) error {
	s, err := l.Open(ctx, parts...)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, 0, data); err != nil {
		return err
	}
	return s.Finalize(ctx)
}

// S3 addresses sinks as objects under Bucket/Prefix, joined with "/"
// regardless of host platform.
type S3 struct {
	Pool   *s3pool.Pool
	Bucket string
	Prefix string
	Log    zlog.Logger
}

func (s S3) key(parts []string) string {
	all := append([]string{s.Prefix}, parts...)
	return path.Join(all...)
}

func (s S3) Open(ctx context.Context, parts ...string) (sink.Sink, error) {
	return sink.NewS3Object(ctx, s.Pool, s.Bucket, s.key(parts), s.Log)
}

func (s S3) WriteAll(ctx context.Context, data []byte, parts ...string) error {
	obj, err := s.Open(ctx, parts...)
	if err != nil {
		return err
	}
	if err := obj.Write(ctx, 0, data); err != nil {
		return err
	}
	return obj.Finalize(ctx)
}
