package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/acquire-zarr/zarrstream/internal/zerrs"
)

// LocalFile is a Sink backed by a regular file. Writes go to a temporary
// file which is renamed into place on Finalize, mirroring restic's
// local backend Save (internal/backend/local/local.go): a crash mid-write
// never leaves a half-written file at the final path.
type LocalFile struct {
	finalPath string
	tmpPath   string
	f         *os.File
	written   int64
}

// NewLocalFile creates the parent directory (if needed) and opens a
// temporary file alongside path.
func NewLocalFile(path string) (*LocalFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, zerrs.IoErrorf(err, "mkdir %s", dir)
	}

	tmpPath := filepath.Join(dir, filepath.Base(path)+"-tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, zerrs.IoErrorf(err, "create %s", tmpPath)
	}

	return &LocalFile{finalPath: path, tmpPath: tmpPath, f: f}, nil
}

func (s *LocalFile) Write(_ context.Context, offset int64, p []byte) error {
	if offset != s.written {
		return zerrs.InvalidArgument("non-contiguous write to %s: offset %d, expected %d", s.finalPath, offset, s.written)
	}
	n, err := s.f.Write(p)
	s.written += int64(n)
	if err != nil {
		return zerrs.IoErrorf(err, "write %s", s.tmpPath)
	}
	return nil
}

func (s *LocalFile) Flush(context.Context) error {
	if err := s.f.Sync(); err != nil {
		return zerrs.IoErrorf(err, "fsync %s", s.tmpPath)
	}
	return nil
}

func (s *LocalFile) Finalize(context.Context) error {
	if err := s.f.Close(); err != nil {
		return zerrs.IoErrorf(err, "close %s", s.tmpPath)
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		return zerrs.IoErrorf(err, "rename %s -> %s", s.tmpPath, s.finalPath)
	}
	return nil
}

// ReadLocalFile reads back a finalized file in full; used by tests that
// round-trip a write through the sink.
func ReadLocalFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zerrs.IoError(err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, zerrs.IoError(err)
	}
	return b, nil
}
