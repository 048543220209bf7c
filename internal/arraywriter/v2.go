package arraywriter

import (
	"context"
	"strconv"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/metadata"
)

// v2Backend implements the plain (unsharded) Zarr v2 layout: one file per
// chunk, flushed independently and asynchronously as soon as its slab
// rolls over.
type v2Backend struct{}

func (v2Backend) flushSlab(ctx context.Context, w *Writer, tChunkIdx uint64, buffers map[uint64]*chunkbuf.Buffer) {
	for flatIdx, buf := range buffers {
		buf.MarkFull()
		w.enqueueFlush(ctx, tChunkIdx, flatIdx, buf)
	}
}

// enqueueFlush fire-and-forgets one chunk's compress+write+finalize as a
// single pool job.
func (w *Writer) enqueueFlush(ctx context.Context, tChunkIdx, flatIdx uint64, buf *chunkbuf.Buffer) {
	buf.MarkInFlight()
	w.jobsWG.Add(1)
	err := w.pool.Submit(func() error {
		defer w.jobsWG.Done()
		defer buf.Release()

		compressed, err := w.codec.Compress(buf.Data)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return err
		}

		parts := v2KeyParts(w, tChunkIdx, flatIdx)
		sk, err := w.store.Open(ctx, parts...)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return err
		}
		if err := sk.Write(ctx, 0, compressed); err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return err
		}
		if err := sk.Finalize(ctx); err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return err
		}
		buf.MarkDone()
		return nil
	})
	if err != nil {
		w.jobsWG.Done()
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// v2KeyParts builds dataset_root/level/t/c/z/.../y/x in the dimensions'
// declared order, even when a reader might expect canonical t/c/z/y/x
// ordering instead.
func v2KeyParts(w *Writer, tChunkIdx, flatIdx uint64) []string {
	coord := w.plan.DecodeChunkCoord(flatIdx)
	parts := make([]string, 0, len(coord)+2)
	parts = append(parts, strconv.Itoa(w.Config.LevelOfDetail))
	parts = append(parts, strconv.FormatUint(tChunkIdx, 10))
	for _, c := range coord {
		parts = append(parts, strconv.FormatUint(c, 10))
	}
	return parts
}

func (v2Backend) writeMetadata(ctx context.Context, w *Writer) error {
	doc, err := metadata.ZArrayV2(w.Shape(), w.ChunkShape(), w.Config.DType, w.Config.Compression)
	if err != nil {
		return err
	}
	level := strconv.Itoa(w.Config.LevelOfDetail)
	if err := w.store.WriteAll(ctx, doc, level, ".zarray"); err != nil {
		return err
	}

	attrs, err := metadata.ZAttrsEmpty()
	if err != nil {
		return err
	}
	return w.store.WriteAll(ctx, attrs, level, ".zattrs")
}
