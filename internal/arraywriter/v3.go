package arraywriter

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/metadata"
)

// sentinelU64 marks an absent chunk's (offset, nbytes) slot in a shard index
// table.
const sentinelU64 = ^uint64(0)

// shardState is the growing byte vector and index table for one shard,
// protected by its own mutex as chunks complete. A shard spans every axis,
// the append axis included, so it stays open across however many
// append-axis chunks (slabs) its t-shard aggregates.
type shardState struct {
	mu        sync.Mutex
	bytes     []byte
	index     [][2]uint64 // (offset, nbytes) per chunk slot, row-major shard-local order
	tShardIdx uint64      // this shard's coordinate along the append axis
	coord     []uint64    // this shard's per-axis coordinate over the non-append axes
}

func newShardState(slots int, tShardIdx uint64, coord []uint64) *shardState {
	s := &shardState{
		index:     make([][2]uint64, slots),
		tShardIdx: tShardIdx,
		coord:     coord,
	}
	for i := range s.index {
		s.index[i] = [2]uint64{sentinelU64, sentinelU64}
	}
	return s
}

// append adds compressed chunk bytes at slot; it cannot fail and returns
// nothing.
func (s *shardState) append(slot uint64, compressed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := uint64(len(s.bytes))
	s.bytes = append(s.bytes, compressed...)
	s.index[slot] = [2]uint64{offset, uint64(len(compressed))}
}

// encode serializes bytes followed by the little-endian index table (spec
// §6 "Shard binary layout"). Endianness is explicit here regardless of
// platform, addressing §9's open question about the source's implicit
// native-endian table.
func (s *shardState) encode() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.bytes)+16*len(s.index))
	copy(out, s.bytes)
	off := len(s.bytes)
	for _, pair := range s.index {
		binary.LittleEndian.PutUint64(out[off:], pair[0])
		binary.LittleEndian.PutUint64(out[off+8:], pair[1])
		off += 16
	}
	return out
}

// v3Backend implements Zarr v3's sharded layout. Chunks are compressed and
// appended into an in-memory shard accumulator, keyed by the combined
// row-major shard index across every axis (dimension.Plan.ShardIndexForChunk
// already folds the append axis in as the most-significant component). A
// shard stays open across every slab (append-axis chunk) its t-shard
// aggregates and is uploaded once the last of those slabs completes, or at
// Stop if the stream ends before that boundary is reached.
type v3Backend struct {
	mu     sync.Mutex
	shards map[uint64]*shardState
}

func (b *v3Backend) shardFor(w *Writer, tChunkIdx, flatIdx uint64) (*shardState, uint64, error) {
	key, err := w.plan.ShardIndexForChunk(tChunkIdx, flatIdx)
	if err != nil {
		return nil, 0, err
	}
	slot, err := w.plan.ShardInternalIndex(tChunkIdx, flatIdx)
	if err != nil {
		return nil, 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.shards[key]
	if !ok {
		s = newShardState(int(w.plan.ChunksPerShard()), w.plan.TShardIndex(tChunkIdx), w.plan.ShardCoordForChunk(flatIdx))
		b.shards[key] = s
	}
	return s, slot, nil
}

func (b *v3Backend) takeShard(key uint64) (*shardState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.shards[key]
	if ok {
		delete(b.shards, key)
	}
	return s, ok
}

// remainingShardKeys returns the keys of every shard still open (a t-shard
// whose append-axis span the stream ended before completing).
func (b *v3Backend) remainingShardKeys() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]uint64, 0, len(b.shards))
	for k := range b.shards {
		keys = append(keys, k)
	}
	return keys
}

func (b *v3Backend) flushSlab(ctx context.Context, w *Writer, tChunkIdx uint64, buffers map[uint64]*chunkbuf.Buffer) {
	var wg sync.WaitGroup
	var touchedMu sync.Mutex
	touched := make(map[uint64]bool)

	for flatIdx, buf := range buffers {
		buf.MarkFull()
		buf.MarkInFlight()
		wg.Add(1)
		flatIdx, buf := flatIdx, buf
		submitErr := w.pool.Submit(func() error {
			defer wg.Done()
			defer buf.Release()

			compressed, err := w.codec.Compress(buf.Data)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				return err
			}

			shard, slot, err := b.shardFor(w, tChunkIdx, flatIdx)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				return err
			}
			shard.append(slot, compressed)

			key, err := w.plan.ShardIndexForChunk(tChunkIdx, flatIdx)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				return err
			}
			touchedMu.Lock()
			touched[key] = true
			touchedMu.Unlock()

			buf.MarkDone()
			return nil
		})
		if submitErr != nil {
			wg.Done()
			if w.onError != nil {
				w.onError(submitErr)
			}
		}
	}
	wg.Wait()

	// A shard only closes once every append-axis chunk its t-shard
	// aggregates has completed; mid-t-shard slabs leave it open for the
	// next slab to keep filling.
	if (tChunkIdx+1)%w.plan.TShardSize() != 0 {
		return
	}

	for key := range touched {
		key := key
		w.jobsWG.Add(1)
		err := w.pool.Submit(func() error {
			defer w.jobsWG.Done()
			return b.uploadShard(ctx, w, key)
		})
		if err != nil {
			w.jobsWG.Done()
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// flushRemainingShards uploads every shard still open after the stream's
// final slab: its t-shard span never reached a boundary, so flushSlab never
// uploaded it. Runs synchronously on the caller's goroutine (Stop, after
// jobsWG has already drained) rather than through the pool, since nothing
// downstream is waiting to overlap with it.
func (b *v3Backend) flushRemainingShards(ctx context.Context, w *Writer) error {
	for _, key := range b.remainingShardKeys() {
		if err := b.uploadShard(ctx, w, key); err != nil {
			return err
		}
	}
	return nil
}

func (b *v3Backend) uploadShard(ctx context.Context, w *Writer, key uint64) error {
	shard, ok := b.takeShard(key)
	if !ok {
		return nil
	}
	data := shard.encode()

	parts := v3ShardKeyParts(w, shard.tShardIdx, shard.coord)
	sk, err := w.store.Open(ctx, parts...)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return err
	}
	if err := sk.Write(ctx, 0, data); err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return err
	}
	return sk.Finalize(ctx)
}

// v3ShardKeyParts builds data/root/<level>/c<tShardIdx>/<shard coord...>.
func v3ShardKeyParts(w *Writer, tShardIdx uint64, shardCoord []uint64) []string {
	parts := []string{"data", "root", strconv.Itoa(w.Config.LevelOfDetail), "c" + strconv.FormatUint(tShardIdx, 10)}
	for _, c := range shardCoord {
		parts = append(parts, strconv.FormatUint(c, 10))
	}
	return parts
}

func (b *v3Backend) writeMetadata(ctx context.Context, w *Writer) error {
	if err := b.flushRemainingShards(ctx, w); err != nil {
		return err
	}

	chunksPerShard := make([]uint64, len(w.Config.Dimensions))
	for i, d := range w.Config.Dimensions {
		s := d.ShardSizeChunks
		if s == 0 {
			s = 1
		}
		chunksPerShard[i] = s
	}

	doc, err := metadata.ArrayJSONV3(w.Shape(), w.ChunkShape(), w.Config.DType, w.Config.Compression, chunksPerShard)
	if err != nil {
		return err
	}
	return w.store.WriteAll(ctx, doc, "meta", "root", strconv.Itoa(w.Config.LevelOfDetail)+".array.json")
}
