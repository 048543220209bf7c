package chunkbuf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferWriteAtAndFillValue(t *testing.T) {
	b := New(8, 0xFF)
	for _, v := range b.Data {
		if v != 0xFF {
			t.Fatalf("expected fill value 0xFF, got %x", v)
		}
	}
	b.WriteAt(2, []byte{1, 2, 3})
	want := []byte{0xFF, 0xFF, 1, 2, 3, 0xFF, 0xFF, 0xFF}
	if diff := cmp.Diff(want, b.Data); diff != "" {
		t.Errorf("WriteAt mismatch (-want +got):\n%s", diff)
	}
	if b.State() != Partial {
		t.Errorf("state = %v, want Partial", b.State())
	}
}

func TestPoolReusesAndResetsBuffers(t *testing.T) {
	p := NewPool(4, 0, 2)
	b1 := p.Get()
	b1.WriteAt(0, []byte{9, 9, 9, 9})
	b1.MarkFull()
	b1.Release()

	b2 := p.Get()
	for _, v := range b2.Data {
		if v != 0 {
			t.Fatalf("reused buffer not reset: %v", b2.Data)
		}
	}
	if b2.State() != Empty {
		t.Errorf("reused buffer state = %v, want Empty", b2.State())
	}
}

func TestCodecRoundTrip(t *testing.T) {
	src := make([]byte, 256)
	for i := range src {
		src[i] = byte(i)
	}

	cases := []CompressionParams{
		{Codec: "", Clevel: 0, Shuffle: ShuffleNone},
		{Codec: "blosc-zstd", Clevel: 3, Shuffle: ShuffleNone},
		{Codec: "blosc-zstd", Clevel: 9, Shuffle: ShuffleByte},
		{Codec: "blosc-lz4", Clevel: 1, Shuffle: ShuffleNone},
		{Codec: "blosc-lz4", Clevel: 1, Shuffle: ShuffleBit},
	}
	for _, tc := range cases {
		codec, err := NewCodec(tc, 2)
		if err != nil {
			t.Fatalf("%+v: NewCodec: %v", tc, err)
		}
		compressed, err := codec.Compress(src)
		if err != nil {
			t.Fatalf("%+v: Compress: %v", tc, err)
		}
		got, err := codec.Decompress(compressed, len(src))
		if err != nil {
			t.Fatalf("%+v: Decompress: %v", tc, err)
		}
		if diff := cmp.Diff(src, got); diff != "" {
			t.Errorf("%+v: round trip mismatch (-want +got):\n%s", tc, diff)
		}
	}
}

func TestNewCodecRejectsBadParams(t *testing.T) {
	if _, err := NewCodec(CompressionParams{Codec: "gzip"}, 2); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	if _, err := NewCodec(CompressionParams{Codec: "blosc-zstd", Clevel: 99}, 2); err == nil {
		t.Fatal("expected error for out-of-range clevel")
	}
}
