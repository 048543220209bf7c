package scaler

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/acquire-zarr/zarrstream/internal/dtype"
)

func TestReduceSpatialEvenFrame(t *testing.T) {
	// 4x4 uint8 frame, values equal to their flat index; 2x2 box average.
	frame := make([]byte, 16)
	for i := range frame {
		frame[i] = byte(i)
	}
	out := reduceSpatial(frame, dtype.Uint8, 4, 4, 2, 2)
	// top-left 2x2 block is {0,1,4,5} -> avg 2 (integer division); etc.
	want := []byte{2, 4, 10, 12}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("reduceSpatial mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceSpatialRaggedEdgeRepeatsLastRowColumn(t *testing.T) {
	// 3x3 uint8 frame: ragged edge means the last row/column is reused as
	// its own pair partner instead of reading past the buffer.
	frame := []byte{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	out := reduceSpatial(frame, dtype.Uint8, 3, 3, 2, 2)
	if len(out) != 4 {
		t.Fatalf("expected 4 output bytes, got %d", len(out))
	}
	// Bottom-right pixel clamps both axes to the source's last row/column,
	// i.e. is the average of the single value 9 repeated four times.
	if out[3] != 9 {
		t.Errorf("bottom-right ragged pixel = %d, want 9", out[3])
	}
}

func TestScalerPairsConsecutiveFramesAndFlushesTrailing(t *testing.T) {
	s := New(dtype.Uint8, 2, 2)
	if s.OutWidth() != 1 || s.OutHeight() != 1 {
		t.Fatalf("output size = %dx%d, want 1x1", s.OutWidth(), s.OutHeight())
	}

	frameA := []byte{0, 0, 0, 0}
	frameB := []byte{8, 8, 8, 8}
	frameC := []byte{4, 4, 4, 4}

	if out, ok, err := s.Push(frameA); err != nil || ok {
		t.Fatalf("first push: out=%v ok=%v err=%v, want ok=false", out, ok, err)
	}
	out, ok, err := s.Push(frameB)
	if err != nil || !ok {
		t.Fatalf("second push: ok=%v err=%v, want ok=true", ok, err)
	}
	if len(out) != 1 || out[0] != 4 {
		t.Errorf("paired average = %v, want [4]", out)
	}

	if out, ok, err := s.Push(frameC); err != nil || ok {
		t.Fatalf("third push: out=%v ok=%v err=%v, want ok=false", out, ok, err)
	}
	trailing, ok := s.Flush()
	if !ok || len(trailing) != 1 || trailing[0] != 4 {
		t.Errorf("Flush() = %v, %v, want [4], true", trailing, ok)
	}

	if _, ok := s.Flush(); ok {
		t.Errorf("second Flush() should report nothing pending")
	}
}

func TestScalerRejectsWrongSizeFrame(t *testing.T) {
	s := New(dtype.Uint16, 4, 4)
	if _, _, err := s.Push(make([]byte, 3)); err == nil {
		t.Errorf("expected error for mis-sized frame")
	}
}
