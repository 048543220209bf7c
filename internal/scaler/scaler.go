// Package scaler implements a multiscale image pyramid downsampler:
// level k+1 is produced from level k by 2x2 box averaging over
// the image axes, with successive frames additionally paired and averaged
// element-wise along the append axis. Both reductions are linear averages,
// so composing them in either order gives the same result; this package
// reduces spatially first (the smaller of the two buffers) and pairs the
// already-reduced frames, the cheaper of the two equivalent orderings.
package scaler

import (
	"encoding/binary"
	"math"

	"github.com/acquire-zarr/zarrstream/internal/dtype"
	"github.com/acquire-zarr/zarrstream/internal/zerrs"
)

// Scaler holds the one frame of a temporal pair that has arrived but not
// yet been averaged with its partner.
type Scaler struct {
	kind dtype.Kind
	inW  uint64
	inH  uint64
	outW uint64
	outH uint64

	pending []byte
}

// New builds a scaler that reduces width x height frames of kind to
// ceil(width/2) x ceil(height/2).
func New(kind dtype.Kind, width, height uint64) *Scaler {
	return &Scaler{
		kind: kind,
		inW:  width,
		inH:  height,
		outW: (width + 1) / 2,
		outH: (height + 1) / 2,
	}
}

func (s *Scaler) OutWidth() uint64  { return s.outW }
func (s *Scaler) OutHeight() uint64 { return s.outH }

// Push spatially reduces frame and pairs it with a previously buffered
// reduced frame. It returns (nil, false) while buffering the first frame of
// a pair, or the averaged pair once the second frame arrives.
func (s *Scaler) Push(frame []byte) ([]byte, bool, error) {
	elemSize := int(s.kind.Size())
	if uint64(len(frame)) != s.inW*s.inH*uint64(elemSize) {
		return nil, false, zerrs.InvalidArgument("scaler frame is %d bytes, expected %d", len(frame), s.inW*s.inH*uint64(elemSize))
	}

	reduced := reduceSpatial(frame, s.kind, s.inW, s.inH, s.outW, s.outH)
	if s.pending == nil {
		s.pending = reduced
		return nil, false, nil
	}

	out := averagePair(s.kind, s.pending, reduced)
	s.pending = nil
	return out, true, nil
}

// Flush returns the trailing unpaired frame, if any, emitted unchanged: the
// source emits an unpaired trailing frame as-is rather than discarding or
// half-weighting it, and we preserve that rather than silently changing it.
func (s *Scaler) Flush() ([]byte, bool) {
	if s.pending == nil {
		return nil, false
	}
	out := s.pending
	s.pending = nil
	return out, true
}

// reduceSpatial produces one outW*outH frame from one inW*inH frame by 2x2
// box averaging, repeating the last row/column at a ragged edge.
func reduceSpatial(frame []byte, kind dtype.Kind, inW, inH, outW, outH uint64) []byte {
	elemSize := int(kind.Size())
	out := make([]byte, outW*outH*uint64(elemSize))

	at := func(y, x uint64) []byte {
		idx := (y*inW + x) * uint64(elemSize)
		return frame[idx : idx+uint64(elemSize)]
	}

	for oy := uint64(0); oy < outH; oy++ {
		y0 := oy * 2
		y1 := y0 + 1
		if y1 >= inH {
			y1 = inH - 1
		}
		for ox := uint64(0); ox < outW; ox++ {
			x0 := ox * 2
			x1 := x0 + 1
			if x1 >= inW {
				x1 = inW - 1
			}

			dstIdx := (oy*outW + ox) * uint64(elemSize)
			dst := out[dstIdx : dstIdx+uint64(elemSize)]
			averageSamples(kind, [][]byte{at(y0, x0), at(y0, x1), at(y1, x0), at(y1, x1)}, dst)
		}
	}
	return out
}

// averagePair element-wise averages two equal-length frames of the same
// kind, the temporal pairing step.
func averagePair(kind dtype.Kind, a, b []byte) []byte {
	elemSize := int(kind.Size())
	out := make([]byte, len(a))
	for off := 0; off < len(a); off += elemSize {
		averageSamples(kind, [][]byte{a[off : off+elemSize], b[off : off+elemSize]}, out[off:off+elemSize])
	}
	return out
}

// averageSamples averages len(samples) elements of kind into dst, widening
// to the next larger integer type (or float64 for floats) before dividing
// so the running sum cannot overflow the element's own width.
func averageSamples(kind dtype.Kind, samples [][]byte, dst []byte) {
	switch {
	case isFloat(kind):
		var sum float64
		for _, s := range samples {
			sum += readFloat(s, kind)
		}
		writeFloat(dst, kind, sum/float64(len(samples)))
	case isSigned(kind):
		var sum int64
		for _, s := range samples {
			sum += readInt(s, kind)
		}
		writeInt(dst, kind, sum/int64(len(samples)))
	default:
		var sum uint64
		for _, s := range samples {
			sum += readUint(s, kind)
		}
		writeUint(dst, kind, sum/uint64(len(samples)))
	}
}

func isFloat(k dtype.Kind) bool {
	return k == dtype.Float32 || k == dtype.Float64
}

func isSigned(k dtype.Kind) bool {
	switch k {
	case dtype.Int8, dtype.Int16, dtype.Int32, dtype.Int64:
		return true
	default:
		return false
	}
}

func readUint(b []byte, k dtype.Kind) uint64 {
	switch k {
	case dtype.Uint8:
		return uint64(b[0])
	case dtype.Uint16:
		return uint64(binary.LittleEndian.Uint16(b))
	case dtype.Uint32:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeUint(b []byte, k dtype.Kind, v uint64) {
	switch k {
	case dtype.Uint8:
		b[0] = byte(v)
	case dtype.Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case dtype.Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func readInt(b []byte, k dtype.Kind) int64 {
	switch k {
	case dtype.Int8:
		return int64(int8(b[0]))
	case dtype.Int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case dtype.Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func writeInt(b []byte, k dtype.Kind, v int64) {
	switch k {
	case dtype.Int8:
		b[0] = byte(int8(v))
	case dtype.Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case dtype.Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

func readFloat(b []byte, k dtype.Kind) float64 {
	if k == dtype.Float32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func writeFloat(b []byte, k dtype.Kind, v float64) {
	if k == dtype.Float32 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
