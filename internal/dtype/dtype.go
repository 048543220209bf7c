// Package dtype names the element types an array can hold (uint8 through
// float64) and their Zarr v2/v3 metadata spellings.
package dtype

import "github.com/acquire-zarr/zarrstream/internal/zerrs"

type Kind int

const (
	Uint8 Kind = iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
)

// Size returns the element width in bytes.
func (k Kind) Size() uint64 {
	switch k {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

// V2Code returns the Zarr v2 `dtype` string: a byte-order prefix ("<" little
// endian, "|" not-applicable for single-byte types) followed by the numpy
// type code and width.
func (k Kind) V2Code() string {
	switch k {
	case Uint8:
		return "|u1"
	case Int8:
		return "|i1"
	case Uint16:
		return "<u2"
	case Int16:
		return "<i2"
	case Uint32:
		return "<u4"
	case Int32:
		return "<i4"
	case Uint64:
		return "<u8"
	case Int64:
		return "<i8"
	case Float32:
		return "<f4"
	case Float64:
		return "<f8"
	default:
		return ""
	}
}

// V3Name returns the Zarr v3 `data_type` name.
func (k Kind) V3Name() string {
	switch k {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return ""
	}
}

func (k Kind) String() string { return k.V3Name() }

// Parse resolves a v3-style type name ("uint16", "float64", ...) back to a
// Kind, used when the stream façade validates a settings document.
func Parse(name string) (Kind, error) {
	for _, k := range []Kind{Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64, Float32, Float64} {
		if k.V3Name() == name {
			return k, nil
		}
	}
	return 0, zerrs.InvalidArgument("unknown element type %q", name)
}
