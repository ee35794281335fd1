package pcd

import (
	"encoding/binary"
	"math"
)

// decodeScalar reads one little-endian value of the given TYPE and SIZE.
func decodeScalar(b []byte, typ byte, size int) float64 {
	le := binary.LittleEndian
	switch typ {
	case 'F':
		if size == 4 {
			return float64(math.Float32frombits(le.Uint32(b)))
		}
		return math.Float64frombits(le.Uint64(b))
	case 'I':
		switch size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(le.Uint16(b)))
		case 4:
			return float64(int32(le.Uint32(b)))
		default:
			return float64(int64(le.Uint64(b)))
		}
	default:
		switch size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(le.Uint16(b))
		case 4:
			return float64(le.Uint32(b))
		default:
			return float64(le.Uint64(b))
		}
	}
}

// encodeScalar writes v as one little-endian value of the given TYPE and
// SIZE. Integer types are rounded and saturated to their range.
func encodeScalar(b []byte, typ byte, size int, v float64) {
	le := binary.LittleEndian
	if typ == 'F' {
		if size == 4 {
			le.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			le.PutUint64(b, math.Float64bits(v))
		}
		return
	}

	v = math.Round(v)
	bits := uint(size * 8)
	if typ == 'I' {
		maxV := int64(1)<<(bits-1) - 1
		minV := -maxV - 1
		var n int64
		switch {
		case v >= float64(maxV):
			n = maxV
		case v <= float64(minV):
			n = minV
		default:
			n = int64(v)
		}
		switch size {
		case 1:
			b[0] = byte(int8(n))
		case 2:
			le.PutUint16(b, uint16(int16(n)))
		case 4:
			le.PutUint32(b, uint32(int32(n)))
		default:
			le.PutUint64(b, uint64(n))
		}
		return
	}

	maxU := uint64(1)<<bits - 1
	var n uint64
	switch {
	case v <= 0:
		n = 0
	case v >= float64(maxU):
		n = maxU
	default:
		n = uint64(v)
	}
	switch size {
	case 1:
		b[0] = byte(n)
	case 2:
		le.PutUint16(b, uint16(n))
	case 4:
		le.PutUint32(b, uint32(n))
	default:
		le.PutUint64(b, n)
	}
}
