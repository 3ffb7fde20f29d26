package wasm

import "errors"

// ErrLEB128 reports a malformed or overlong LEB128 value.
var ErrLEB128 = errors.New("wasm: malformed LEB128 value")

// AppendUleb128 appends the unsigned LEB128 encoding of v to dst.
func AppendUleb128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendSleb128 appends the signed LEB128 encoding of v to dst.
func AppendSleb128(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// Uleb128 decodes an unsigned 32-bit LEB128 value from b, returning the
// value and the number of bytes consumed.
func Uleb128(b []byte) (uint32, int, error) {
	var v uint32
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if shift == 28 && c > 0x0F {
			return 0, 0, ErrLEB128
		}
		v |= uint32(c&0x7F) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > 28 {
			return 0, 0, ErrLEB128
		}
	}
	return 0, 0, ErrLEB128
}

// Sleb128 decodes a signed 33-bit-or-narrower LEB128 value from b.
func Sleb128(b []byte) (int64, int, error) {
	var v int64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		v |= int64(c&0x7F) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				v |= -1 << shift
			}
			return v, i + 1, nil
		}
		if shift >= 64 {
			return 0, 0, ErrLEB128
		}
	}
	return 0, 0, ErrLEB128
}
