// Package binary provides the low-level byte emitter used by the wasm
// section encoder.
package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates encoded bytes. The zero value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

// Byte writes a single raw byte.
func (w *Writer) Byte(b byte) { w.buf.WriteByte(b) }

// Raw writes bytes verbatim.
func (w *Writer) Raw(b []byte) { w.buf.Write(b) }

// U32 writes an unsigned LEB128 value.
func (w *Writer) U32(v uint32) { w.uleb(uint64(v)) }

// U64 writes an unsigned LEB128 value.
func (w *Writer) U64(v uint64) { w.uleb(v) }

// S32 writes a signed LEB128 value.
func (w *Writer) S32(v int32) { w.sleb(int64(v)) }

// S64 writes a signed LEB128 value.
func (w *Writer) S64(v int64) { w.sleb(v) }

// F32 writes an IEEE 754 single in little-endian order.
func (w *Writer) F32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

// F64 writes an IEEE 754 double in little-endian order.
func (w *Writer) F64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// Name writes a length-prefixed UTF-8 name.
func (w *Writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) uleb(v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func (w *Writer) sleb(v int64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}
