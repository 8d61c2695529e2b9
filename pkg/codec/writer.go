package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer encodes primitives to a forward-only stream, mirroring Reader.
// The byte count is tracked so framing layers can record block sizes.
type Writer struct {
	w     io.Writer
	order binary.ByteOrder
	off   int64
	buf   [8]byte
}

// NewWriter wraps w with the given byte order.
func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	return &Writer{w: w, order: order}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

// Order returns the byte order the writer encodes with.
func (w *Writer) Order() binary.ByteOrder { return w.order }

// SetOrder switches the byte order mid-stream.
func (w *Writer) SetOrder(order binary.ByteOrder) { w.order = order }

// WriteN writes all of p.
func (w *Writer) WriteN(p []byte) error {
	for len(p) > 0 {
		n, err := w.w.Write(p)
		if err != nil {
			return err
		}
		w.off += int64(n)
		p = p[n:]
	}
	return nil
}

func (w *Writer) WriteU8(v uint8) error {
	w.buf[0] = v
	return w.WriteN(w.buf[:1])
}

func (w *Writer) WriteI8(v int8) error { return w.WriteU8(uint8(v)) }

func (w *Writer) WriteU16(v uint16) error {
	w.order.PutUint16(w.buf[:2], v)
	return w.WriteN(w.buf[:2])
}

func (w *Writer) WriteI16(v int16) error { return w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) error {
	w.order.PutUint32(w.buf[:4], v)
	return w.WriteN(w.buf[:4])
}

func (w *Writer) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) error {
	w.order.PutUint64(w.buf[:8], v)
	return w.WriteN(w.buf[:8])
}

func (w *Writer) WriteI64(v int64) error { return w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) error { return w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF64(v float64) error { return w.WriteU64(math.Float64bits(v)) }

// WriteUint writes an unsigned integer of the given byte width (1, 2, 4 or 8).
func (w *Writer) WriteUint(v uint64, width int) error {
	switch width {
	case 1:
		if v > math.MaxUint8 {
			return fmt.Errorf("value %d overflows 1-byte field", v)
		}
		return w.WriteU8(uint8(v))
	case 2:
		if v > math.MaxUint16 {
			return fmt.Errorf("value %d overflows 2-byte field", v)
		}
		return w.WriteU16(uint16(v))
	case 4:
		if v > math.MaxUint32 {
			return fmt.Errorf("value %d overflows 4-byte field", v)
		}
		return w.WriteU32(uint32(v))
	case 8:
		return w.WriteU64(v)
	default:
		return fmt.Errorf("unsupported integer width %d", width)
	}
}

// WritePrefixString writes a length prefix of the given width then the bytes.
func (w *Writer) WritePrefixString(s string, prefixWidth int) error {
	if err := w.WriteUint(uint64(len(s)), prefixWidth); err != nil {
		return err
	}
	return w.WriteN([]byte(s))
}

// WriteSizedString writes a 4-byte length then the bytes.
func (w *Writer) WriteSizedString(s string) error {
	return w.WritePrefixString(s, 4)
}

// WriteShortString writes a 1-byte length then the bytes.
func (w *Writer) WriteShortString(s string) error {
	return w.WritePrefixString(s, 1)
}

// WriteFixedString writes s into an n-byte field padded with NULs.
// Strings longer than n are rejected rather than truncated.
func (w *Writer) WriteFixedString(s string, n int) error {
	if len(s) > n {
		return fmt.Errorf("string %q longer than fixed field of %d bytes", s, n)
	}
	if err := w.WriteN([]byte(s)); err != nil {
		return err
	}
	pad := make([]byte, n-len(s))
	return w.WriteN(pad)
}

// WriteLine writes s followed by a newline.
func (w *Writer) WriteLine(s string) error {
	if err := w.WriteN([]byte(s)); err != nil {
		return err
	}
	return w.WriteN([]byte{'\n'})
}
