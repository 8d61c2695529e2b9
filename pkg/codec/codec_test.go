package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestIntegerEndianness(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	if err := w.WriteU32(0x01020304); err != nil {
		t.Fatalf("write u32: %v", err)
	}
	if got := buf.Bytes(); got[0] != 0x04 || got[3] != 0x01 {
		t.Fatalf("u32 is not little-endian: %x", got)
	}

	buf.Reset()
	w = NewWriter(&buf, binary.BigEndian)
	if err := w.WriteU16(0x1122); err != nil {
		t.Fatalf("write u16: %v", err)
	}
	if got := buf.Bytes(); got[0] != 0x11 || got[1] != 0x22 {
		t.Fatalf("u16 is not big-endian: %x", got)
	}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	if err := w.WriteU8(7); err != nil {
		t.Fatalf("write u8: %v", err)
	}
	if err := w.WriteI16(-2); err != nil {
		t.Fatalf("write i16: %v", err)
	}
	if err := w.WriteU32(0xDEADBEEF); err != nil {
		t.Fatalf("write u32: %v", err)
	}
	if err := w.WriteI64(-123456789); err != nil {
		t.Fatalf("write i64: %v", err)
	}
	if err := w.WriteF32(1.5); err != nil {
		t.Fatalf("write f32: %v", err)
	}
	if err := w.WriteF64(-0.25); err != nil {
		t.Fatalf("write f64: %v", err)
	}
	if w.Offset() != 1+2+4+8+4+8 {
		t.Fatalf("writer offset mismatch: %d", w.Offset())
	}

	r := NewReader(bytes.NewReader(buf.Bytes()), binary.LittleEndian, int64(buf.Len()))
	if v, err := r.ReadU8(); err != nil || v != 7 {
		t.Fatalf("read u8: %d %v", v, err)
	}
	if v, err := r.ReadI16(); err != nil || v != -2 {
		t.Fatalf("read i16: %d %v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("read u32: %x %v", v, err)
	}
	if v, err := r.ReadI64(); err != nil || v != -123456789 {
		t.Fatalf("read i64: %d %v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 1.5 {
		t.Fatalf("read f32: %g %v", v, err)
	}
	if v, err := r.ReadF64(); err != nil || v != -0.25 {
		t.Fatalf("read f64: %g %v", v, err)
	}
	if r.Offset() != int64(buf.Len()) {
		t.Fatalf("reader offset mismatch: %d", r.Offset())
	}
}

func TestStringEncodings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	if err := w.WriteSizedString("hello"); err != nil {
		t.Fatalf("write sized: %v", err)
	}
	if err := w.WriteShortString("hi"); err != nil {
		t.Fatalf("write short: %v", err)
	}
	if err := w.WriteFixedString("pad", 8); err != nil {
		t.Fatalf("write fixed: %v", err)
	}
	if err := w.WriteFixedString("too long here", 4); err == nil {
		t.Fatalf("fixed string overflow not rejected")
	}

	raw := buf.Bytes()
	if raw[0] != 5 || raw[1] != 0 {
		t.Fatalf("sized string prefix not 4-byte little-endian: %x", raw[:4])
	}

	r := NewReader(bytes.NewReader(raw), binary.LittleEndian, int64(len(raw)))
	if s, err := r.ReadSizedString(); err != nil || s != "hello" {
		t.Fatalf("read sized: %q %v", s, err)
	}
	if s, err := r.ReadShortString(); err != nil || s != "hi" {
		t.Fatalf("read short: %q %v", s, err)
	}
	if s, err := r.ReadFixedString(8); err != nil || s != "pad" {
		t.Fatalf("read fixed: %q %v", s, err)
	}
}

func TestEndOfStream(t *testing.T) {
	t.Parallel()

	r := NewReader(bytes.NewReader([]byte{1, 2}), binary.LittleEndian, 2)
	if _, err := r.ReadU32(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("want ErrEndOfStream, got %v", err)
	}

	// Unknown total size still fails once the underlying stream runs out.
	r = NewReader(bytes.NewReader([]byte{1, 2}), binary.LittleEndian, 0)
	if _, err := r.ReadU32(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("want ErrEndOfStream for short stream, got %v", err)
	}
}

func TestReadLine(t *testing.T) {
	t.Parallel()

	r := NewReader(bytes.NewReader([]byte("Strata File Format 4.0.0.2\nrest")), binary.LittleEndian, 0)
	line, err := r.ReadLine(64)
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if line != "Strata File Format 4.0.0.2" {
		t.Fatalf("line mismatch: %q", line)
	}
	if r.Offset() != int64(len(line))+1 {
		t.Fatalf("offset after line: %d", r.Offset())
	}
}
