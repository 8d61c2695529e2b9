package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reader decodes primitives from a forward-only stream. It tracks the
// absolute offset for diagnostics and rejects reads past the declared
// size with ErrEndOfStream. The stream is never rewound.
type Reader struct {
	r     *bufio.Reader
	order binary.ByteOrder
	off   int64
	size  int64
}

// NewReader wraps rd with the given byte order. size bounds the stream;
// pass 0 when the total length is unknown.
func NewReader(rd io.Reader, order binary.ByteOrder, size int64) *Reader {
	return &Reader{
		r:     bufio.NewReader(rd),
		order: order,
		size:  size,
	}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

// Size returns the declared stream size, 0 when unknown.
func (r *Reader) Size() int64 { return r.size }

// Order returns the byte order the reader decodes with.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder switches the byte order mid-stream. Formats with a header
// byte-order mark switch after the mark is read.
func (r *Reader) SetOrder(order binary.ByteOrder) { r.order = order }

// ReadN reads exactly n bytes.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if r.size > 0 && r.off+int64(n) > r.size {
		return nil, fmt.Errorf("%w at offset %d (want %d bytes)", ErrEndOfStream, r.off, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w at offset %d (want %d bytes)", ErrEndOfStream, r.off, n)
		}
		return nil, err
	}
	r.off += int64(n)
	return buf, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadN(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadN(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadN(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	u, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func (r *Reader) ReadF64() (float64, error) {
	u, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

// ReadUint reads an unsigned integer of the given byte width (1, 2, 4 or 8).
func (r *Reader) ReadUint(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := r.ReadU8()
		return uint64(v), err
	case 2:
		v, err := r.ReadU16()
		return uint64(v), err
	case 4:
		v, err := r.ReadU32()
		return uint64(v), err
	case 8:
		return r.ReadU64()
	default:
		return 0, fmt.Errorf("unsupported integer width %d", width)
	}
}

// ReadPrefixString reads a string with a length prefix of the given width.
func (r *Reader) ReadPrefixString(prefixWidth int) (string, error) {
	n, err := r.ReadUint(prefixWidth)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if r.size > 0 && n > uint64(r.size) {
		return "", fmt.Errorf("string length %d exceeds stream size", n)
	}
	b, err := r.ReadN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadSizedString reads a 4-byte length then the bytes, no terminator.
func (r *Reader) ReadSizedString() (string, error) {
	return r.ReadPrefixString(4)
}

// ReadShortString reads a 1-byte length then the bytes.
func (r *Reader) ReadShortString() (string, error) {
	return r.ReadPrefixString(1)
}

// ReadFixedString reads exactly n bytes and strips trailing NUL padding.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.ReadN(n)
	if err != nil {
		return "", err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// ReadLine reads bytes up to and excluding the next newline. Text headers
// in some scene formats carry the version as a terminated line.
func (r *Reader) ReadLine(max int) (string, error) {
	var out []byte
	for len(out) < max {
		b, err := r.ReadN(1)
		if err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", fmt.Errorf("unterminated header line after %d bytes", max)
}
