// Package codec implements the primitive binary layer shared by every
// format: fixed-width integers, IEEE-754 floats and the string encodings
// used by block-structured files, with the byte order threaded through
// the reader and writer.
package codec

import "errors"

// ErrEndOfStream is returned when a read requests more bytes than the
// stream has left. Callers wrap it with positional context.
var ErrEndOfStream = errors.New("end of stream")
