package blockfile

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat is returned when no registered format matches the
	// stream's signature or the path's extension.
	ErrUnknownFormat = errors.New("no registered format matches")
	// ErrUnsupportedVersion is returned when the header version falls
	// outside every registered range for the matched format.
	ErrUnsupportedVersion = errors.New("unsupported file version")
	// ErrCorruptBlock is returned when block sizes or counts disagree
	// with the header.
	ErrCorruptBlock = errors.New("corrupt block")
	// ErrLinkOutOfRange is returned for link indices outside the block
	// table.
	ErrLinkOutOfRange = errors.New("link index out of range")
	// ErrLinkTypeMismatch is returned when a resolved link target is
	// incompatible with the field's declared block type.
	ErrLinkTypeMismatch = errors.New("link target type mismatch")
	// ErrFrozen is returned when registering into a frozen registry.
	ErrFrozen = errors.New("registry is frozen")
	// ErrMutation is returned for structural edits that cannot be
	// applied; the graph is left untouched.
	ErrMutation = errors.New("invalid mutation")
)

// Warning codes accumulated on a load. Warnings never abort the load.
const (
	WarnUnknownEnumValue = "unknown-enum-value"
	WarnTrailingBytes    = "trailing-bytes"
	WarnDanglingWeakLink = "dangling-weak-link"
)

// Warning is a non-fatal diagnostic attached to a loaded graph.
type Warning struct {
	Code  string
	Block int // block index, -1 when not block-scoped
	Field string
	Msg   string
}

func (w Warning) String() string {
	if w.Block >= 0 {
		return fmt.Sprintf("%s: block %d %s: %s", w.Code, w.Block, w.Field, w.Msg)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Msg)
}
