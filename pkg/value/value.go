// Package value holds the dynamic typed values the serializer builds
// while interpreting a schema against a byte stream: struct instances,
// homogeneous arrays, enum and bitfield raw values, strings and block
// links. A value tree is owned by the graph that loaded it.
package value

import (
	"errors"
	"fmt"

	"github.com/samcharles93/strata/pkg/schema"
)

// ErrType is returned when a value of the wrong shape is assigned to a
// typed slot.
var ErrType = errors.New("type mismatch")

// Kind discriminates the variant held by a Value.
type Kind int

const (
	// KindInvalid is the zero Value; conditioned-out slots stay invalid.
	KindInvalid Kind = iota
	KindUint
	KindInt
	KindFloat
	KindString
	KindInstance
	KindArray
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindInstance:
		return "instance"
	case KindArray:
		return "array"
	case KindLink:
		return "link"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Block is the face a graph block shows to the value layer. Links hold
// resolved targets through it without the value package knowing about
// graphs.
type Block interface {
	TypeName() string
	Schema() *schema.Compound
}

// Link is a reference to another block. Before graph resolution only
// Index is meaningful; afterwards Target carries the direct reference
// and Index keeps its load-time value. Saves compute fresh indices from
// Target and do not write them back into Index.
type Link struct {
	Index  int32
	Weak   bool
	Target Block
}

// Null reports whether the link points nowhere.
func (l *Link) Null() bool { return l.Target == nil && l.Index < 0 }

// Array is a homogeneous sequence of values. Two-dimensional fields are
// arrays whose elements are themselves arrays with independent lengths.
type Array struct {
	Elems []Value
}

// Value is a tagged variant. Exactly the field matching Kind is
// meaningful; enum and bitfield raw storage rides in U.
type Value struct {
	Kind Kind
	U    uint64
	I    int64
	F    float64
	S    string
	Inst *Instance
	Arr  *Array
	Link *Link
}

func Uint(v uint64) Value    { return Value{Kind: KindUint, U: v} }
func Int(v int64) Value      { return Value{Kind: KindInt, I: v} }
func Float(v float64) Value  { return Value{Kind: KindFloat, F: v} }
func String(s string) Value  { return Value{Kind: KindString, S: s} }
func Of(i *Instance) Value   { return Value{Kind: KindInstance, Inst: i} }
func ArrayOf(a *Array) Value { return Value{Kind: KindArray, Arr: a} }
func LinkTo(l *Link) Value   { return Value{Kind: KindLink, Link: l} }
func NullLink(weak bool) Value {
	return Value{Kind: KindLink, Link: &Link{Index: -1, Weak: weak}}
}

// Numeric reports the value as an int64 for expression scopes. Strings,
// instances and arrays have no numeric reading. Links surface their
// Index (-1 for a null link, the load-time index once resolved), which
// expressions never consult in well-formed schemas.
func (v Value) Numeric() (int64, bool) {
	switch v.Kind {
	case KindUint:
		return int64(v.U), true
	case KindInt:
		return v.I, true
	case KindFloat:
		return int64(v.F), true
	case KindLink:
		return int64(v.Link.Index), true
	default:
		return 0, false
	}
}
