package value

import (
	"fmt"
	"strconv"

	"github.com/samcharles93/strata/pkg/schema"
)

// Slot is one field position of an instance. Fields conditioned out by
// version predicates stay absent and serialize to nothing.
type Slot struct {
	Present bool
	Val     Value
}

// Instance is a compound value: a dense vector of slots in flattened
// declaration order. Tmpl carries the type bound to the compound's
// template parameter when the compound is generic.
type Instance struct {
	Type  *schema.Compound
	Tmpl  *schema.TypeRef
	Slots []Slot
}

// NewInstance allocates an instance with every slot initialized to its
// declared default, or the type's natural zero: numbers to 0, strings
// empty, links null, nested compounds to their own defaults, dynamic
// arrays empty and literal-length arrays pre-sized. Scalar fields whose
// type depends on an unbound template parameter stay absent; array
// fields of such a type start as empty arrays.
func NewInstance(c *schema.Compound, tmpl *schema.TypeRef) *Instance {
	inst := &Instance{
		Type:  c,
		Tmpl:  tmpl,
		Slots: make([]Slot, len(c.Fields)),
	}
	for i, f := range c.Fields {
		if v, ok := defaultValue(f, tmpl); ok {
			inst.Slots[i] = Slot{Present: true, Val: v}
		}
	}
	return inst
}

func defaultValue(f *schema.Field, tmpl *schema.TypeRef) (Value, bool) {
	if f.Length != nil {
		return defaultArray(f, tmpl)
	}
	return scalarDefault(f, tmpl)
}

// defaultArray sizes fixed-length arrays (literal length expressions) to
// their declared element count so a fresh instance already satisfies the
// layout; dynamic arrays start empty alongside their zeroed counters.
func defaultArray(f *schema.Field, tmpl *schema.TypeRef) (Value, bool) {
	n := constLen(f.Length)
	if n <= 0 {
		return ArrayOf(&Array{}), true
	}
	elem, ok := scalarDefault(f, tmpl)
	if !ok {
		return ArrayOf(&Array{}), true
	}
	var m int64
	if f.Length2 != nil {
		m = constLen(f.Length2)
	}
	outer := &Array{Elems: make([]Value, 0, n)}
	for range n {
		if f.Length2 != nil {
			inner := &Array{Elems: make([]Value, 0, max(m, 0))}
			for range max(m, 0) {
				inner.Elems = append(inner.Elems, elem)
			}
			outer.Elems = append(outer.Elems, ArrayOf(inner))
			continue
		}
		outer.Elems = append(outer.Elems, elem)
	}
	return ArrayOf(outer), true
}

// emptyScope evaluates constant expressions outside any instance.
type emptyScope struct{}

func (emptyScope) FieldValue(string) (int64, bool) { return 0, false }
func (emptyScope) Version() uint32                 { return 0 }
func (emptyScope) UserVersion() uint32             { return 0 }
func (emptyScope) Arg() (int64, bool)              { return 0, false }

const maxDefaultElems = 1 << 20

func constLen(e *schema.Expr) int64 {
	if len(e.FieldRefs()) != 0 {
		return -1
	}
	n, err := e.Eval(emptyScope{})
	if err != nil || n < 0 || n > maxDefaultElems {
		return -1
	}
	return n
}

func scalarDefault(f *schema.Field, tmpl *schema.TypeRef) (Value, bool) {
	if f.Default != "" {
		if v, ok := parseDefault(f, f.Default); ok {
			return v, true
		}
	}
	switch f.Kind {
	case schema.FieldBasic:
		return zeroBasic(f.Basic), true
	case schema.FieldEnum, schema.FieldBitfield:
		return Uint(0), true
	case schema.FieldString:
		return String(""), true
	case schema.FieldRef:
		return NullLink(false), true
	case schema.FieldPtr:
		return NullLink(true), true
	case schema.FieldCompound:
		sub := f.Compound
		if !sub.Generic {
			return Of(NewInstance(sub, nil)), true
		}
		if f.TemplateName == "T" {
			if tmpl == nil {
				return Value{}, false
			}
			return Of(NewInstance(sub, tmpl)), true
		}
		return Of(NewInstance(sub, f.TemplateRef)), true
	case schema.FieldTemplate:
		if tmpl == nil {
			return Value{}, false
		}
		switch tmpl.Kind {
		case schema.FieldBasic:
			return zeroBasic(tmpl.Basic), true
		case schema.FieldEnum, schema.FieldBitfield:
			return Uint(0), true
		case schema.FieldCompound:
			if tmpl.Compound.Generic {
				return Value{}, false
			}
			return Of(NewInstance(tmpl.Compound, nil)), true
		}
	}
	return Value{}, false
}

func zeroBasic(b *schema.Basic) Value {
	switch b.Kind {
	case schema.KindFloat:
		return Float(0)
	case schema.KindInt:
		return Int(0)
	default:
		return Uint(0)
	}
}

func parseDefault(f *schema.Field, lit string) (Value, bool) {
	switch f.Kind {
	case schema.FieldBasic:
		switch f.Basic.Kind {
		case schema.KindFloat:
			v, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return Value{}, false
			}
			return Float(v), true
		case schema.KindInt:
			v, err := strconv.ParseInt(lit, 0, 64)
			if err != nil {
				return Value{}, false
			}
			return Int(v), true
		default:
			v, err := strconv.ParseUint(lit, 0, 64)
			if err != nil {
				return Value{}, false
			}
			return Uint(v), true
		}
	case schema.FieldEnum, schema.FieldBitfield:
		v, err := strconv.ParseUint(lit, 0, 64)
		if err != nil {
			return Value{}, false
		}
		return Uint(v), true
	default:
		return Value{}, false
	}
}

// fieldIndex returns the slot index of the named field.
func (inst *Instance) fieldIndex(name string) (int, bool) {
	for i, f := range inst.Type.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Get returns the named field's value. ok is false when the field is not
// declared or the slot is absent under the instance's version gating.
func (inst *Instance) Get(name string) (Value, bool) {
	i, ok := inst.fieldIndex(name)
	if !ok || !inst.Slots[i].Present {
		return Value{}, false
	}
	return inst.Slots[i].Val, true
}

// GetAt returns the slot at flattened field index i.
func (inst *Instance) GetAt(i int) (Value, bool) {
	if i < 0 || i >= len(inst.Slots) || !inst.Slots[i].Present {
		return Value{}, false
	}
	return inst.Slots[i].Val, true
}

// Set assigns the named field after validating the value against the
// field's declared type. Assignment marks the slot present.
func (inst *Instance) Set(name string, v Value) error {
	i, ok := inst.fieldIndex(name)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrType, inst.Type.Name, name)
	}
	f := inst.Type.Fields[i]
	if err := inst.checkAssign(f, v); err != nil {
		return err
	}
	inst.Slots[i] = Slot{Present: true, Val: v}
	return nil
}

// SetAt assigns by flattened field index, with the same validation as Set.
func (inst *Instance) SetAt(i int, v Value) error {
	if i < 0 || i >= len(inst.Slots) {
		return fmt.Errorf("%w: field index %d out of range", ErrType, i)
	}
	f := inst.Type.Fields[i]
	if err := inst.checkAssign(f, v); err != nil {
		return err
	}
	inst.Slots[i] = Slot{Present: true, Val: v}
	return nil
}

// Clear marks the named field absent.
func (inst *Instance) Clear(name string) {
	if i, ok := inst.fieldIndex(name); ok {
		inst.Slots[i] = Slot{}
	}
}

func (inst *Instance) checkAssign(f *schema.Field, v Value) error {
	if f.Length != nil {
		if v.Kind != KindArray {
			return assignErr(f, "array", v)
		}
		for j := range v.Arr.Elems {
			e := v.Arr.Elems[j]
			if f.Length2 != nil {
				if e.Kind != KindArray {
					return assignErr(f, "array of arrays", v)
				}
				for k := range e.Arr.Elems {
					if err := inst.checkScalar(f, e.Arr.Elems[k]); err != nil {
						return err
					}
				}
				continue
			}
			if err := inst.checkScalar(f, e); err != nil {
				return err
			}
		}
		return nil
	}
	return inst.checkScalar(f, v)
}

func (inst *Instance) checkScalar(f *schema.Field, v Value) error {
	kind := f.Kind
	var basic *schema.Basic
	var compound *schema.Compound

	switch kind {
	case schema.FieldBasic:
		basic = f.Basic
	case schema.FieldCompound:
		compound = f.Compound
	case schema.FieldTemplate:
		if inst.Tmpl == nil {
			return fmt.Errorf("%w: %s.%s uses an unbound template parameter", ErrType, inst.Type.Name, f.Name)
		}
		kind = inst.Tmpl.Kind
		basic = inst.Tmpl.Basic
		compound = inst.Tmpl.Compound
	}

	switch kind {
	case schema.FieldBasic:
		switch basic.Kind {
		case schema.KindFloat:
			if v.Kind != KindFloat {
				return assignErr(f, "float", v)
			}
		case schema.KindInt:
			if v.Kind != KindInt {
				return assignErr(f, "int", v)
			}
		default:
			if v.Kind != KindUint {
				return assignErr(f, "uint", v)
			}
		}
	case schema.FieldEnum, schema.FieldBitfield:
		if v.Kind != KindUint {
			return assignErr(f, "uint", v)
		}
	case schema.FieldCompound:
		if v.Kind != KindInstance {
			return assignErr(f, compound.Name, v)
		}
		if v.Inst.Type != compound {
			return fmt.Errorf("%w: %s.%s wants %s, got %s",
				ErrType, inst.Type.Name, f.Name, compound.Name, v.Inst.Type.Name)
		}
	case schema.FieldRef, schema.FieldPtr:
		if v.Kind != KindLink {
			return assignErr(f, "link", v)
		}
		if v.Link.Target != nil && f.Target != nil {
			if !v.Link.Target.Schema().DescendsFrom(f.Target) {
				return fmt.Errorf("%w: %s.%s wants a link to %s, got %s",
					ErrType, inst.Type.Name, f.Name, f.Target.Name, v.Link.Target.TypeName())
			}
		}
	case schema.FieldString:
		if v.Kind != KindString {
			return assignErr(f, "string", v)
		}
	}
	return nil
}

func assignErr(f *schema.Field, want string, got Value) error {
	return fmt.Errorf("%w: %s.%s wants %s, got %s", ErrType, f.Owner.Name, f.Name, want, got.Kind)
}
