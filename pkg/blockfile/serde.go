package blockfile

import (
	"fmt"

	"github.com/samcharles93/strata/pkg/codec"
	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

// instScope exposes an instance's decoded-so-far fields to condition and
// length expressions. row indexes earlier array fields when an inner
// length is evaluated per element of a two-dimensional field.
type instScope struct {
	inst        *value.Instance
	version     uint32
	userVersion uint32
	arg         *int64
	row         int
}

func (s instScope) FieldValue(name string) (int64, bool) {
	for i, f := range s.inst.Type.Fields {
		if f.Name != name {
			continue
		}
		if !s.inst.Slots[i].Present {
			return 0, false
		}
		v := s.inst.Slots[i].Val
		if v.Kind == value.KindArray && s.row >= 0 {
			if s.row >= len(v.Arr.Elems) {
				return 0, false
			}
			return v.Arr.Elems[s.row].Numeric()
		}
		return v.Numeric()
	}
	return 0, false
}

func (s instScope) Version() uint32     { return s.version }
func (s instScope) UserVersion() uint32 { return s.userVersion }

func (s instScope) Arg() (int64, bool) {
	if s.arg == nil {
		return 0, false
	}
	return *s.arg, true
}

// effType is a field's type after template substitution.
type effType struct {
	kind     schema.FieldKind
	basic    *schema.Basic
	enum     *schema.Enum
	bitfield *schema.Bitfield
	compound *schema.Compound
	// target is the declared link target; nil admits any block type.
	target *schema.Compound
	// tmpl is the binding forwarded into nested generic instances.
	tmpl *schema.TypeRef
	weak bool
}

// resolveFieldType substitutes the enclosing template binding into f.
func resolveFieldType(f *schema.Field, enclosing *schema.TypeRef) (effType, error) {
	t := effType{
		kind:     f.Kind,
		basic:    f.Basic,
		enum:     f.Enum,
		bitfield: f.Bitfield,
		compound: f.Compound,
	}
	switch f.Kind {
	case schema.FieldTemplate:
		if enclosing == nil {
			return t, fmt.Errorf("template parameter is unbound")
		}
		t.kind = enclosing.Kind
		t.basic = enclosing.Basic
		t.enum = enclosing.Enum
		t.bitfield = enclosing.Bitfield
		t.compound = enclosing.Compound
	case schema.FieldRef, schema.FieldPtr:
		t.weak = f.Kind == schema.FieldPtr
		if f.TemplateName == "T" {
			if enclosing == nil || enclosing.Compound == nil {
				return t, fmt.Errorf("link template parameter is unbound")
			}
			t.target = enclosing.Compound
		} else {
			t.target = f.Target
		}
	case schema.FieldCompound:
		if f.Compound.Generic {
			if f.TemplateName == "T" {
				if enclosing == nil {
					return t, fmt.Errorf("template parameter is unbound")
				}
				t.tmpl = enclosing
			} else {
				t.tmpl = f.TemplateRef
			}
		}
	}
	return t, nil
}

// decoder drives a schema compound over a primitive reader and builds
// the value tree. Links stay unresolved indices; the framing layer runs
// the resolution pass once every block is materialized.
type decoder struct {
	r           *codec.Reader
	g           *Graph
	version     uint32
	userVersion uint32
	// useStringTable switches string fields from inline sized strings to
	// string-table indices; table-framed files flip it after the header.
	useStringTable bool
	block          int
	pending        *[]pendingLink
}

// pendingLink is a link read from the stream awaiting resolution.
type pendingLink struct {
	link   *value.Link
	target *schema.Compound
	block  int
	field  string
}

func (d *decoder) readInstance(c *schema.Compound, tmpl *schema.TypeRef, arg *int64) (*value.Instance, error) {
	inst := &value.Instance{
		Type:  c,
		Tmpl:  tmpl,
		Slots: make([]value.Slot, len(c.Fields)),
	}
	for i, f := range c.Fields {
		if !f.Present(d.version, d.userVersion) {
			continue
		}
		scope := instScope{inst: inst, version: d.version, userVersion: d.userVersion, arg: arg, row: -1}
		if f.Cond != nil {
			ok, err := f.Cond.EvalBool(scope)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
			}
			if !ok {
				continue
			}
		}
		var fieldArg *int64
		if f.Arg != nil {
			v, err := f.Arg.Eval(scope)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
			}
			fieldArg = &v
		}
		t, err := resolveFieldType(f, tmpl)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}

		var v value.Value
		if f.Length == nil {
			v, err = d.readValueOf(t, f, fieldArg)
		} else {
			v, err = d.readArray(t, f, inst, fieldArg, arg)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}
		inst.Slots[i] = value.Slot{Present: true, Val: v}
	}
	return inst, nil
}

func (d *decoder) readArray(t effType, f *schema.Field, inst *value.Instance, fieldArg, arg *int64) (value.Value, error) {
	scope := instScope{inst: inst, version: d.version, userVersion: d.userVersion, arg: arg, row: -1}
	n, err := f.Length.Eval(scope)
	if err != nil {
		return value.Value{}, err
	}
	if n < 0 {
		return value.Value{}, fmt.Errorf("length %q evaluated to %d", f.Length.Source(), n)
	}
	outer := &value.Array{Elems: make([]value.Value, 0, min(n, 1<<16))}
	for i := int64(0); i < n; i++ {
		if f.Length2 != nil {
			rowScope := scope
			rowScope.row = int(i)
			m, err := f.Length2.Eval(rowScope)
			if err != nil {
				return value.Value{}, err
			}
			if m < 0 {
				return value.Value{}, fmt.Errorf("length2 %q evaluated to %d", f.Length2.Source(), m)
			}
			inner := &value.Array{Elems: make([]value.Value, 0, min(m, 1<<16))}
			for j := int64(0); j < m; j++ {
				ev, err := d.readValueOf(t, f, fieldArg)
				if err != nil {
					return value.Value{}, err
				}
				inner.Elems = append(inner.Elems, ev)
			}
			outer.Elems = append(outer.Elems, value.ArrayOf(inner))
			continue
		}
		ev, err := d.readValueOf(t, f, fieldArg)
		if err != nil {
			return value.Value{}, err
		}
		outer.Elems = append(outer.Elems, ev)
	}
	return value.ArrayOf(outer), nil
}

func (d *decoder) readValueOf(t effType, f *schema.Field, arg *int64) (value.Value, error) {
	switch t.kind {
	case schema.FieldBasic:
		return d.readBasic(t.basic)
	case schema.FieldEnum:
		raw, err := d.readStorage(t.enum.Storage)
		if err != nil {
			return value.Value{}, err
		}
		if !t.enum.HasValue(raw) {
			d.g.warn(WarnUnknownEnumValue, d.block, f.Name,
				"value %d not declared in enum %s", raw, t.enum.Name)
		}
		return value.Uint(raw), nil
	case schema.FieldBitfield:
		raw, err := d.readStorage(t.bitfield.Storage)
		if err != nil {
			return value.Value{}, err
		}
		return value.Uint(raw), nil
	case schema.FieldCompound:
		sub, err := d.readInstance(t.compound, t.tmpl, arg)
		if err != nil {
			return value.Value{}, err
		}
		return value.Of(sub), nil
	case schema.FieldRef, schema.FieldPtr:
		idx, err := d.r.ReadI32()
		if err != nil {
			return value.Value{}, err
		}
		link := &value.Link{Index: idx, Weak: t.weak}
		if d.pending != nil {
			*d.pending = append(*d.pending, pendingLink{
				link:   link,
				target: t.target,
				block:  d.block,
				field:  f.Name,
			})
		}
		return value.LinkTo(link), nil
	case schema.FieldString:
		return d.readString()
	default:
		return value.Value{}, fmt.Errorf("unhandled field kind %d", t.kind)
	}
}

func (d *decoder) readStorage(b *schema.Basic) (uint64, error) {
	v, err := d.readBasic(b)
	if err != nil {
		return 0, err
	}
	if v.Kind == value.KindInt {
		return uint64(v.I), nil
	}
	return v.U, nil
}

func (d *decoder) readBasic(b *schema.Basic) (value.Value, error) {
	if b.Endian != nil && b.Endian != d.r.Order() {
		prev := d.r.Order()
		d.r.SetOrder(b.Endian)
		defer d.r.SetOrder(prev)
	}
	switch b.Kind {
	case schema.KindFloat:
		if b.Size == 8 {
			f, err := d.r.ReadF64()
			return value.Float(f), err
		}
		f, err := d.r.ReadF32()
		return value.Float(float64(f)), err
	case schema.KindInt:
		switch b.Size {
		case 1:
			v, err := d.r.ReadI8()
			return value.Int(int64(v)), err
		case 2:
			v, err := d.r.ReadI16()
			return value.Int(int64(v)), err
		case 4:
			v, err := d.r.ReadI32()
			return value.Int(int64(v)), err
		default:
			v, err := d.r.ReadI64()
			return value.Int(v), err
		}
	default:
		v, err := d.r.ReadUint(b.Size)
		return value.Uint(v), err
	}
}

func (d *decoder) readString() (value.Value, error) {
	if d.useStringTable {
		idx, err := d.r.ReadI32()
		if err != nil {
			return value.Value{}, err
		}
		if idx < 0 {
			return value.String(""), nil
		}
		if int(idx) >= len(d.g.strings) {
			return value.Value{}, fmt.Errorf("%w: string index %d outside table of %d", ErrCorruptBlock, idx, len(d.g.strings))
		}
		return value.String(d.g.strings[idx]), nil
	}
	s, err := d.r.ReadSizedString()
	if err != nil {
		return value.Value{}, err
	}
	return value.String(s), nil
}

// encoder is the write-side mirror of decoder. Link fields emit the
// indices assigned by the renumbering pass; absent slots emit nothing.
type encoder struct {
	w              *codec.Writer
	g              *Graph
	version        uint32
	userVersion    uint32
	useStringTable bool
	index          map[*Block]int32
}

func (e *encoder) writeInstance(inst *value.Instance, tmpl *schema.TypeRef, arg *int64) error {
	c := inst.Type
	for i, f := range c.Fields {
		if !f.Present(e.version, e.userVersion) {
			continue
		}
		scope := instScope{inst: inst, version: e.version, userVersion: e.userVersion, arg: arg, row: -1}
		if f.Cond != nil {
			ok, err := f.Cond.EvalBool(scope)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
			}
			if !ok {
				continue
			}
		}
		if !inst.Slots[i].Present {
			return fmt.Errorf("%s.%s: field is required at version %s but has no value",
				c.Name, f.Name, schema.FormatVersion(e.version))
		}
		var fieldArg *int64
		if f.Arg != nil {
			v, err := f.Arg.Eval(scope)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
			}
			fieldArg = &v
		}
		t, err := resolveFieldType(f, tmpl)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}

		v := inst.Slots[i].Val
		if f.Length == nil {
			err = e.writeValueOf(t, v, fieldArg)
		} else {
			err = e.writeArray(t, f, inst, v, fieldArg, arg)
		}
		if err != nil {
			return fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}
	}
	return nil
}

func (e *encoder) writeArray(t effType, f *schema.Field, inst *value.Instance, v value.Value, fieldArg, arg *int64) error {
	if v.Kind != value.KindArray {
		return fmt.Errorf("expected array value, got %s", v.Kind)
	}
	scope := instScope{inst: inst, version: e.version, userVersion: e.userVersion, arg: arg, row: -1}
	n, err := f.Length.Eval(scope)
	if err != nil {
		return err
	}
	if int64(len(v.Arr.Elems)) != n {
		return fmt.Errorf("length %q evaluates to %d but array holds %d elements",
			f.Length.Source(), n, len(v.Arr.Elems))
	}
	for i := int64(0); i < n; i++ {
		ev := v.Arr.Elems[i]
		if f.Length2 != nil {
			rowScope := scope
			rowScope.row = int(i)
			m, err := f.Length2.Eval(rowScope)
			if err != nil {
				return err
			}
			if ev.Kind != value.KindArray {
				return fmt.Errorf("expected inner array at row %d, got %s", i, ev.Kind)
			}
			if int64(len(ev.Arr.Elems)) != m {
				return fmt.Errorf("length2 %q evaluates to %d but row %d holds %d elements",
					f.Length2.Source(), m, i, len(ev.Arr.Elems))
			}
			for j := int64(0); j < m; j++ {
				if err := e.writeValueOf(t, ev.Arr.Elems[j], fieldArg); err != nil {
					return err
				}
			}
			continue
		}
		if err := e.writeValueOf(t, ev, fieldArg); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) writeValueOf(t effType, v value.Value, arg *int64) error {
	switch t.kind {
	case schema.FieldBasic:
		return e.writeBasic(t.basic, v)
	case schema.FieldEnum:
		return e.writeStorage(t.enum.Storage, v)
	case schema.FieldBitfield:
		return e.writeStorage(t.bitfield.Storage, v)
	case schema.FieldCompound:
		if v.Kind != value.KindInstance {
			return fmt.Errorf("expected %s instance, got %s", t.compound.Name, v.Kind)
		}
		return e.writeInstance(v.Inst, t.tmpl, arg)
	case schema.FieldRef, schema.FieldPtr:
		if v.Kind != value.KindLink {
			return fmt.Errorf("expected link, got %s", v.Kind)
		}
		return e.w.WriteI32(e.linkIndex(v.Link))
	case schema.FieldString:
		if v.Kind != value.KindString {
			return fmt.Errorf("expected string, got %s", v.Kind)
		}
		if e.useStringTable {
			return e.w.WriteI32(e.g.internString(v.S))
		}
		return e.w.WriteSizedString(v.S)
	default:
		return fmt.Errorf("unhandled field kind %d", t.kind)
	}
}

// linkIndex maps a link onto its renumbered block index. Weak links to
// blocks dropped as unreachable serialize as null.
func (e *encoder) linkIndex(l *value.Link) int32 {
	if l.Target == nil {
		return -1
	}
	b, ok := l.Target.(*Block)
	if !ok {
		return -1
	}
	if idx, ok := e.index[b]; ok {
		return idx
	}
	return -1
}

func (e *encoder) writeStorage(b *schema.Basic, v value.Value) error {
	if v.Kind != value.KindUint {
		return fmt.Errorf("expected raw uint for %s storage, got %s", b.Name, v.Kind)
	}
	return e.writeBasic(b, v)
}

func (e *encoder) writeBasic(b *schema.Basic, v value.Value) error {
	if b.Endian != nil && b.Endian != e.w.Order() {
		prev := e.w.Order()
		e.w.SetOrder(b.Endian)
		defer e.w.SetOrder(prev)
	}
	switch b.Kind {
	case schema.KindFloat:
		if v.Kind != value.KindFloat {
			return fmt.Errorf("expected float for %s, got %s", b.Name, v.Kind)
		}
		if b.Size == 8 {
			return e.w.WriteF64(v.F)
		}
		return e.w.WriteF32(float32(v.F))
	case schema.KindInt:
		if v.Kind != value.KindInt {
			return fmt.Errorf("expected int for %s, got %s", b.Name, v.Kind)
		}
		switch b.Size {
		case 1:
			return e.w.WriteI8(int8(v.I))
		case 2:
			return e.w.WriteI16(int16(v.I))
		case 4:
			return e.w.WriteI32(int32(v.I))
		default:
			return e.w.WriteI64(v.I)
		}
	default:
		if v.Kind != value.KindUint {
			return fmt.Errorf("expected uint for %s, got %s", b.Name, v.Kind)
		}
		return e.w.WriteUint(v.U, b.Size)
	}
}
