package value

import (
	"errors"
	"strings"
	"testing"

	"github.com/samcharles93/strata/pkg/schema"
)

const valueSchemaXML = `
<strata format="TEST">
  <basic name="uint" size="4" kind="uint"/>
  <basic name="int" size="4" kind="int"/>
  <basic name="float" size="4" kind="float"/>

  <compound name="vec3">
    <field name="x" type="float" default="0"/>
    <field name="y" type="float" default="0"/>
    <field name="z" type="float" default="0"/>
  </compound>

  <block name="scene_object" abstract="true">
    <field name="name" type="string"/>
  </block>

  <block name="scene_node" inherit="scene_object">
    <field name="rotation" type="float" length="9"/>
    <field name="translation" type="vec3"/>
    <field name="num_children" type="uint" default="0"/>
    <field name="children" type="ref" template="scene_object" length="num_children"/>
  </block>

  <block name="texture" inherit="scene_object">
    <field name="pixel_width" type="uint"/>
  </block>
</strata>
`

type fakeBlock struct {
	c *schema.Compound
}

func (b *fakeBlock) TypeName() string         { return b.c.Name }
func (b *fakeBlock) Schema() *schema.Compound { return b.c }

func loadValueSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load(strings.NewReader(valueSchemaXML))
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return s
}

func TestNewInstanceAppliesDefaults(t *testing.T) {
	t.Parallel()

	s := loadValueSchema(t)
	node, _ := s.Block("scene_node")
	inst := NewInstance(node, nil)

	if v, ok := inst.Get("num_children"); !ok || v.Kind != KindUint || v.U != 0 {
		t.Fatalf("default not applied: %+v %v", v, ok)
	}
	// No declared default: natural zeros.
	if v, ok := inst.Get("name"); !ok || v.Kind != KindString || v.S != "" {
		t.Fatalf("name should default empty: %+v %v", v, ok)
	}
	if v, ok := inst.Get("children"); !ok || v.Kind != KindArray || len(v.Arr.Elems) != 0 {
		t.Fatalf("children should default to an empty array: %+v %v", v, ok)
	}
	// Fixed-length arrays come pre-sized with zero elements.
	if v, ok := inst.Get("rotation"); !ok || len(v.Arr.Elems) != 9 || v.Arr.Elems[0].Kind != KindFloat {
		t.Fatalf("rotation should default to nine zero floats: %+v %v", v, ok)
	}
	v, ok := inst.Get("translation")
	if !ok || v.Kind != KindInstance {
		t.Fatalf("translation should default to a zero vec3: %+v %v", v, ok)
	}
	if x, ok := v.Inst.Get("x"); !ok || x.Kind != KindFloat || x.F != 0 {
		t.Fatalf("nested default: %+v %v", x, ok)
	}
}

func TestSetValidatesKinds(t *testing.T) {
	t.Parallel()

	s := loadValueSchema(t)
	node, _ := s.Block("scene_node")
	vec3, _ := s.Compound("vec3")
	inst := NewInstance(node, nil)

	if err := inst.Set("name", String("root")); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if err := inst.Set("name", Uint(1)); !errors.Is(err, ErrType) {
		t.Fatalf("uint into string slot should fail, got %v", err)
	}
	if err := inst.Set("no_such_field", Uint(1)); !errors.Is(err, ErrType) {
		t.Fatalf("unknown field should fail, got %v", err)
	}

	v := NewInstance(vec3, nil)
	if err := inst.Set("translation", Of(v)); err != nil {
		t.Fatalf("set compound: %v", err)
	}
	other := NewInstance(node, nil)
	if err := inst.Set("translation", Of(other)); !errors.Is(err, ErrType) {
		t.Fatalf("wrong compound type should fail, got %v", err)
	}
}

func TestSetValidatesLinkTargets(t *testing.T) {
	t.Parallel()

	s := loadValueSchema(t)
	node, _ := s.Block("scene_node")
	texture, _ := s.Block("texture")
	inst := NewInstance(node, nil)

	// children is declared as ref scene_object; texture descends from it.
	arr := &Array{Elems: []Value{
		LinkTo(&Link{Target: &fakeBlock{c: texture}}),
		NullLink(false),
	}}
	if err := inst.Set("children", ArrayOf(arr)); err != nil {
		t.Fatalf("set link array: %v", err)
	}

	// vec3 is not a block and does not descend from scene_object.
	vec3, _ := s.Compound("vec3")
	bad := &Array{Elems: []Value{LinkTo(&Link{Target: &fakeBlock{c: vec3}})}}
	if err := inst.Set("children", ArrayOf(bad)); !errors.Is(err, ErrType) {
		t.Fatalf("bad link target should fail, got %v", err)
	}

	// Scalar into an array slot.
	if err := inst.Set("children", Uint(1)); !errors.Is(err, ErrType) {
		t.Fatalf("scalar into array slot should fail, got %v", err)
	}
}

func TestNumeric(t *testing.T) {
	t.Parallel()

	if v, ok := Uint(7).Numeric(); !ok || v != 7 {
		t.Fatalf("uint numeric: %d %v", v, ok)
	}
	if v, ok := Int(-3).Numeric(); !ok || v != -3 {
		t.Fatalf("int numeric: %d %v", v, ok)
	}
	if _, ok := String("x").Numeric(); ok {
		t.Fatalf("string should not be numeric")
	}
	if v, ok := NullLink(false).Numeric(); !ok || v != -1 {
		t.Fatalf("null link numeric: %d %v", v, ok)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := loadValueSchema(t)
	node, _ := s.Block("scene_node")
	inst := NewInstance(node, nil)
	if err := inst.Set("name", String("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	inst.Clear("name")
	if _, ok := inst.Get("name"); ok {
		t.Fatalf("clear did not remove value")
	}
}
