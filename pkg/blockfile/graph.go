package blockfile

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

// Block is one top-level, addressable record of a graph.
type Block struct {
	compound *schema.Compound
	inst     *value.Instance
}

// TypeName returns the block's schema type name.
func (b *Block) TypeName() string { return b.compound.Name }

// Schema returns the block's compound type.
func (b *Block) Schema() *schema.Compound { return b.compound }

// Instance exposes the block's underlying value tree.
func (b *Block) Instance() *value.Instance { return b.inst }

// Get returns the named field's value.
func (b *Block) Get(name string) (value.Value, bool) { return b.inst.Get(name) }

// Set assigns the named field, validating against the schema type.
func (b *Block) Set(name string, v value.Value) error { return b.inst.Set(name, v) }

// Name returns the block's "name" string field, when its type has one.
func (b *Block) Name() string {
	if v, ok := b.inst.Get("name"); ok && v.Kind == value.KindString {
		return v.S
	}
	return ""
}

// Graph is a loaded set of blocks plus their links, owned as a unit.
// Graphs are single-owner: share only with external synchronization.
type Graph struct {
	// LoadID identifies this load in diagnostics and logs.
	LoadID uuid.UUID

	Format      *Format
	Schema      *schema.Schema
	Version     uint32
	UserVersion uint32

	// Header is the framing header instance for table-framed formats.
	Header *value.Instance

	// Warnings accumulated while loading; the graph is still valid.
	Warnings []Warning

	blocks []*Block
	roots  []*Block

	// String and block-type tables as loaded, reused verbatim on save so
	// warning-free inputs round-trip byte-exact. New entries append.
	strings   []string
	stringIdx map[string]int32
	typeTable []string
}

func newGraph(f *Format) *Graph {
	return &Graph{
		LoadID: uuid.New(),
		Format: f,
		Schema: f.Schema,
	}
}

// NewGraph creates an empty graph for building files from scratch.
func NewGraph(f *Format, version, userVersion uint32) *Graph {
	g := newGraph(f)
	g.Version = version
	g.UserVersion = userVersion
	if f.Framing == FramingTable && f.Header != "" {
		if hc, ok := f.Schema.Compound(f.Header); ok {
			g.Header = value.NewInstance(hc, nil)
		}
	}
	return g
}

// Blocks returns the graph's blocks in arena order.
func (g *Graph) Blocks() []*Block { return g.blocks }

// Roots returns the root blocks in their stable order.
func (g *Graph) Roots() []*Block { return g.roots }

// Contains reports whether b belongs to this graph's arena.
func (g *Graph) Contains(b *Block) bool {
	for _, x := range g.blocks {
		if x == b {
			return true
		}
	}
	return false
}

// NewBlock creates a block of the named type, applies field defaults and
// adds it to the arena. The block is unreachable until linked or added
// as a root.
func (g *Graph) NewBlock(typeName string) (*Block, error) {
	c, ok := g.Schema.Block(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a block type of format %s", ErrMutation, typeName, g.Format.Name)
	}
	if c.Abstract {
		return nil, fmt.Errorf("%w: %q is abstract", ErrMutation, typeName)
	}
	b := &Block{compound: c, inst: value.NewInstance(c, nil)}
	g.blocks = append(g.blocks, b)
	return b, nil
}

// AddRoot appends b to the root list if not already present.
func (g *Graph) AddRoot(b *Block) error {
	if !g.Contains(b) {
		return fmt.Errorf("%w: block is not part of this graph", ErrMutation)
	}
	for _, r := range g.roots {
		if r == b {
			return nil
		}
	}
	g.roots = append(g.roots, b)
	return nil
}

// RemoveRoot drops b from the root list, preserving order.
func (g *Graph) RemoveRoot(b *Block) {
	for i, r := range g.roots {
		if r == b {
			g.roots = append(g.roots[:i], g.roots[i+1:]...)
			return
		}
	}
}

// warn appends a load diagnostic.
func (g *Graph) warn(code string, block int, field, format string, args ...any) {
	g.Warnings = append(g.Warnings, Warning{
		Code:  code,
		Block: block,
		Field: field,
		Msg:   fmt.Sprintf(format, args...),
	})
}

// internString returns the string-table index for s, interning it on
// first use. The empty string is the null index.
func (g *Graph) internString(s string) int32 {
	if s == "" {
		return -1
	}
	if g.stringIdx == nil {
		g.stringIdx = make(map[string]int32)
		for i, existing := range g.strings {
			if _, dup := g.stringIdx[existing]; !dup {
				g.stringIdx[existing] = int32(i)
			}
		}
	}
	if i, ok := g.stringIdx[s]; ok {
		return i
	}
	i := int32(len(g.strings))
	g.strings = append(g.strings, s)
	g.stringIdx[s] = i
	return i
}

// forEachLink visits every link in the instance tree in field order.
func forEachLink(inst *value.Instance, fn func(*value.Link)) {
	for i := range inst.Slots {
		if inst.Slots[i].Present {
			forEachLinkValue(inst.Slots[i].Val, fn)
		}
	}
}

func forEachLinkValue(v value.Value, fn func(*value.Link)) {
	switch v.Kind {
	case value.KindLink:
		fn(v.Link)
	case value.KindInstance:
		forEachLink(v.Inst, fn)
	case value.KindArray:
		for i := range v.Arr.Elems {
			forEachLinkValue(v.Arr.Elems[i], fn)
		}
	}
}
