package blockfile

import (
	"fmt"

	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

// Replace rewrites every strong and weak link referencing old to point
// at replacement, preserving link strength, puts replacement in old's
// root-list positions and removes old from the arena. Both blocks must
// belong to the graph.
func (g *Graph) Replace(old, replacement *Block) error {
	if !g.Contains(old) || !g.Contains(replacement) {
		return fmt.Errorf("%w: both blocks must belong to the graph", ErrMutation)
	}
	if old == replacement {
		return nil
	}
	for _, b := range g.blocks {
		forEachLink(b.inst, func(l *value.Link) {
			if l.Target == old {
				l.Target = replacement
			}
		})
	}
	for i, rt := range g.roots {
		if rt == old {
			g.roots[i] = replacement
		}
	}
	g.removeFromArena(old)
	return nil
}

// InsertParent splices parent between child and the rest of the graph:
// every strong link into child moves onto parent, then parent strong-
// links child through its first compatible ref field. Weak links into
// child stay where they are.
func (g *Graph) InsertParent(child, parent *Block) error {
	if !g.Contains(child) || !g.Contains(parent) {
		return fmt.Errorf("%w: both blocks must belong to the graph", ErrMutation)
	}
	if child == parent {
		return fmt.Errorf("%w: block cannot become its own parent", ErrMutation)
	}

	field, ok := linkFieldFor(parent, child)
	if !ok {
		return fmt.Errorf("%w: %s has no ref field that can hold a %s",
			ErrMutation, parent.TypeName(), child.TypeName())
	}

	for _, b := range g.blocks {
		if b == parent {
			continue
		}
		forEachLink(b.inst, func(l *value.Link) {
			if !l.Weak && l.Target == child {
				l.Target = parent
			}
		})
	}

	link := &value.Link{Index: -1, Target: child}
	if field.Length != nil {
		g.appendChildLink(parent, field, link)
		return nil
	}
	idx := fieldIndexOf(parent.compound, field.Name)
	return parent.inst.SetAt(idx, value.LinkTo(link))
}

// appendChildLink grows a ref-array field by one link, bumping the
// field the array's length expression reads when it is a plain counter.
func (g *Graph) appendChildLink(b *Block, field *schema.Field, link *value.Link) {
	idx := fieldIndexOf(b.compound, field.Name)
	slot, ok := b.inst.GetAt(idx)
	arr := &value.Array{}
	if ok && slot.Kind == value.KindArray {
		arr = slot.Arr
	}
	arr.Elems = append(arr.Elems, value.LinkTo(link))
	b.inst.Slots[idx] = value.Slot{Present: true, Val: value.ArrayOf(arr)}

	// A length expression that is a bare counter field tracks the edit.
	refs := field.Length.FieldRefs()
	if len(refs) == 1 && field.Length.Source() == refs[0] {
		if ci, ok := fieldIndexNamed(b.compound, refs[0]); ok {
			if cv, present := b.inst.GetAt(ci); present && cv.Kind == value.KindUint {
				b.inst.Slots[ci] = value.Slot{Present: true, Val: value.Uint(uint64(len(arr.Elems)))}
			}
		}
	}
}

// Remove nulls every link to b and detaches it from the arena and root
// list. With cascade set, blocks that become strong-unreachable are
// removed as well.
func (g *Graph) Remove(b *Block, cascade bool) error {
	if !g.Contains(b) {
		return fmt.Errorf("%w: block is not part of this graph", ErrMutation)
	}
	for _, other := range g.blocks {
		forEachLink(other.inst, func(l *value.Link) {
			if l.Target == b {
				l.Target = nil
				l.Index = -1
			}
		})
	}
	g.RemoveRoot(b)
	g.removeFromArena(b)
	if cascade {
		g.Prune()
	}
	return nil
}

// Prune drops blocks that are not strong-reachable from any root and
// nulls weak links left dangling. It returns the number of blocks
// removed.
func (g *Graph) Prune() int {
	reachable := make(map[*Block]struct{})
	for _, b := range enumerateReachable(g) {
		reachable[b] = struct{}{}
	}
	kept := make([]*Block, 0, len(reachable))
	removed := 0
	for _, b := range g.blocks {
		if _, ok := reachable[b]; ok {
			kept = append(kept, b)
		} else {
			removed++
		}
	}
	g.blocks = kept
	for _, b := range g.blocks {
		forEachLink(b.inst, func(l *value.Link) {
			if l.Target == nil {
				return
			}
			if tb, ok := l.Target.(*Block); ok {
				if _, live := reachable[tb]; !live {
					l.Target = nil
					l.Index = -1
				}
			}
		})
	}
	return removed
}

func (g *Graph) removeFromArena(b *Block) {
	for i, x := range g.blocks {
		if x == b {
			g.blocks = append(g.blocks[:i], g.blocks[i+1:]...)
			return
		}
	}
}

// linkFieldFor returns the first strong ref field of b whose declared
// target admits child's type.
func linkFieldFor(b *Block, child *Block) (*schema.Field, bool) {
	for _, f := range b.compound.Fields {
		if f.Kind != schema.FieldRef {
			continue
		}
		if f.Target == nil || child.compound.DescendsFrom(f.Target) {
			return f, true
		}
	}
	return nil, false
}

func fieldIndexOf(c *schema.Compound, name string) int {
	i, _ := fieldIndexNamed(c, name)
	return i
}

func fieldIndexNamed(c *schema.Compound, name string) (int, bool) {
	for i, f := range c.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}
