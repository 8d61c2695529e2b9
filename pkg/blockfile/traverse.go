package blockfile

import (
	"iter"

	"github.com/samcharles93/strata/pkg/value"
)

// WalkOrder selects when a block is yielded relative to its children.
type WalkOrder int

const (
	PreOrder WalkOrder = iota
	PostOrder
)

// Walk returns a lazy depth-first sequence over the graph from its
// roots, visiting each block once. Weak links are followed only when
// visitWeak is set; either way a block already seen is not yielded
// again. The sequence is restartable but not safe under mutation:
// structural edits invalidate an in-flight walk.
func (g *Graph) Walk(order WalkOrder, visitWeak bool) iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		seen := make(map[*Block]struct{}, len(g.blocks))
		var visit func(b *Block) bool
		visit = func(b *Block) bool {
			if _, ok := seen[b]; ok {
				return true
			}
			seen[b] = struct{}{}
			if order == PreOrder && !yield(b) {
				return false
			}
			ok := true
			forEachLink(b.inst, func(l *value.Link) {
				if !ok || l.Target == nil {
					return
				}
				if l.Weak && !visitWeak {
					return
				}
				if tb, isBlock := l.Target.(*Block); isBlock {
					if !visit(tb) {
						ok = false
					}
				}
			})
			if !ok {
				return false
			}
			if order == PostOrder && !yield(b) {
				return false
			}
			return true
		}
		for _, rt := range g.roots {
			if !visit(rt) {
				return
			}
		}
	}
}

// Find filters Walk by a predicate.
func (g *Graph) Find(pred func(*Block) bool) iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for b := range g.Walk(PreOrder, true) {
			if pred(b) {
				if !yield(b) {
					return
				}
			}
		}
	}
}

// FindByType yields blocks whose type is typeName or inherits from it.
func (g *Graph) FindByType(typeName string) iter.Seq[*Block] {
	anc, ok := g.Schema.Compound(typeName)
	if !ok {
		return func(func(*Block) bool) {}
	}
	return g.Find(func(b *Block) bool {
		return b.compound.DescendsFrom(anc)
	})
}

// FindByName returns the first reachable block whose "name" field equals
// name, or nil.
func (g *Graph) FindByName(name string) *Block {
	for b := range g.Find(func(b *Block) bool { return b.Name() == name }) {
		return b
	}
	return nil
}

// CountByType tallies reachable blocks per type name.
func (g *Graph) CountByType() map[string]int {
	counts := make(map[string]int)
	for b := range g.Walk(PreOrder, true) {
		counts[b.TypeName()]++
	}
	return counts
}
