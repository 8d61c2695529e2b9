package blockfile

import (
	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

// Summary is the inspection view of a loaded graph, shaped for JSON.
type Summary struct {
	LoadID      string         `json:"load_id"`
	Format      string         `json:"format"`
	Version     string         `json:"version"`
	UserVersion uint32         `json:"user_version"`
	BlockCount  int            `json:"block_count"`
	Roots       []int          `json:"roots"`
	Counts      map[string]int `json:"counts"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Summarize builds the inspection view.
func (g *Graph) Summarize() Summary {
	s := Summary{
		LoadID:      g.LoadID.String(),
		Format:      g.Format.Name,
		Version:     schema.FormatVersion(g.Version),
		UserVersion: g.UserVersion,
		BlockCount:  len(g.blocks),
		Counts:      g.CountByType(),
		Roots:       make([]int, 0, len(g.roots)),
	}
	for _, rt := range g.roots {
		s.Roots = append(s.Roots, g.indexOf(rt))
	}
	for _, w := range g.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}

// Dump renders the whole graph as plain maps and slices for JSON
// encoding: header, blocks in arena order, links as block indices.
func (g *Graph) Dump() map[string]any {
	out := map[string]any{
		"format":       g.Format.Name,
		"version":      schema.FormatVersion(g.Version),
		"user_version": g.UserVersion,
	}
	if g.Header != nil {
		out["header"] = g.instanceJSON(g.Header)
	}
	blocks := make([]map[string]any, len(g.blocks))
	for i, b := range g.blocks {
		blocks[i] = map[string]any{
			"index":  i,
			"type":   b.TypeName(),
			"fields": g.instanceJSON(b.inst),
		}
	}
	out["blocks"] = blocks
	roots := make([]int, 0, len(g.roots))
	for _, rt := range g.roots {
		roots = append(roots, g.indexOf(rt))
	}
	out["roots"] = roots
	return out
}

func (g *Graph) indexOf(b *Block) int {
	for i, x := range g.blocks {
		if x == b {
			return i
		}
	}
	return -1
}

func (g *Graph) instanceJSON(inst *value.Instance) map[string]any {
	fields := make(map[string]any, len(inst.Slots))
	for i, f := range inst.Type.Fields {
		if !inst.Slots[i].Present {
			continue
		}
		fields[f.Name] = g.valueJSON(inst.Slots[i].Val)
	}
	return fields
}

func (g *Graph) valueJSON(v value.Value) any {
	switch v.Kind {
	case value.KindUint:
		return v.U
	case value.KindInt:
		return v.I
	case value.KindFloat:
		return v.F
	case value.KindString:
		return v.S
	case value.KindInstance:
		return g.instanceJSON(v.Inst)
	case value.KindArray:
		elems := make([]any, len(v.Arr.Elems))
		for i := range v.Arr.Elems {
			elems[i] = g.valueJSON(v.Arr.Elems[i])
		}
		return elems
	case value.KindLink:
		link := map[string]any{"weak": v.Link.Weak}
		if v.Link.Target == nil {
			link["target"] = nil
		} else if b, ok := v.Link.Target.(*Block); ok {
			link["target"] = g.indexOf(b)
		}
		return link
	default:
		return nil
	}
}
