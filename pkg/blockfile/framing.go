package blockfile

import (
	"bytes"
	"fmt"
	"io"

	"github.com/samcharles93/strata/pkg/codec"
	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

func readGraph(r *codec.Reader, f *Format) (*Graph, error) {
	switch f.Framing {
	case FramingTable:
		return readTable(r, f)
	case FramingFlat:
		return readFlat(r, f)
	default:
		return nil, fmt.Errorf("format %s: unknown framing %d", f.Name, f.Framing)
	}
}

func readSignature(r *codec.Reader, f *Format) error {
	if len(f.Signature) == 0 {
		return nil
	}
	sig, err := r.ReadN(len(f.Signature))
	if err != nil {
		return err
	}
	if !bytes.Equal(sig, f.Signature) {
		return fmt.Errorf("%w: signature %q does not open a %s file", ErrUnknownFormat, sig, f.Name)
	}
	return nil
}

// readTable frames a file as: signature, version pair, header compound,
// block type table, per-block type indices and sizes, string table,
// block bodies, root footer. Links resolve in a second pass so forward
// references are legal.
func readTable(r *codec.Reader, f *Format) (*Graph, error) {
	if err := readSignature(r, f); err != nil {
		return nil, err
	}
	version, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	userVersion, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if !f.supportsVersion(version) {
		return nil, fmt.Errorf("%w: %s is outside the registered range for %s",
			ErrUnsupportedVersion, schema.FormatVersion(version), f.Name)
	}

	g := newGraph(f)
	g.Version = version
	g.UserVersion = userVersion

	var pending []pendingLink
	d := &decoder{
		r:           r,
		g:           g,
		version:     version,
		userVersion: userVersion,
		block:       -1,
		pending:     &pending,
	}

	if f.Header != "" {
		hc, _ := f.Schema.Compound(f.Header)
		g.Header, err = d.readInstance(hc, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
	}

	blockCount, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	typeCount, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	types := make([]*schema.Compound, typeCount)
	for i := range types {
		name, err := r.ReadSizedString()
		if err != nil {
			return nil, err
		}
		c, ok := f.Schema.Block(name)
		if !ok {
			return nil, fmt.Errorf("%w: type table entry %d names unknown block type %q", ErrCorruptBlock, i, name)
		}
		types[i] = c
		g.typeTable = append(g.typeTable, name)
	}

	typeIdx := make([]uint16, blockCount)
	for i := range typeIdx {
		ti, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if int(ti) >= len(types) {
			return nil, fmt.Errorf("%w: block %d type index %d outside table of %d", ErrCorruptBlock, i, ti, len(types))
		}
		typeIdx[i] = ti
	}
	sizes := make([]uint32, blockCount)
	for i := range sizes {
		if sizes[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}

	stringCount, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	for range stringCount {
		s, err := r.ReadSizedString()
		if err != nil {
			return nil, err
		}
		g.strings = append(g.strings, s)
	}

	// Strings inside block bodies are table indices from here on.
	d.useStringTable = true

	for i := range int(blockCount) {
		d.block = i
		start := r.Offset()
		inst, err := d.readInstance(types[typeIdx[i]], nil, nil)
		if err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", i, types[typeIdx[i]].Name, err)
		}
		if consumed := r.Offset() - start; consumed != int64(sizes[i]) {
			return nil, fmt.Errorf("%w: block %d (%s) consumed %d bytes, header declares %d",
				ErrCorruptBlock, i, types[typeIdx[i]].Name, consumed, sizes[i])
		}
		g.blocks = append(g.blocks, &Block{compound: types[typeIdx[i]], inst: inst})
	}

	rootCount, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := range rootCount {
		idx, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(g.blocks) {
			return nil, fmt.Errorf("%w: root %d index %d outside %d blocks", ErrLinkOutOfRange, i, idx, len(g.blocks))
		}
		g.roots = append(g.roots, g.blocks[idx])
	}

	if r.Size() > 0 && r.Offset() < r.Size() {
		g.warn(WarnTrailingBytes, -1, "", "%d bytes after the root footer", r.Size()-r.Offset())
	}

	if err := resolveLinks(g, pending); err != nil {
		return nil, err
	}
	return g, nil
}

// readFlat frames the whole stream as one root compound.
func readFlat(r *codec.Reader, f *Format) (*Graph, error) {
	if err := readSignature(r, f); err != nil {
		return nil, err
	}
	g := newGraph(f)
	g.Version = f.FixedVersion

	d := &decoder{
		r:       r,
		g:       g,
		version: g.Version,
		block:   0,
	}
	root, _ := f.Schema.Block(f.Root)
	inst, err := d.readInstance(root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", root.Name, err)
	}
	b := &Block{compound: root, inst: inst}
	g.blocks = []*Block{b}
	g.roots = []*Block{b}

	if r.Size() > 0 && r.Offset() < r.Size() {
		g.warn(WarnTrailingBytes, -1, "", "%d bytes after the root compound", r.Size()-r.Offset())
	}
	return g, nil
}

// resolveLinks rewrites on-disk indices into direct block references,
// verifying bounds and declared static types.
func resolveLinks(g *Graph, pending []pendingLink) error {
	for _, p := range pending {
		if p.link.Index < 0 {
			continue
		}
		if int(p.link.Index) >= len(g.blocks) {
			return fmt.Errorf("%w: block %d field %q links index %d outside %d blocks",
				ErrLinkOutOfRange, p.block, p.field, p.link.Index, len(g.blocks))
		}
		target := g.blocks[p.link.Index]
		if p.target != nil && !target.compound.DescendsFrom(p.target) {
			return fmt.Errorf("%w: block %d field %q wants %s, index %d is a %s",
				ErrLinkTypeMismatch, p.block, p.field, p.target.Name, p.link.Index, target.compound.Name)
		}
		p.link.Target = target
	}
	return nil
}

// enumerateReachable lists the blocks to serialize: depth-first from the
// roots over strong links, children before siblings, first visit wins.
func enumerateReachable(g *Graph) []*Block {
	seen := make(map[*Block]struct{}, len(g.blocks))
	out := make([]*Block, 0, len(g.blocks))
	var visit func(b *Block)
	visit = func(b *Block) {
		if _, ok := seen[b]; ok {
			return
		}
		seen[b] = struct{}{}
		out = append(out, b)
		forEachLink(b.inst, func(l *value.Link) {
			if l.Weak || l.Target == nil {
				return
			}
			if tb, ok := l.Target.(*Block); ok {
				visit(tb)
			}
		})
	}
	for _, rt := range g.roots {
		visit(rt)
	}
	return out
}

func writeGraph(w io.Writer, g *Graph) error {
	switch g.Format.Framing {
	case FramingTable:
		return writeTable(w, g)
	case FramingFlat:
		return writeFlat(w, g)
	default:
		return fmt.Errorf("format %s: unknown framing %d", g.Format.Name, g.Format.Framing)
	}
}

func writeTable(w io.Writer, g *Graph) error {
	f := g.Format
	if f.Header != "" && g.Header == nil {
		return fmt.Errorf("format %s needs a header instance", f.Name)
	}

	blocks := enumerateReachable(g)
	index := make(map[*Block]int32, len(blocks))
	for i, b := range blocks {
		index[b] = int32(i)
	}

	// Serialize bodies first: interning runs before the string table is
	// emitted, and the size table needs the encoded lengths.
	bodies := make([][]byte, len(blocks))
	for i, b := range blocks {
		var buf bytes.Buffer
		enc := &encoder{
			w:              codec.NewWriter(&buf, f.order()),
			g:              g,
			version:        g.Version,
			userVersion:    g.UserVersion,
			useStringTable: true,
			index:          index,
		}
		if err := enc.writeInstance(b.inst, nil, nil); err != nil {
			return fmt.Errorf("block %d (%s): %w", i, b.TypeName(), err)
		}
		bodies[i] = buf.Bytes()
	}

	// Type table: entries loaded from the file keep their order so a
	// clean round trip is byte-exact; unseen types append in first-use
	// order.
	typeIndex := make(map[string]int, len(g.typeTable))
	typeTable := append([]string(nil), g.typeTable...)
	for i, name := range typeTable {
		typeIndex[name] = i
	}
	for _, b := range blocks {
		if _, ok := typeIndex[b.TypeName()]; !ok {
			typeIndex[b.TypeName()] = len(typeTable)
			typeTable = append(typeTable, b.TypeName())
		}
	}

	cw := codec.NewWriter(w, f.order())
	if err := cw.WriteN(f.Signature); err != nil {
		return err
	}
	if err := cw.WriteU32(g.Version); err != nil {
		return err
	}
	if err := cw.WriteU32(g.UserVersion); err != nil {
		return err
	}
	if g.Header != nil {
		enc := &encoder{w: cw, g: g, version: g.Version, userVersion: g.UserVersion, index: index}
		if err := enc.writeInstance(g.Header, nil, nil); err != nil {
			return fmt.Errorf("header: %w", err)
		}
	}
	if err := cw.WriteU32(uint32(len(blocks))); err != nil {
		return err
	}
	if err := cw.WriteU16(uint16(len(typeTable))); err != nil {
		return err
	}
	for _, name := range typeTable {
		if err := cw.WriteSizedString(name); err != nil {
			return err
		}
	}
	for _, b := range blocks {
		if err := cw.WriteU16(uint16(typeIndex[b.TypeName()])); err != nil {
			return err
		}
	}
	for i := range blocks {
		if err := cw.WriteU32(uint32(len(bodies[i]))); err != nil {
			return err
		}
	}
	if err := cw.WriteU32(uint32(len(g.strings))); err != nil {
		return err
	}
	for _, s := range g.strings {
		if err := cw.WriteSizedString(s); err != nil {
			return err
		}
	}
	for i := range bodies {
		if err := cw.WriteN(bodies[i]); err != nil {
			return err
		}
	}
	if err := cw.WriteU32(uint32(len(g.roots))); err != nil {
		return err
	}
	for _, rt := range g.roots {
		if err := cw.WriteI32(index[rt]); err != nil {
			return err
		}
	}
	return nil
}

func writeFlat(w io.Writer, g *Graph) error {
	f := g.Format
	if len(g.roots) != 1 {
		return fmt.Errorf("format %s writes exactly one root, graph has %d", f.Name, len(g.roots))
	}
	cw := codec.NewWriter(w, f.order())
	if err := cw.WriteN(f.Signature); err != nil {
		return err
	}
	enc := &encoder{w: cw, g: g, version: g.Version, userVersion: g.UserVersion}
	if err := enc.writeInstance(g.roots[0].inst, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", g.roots[0].TypeName(), err)
	}
	return nil
}
