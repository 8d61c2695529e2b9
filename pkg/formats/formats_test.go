package formats

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/schema"
	"github.com/samcharles93/strata/pkg/value"
)

func registry(t *testing.T) *blockfile.Registry {
	t.Helper()
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func setAll(t *testing.T, b *blockfile.Block, fields map[string]value.Value) {
	t.Helper()
	for name, v := range fields {
		if err := b.Set(name, v); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
}

func byteArray(bs ...byte) value.Value {
	arr := &value.Array{}
	for _, b := range bs {
		arr.Elems = append(arr.Elems, value.Uint(uint64(b)))
	}
	return value.ArrayOf(arr)
}

// TestTGAWriteReadPixels builds an uncompressed 2x2 RGBA TGA, saves it,
// re-opens it byte-identically and checks the pixel array.
func TestTGAWriteReadPixels(t *testing.T) {
	t.Parallel()

	reg := registry(t)
	tga, _ := reg.Format("TGA")
	g := blockfile.NewGraph(tga, 0, 0)
	img, err := g.NewBlock("tga_file")
	if err != nil {
		t.Fatalf("new block: %v", err)
	}

	// Pixel rows are stored BGRA: red, green, blue, white.
	pixels := byteArray(
		0, 0, 255, 255,
		0, 255, 0, 255,
		255, 0, 0, 255,
		255, 255, 255, 255,
	)
	setAll(t, img, map[string]value.Value{
		"width":      value.Uint(2),
		"height":     value.Uint(2),
		"pixel_data": pixels,
	})
	if err := g.AddRoot(img); err != nil {
		t.Fatalf("add root: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tiny.tga")
	if err := blockfile.Save(g, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// 18-byte header plus 16 bytes of pixels, nothing else.
	if len(first) != 34 {
		t.Fatalf("file size = %d, want 34", len(first))
	}

	g2, err := blockfile.Open(path, reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if g2.Format.Name != "TGA" {
		t.Fatalf("dispatched to %s", g2.Format.Name)
	}
	if len(g2.Warnings) != 0 {
		t.Fatalf("warnings: %v", g2.Warnings)
	}

	got, ok := g2.Blocks()[0].Get("pixel_data")
	if !ok || len(got.Arr.Elems) != 16 {
		t.Fatalf("pixel data: %+v %v", got, ok)
	}
	want := pixels.Arr.Elems
	for i := range want {
		if got.Arr.Elems[i].U != want[i].U {
			t.Fatalf("pixel byte %d = %d, want %d", i, got.Arr.Elems[i].U, want[i].U)
		}
	}

	out := filepath.Join(t.TempDir(), "copy.tga")
	if err := blockfile.Save(g2, out); err != nil {
		t.Fatalf("save copy: %v", err)
	}
	second, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("tga round trip not byte-exact")
	}
}

func TestSceneFormatEndToEnd(t *testing.T) {
	t.Parallel()

	reg := registry(t)
	nxs, _ := reg.Format("NXS")
	g := blockfile.NewGraph(nxs, 0x14020007, 0)
	if err := g.Header.Set("creator", value.String("strata")); err != nil {
		t.Fatalf("set creator: %v", err)
	}

	root, err := g.NewBlock("nx_node")
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	msh, err := g.NewBlock("nx_tri_mesh")
	if err != nil {
		t.Fatalf("new mesh: %v", err)
	}
	mat, err := g.NewBlock("nx_material")
	if err != nil {
		t.Fatalf("new material: %v", err)
	}
	tex, err := g.NewBlock("nx_texture")
	if err != nil {
		t.Fatalf("new texture: %v", err)
	}

	setAll(t, root, map[string]value.Value{
		"name":         value.String("scene root"),
		"num_children": value.Uint(1),
		"children": value.ArrayOf(&value.Array{Elems: []value.Value{
			value.LinkTo(&value.Link{Index: -1, Target: msh}),
		}}),
	})
	vtx := func(x, y, z float64) value.Value {
		v := value.NewInstance(mustCompound(t, g, "vec3"), nil)
		setInst(t, v, "x", value.Float(x))
		setInst(t, v, "y", value.Float(y))
		setInst(t, v, "z", value.Float(z))
		return value.Of(v)
	}
	tri := func(a, b, c uint64) value.Value {
		v := value.NewInstance(mustCompound(t, g, "triangle"), nil)
		setInst(t, v, "v1", value.Uint(a))
		setInst(t, v, "v2", value.Uint(b))
		setInst(t, v, "v3", value.Uint(c))
		return value.Of(v)
	}
	setAll(t, msh, map[string]value.Value{
		"name":          value.String("quad"),
		"num_vertices":  value.Uint(3),
		"vertices":      value.ArrayOf(&value.Array{Elems: []value.Value{vtx(0, 0, 0), vtx(1, 0, 0), vtx(0, 1, 0)}}),
		"has_normals":   value.Uint(0),
		"num_triangles": value.Uint(1),
		"triangles":     value.ArrayOf(&value.Array{Elems: []value.Value{tri(0, 1, 2)}}),
		"material":      value.LinkTo(&value.Link{Index: -1, Target: mat}),
		"alpha":         value.Uint(2),
	})
	setAll(t, mat, map[string]value.Value{
		"name":    value.String("shiny"),
		"texture": value.LinkTo(&value.Link{Index: -1, Target: tex}),
	})
	setAll(t, tex, map[string]value.Value{
		"name":         value.String("checker"),
		"pixel_width":  value.Uint(2),
		"pixel_height": value.Uint(2),
		"num_bytes":    value.Uint(4),
		"pixel_data":   byteArray(1, 2, 3, 4),
	})
	if err := g.AddRoot(root); err != nil {
		t.Fatalf("add root: %v", err)
	}

	path := filepath.Join(t.TempDir(), "scene.nxs")
	if err := blockfile.Save(g, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	g2, err := blockfile.Open(path, reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(g2.Warnings) != 0 {
		t.Fatalf("warnings: %v", g2.Warnings)
	}
	if got := len(g2.Blocks()); got != 4 {
		t.Fatalf("blocks = %d, want 4", got)
	}

	// has_normals is zero, so normals were conditioned out.
	m2 := g2.FindByName("quad")
	if m2 == nil {
		t.Fatalf("mesh not found")
	}
	if _, ok := m2.Get("normals"); ok {
		t.Fatalf("normals should be absent when has_normals is 0")
	}
	verts, _ := m2.Get("vertices")
	if len(verts.Arr.Elems) != 3 {
		t.Fatalf("vertices: %+v", verts)
	}
	v1 := verts.Arr.Elems[1]
	if x, _ := v1.Inst.Get("x"); x.F != 1 {
		t.Fatalf("vertex 1 x = %g", x.F)
	}

	var buf bytes.Buffer
	if err := blockfile.Write(g2, &buf); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !bytes.Equal(first, buf.Bytes()) {
		t.Fatalf("scene round trip not byte-exact")
	}
}

func TestDDSRoundTrip(t *testing.T) {
	t.Parallel()

	reg := registry(t)
	dds, _ := reg.Format("DDS")
	g := blockfile.NewGraph(dds, 0, 0)
	b, err := g.NewBlock("dds_file")
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	setAll(t, b, map[string]value.Value{
		"height":               value.Uint(2),
		"width":                value.Uint(2),
		"pitch_or_linear_size": value.Uint(16),
		"payload": byteArray(
			1, 2, 3, 4, 5, 6, 7, 8,
			9, 10, 11, 12, 13, 14, 15, 16,
		),
	})
	if err := g.AddRoot(b); err != nil {
		t.Fatalf("add root: %v", err)
	}

	path := filepath.Join(t.TempDir(), "img.dds")
	if err := blockfile.Save(g, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Signature probing must pick DDS even with a misleading extension.
	misnamed := filepath.Join(t.TempDir(), "img.tga")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(misnamed, raw, 0o644); err != nil {
		t.Fatalf("write misnamed: %v", err)
	}
	g2, err := blockfile.Open(misnamed, reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if g2.Format.Name != "DDS" {
		t.Fatalf("signature probe lost to extension: %s", g2.Format.Name)
	}

	var buf bytes.Buffer
	if err := blockfile.Write(g2, &buf); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !bytes.Equal(raw, buf.Bytes()) {
		t.Fatalf("dds round trip not byte-exact")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := blockfile.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if got := len(reg.Formats()); got != 3 {
		t.Fatalf("formats = %d, want 3", got)
	}
}

func mustCompound(t *testing.T, g *blockfile.Graph, name string) *schema.Compound {
	t.Helper()
	c, ok := g.Schema.Compound(name)
	if !ok {
		t.Fatalf("compound %s missing", name)
	}
	return c
}

func setInst(t *testing.T, inst *value.Instance, name string, v value.Value) {
	t.Helper()
	if err := inst.Set(name, v); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}
