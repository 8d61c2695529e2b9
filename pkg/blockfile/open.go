// Package blockfile loads and saves block-structured binary files: a
// schema-driven serializer, the file-level framing (block tables, string
// tables, root footers), cycle-tolerant link resolution, and the typed
// traversal and mutation operations layered on the loaded graph.
package blockfile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/strata/pkg/codec"
)

// Open reads path, probes reg for a matching format and loads the
// graph. Errors abort the load; no partially loaded graph is returned.
func Open(path string, reg *Registry) (*Graph, error) {
	data, cleanup, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	f, err := reg.match(data, path)
	if err != nil {
		return nil, err
	}
	r := codec.NewReader(bytes.NewReader(data), f.order(), int64(len(data)))
	return readGraph(r, f)
}

// OpenReader loads a graph of a known format from a stream. size bounds
// the read; pass 0 when unknown.
func OpenReader(rd io.Reader, size int64, f *Format) (*Graph, error) {
	r := codec.NewReader(rd, f.order(), size)
	return readGraph(r, f)
}

// Sniff reports the format reg would dispatch path to, without loading.
func Sniff(path string, reg *Registry) (*Format, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	prefix := make([]byte, maxSignatureLen(reg))
	n, err := io.ReadFull(fh, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return reg.match(prefix[:n], path)
}

func maxSignatureLen(reg *Registry) int {
	n := 1
	for _, f := range reg.Formats() {
		if len(f.Signature) > n {
			n = len(f.Signature)
		}
	}
	return n
}

// mapFile maps path read-only, falling back to a plain read when mmap
// is unavailable. The parse copies everything it keeps, so the mapping
// is released as soon as loading finishes.
func mapFile(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, nil, fmt.Errorf("file size %d cannot be indexed on this architecture", size64)
	}
	size := int(size64)
	if size == 0 {
		return []byte{}, func() {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return data, func() { _ = unix.Munmap(data) }, nil
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, nil, err
	}
	return buf, func() {}, nil
}

// Save writes the graph to path. The write renumbers reachable blocks;
// unreachable blocks are dropped from the output.
func Save(g *Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(g, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write serializes the graph to w.
func Write(g *Graph, w io.Writer) error {
	return writeGraph(w, g)
}
