// Package formats ships the built-in format descriptions and binds them
// to their framing parameters. Callers register them into an explicit
// registry, freeze it, and open files through it.
package formats

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/schema"
)

//go:embed scene.xml tga.xml dds.xml
var descriptions embed.FS

// entry pairs an embedded description with its framing parameters.
type entry struct {
	file  string
	build func(s *schema.Schema) *blockfile.Format
}

var entries = []entry{
	{
		file: "scene.xml",
		build: func(s *schema.Schema) *blockfile.Format {
			return &blockfile.Format{
				Name:       "NXS",
				Schema:     s,
				Signature:  []byte("NXS\x00"),
				Extensions: []string{".nxs"},
				Framing:    blockfile.FramingTable,
				Header:     "file_header",
				MinVersion: 0x04000002,
				MaxVersion: 0x14020007,
			}
		},
	},
	{
		file: "tga.xml",
		build: func(s *schema.Schema) *blockfile.Format {
			return &blockfile.Format{
				Name:       "TGA",
				Schema:     s,
				Extensions: []string{".tga"},
				Framing:    blockfile.FramingFlat,
				Root:       "tga_file",
			}
		},
	},
	{
		file: "dds.xml",
		build: func(s *schema.Schema) *blockfile.Format {
			return &blockfile.Format{
				Name:       "DDS",
				Schema:     s,
				Signature:  []byte("DDS "),
				Extensions: []string{".dds"},
				Framing:    blockfile.FramingFlat,
				Root:       "dds_file",
			}
		},
	},
}

// Register adds every built-in format to reg, in signature-probe order.
func Register(reg *blockfile.Registry) error {
	for _, e := range entries {
		raw, err := descriptions.ReadFile(e.file)
		if err != nil {
			return fmt.Errorf("formats: %s: %w", e.file, err)
		}
		s, err := schema.Load(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("formats: %s: %w", e.file, err)
		}
		if err := reg.Register(e.build(s)); err != nil {
			return fmt.Errorf("formats: %s: %w", e.file, err)
		}
	}
	return nil
}

// NewRegistry returns a frozen registry holding the built-in formats.
func NewRegistry() (*blockfile.Registry, error) {
	reg := blockfile.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}
