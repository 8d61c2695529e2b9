package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/strata/pkg/schema"
)

// Framing selects the file-level protocol a format uses.
type Framing int

const (
	// FramingTable frames the file as a block type table, string table,
	// block section and root footer (scene-graph formats).
	FramingTable Framing = iota
	// FramingFlat frames the whole file as a single root compound
	// (image and simple container formats).
	FramingFlat
)

// Format binds a file-format identity to a schema and framing strategy.
type Format struct {
	Name   string
	Schema *schema.Schema

	// Signature is the fixed byte pattern opening the file. Formats with
	// no signature (TGA) leave it empty and match by extension instead.
	Signature  []byte
	Extensions []string

	Framing Framing
	// Header names the header compound for table framing.
	Header string
	// Root names the root compound for flat framing.
	Root string

	// MinVersion/MaxVersion gate table-framed files; zero is open.
	MinVersion uint32
	MaxVersion uint32
	// FixedVersion is the version flat-framed graphs evaluate
	// expressions under.
	FixedVersion uint32

	// Endian overrides the schema's default byte order when non-nil.
	Endian binary.ByteOrder
}

func (f *Format) order() binary.ByteOrder {
	if f.Endian != nil {
		return f.Endian
	}
	if f.Schema != nil && f.Schema.Endian != nil {
		return f.Schema.Endian
	}
	return binary.LittleEndian
}

func (f *Format) supportsVersion(v uint32) bool {
	if f.MinVersion != 0 && v < f.MinVersion {
		return false
	}
	if f.MaxVersion != 0 && v > f.MaxVersion {
		return false
	}
	return true
}

// Registry maps format identities to their schemas and framing. Register
// everything at startup, call Freeze, then share freely: a frozen
// registry is immutable and safe for concurrent use.
type Registry struct {
	formats []*Format
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a format. Registering a name twice is a no-op, so
// registration is idempotent. Fails once the registry is frozen.
func (r *Registry) Register(f *Format) error {
	if r.frozen {
		return ErrFrozen
	}
	if f.Name == "" || f.Schema == nil {
		return fmt.Errorf("format needs a name and a schema")
	}
	switch f.Framing {
	case FramingTable:
		if f.Header != "" {
			if _, ok := f.Schema.Compound(f.Header); !ok {
				return fmt.Errorf("format %s: header compound %q not in schema", f.Name, f.Header)
			}
		}
	case FramingFlat:
		if _, ok := f.Schema.Block(f.Root); !ok {
			return fmt.Errorf("format %s: root block %q not in schema", f.Name, f.Root)
		}
	default:
		return fmt.Errorf("format %s: unknown framing %d", f.Name, f.Framing)
	}
	for _, existing := range r.formats {
		if existing.Name == f.Name {
			return nil
		}
	}
	r.formats = append(r.formats, f)
	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() { r.frozen = true }

// Formats returns the registered formats in registration order.
func (r *Registry) Formats() []*Format { return r.formats }

// Format returns the named format.
func (r *Registry) Format(name string) (*Format, bool) {
	for _, f := range r.formats {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// match probes signatures in registration order, then falls back to
// extension matching for signature-less formats.
func (r *Registry) match(prefix []byte, path string) (*Format, error) {
	for _, f := range r.formats {
		if len(f.Signature) > 0 && bytes.HasPrefix(prefix, f.Signature) {
			return f, nil
		}
	}
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		for _, f := range r.formats {
			if len(f.Signature) > 0 {
				continue
			}
			for _, e := range f.Extensions {
				if ext == e {
					return f, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
}
