package schema

import (
	"encoding/binary"
	"encoding/xml"
	"io"
	"strconv"
)

// XML document shapes. The description language is deliberately flat:
// every type is a direct child of the root element and refers to other
// types by name, so resolution happens after the whole document is read.

type xmlDoc struct {
	XMLName   xml.Name      `xml:"strata"`
	Format    string        `xml:"format,attr"`
	Endian    string        `xml:"endian,attr"`
	Basics    []xmlBasic    `xml:"basic"`
	Versions  []xmlVersion  `xml:"version"`
	Enums     []xmlEnum     `xml:"enum"`
	Bitfields []xmlBitfield `xml:"bitfield"`
	Compounds []xmlCompound `xml:"compound"`
	Blocks    []xmlCompound `xml:"block"`
}

type xmlBasic struct {
	Name   string `xml:"name,attr"`
	Size   int    `xml:"size,attr"`
	Kind   string `xml:"kind,attr"`
	Endian string `xml:"endian,attr"`
}

type xmlVersion struct {
	ID  string `xml:"id,attr"`
	Num string `xml:"num,attr"`
}

type xmlEnum struct {
	Name    string      `xml:"name,attr"`
	Storage string      `xml:"storage,attr"`
	Flags   bool        `xml:"flags,attr"`
	Options []xmlOption `xml:"option"`
}

type xmlOption struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlBitfield struct {
	Name    string      `xml:"name,attr"`
	Storage string      `xml:"storage,attr"`
	Order   string      `xml:"order,attr"`
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string `xml:"name,attr"`
	Pos   int    `xml:"pos,attr"`
	Width int    `xml:"width,attr"`
}

type xmlCompound struct {
	Name     string     `xml:"name,attr"`
	Inherit  string     `xml:"inherit,attr"`
	Abstract bool       `xml:"abstract,attr"`
	Generic  bool       `xml:"generic,attr"`
	Fields   []xmlField `xml:"field"`
}

type xmlField struct {
	Name         string `xml:"name,attr"`
	Type         string `xml:"type,attr"`
	Template     string `xml:"template,attr"`
	Length       string `xml:"length,attr"`
	Length2      string `xml:"length2,attr"`
	Cond         string `xml:"cond,attr"`
	Arg          string `xml:"arg,attr"`
	Default      string `xml:"default,attr"`
	Since        string `xml:"since,attr"`
	Until        string `xml:"until,attr"`
	UserverSince string `xml:"userver_since,attr"`
	UserverUntil string `xml:"userver_until,attr"`
}

// Load parses a declarative format description and resolves it into an
// immutable Schema. All failures are *Error values carrying the kind and
// the position they were detected at.
func Load(r io.Reader) (*Schema, error) {
	var doc xmlDoc
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, schemaErr(ErrSyntax, "", "%v", err)
	}
	return build(&doc)
}

func build(doc *xmlDoc) (*Schema, error) {
	s := &Schema{
		Format:    doc.Format,
		Basics:    make(map[string]*Basic),
		Enums:     make(map[string]*Enum),
		Bitfields: make(map[string]*Bitfield),
		Compounds: make(map[string]*Compound),
		Versions:  make(map[string]uint64),
	}
	switch doc.Endian {
	case "", "little":
		s.Endian = binary.LittleEndian
	case "big":
		s.Endian = binary.BigEndian
	default:
		return nil, schemaErr(ErrBadAttr, doc.Format, "unknown endian %q", doc.Endian)
	}

	seen := make(map[string]struct{})
	claim := func(name string) error {
		if name == "" {
			return schemaErr(ErrBadAttr, doc.Format, "type with empty name")
		}
		if _, dup := seen[name]; dup {
			return schemaErr(ErrDuplicate, name, "type name declared twice")
		}
		seen[name] = struct{}{}
		return nil
	}

	// Pass one: register every name so later passes can resolve in any
	// declaration order.
	for _, b := range doc.Basics {
		if err := claim(b.Name); err != nil {
			return nil, err
		}
		basic := &Basic{Name: b.Name, Size: b.Size}
		switch b.Kind {
		case "uint", "":
			basic.Kind = KindUint
		case "int":
			basic.Kind = KindInt
		case "float":
			basic.Kind = KindFloat
		case "char":
			basic.Kind = KindChar
		default:
			return nil, schemaErr(ErrBadAttr, b.Name, "unknown kind %q", b.Kind)
		}
		switch basic.Size {
		case 1, 2, 4, 8:
		default:
			return nil, schemaErr(ErrBadAttr, b.Name, "unsupported size %d", b.Size)
		}
		switch b.Endian {
		case "":
		case "little":
			basic.Endian = binary.LittleEndian
		case "big":
			basic.Endian = binary.BigEndian
		default:
			return nil, schemaErr(ErrBadAttr, b.Name, "unknown endian %q", b.Endian)
		}
		s.Basics[b.Name] = basic
	}

	for _, v := range doc.Versions {
		if v.ID == "" {
			return nil, schemaErr(ErrBadAttr, doc.Format, "version constant with empty id")
		}
		if _, dup := s.Versions[v.ID]; dup {
			return nil, schemaErr(ErrDuplicate, v.ID, "version constant declared twice")
		}
		packed, err := ParseVersion(v.Num)
		if err != nil {
			return nil, schemaErr(ErrBadAttr, v.ID, "%v", err)
		}
		s.Versions[v.ID] = uint64(packed)
	}

	for _, e := range doc.Enums {
		if err := claim(e.Name); err != nil {
			return nil, err
		}
		enum := &Enum{Name: e.Name, Flags: e.Flags, byValue: make(map[uint64]string)}
		for _, o := range e.Options {
			val, err := strconv.ParseUint(o.Value, 0, 64)
			if err != nil {
				return nil, schemaErr(ErrBadAttr, e.Name+"."+o.Name, "bad option value %q", o.Value)
			}
			enum.Options = append(enum.Options, EnumOption{Name: o.Name, Value: val})
			if _, dup := enum.byValue[val]; !dup {
				enum.byValue[val] = o.Name
			}
			// Option names double as expression constants.
			if _, dup := s.Versions[o.Name]; !dup {
				s.Versions[o.Name] = val
			}
		}
		s.Enums[e.Name] = enum
	}

	for _, b := range doc.Bitfields {
		if err := claim(b.Name); err != nil {
			return nil, err
		}
		bf := &Bitfield{Name: b.Name, MSBFirst: b.Order == "msb"}
		if b.Order != "" && b.Order != "lsb" && b.Order != "msb" {
			return nil, schemaErr(ErrBadAttr, b.Name, "unknown bit order %q", b.Order)
		}
		for _, m := range b.Members {
			if m.Width <= 0 {
				return nil, schemaErr(ErrBadAttr, b.Name+"."+m.Name, "member width must be positive")
			}
			bf.Members = append(bf.Members, BitfieldMember(m))
		}
		s.Bitfields[b.Name] = bf
	}

	addCompound := func(c xmlCompound, isBlock bool) error {
		if err := claim(c.Name); err != nil {
			return err
		}
		s.Compounds[c.Name] = &Compound{
			Name:        c.Name,
			IsBlock:     isBlock,
			Abstract:    c.Abstract,
			Generic:     c.Generic,
			inheritName: c.Inherit,
		}
		if isBlock {
			s.BlockOrder = append(s.BlockOrder, c.Name)
		}
		return nil
	}
	for _, c := range doc.Compounds {
		if err := addCompound(c, false); err != nil {
			return nil, err
		}
	}
	for _, c := range doc.Blocks {
		if err := addCompound(c, true); err != nil {
			return nil, err
		}
	}

	// Pass two: resolve storage types, inheritance and fields. One full
	// pass over registered names must reach a fixed point; any name that
	// still fails to resolve is an unknown type.
	for _, e := range doc.Enums {
		storage, ok := s.Basics[e.Storage]
		if !ok {
			return nil, schemaErr(ErrUnknownType, e.Name, "storage type %q not declared", e.Storage)
		}
		s.Enums[e.Name].Storage = storage
	}
	for _, b := range doc.Bitfields {
		storage, ok := s.Basics[b.Storage]
		if !ok {
			return nil, schemaErr(ErrUnknownType, b.Name, "storage type %q not declared", b.Storage)
		}
		bf := s.Bitfields[b.Name]
		bf.Storage = storage
		for _, m := range bf.Members {
			if m.Pos+m.Width > storage.Size*8 {
				return nil, schemaErr(ErrBadAttr, b.Name+"."+m.Name, "member exceeds %d-bit storage", storage.Size*8)
			}
		}
	}

	all := make([]xmlCompound, 0, len(doc.Compounds)+len(doc.Blocks))
	all = append(all, doc.Compounds...)
	all = append(all, doc.Blocks...)

	for _, c := range all {
		comp := s.Compounds[c.Name]
		if c.Inherit != "" {
			parent, ok := s.Compounds[c.Inherit]
			if !ok {
				return nil, schemaErr(ErrUnknownType, c.Name, "parent %q not declared", c.Inherit)
			}
			comp.Parent = parent
		}
		for _, f := range c.Fields {
			field, err := s.buildField(comp, f)
			if err != nil {
				return nil, err
			}
			comp.ownFields = append(comp.ownFields, field)
		}
	}

	// Flatten inheritance into field prefixes, rejecting cycles.
	state := make(map[*Compound]int) // 0 unvisited, 1 in progress, 2 done
	var flatten func(c *Compound) error
	flatten = func(c *Compound) error {
		switch state[c] {
		case 2:
			return nil
		case 1:
			return schemaErr(ErrCycle, c.Name, "compound inherits from itself")
		}
		state[c] = 1
		if c.Parent != nil {
			if err := flatten(c.Parent); err != nil {
				return err
			}
			c.Fields = append(c.Fields, c.Parent.Fields...)
		}
		c.Fields = append(c.Fields, c.ownFields...)
		state[c] = 2
		return nil
	}
	for _, c := range all {
		if err := flatten(s.Compounds[c.Name]); err != nil {
			return nil, err
		}
	}

	// Conditions and lengths may only look at fields that precede them
	// in the flattened layout.
	for _, c := range all {
		comp := s.Compounds[c.Name]
		preceding := make(map[string]struct{})
		for _, f := range comp.Fields {
			for _, e := range []*Expr{f.Cond, f.Length, f.Length2, f.Arg} {
				if e == nil {
					continue
				}
				for _, ref := range e.FieldRefs() {
					if _, ok := preceding[ref]; !ok {
						return nil, schemaErr(ErrFieldOrder, c.Name+"."+f.Name,
							"expression %q references %q which is not an earlier field", e.Source(), ref)
					}
				}
			}
			preceding[f.Name] = struct{}{}
		}
	}

	return s, nil
}

func (s *Schema) buildField(owner *Compound, f xmlField) (*Field, error) {
	pos := owner.Name + "." + f.Name
	if f.Name == "" {
		return nil, schemaErr(ErrBadAttr, owner.Name, "field with empty name")
	}
	field := &Field{Name: f.Name, Owner: owner, Default: f.Default, TemplateName: f.Template}

	switch f.Type {
	case "":
		return nil, schemaErr(ErrBadAttr, pos, "field without a type")
	case "T":
		if !owner.Generic {
			return nil, schemaErr(ErrBadAttr, pos, "template parameter used outside a generic compound")
		}
		field.Kind = FieldTemplate
	case "ref", "ptr":
		if f.Template == "" {
			return nil, schemaErr(ErrBadAttr, pos, "%s field needs a template target", f.Type)
		}
		if f.Type == "ref" {
			field.Kind = FieldRef
		} else {
			field.Kind = FieldPtr
		}
		if f.Template == "T" {
			if !owner.Generic {
				return nil, schemaErr(ErrBadAttr, pos, "template parameter used outside a generic compound")
			}
		} else {
			target, ok := s.Compounds[f.Template]
			if !ok || !target.IsBlock {
				return nil, schemaErr(ErrUnknownType, pos, "link target %q is not a block type", f.Template)
			}
			field.Target = target
		}
	case "string":
		field.Kind = FieldString
	default:
		switch {
		case s.Basics[f.Type] != nil:
			field.Kind = FieldBasic
			field.Basic = s.Basics[f.Type]
		case s.Enums[f.Type] != nil:
			field.Kind = FieldEnum
			field.Enum = s.Enums[f.Type]
		case s.Bitfields[f.Type] != nil:
			field.Kind = FieldBitfield
			field.Bitfield = s.Bitfields[f.Type]
		case s.Compounds[f.Type] != nil:
			field.Kind = FieldCompound
			field.Compound = s.Compounds[f.Type]
			if field.Compound.Generic {
				if f.Template == "" {
					return nil, schemaErr(ErrBadAttr, pos, "generic type %q used without a template argument", f.Type)
				}
				if f.Template == "T" {
					if !owner.Generic {
						return nil, schemaErr(ErrBadAttr, pos, "template parameter used outside a generic compound")
					}
				} else {
					ref, ok := s.ResolveTypeRef(f.Template)
					if !ok {
						return nil, schemaErr(ErrUnknownType, pos, "template argument %q not declared", f.Template)
					}
					field.TemplateRef = ref
				}
			}
		default:
			return nil, schemaErr(ErrUnknownType, pos, "type %q not declared", f.Type)
		}
	}

	var err error
	compile := func(src string) (*Expr, error) {
		if src == "" {
			return nil, nil
		}
		e, cerr := Compile(src, s.Versions)
		if cerr != nil {
			return nil, schemaErr(ErrExprCompile, pos, "%v", cerr)
		}
		return e, nil
	}
	if field.Length, err = compile(f.Length); err != nil {
		return nil, err
	}
	if field.Length2, err = compile(f.Length2); err != nil {
		return nil, err
	}
	if field.Cond, err = compile(f.Cond); err != nil {
		return nil, err
	}
	if field.Arg, err = compile(f.Arg); err != nil {
		return nil, err
	}
	if field.Length2 != nil && field.Length == nil {
		return nil, schemaErr(ErrBadAttr, pos, "length2 without length")
	}

	parseVer := func(src string) (uint32, error) {
		if v, ok := s.Versions[src]; ok {
			return uint32(v), nil
		}
		return ParseVersion(src)
	}
	if f.Since != "" {
		if field.Ver.Min, err = parseVer(f.Since); err != nil {
			return nil, schemaErr(ErrBadAttr, pos, "%v", err)
		}
	}
	if f.Until != "" {
		if field.Ver.Max, err = parseVer(f.Until); err != nil {
			return nil, schemaErr(ErrBadAttr, pos, "%v", err)
		}
	}
	if f.UserverSince != "" {
		if field.UserVer.Min, err = parseVer(f.UserverSince); err != nil {
			return nil, schemaErr(ErrBadAttr, pos, "%v", err)
		}
	}
	if f.UserverUntil != "" {
		if field.UserVer.Max, err = parseVer(f.UserverUntil); err != nil {
			return nil, schemaErr(ErrBadAttr, pos, "%v", err)
		}
	}
	return field, nil
}
