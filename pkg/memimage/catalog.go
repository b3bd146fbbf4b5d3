package memimage

import (
	"fmt"
	"sort"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// Catalog is a map based inspect.Catalog.
type Catalog struct {
	types map[string]*inspect.Type
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]*inspect.Type)}
}

// Add registers t under its name.
func (c *Catalog) Add(t *inspect.Type) *inspect.Type {
	c.types[t.Name] = t
	return t
}

// LookupType implements inspect.Catalog.
func (c *Catalog) LookupType(name string) (*inspect.Type, error) {
	t, ok := c.types[name]
	if !ok {
		return nil, &inspect.TypeResolutionError{Name: name, Err: inspect.ErrTypeNotFound}
	}
	return t, nil
}

// MustLookup is LookupType for fixtures, it panics on unknown names.
func (c *Catalog) MustLookup(name string) *inspect.Type {
	t, err := c.LookupType(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the registered type names, sorted.
func (c *Catalog) Names() []string {
	r := make([]string, 0, len(c.types))
	for name := range c.types {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// Member describes a field for Layout.
type Member struct {
	Name string
	Type *inspect.Type
}

// M is shorthand for Member{name, t}.
func M(name string, t *inspect.Type) Member { return Member{name, t} }

// Basic returns a scalar type.
func Basic(name string, kind inspect.Kind, size int64) *inspect.Type {
	return &inspect.Type{Name: name, Kind: kind, ByteSize: size}
}

// Typedef returns a typedef of target called name.
func Typedef(name string, target *inspect.Type) *inspect.Type {
	return &inspect.Type{Name: name, Kind: inspect.Typedef, Target: target}
}

// EnumOf returns a 4 byte enum.
func EnumOf(name string, vals ...inspect.Enumerator) *inspect.Type {
	return &inspect.Type{Name: name, Kind: inspect.Enum, ByteSize: 4, Enumerators: vals}
}

// ArrayOf returns an array of count elements, -1 for a flexible array.
func ArrayOf(elem *inspect.Type, count int64) *inspect.Type {
	size := int64(0)
	if count > 0 {
		size = elem.Size() * count
	}
	return &inspect.Type{Kind: inspect.Array, ByteSize: size, Target: elem, Count: count}
}

// Layout builds a struct (or union) type laying out members with natural
// alignment, the way a C compiler would on a 64 bit target. A leading
// struct member is flagged as the base class.
func Layout(kind inspect.Kind, name string, members ...Member) *inspect.Type {
	t := &inspect.Type{Name: name, Kind: kind}
	LayoutInto(t, members...)
	return t
}

// LayoutInto fills the fields of a previously declared struct, which allows
// self referencing types.
func LayoutInto(t *inspect.Type, members ...Member) {
	var off, size, maxAlign int64 = 0, 0, 1
	t.Fields = t.Fields[:0]
	for _, m := range members {
		a := alignOf(m.Type)
		if a > maxAlign {
			maxAlign = a
		}
		fo := int64(0)
		if t.Kind != inspect.Union {
			fo = roundUp(off, a)
			off = fo + m.Type.Size()
		}
		if end := fo + m.Type.Size(); end > size {
			size = end
		}
		t.Fields = append(t.Fields, &inspect.Field{Name: m.Name, Type: m.Type, ByteOffset: fo})
	}
	t.ByteSize = roundUp(size, maxAlign)
	t.MarkEmbeddedBase()
}

func alignOf(t *inspect.Type) int64 {
	r := t.Resolve()
	if r == nil {
		return 1
	}
	switch r.Kind {
	case inspect.Struct, inspect.Union:
		a := int64(1)
		for _, f := range r.Fields {
			if fa := alignOf(f.Type); fa > a {
				a = fa
			}
		}
		return a
	case inspect.Array:
		return alignOf(r.Target)
	}
	sz := r.Size()
	switch {
	case sz <= 0:
		return 1
	case sz > 8:
		return 8
	}
	return sz
}

func roundUp(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	if r := n % a; r != 0 {
		return n + a - r
	}
	return n
}

// describe is used by panics in the builder.
func describe(t *inspect.Type, field string) string {
	return fmt.Sprintf("%s.%s", t, field)
}
