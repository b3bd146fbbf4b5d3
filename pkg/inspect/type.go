// Package inspect describes the memory and type collaborator the tree
// walker reads the inspected process through.
//
// The walker never talks to a debugger directly: a Process bundles a
// MemoryReader (raw bytes at an address) with a Catalog (types by name) and
// Value is the typed, read-only view over that memory that every other
// package passes around.
package inspect

import (
	"fmt"
	"strings"
)

// Kind is the kind of a Type.
type Kind uint8

const (
	Invalid Kind = iota
	Void
	Bool
	Int
	Uint
	Float
	Enum
	Pointer
	Struct
	Union
	Array
	Typedef
)

var kindNames = [...]string{
	Invalid: "invalid",
	Void:    "void",
	Bool:    "bool",
	Int:     "int",
	Uint:    "uint",
	Float:   "float",
	Enum:    "enum",
	Pointer: "pointer",
	Struct:  "struct",
	Union:   "union",
	Array:   "array",
	Typedef: "typedef",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Type describes the layout of a value in the inspected process.
type Type struct {
	Name     string
	Kind     Kind
	ByteSize int64

	// Target is the pointed-to type for pointers, the element type for
	// arrays and the aliased type for typedefs.
	Target *Type
	// Count is the number of elements of an array, -1 for flexible array
	// members.
	Count int64

	Fields      []*Field
	Enumerators []Enumerator

	// TemplateArgs lists the type parameters of a generic wrapper type.
	TemplateArgs []*Type
}

// Field is a member of a struct or union.
type Field struct {
	Name       string
	Type       *Type
	ByteOffset int64
	// BaseClass is true for members that encode inheritance.
	BaseClass bool
}

// Enumerator is a named value of an enum.
type Enumerator struct {
	Name string
	Val  int64
}

// NewPointer returns a pointer type of the given size to target.
func NewPointer(target *Type, size int64) *Type {
	return &Type{Kind: Pointer, ByteSize: size, Target: target}
}

// MarkEmbeddedBase flags the first member of struct t as its base class when
// it is itself a struct stored at offset zero. This is how C code such as
// PostgreSQL's node definitions encodes inheritance: `SeqScan` starts with
// `Scan scan`, which starts with `Plan plan`.
func (t *Type) MarkEmbeddedBase() {
	r := t.Resolve()
	if r == nil || r.Kind != Struct || len(r.Fields) == 0 {
		return
	}
	f := r.Fields[0]
	if f.ByteOffset != 0 {
		return
	}
	if ft := f.Type.Resolve(); ft != nil && ft.Kind == Struct {
		f.BaseClass = true
	}
}

// Resolve strips typedefs.
func (t *Type) Resolve() *Type {
	for t != nil && t.Kind == Typedef {
		t = t.Target
	}
	return t
}

// IsPointer reports whether t is a pointer once typedefs are stripped.
func (t *Type) IsPointer() bool {
	r := t.Resolve()
	return r != nil && r.Kind == Pointer
}

// Size returns the size in bytes of values of type t.
func (t *Type) Size() int64 {
	if t.Kind == Typedef && t.ByteSize == 0 && t.Target != nil {
		return t.Target.Size()
	}
	return t.ByteSize
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Pointer:
		if t.Name != "" {
			return t.Name
		}
		if t.Target == nil {
			return "void *"
		}
		s := t.Target.String()
		if strings.HasSuffix(s, "*") {
			return s + "*"
		}
		return s + " *"
	case Array:
		if t.Count < 0 {
			return t.Target.String() + "[]"
		}
		return fmt.Sprintf("%s[%d]", t.Target, t.Count)
	case Void:
		return "void"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String() + " {...}"
}

// Members returns the fields of t once typedefs are stripped.
func (t *Type) Members() []*Field {
	r := t.Resolve()
	if r == nil {
		return nil
	}
	return r.Fields
}

// BaseClasses returns the declared base classes of t, in declaration order.
func (t *Type) BaseClasses() []*Type {
	var r []*Type
	for _, f := range t.Members() {
		if f.BaseClass {
			r = append(r, f.Type)
		}
	}
	return r
}

// FieldByName looks up a member of t, searching base classes after the
// direct members. The returned offset is relative to the start of t.
func (t *Type) FieldByName(name string) (*Field, int64, bool) {
	for _, f := range t.Members() {
		if f.Name == name {
			return f, f.ByteOffset, true
		}
	}
	for _, f := range t.Members() {
		if !f.BaseClass {
			continue
		}
		if bf, off, ok := f.Type.FieldByName(name); ok {
			return bf, f.ByteOffset + off, true
		}
	}
	return nil, 0, false
}

// HasField reports whether t, or one of its base classes, has a member
// called name.
func (t *Type) HasField(name string) bool {
	_, _, ok := t.FieldByName(name)
	return ok
}

// EnumName returns the name of the enumerator of t with value v.
func (t *Type) EnumName(v int64) (string, bool) {
	r := t.Resolve()
	if r == nil {
		return "", false
	}
	for _, e := range r.Enumerators {
		if e.Val == v {
			return e.Name, true
		}
	}
	return "", false
}

// Elem returns the type pointed to by t, stripping typedefs on both sides.
// Returns nil if t is not a pointer or points to void.
func (t *Type) Elem() *Type {
	r := t.Resolve()
	if r == nil || r.Kind != Pointer || r.Target == nil {
		return nil
	}
	if r.Target.Resolve().Kind == Void {
		return nil
	}
	return r.Target
}

// HookName is the name used to look up hooks for t: the name of the
// pointed-to type for pointers, typedef names preferred over tags.
func HookName(t *Type) string {
	if t == nil {
		return ""
	}
	if t.IsPointer() {
		r := t.Resolve()
		if r.Target == nil {
			return "void"
		}
		t = r.Target
	}
	if t.Name != "" {
		return t.Name
	}
	return t.String()
}

// TemplateArg returns the first template argument carried by t or by the
// type it points to.
func TemplateArg(t *Type) *Type {
	if t == nil {
		return nil
	}
	if len(t.TemplateArgs) > 0 {
		return t.TemplateArgs[0]
	}
	if e := t.Elem(); e != nil {
		if len(e.TemplateArgs) > 0 {
			return e.TemplateArgs[0]
		}
		if r := e.Resolve(); r != nil && len(r.TemplateArgs) > 0 {
			return r.TemplateArgs[0]
		}
	}
	return nil
}
