package memimage

import (
	"fmt"
	"strings"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// Builder allocates typed objects into an Image. Builder methods panic on
// programming errors (unknown types or fields): they exist to write
// fixtures, not to parse untrusted input.
type Builder struct {
	Image   *Image
	Catalog *Catalog
	Proc    *inspect.Process
}

// NewBuilder returns a builder over a fresh image using cat.
func NewBuilder(cat *Catalog) *Builder {
	img := New(DefaultBase)
	return &Builder{Image: img, Catalog: cat, Proc: inspect.NewProcess(img, cat, 8)}
}

// Object is an allocated value.
type Object struct {
	b    *Builder
	Addr uint64
	Type *inspect.Type
}

// New allocates a zeroed object of the named type.
func (b *Builder) New(typeName string) *Object {
	return b.NewOf(b.Catalog.MustLookup(typeName))
}

// NewOf allocates a zeroed object of type t.
func (b *Builder) NewOf(t *inspect.Type) *Object {
	addr := b.Image.Alloc(t.Size(), alignOf(t))
	return &Object{b: b, Addr: addr, Type: t}
}

// Node allocates a node of the named type and sets its tag to the
// enumerator "T_<typeName>".
func (b *Builder) Node(typeName string) *Object {
	o := b.New(typeName)
	return o.SetEnum("type", "T_"+typeName)
}

// List allocates a List with the given tag whose cells hold vals.
func (b *Builder) List(tag int64, vals ...uint64) *Object {
	cell := b.Catalog.MustLookup("ListCell")
	l := b.New("List")
	l.Set("type", uint64(tag))
	l.Set("length", uint64(len(vals)))
	l.Set("max_length", uint64(len(vals)))
	if len(vals) == 0 {
		return l
	}
	arr := b.NewOf(ArrayOf(cell, int64(len(vals))))
	for i, v := range vals {
		addr := arr.Addr + uint64(int64(i)*cell.Size())
		name := "ptr_value"
		switch tag {
		case TagIntList:
			name = "int_value"
		case TagOidList:
			name = "oid_value"
		case TagXidList:
			name = "xid_value"
		}
		f, _, _ := cell.FieldByName(name)
		b.must(b.Image.WriteUint(addr, f.Type.Size(), v))
	}
	l.Set("elements", arr.Addr)
	return l
}

// PtrList allocates a pointer List holding objs.
func (b *Builder) PtrList(objs ...*Object) *Object {
	addrs := make([]uint64, len(objs))
	for i, o := range objs {
		addrs[i] = o.Addr
	}
	return b.List(TagList, addrs...)
}

func (b *Builder) must(err error) {
	if err != nil {
		panic(err)
	}
}

// field resolves a dotted path such as "scan.scanrelid".
func (o *Object) field(path string) (*inspect.Field, uint64) {
	t := o.Type
	addr := o.Addr
	var f *inspect.Field
	for _, name := range strings.Split(path, ".") {
		var off int64
		var ok bool
		f, off, ok = t.FieldByName(name)
		if !ok {
			panic(fmt.Sprintf("no field %s", describe(t, name)))
		}
		addr += uint64(off)
		t = f.Type
	}
	return f, addr
}

// Set stores v in the integer, enum, bool or pointer field at path.
func (o *Object) Set(path string, v uint64) *Object {
	f, addr := o.field(path)
	o.b.must(o.b.Image.WriteUint(addr, f.Type.Size(), v))
	return o
}

// SetEnum stores the enumerator called name in the field at path.
func (o *Object) SetEnum(path, name string) *Object {
	f, _ := o.field(path)
	r := f.Type.Resolve()
	for _, e := range r.Enumerators {
		if e.Name == name {
			return o.Set(path, uint64(e.Val))
		}
	}
	panic(fmt.Sprintf("no enumerator %s in %s", name, f.Type))
}

// SetPtr stores the address of target in the pointer field at path.
func (o *Object) SetPtr(path string, target *Object) *Object {
	if target == nil {
		return o.Set(path, 0)
	}
	return o.Set(path, target.Addr)
}

// Value returns the object as a located value of its own type.
func (o *Object) Value() *inspect.Value {
	return o.b.Proc.ValueAt(o.Addr, o.Type)
}

// Ptr returns a pointer to the object typed as a pointer to its own type.
func (o *Object) Ptr() *inspect.Value {
	return o.b.Proc.PointerValue(o.Addr, o.Type)
}

// PtrAs returns a pointer to the object typed as a pointer to typeName.
func (o *Object) PtrAs(typeName string) *inspect.Value {
	return o.b.Proc.PointerValue(o.Addr, o.b.Catalog.MustLookup(typeName))
}
