package dwarfcat

import (
	"debug/dwarf"
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// converter translates one godwarf type graph into inspect types. Types
// are registered in seen before their components are converted so that
// recursive structs (Plan.lefttree) terminate.
type converter struct {
	cat  *Catalog
	seen map[dwarf.Offset]*inspect.Type
	err  error
}

func (cv *converter) convert(dt godwarf.Type) *inspect.Type {
	if dt == nil || cv.err != nil {
		return nil
	}
	if _, isVoid := dt.(*godwarf.VoidType); isVoid {
		return &inspect.Type{Name: "void", Kind: inspect.Void}
	}
	off := dt.Common().Offset
	if q, isQual := dt.(*godwarf.QualType); isQual {
		// const and volatile are dropped, the qualified type stands in.
		inner := cv.convert(q.Type)
		if off != 0 && inner != nil {
			cv.seen[off] = inner
		}
		return inner
	}
	if off != 0 {
		if t, ok := cv.seen[off]; ok {
			return t
		}
		if v, ok := cv.cat.converted.Get(off); ok {
			return v.(*inspect.Type)
		}
	}
	t := &inspect.Type{Name: dt.Common().Name, ByteSize: dt.Common().ByteSize}
	if off != 0 {
		cv.seen[off] = t
	}

	switch dt := dt.(type) {
	case *godwarf.TypedefType:
		t.Kind = inspect.Typedef
		t.Target = cv.convert(dt.Type)
		if t.ByteSize <= 0 && t.Target != nil {
			t.ByteSize = t.Target.Size()
		}
	case *godwarf.PtrType:
		t.Kind = inspect.Pointer
		t.Name = ""
		if t.ByteSize <= 0 {
			t.ByteSize = int64(cv.cat.ptrSize())
		}
		if target := cv.convert(dt.Type); target != nil && target.Kind != inspect.Void {
			t.Target = target
		}
	case *godwarf.StructType:
		cv.convertStruct(t, dt)
	case *godwarf.ArrayType:
		t.Kind = inspect.Array
		t.Name = ""
		t.Count = dt.Count
		t.Target = cv.convert(dt.Type)
		if t.ByteSize <= 0 {
			t.ByteSize = 0
			if t.Count > 0 && t.Target != nil {
				t.ByteSize = t.Count * t.Target.Size()
			}
		}
	case *godwarf.EnumType:
		t.Kind = inspect.Enum
		if dt.EnumName != "" {
			t.Name = dt.EnumName
		}
		for _, v := range dt.Val {
			t.Enumerators = append(t.Enumerators, inspect.Enumerator{Name: v.Name, Val: v.Val})
		}
	case *godwarf.IntType, *godwarf.CharType:
		t.Kind = inspect.Int
	case *godwarf.UintType, *godwarf.UcharType, *godwarf.AddrType:
		t.Kind = inspect.Uint
	case *godwarf.BoolType:
		t.Kind = inspect.Bool
	case *godwarf.FloatType:
		t.Kind = inspect.Float
	case *godwarf.UnspecifiedType:
		t.Kind = inspect.Void
	default:
		// Function types and the Go specific kinds are opaque.
		t.Kind = inspect.Invalid
		if t.Name == "" {
			t.Name = dt.String()
		}
	}
	return t
}

func (cv *converter) convertStruct(t *inspect.Type, dt *godwarf.StructType) {
	t.Kind = inspect.Struct
	if dt.Kind == "union" {
		t.Kind = inspect.Union
	}
	if dt.StructName != "" {
		t.Name = dt.StructName
	}
	for i, f := range dt.Field {
		field := &inspect.Field{
			Name:       f.Name,
			Type:       cv.convert(f.Type),
			ByteOffset: f.ByteOffset,
			BaseClass:  f.Embedded,
		}
		if field.Type == nil {
			return
		}
		if i == len(dt.Field)-1 && field.Type.Kind == inspect.Array && field.Type.Count == 0 && f.ByteOffset == t.ByteSize {
			// Trailing flexible array member, such as List.initial_elements.
			flex := *field.Type
			flex.Count = -1
			field.Type = &flex
		}
		t.Fields = append(t.Fields, field)
	}
	t.MarkEmbeddedBase()
	t.TemplateArgs = cv.templateArgs(dt.Common().Offset)
}

// templateArgs reads the DW_TAG_template_type_parameter children of the
// struct at off, which godwarf does not decode.
func (cv *converter) templateArgs(off dwarf.Offset) []*inspect.Type {
	if off == 0 {
		return nil
	}
	r := cv.cat.dwarf.Reader()
	r.Seek(off)
	e, err := r.Next()
	if err != nil || e == nil || !e.Children {
		return nil
	}
	var args []*inspect.Type
	for {
		kid, err := r.Next()
		if err != nil {
			cv.err = fmt.Errorf("reading template parameters of %#x: %v", off, err)
			return nil
		}
		if kid == nil || kid.Tag == 0 {
			break
		}
		if kid.Children {
			r.SkipChildren()
		}
		if kid.Tag != dwarf.TagTemplateTypeParameter {
			continue
		}
		toff, ok := kid.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			continue
		}
		dt, err := godwarf.ReadType(cv.cat.dwarf, 0, toff, cv.cat.typeCache)
		if err != nil {
			cv.err = err
			return nil
		}
		if at := cv.convert(dt); at != nil {
			args = append(args, at)
		}
	}
	return args
}
