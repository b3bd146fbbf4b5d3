package inspect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxArrayValues is the number of array elements printed by Value.String.
const maxArrayValues = 16

// Value is a typed, read-only reference to memory of the inspected process.
// Values are either located at an address or hold their bytes directly
// (pointers computed by the engine rather than read from memory).
type Value struct {
	proc    *Process
	typ     *Type
	addr    uint64
	located bool
	data    []byte
}

// Process returns the process v was read from.
func (v *Value) Process() *Process { return v.proc }

// Type returns the declared type of v.
func (v *Value) Type() *Type { return v.typ }

// Addr returns the address v is stored at, zero for immediate values.
func (v *Value) Addr() uint64 { return v.addr }

// Located reports whether v lives in the inspected memory.
func (v *Value) Located() bool { return v.located }

// DynamicType returns the most derived type of v known to the process.
func (v *Value) DynamicType() (*Type, error) {
	if v.proc.Dynamic != nil {
		t, err := v.proc.Dynamic.DynamicType(v)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return v.typ, nil
}

// Bytes returns the raw contents of v.
func (v *Value) Bytes() ([]byte, error) {
	if v.data != nil {
		return v.data, nil
	}
	buf, err := v.proc.read(v.addr, int(v.typ.Size()))
	if err != nil {
		return nil, err
	}
	v.data = buf
	return buf, nil
}

// Cast reinterprets v as type t. The memory is not touched.
func (v *Value) Cast(t *Type) *Value {
	r := &Value{proc: v.proc, typ: t, addr: v.addr, located: v.located}
	if !v.located {
		r.data = v.data
	}
	return r
}

// Int returns v as a signed integer. Unsigned values, booleans, enums and
// pointers are accepted.
func (v *Value) Int() (int64, error) {
	r := v.typ.Resolve()
	buf, err := v.scalarBytes(r)
	if err != nil {
		return 0, err
	}
	u := v.proc.uint(buf)
	switch r.Kind {
	case Int, Enum:
		shift := uint(64 - 8*len(buf))
		return int64(u<<shift) >> shift, nil
	default:
		return int64(u), nil
	}
}

// Uint returns v as an unsigned integer.
func (v *Value) Uint() (uint64, error) {
	r := v.typ.Resolve()
	buf, err := v.scalarBytes(r)
	if err != nil {
		return 0, err
	}
	return v.proc.uint(buf), nil
}

// Bool returns v as a boolean.
func (v *Value) Bool() (bool, error) {
	u, err := v.Uint()
	return u != 0, err
}

// Pointer returns the address held by a pointer value.
func (v *Value) Pointer() (uint64, error) {
	if !v.typ.IsPointer() {
		return 0, fmt.Errorf("%s is not a pointer", v.typ)
	}
	return v.Uint()
}

// IsNil reports whether v is a NULL pointer.
func (v *Value) IsNil() (bool, error) {
	p, err := v.Pointer()
	return p == 0, err
}

func (v *Value) scalarBytes(r *Type) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("value has no type")
	}
	switch r.Kind {
	case Bool, Int, Uint, Enum, Pointer:
	default:
		return nil, fmt.Errorf("%s is not an integer", v.typ)
	}
	buf, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	switch len(buf) {
	case 1, 2, 4, 8:
		return buf, nil
	}
	return nil, fmt.Errorf("unsupported integer size %d for %s", len(buf), v.typ)
}

// Deref returns the value pointed to by v.
func (v *Value) Deref() (*Value, error) {
	target := v.typ.Elem()
	if target == nil {
		return nil, fmt.Errorf("can not dereference %s", v.typ)
	}
	p, err := v.Pointer()
	if err != nil {
		return nil, err
	}
	if p == 0 {
		return nil, fmt.Errorf("nil pointer dereference of %s", v.typ)
	}
	return v.proc.ValueAt(p, target), nil
}

// Field returns the member called name. Pointers to structs are
// dereferenced first.
func (v *Value) Field(name string) (*Value, error) {
	s := v
	if v.typ.IsPointer() {
		var err error
		s, err = v.Deref()
		if err != nil {
			return nil, err
		}
	}
	r := s.typ.Resolve()
	if r == nil || (r.Kind != Struct && r.Kind != Union) {
		return nil, &MissingFieldError{Type: s.typ.String(), Field: name}
	}
	f, off, ok := r.FieldByName(name)
	if !ok {
		return nil, &MissingFieldError{Type: s.typ.String(), Field: name}
	}
	if s.located {
		return s.proc.ValueAt(s.addr+uint64(off), f.Type), nil
	}
	end := off + f.Type.Size()
	if end > int64(len(s.data)) {
		return nil, fmt.Errorf("field %s outside of %s", name, s.typ)
	}
	return &Value{proc: s.proc, typ: f.Type, data: s.data[off:end]}, nil
}

// Index returns element i of an array, or the i-th object pointed to by a
// pointer.
func (v *Value) Index(i int64) (*Value, error) {
	r := v.typ.Resolve()
	switch {
	case r.Kind == Array:
		if r.Count >= 0 && i >= r.Count {
			return nil, fmt.Errorf("index %d out of bounds for %s", i, v.typ)
		}
		if !v.located {
			return nil, fmt.Errorf("can not index %s", v.typ)
		}
		return v.proc.ValueAt(v.addr+uint64(i*r.Target.Size()), r.Target), nil
	case r.Kind == Pointer:
		target := v.typ.Elem()
		if target == nil {
			return nil, fmt.Errorf("can not index %s", v.typ)
		}
		p, err := v.Pointer()
		if err != nil {
			return nil, err
		}
		if p == 0 {
			return nil, fmt.Errorf("nil pointer dereference of %s", v.typ)
		}
		return v.proc.ValueAt(p+uint64(i*target.Size()), target), nil
	}
	return nil, fmt.Errorf("can not index %s", v.typ)
}

// String formats v the way a debugger prints it.
func (v *Value) String() string {
	s, err := v.format(true)
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return s
}

func (v *Value) format(top bool) (string, error) {
	r := v.typ.Resolve()
	if r == nil {
		return "", fmt.Errorf("value has no type")
	}
	switch r.Kind {
	case Bool:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case Int:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case Uint:
		n, err := v.Uint()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(n, 10), nil
	case Enum:
		n, err := v.Int()
		if err != nil {
			return "", err
		}
		if name, ok := r.EnumName(n); ok {
			return name, nil
		}
		return strconv.FormatInt(n, 10), nil
	case Pointer:
		p, err := v.Pointer()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%#x", p), nil
	case Float:
		buf, err := v.Bytes()
		if err != nil {
			return "", err
		}
		switch len(buf) {
		case 4:
			return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.proc.uint(buf)))), 'g', -1, 32), nil
		case 8:
			return strconv.FormatFloat(math.Float64frombits(v.proc.uint(buf)), 'g', -1, 64), nil
		}
		return "", fmt.Errorf("unsupported float size %d", len(buf))
	case Struct, Union:
		if !top {
			return "{...}", nil
		}
		parts := make([]string, 0, len(r.Fields))
		for _, f := range r.Fields {
			fv, err := v.Field(f.Name)
			if err != nil {
				return "", err
			}
			s, err := fv.format(false)
			if err != nil {
				return "", err
			}
			parts = append(parts, f.Name+" = "+s)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case Array:
		if !top || r.Count <= 0 {
			return "{...}", nil
		}
		n := r.Count
		more := ""
		if n > maxArrayValues {
			n = maxArrayValues
			more = "..."
		}
		parts := make([]string, 0, n)
		for i := int64(0); i < n; i++ {
			ev, err := v.Index(i)
			if err != nil {
				return "", err
			}
			s, err := ev.format(false)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "{" + strings.Join(parts, ", ") + more + "}", nil
	case Void:
		return "void", nil
	}
	return "", fmt.Errorf("can not format %s", v.typ)
}
