package script

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// nodeValue exposes a value of the inspected process to starlark. Struct
// members (and the members of the struct a pointer points to) are
// attributes; scalar members are converted to starlark numbers, booleans
// and, for enums, enumerator names.
type nodeValue struct {
	v   *inspect.Value
	env *Env
}

var _ starlark.HasAttrs = &nodeValue{}

func (env *Env) wrap(v *inspect.Value) *nodeValue {
	return &nodeValue{v: v, env: env}
}

func (n *nodeValue) Freeze() {}

func (n *nodeValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not a hashable type: %s", n.Type())
}

func (n *nodeValue) String() string {
	return fmt.Sprintf("(%s) %s", n.v.Type(), n.v)
}

func (n *nodeValue) Type() string { return "node" }

// Truth is false for NULL pointers.
func (n *nodeValue) Truth() starlark.Bool {
	if !n.v.Type().IsPointer() {
		return true
	}
	isNil, err := n.v.IsNil()
	return starlark.Bool(err == nil && !isNil)
}

func (n *nodeValue) Attr(name string) (starlark.Value, error) {
	if !structType(n.v).HasField(name) {
		return nil, nil
	}
	fv, err := n.v.Field(name)
	if err != nil {
		return nil, err
	}
	return n.env.toStarlark(fv)
}

func (n *nodeValue) AttrNames() []string {
	var r []string
	var collect func(t *inspect.Type)
	collect = func(t *inspect.Type) {
		for _, f := range t.Members() {
			r = append(r, f.Name)
			if f.BaseClass {
				collect(f.Type)
			}
		}
	}
	collect(structType(n.v))
	return r
}

// toStarlark converts scalars, leaving pointers, structs and arrays
// wrapped.
func (env *Env) toStarlark(v *inspect.Value) (starlark.Value, error) {
	r := v.Type().Resolve()
	if r == nil {
		return nil, errors.New("value without a type")
	}
	switch r.Kind {
	case inspect.Bool:
		b, err := v.Bool()
		return starlark.Bool(b), err
	case inspect.Int:
		i, err := v.Int()
		return starlark.MakeInt64(i), err
	case inspect.Uint:
		u, err := v.Uint()
		return starlark.MakeUint64(u), err
	case inspect.Enum:
		i, err := v.Int()
		if err != nil {
			return nil, err
		}
		if name, ok := r.EnumName(i); ok {
			return starlark.String(name), nil
		}
		return starlark.MakeInt64(i), nil
	case inspect.Float:
		return starlark.String(v.String()), nil
	}
	return env.wrap(v), nil
}

// structType is the struct type whose members are reachable from v.
func structType(v *inspect.Value) *inspect.Type {
	if e := v.Type().Elem(); e != nil {
		return e
	}
	return v.Type()
}
