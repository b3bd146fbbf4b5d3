// Package script lets users define walker hooks in starlark.
//
// A script file defines functions named after the hook keys of the
// dispatch package:
//
//	def show_Sort(n):
//	    return "numCols=%d" % n.numCols
//
//	def walk_Hash(n):
//	    return [cast_node(n.plan.lefttree)]
//
// show_ hooks return the description of a node (None hides the line),
// walk_ hooks return a list of children and cast_ hooks return the node
// to print in place of their argument. A bare prefix ("show_")
// replaces the family default and "show_templ_Plan" registers a template
// hook for wrappers of Plan.
package script

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/pgdbg/pgdbg/pkg/dispatch"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
	"github.com/pgdbg/pgdbg/pkg/tagged"
)

const (
	castNodeBuiltinName  = "cast_node"
	listNodesBuiltinName = "list_nodes"
	typeNameBuiltinName  = "type_name"
	hasFieldBuiltinName  = "has_field"
	addressBuiltinName   = "address"

	templ = "templ_"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Env is the environment hook scripts are evaluated in.
type Env struct {
	env starlark.StringDict
	dec *tagged.Decoder
	out io.Writer
	log logflags.Logger
}

// New returns an environment whose builtins decode nodes with dec. Output
// of the starlark print function goes to out.
func New(dec *tagged.Decoder, out io.Writer) *Env {
	env := &Env{dec: dec, out: out, log: logflags.ScriptLogger()}
	env.env = starlark.StringDict{
		castNodeBuiltinName:  starlark.NewBuiltin(castNodeBuiltinName, env.castNode),
		listNodesBuiltinName: starlark.NewBuiltin(listNodesBuiltinName, env.listNodes),
		typeNameBuiltinName:  starlark.NewBuiltin(typeNameBuiltinName, env.typeName),
		hasFieldBuiltinName:  starlark.NewBuiltin(hasFieldBuiltinName, env.hasField),
		addressBuiltinName:   starlark.NewBuiltin(addressBuiltinName, env.address),
	}
	return env
}

// Builtins returns the names of the builtins available to scripts.
func (env *Env) Builtins() []string {
	r := make([]string, 0, len(env.env))
	for name := range env.env {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// Load executes a script and registers its hook functions into reg. Path
// is the name of the file and src its source, a string, []byte or
// io.Reader; if src is nil the file at path is read. Returns the keys of
// the registered hooks, sorted.
func (env *Env) Load(path string, src interface{}, reg *dispatch.Registry) ([]string, error) {
	globals, err := starlark.ExecFile(env.newThread(), path, src, env.env)
	if err != nil {
		return nil, err
	}
	var keys []string
	for name, val := range globals {
		fn, ok := val.(*starlark.Function)
		if !ok {
			continue
		}
		registered, err := env.register(reg, name, fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		if registered {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	if logflags.Script() {
		env.log.Debugf("%s: registered %s", path, strings.Join(keys, ", "))
	}
	return keys, nil
}

func (env *Env) register(reg *dispatch.Registry, name string, fn *starlark.Function) (bool, error) {
	i := strings.Index(name, "_")
	if i < 0 {
		return false, nil
	}
	prefix, rest := name[:i], name[i+1:]
	if prefix != dispatch.DescribePrefix && prefix != dispatch.ExpandPrefix && prefix != dispatch.CastPrefix {
		return false, nil
	}
	if fn.NumParams() != 1 {
		return false, fmt.Errorf("hook %s must take exactly one argument", name)
	}
	template := false
	if strings.HasPrefix(rest, templ) {
		template, rest = true, rest[len(templ):]
		if rest == "" {
			return false, fmt.Errorf("hook %s has no element type", name)
		}
	}

	switch prefix {
	case dispatch.DescribePrefix:
		h := env.describeHook(fn)
		if template {
			reg.Describe.RegisterTemplate(rest, h)
		} else {
			reg.Describe.Register(rest, h)
		}
	case dispatch.ExpandPrefix:
		h := env.expandHook(fn)
		if template {
			reg.Expand.RegisterTemplate(rest, h)
		} else {
			reg.Expand.Register(rest, h)
		}
	case dispatch.CastPrefix:
		h := env.castHook(fn)
		if template {
			reg.Cast.RegisterTemplate(rest, h)
		} else {
			reg.Cast.Register(rest, h)
		}
	}
	return true, nil
}

func (env *Env) newThread() *starlark.Thread {
	return &starlark.Thread{
		Print: func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) },
	}
}

func (env *Env) call(fn *starlark.Function, v *inspect.Value) (starlark.Value, error) {
	return starlark.Call(env.newThread(), fn, starlark.Tuple{env.wrap(v)}, nil)
}

func (env *Env) describeHook(fn *starlark.Function) dispatch.DescribeFunc {
	return func(v *inspect.Value) (string, bool, error) {
		r, err := env.call(fn, v)
		if err != nil {
			return "", false, err
		}
		switch r := r.(type) {
		case starlark.NoneType:
			return "", false, nil
		case starlark.String:
			return string(r), true, nil
		default:
			return r.String(), true, nil
		}
	}
}

func (env *Env) expandHook(fn *starlark.Function) dispatch.ExpandFunc {
	return func(v *inspect.Value) ([]*inspect.Value, error) {
		r, err := env.call(fn, v)
		if err != nil {
			return nil, err
		}
		if r == starlark.None {
			return nil, nil
		}
		iterable, ok := r.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("%s returned %s, not a list of nodes", fn.Name(), r.Type())
		}
		it := iterable.Iterate()
		defer it.Done()
		var children []*inspect.Value
		var x starlark.Value
		for it.Next(&x) {
			n, ok := x.(*nodeValue)
			if !ok {
				return nil, fmt.Errorf("%s returned a %s as a child, not a node", fn.Name(), x.Type())
			}
			children = append(children, n.v)
		}
		return children, nil
	}
}

func (env *Env) castHook(fn *starlark.Function) dispatch.CastFunc {
	return func(v *inspect.Value) (*inspect.Value, error) {
		r, err := env.call(fn, v)
		if err != nil {
			return nil, err
		}
		if r == starlark.None {
			return v, nil
		}
		n, ok := r.(*nodeValue)
		if !ok {
			return nil, fmt.Errorf("%s returned %s, not a node", fn.Name(), r.Type())
		}
		return n.v, nil
	}
}

func (env *Env) castNode(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n, err := unpackNode(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	v, err := env.dec.CastNode(n.v)
	if err != nil {
		return nil, decorateError(thread, err)
	}
	return env.wrap(v), nil
}

func (env *Env) listNodes(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var list starlark.Value
	elem := tagged.NodeTypeName
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "list", &list, "elem?", &elem); err != nil {
		return nil, err
	}
	n, ok := list.(*nodeValue)
	if !ok {
		return nil, fmt.Errorf("%s: argument is a %s, not a node", b.Name(), list.Type())
	}
	nodes, err := env.dec.Nodes(n.v, elem)
	if err != nil {
		return nil, decorateError(thread, err)
	}
	r := make([]starlark.Value, len(nodes))
	for i := range nodes {
		r[i] = env.wrap(nodes[i])
	}
	return starlark.NewList(r), nil
}

func (env *Env) typeName(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n, err := unpackNode(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(n.v.Type().String()), nil
}

func (env *Env) hasField(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var node starlark.Value
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "node", &node, "name", &name); err != nil {
		return nil, err
	}
	n, ok := node.(*nodeValue)
	if !ok {
		return nil, fmt.Errorf("%s: argument is a %s, not a node", b.Name(), node.Type())
	}
	return starlark.Bool(structType(n.v).HasField(name)), nil
}

func (env *Env) address(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n, err := unpackNode(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if n.v.Type().IsPointer() {
		p, err := n.v.Pointer()
		if err != nil {
			return nil, err
		}
		return starlark.MakeUint64(p), nil
	}
	return starlark.MakeUint64(n.v.Addr()), nil
}

func unpackNode(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*nodeValue, error) {
	var node starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &node); err != nil {
		return nil, err
	}
	n, ok := node.(*nodeValue)
	if !ok {
		return nil, fmt.Errorf("%s: argument is a %s, not a node", b.Name(), node.Type())
	}
	return n, nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}
