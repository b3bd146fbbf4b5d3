// Package walker renders node graphs of the inspected process as ASCII
// trees.
//
// A Walker visits nodes depth first. For every node it resolves, through
// its dispatch.Registry, a cast hook (to reinterpret the node as its
// concrete type), a describe hook (the text printed after the node's value)
// and an expand hook (the node's children). Every printed node is bound to
// a fresh alias:
//
//	$a0 (HashJoin *) 0x10040
//	|--$a1 (Hash *) 0x100a0
//	|  `--$a2 (SeqScan *) 0x10120 scanrelid=1
//	`--$a3 (IndexScan *) 0x101c0 scanrelid=2
package walker

import (
	"fmt"
	"strings"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/dispatch"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
)

const (
	glyphMore  = '|'
	glyphLast  = '`'
	glyphBlank = ' '

	levelSep    = "  "
	childMarker = "--"
)

// Sink receives the rendered lines of a walk.
type Sink interface {
	EmitLine(line string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(line string)

// EmitLine calls f(line).
func (f SinkFunc) EmitLine(line string) { f(line) }

// Walker walks node graphs using the hooks of a registry.
type Walker struct {
	reg     *dispatch.Registry
	aliases *alias.Store
	log     logflags.Logger
}

// New returns a walker resolving hooks in reg and binding the aliases of
// visited nodes in aliases. If aliases is nil the walker uses a private
// store.
func New(reg *dispatch.Registry, aliases *alias.Store) *Walker {
	if aliases == nil {
		aliases = alias.NewStore(alias.DefaultMaxLen)
	}
	return &Walker{reg: reg, aliases: aliases, log: logflags.WalkerLogger()}
}

// Registry returns the hook registry of the walker.
func (w *Walker) Registry() *dispatch.Registry { return w.reg }

// Aliases returns the alias store of the walker.
func (w *Walker) Aliases() *alias.Store { return w.aliases }

// Walk prints the tree rooted at root to sink. The walk stops at the first
// error, which is returned as an *Error; lines already emitted are not
// retracted.
func (w *Walker) Walk(root *inspect.Value, sink Sink) error {
	t := &traversal{
		w:     w,
		sink:  sink,
		alloc: w.aliases.NewAllocator(),
	}
	if logflags.Walker() {
		w.log.Debugf("walk of %s %s, aliases $%s<n>", root.Type(), root, t.alloc.Prefix())
	}
	return t.visit(root, 0)
}

// traversal is the state of one walk.
type traversal struct {
	w      *Walker
	sink   Sink
	alloc  *alias.Allocator
	levels []byte
}

func (t *traversal) visit(node *inspect.Value, depth int) error {
	n, err := t.cast(node)
	if err != nil {
		return wrap(node, err)
	}

	name := t.alloc.Bind(n.val)

	desc, show, err := t.describe(n)
	if err != nil {
		return wrap(n.val, err)
	}
	if show {
		t.emit(depth, name, n.val, desc)
	} else if logflags.Walker() {
		t.w.log.WithField("alias", name).Debugf("line of %s suppressed", n.val.Type())
	}
	t.consumeLast()

	children, err := t.expand(n)
	if err != nil {
		return wrap(n.val, err)
	}
	if len(children) == 0 {
		return nil
	}
	if len(t.levels) < depth+1 {
		t.levels = append(t.levels, glyphMore)
	} else {
		t.levels[depth] = glyphMore
	}
	for i, child := range children {
		if i == len(children)-1 {
			t.levels[depth] = glyphLast
		}
		if err := t.visit(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// castNode is a node after the cast step: val is the value handed to the
// describe and expand hooks, dyn its dynamic type before any cast hook was
// applied.
type castNode struct {
	val    *inspect.Value
	dyn    *inspect.Type
	casted bool
}

func (t *traversal) cast(node *inspect.Value) (castNode, error) {
	dyn, err := node.DynamicType()
	if err != nil {
		return castNode{}, err
	}
	n := castNode{val: node, dyn: dyn}
	if dyn != node.Type() {
		n.val = node.Cast(dyn)
	}
	hook, ok := t.w.reg.Cast.Resolve(dyn, inspect.TemplateArg(node.Type()))
	if !ok {
		return n, nil
	}
	v, err := hook.Fn(n.val)
	if err != nil {
		return castNode{}, fmt.Errorf("%s: %w", hook.Key, err)
	}
	if v != nil && v != n.val {
		n.val, n.casted = v, true
	}
	return n, nil
}

func (t *traversal) describe(n castNode) (string, bool, error) {
	hook, ok := resolve(t.w.reg.Describe, n)
	if !ok {
		return "", true, nil
	}
	desc, show, err := hook.Fn(n.val)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", hook.Key, err)
	}
	return desc, show, nil
}

func (t *traversal) expand(n castNode) ([]*inspect.Value, error) {
	hook, ok := resolve(t.w.reg.Expand, n)
	if !ok {
		return nil, nil
	}
	children, err := hook.Fn(n.val)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", hook.Key, err)
	}
	return children, nil
}

// resolve prefers hooks of the type the node was cast to, falling back to
// the hooks of its dynamic type.
func resolve[F any](tab *dispatch.Table[F], n castNode) (dispatch.Hook[F], bool) {
	if n.casted {
		typ := n.val.Type()
		if h, ok := tab.Resolve(typ, inspect.TemplateArg(typ)); ok {
			return h, true
		}
	}
	return tab.Resolve(n.dyn, inspect.TemplateArg(n.dyn))
}

func (t *traversal) emit(depth int, name string, v *inspect.Value, desc string) {
	var b strings.Builder
	b.WriteString(t.margin(depth))
	if depth > 0 {
		b.WriteString(childMarker)
	}
	fmt.Fprintf(&b, "%s (%s) %s", name, v.Type(), v)
	if desc != "" {
		b.WriteByte(' ')
		b.WriteString(desc)
	}
	t.sink.EmitLine(b.String())
}

func (t *traversal) margin(depth int) string {
	if depth > len(t.levels) {
		depth = len(t.levels)
	}
	var b strings.Builder
	for i, c := range t.levels[:depth] {
		if i > 0 {
			b.WriteString(levelSep)
		}
		b.WriteByte(c)
	}
	return b.String()
}

// consumeLast blanks the glyphs of closed branches once the line of their
// last child has been printed.
func (t *traversal) consumeLast() {
	for i, c := range t.levels {
		if c == glyphLast {
			t.levels[i] = glyphBlank
		}
	}
}
