// Package dispatch resolves per-type hooks for the node walkers.
//
// The inspected structures form a single rooted, tag based hierarchy with no
// vtables. A Table emulates virtual dispatch over it: hooks are registered
// by type name and resolved by walking the declared base classes of the
// runtime type, falling back to a family default.
package dispatch

import (
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
)

const templPrefix = "templ_"

// Hook is a resolved hook. Key identifies the registration it comes from,
// e.g. "show_SeqScan", "walk_templ_Plan" or "show_" for the family default.
type Hook[F any] struct {
	Key string
	Fn  F
}

// Table holds the hooks of one operation kind.
type Table[F any] struct {
	prefix string
	exact  map[string]F
	templ  map[string]F
	def    *F
	log    logflags.Logger
}

// NewTable returns an empty table whose keys start with prefix.
func NewTable[F any](prefix string) *Table[F] {
	return &Table[F]{
		prefix: prefix,
		exact:  make(map[string]F),
		templ:  make(map[string]F),
		log:    logflags.DispatchLogger(),
	}
}

// Prefix returns the key prefix of the table.
func (t *Table[F]) Prefix() string { return t.prefix }

// Register adds fn as the hook for typeName. An empty typeName registers
// the family default.
func (t *Table[F]) Register(typeName string, fn F) {
	if typeName == "" {
		t.def = &fn
		return
	}
	t.exact[typeName] = fn
}

// RegisterTemplate adds fn as the hook for generic wrappers whose element
// type is elemTypeName.
func (t *Table[F]) RegisterTemplate(elemTypeName string, fn F) {
	t.templ[elemTypeName] = fn
}

// Keys returns the keys of every registered hook.
func (t *Table[F]) Keys() []string {
	r := make([]string, 0, len(t.exact)+len(t.templ)+1)
	for name := range t.exact {
		r = append(r, t.key("", name))
	}
	for name := range t.templ {
		r = append(r, t.key(templPrefix, name))
	}
	if t.def != nil {
		r = append(r, t.prefix+"_")
	}
	return r
}

func (t *Table[F]) key(kind, name string) string {
	return t.prefix + "_" + kind + name
}

// Resolve finds the hook for a node of type dyn. If elem is not nil the
// node is a generic wrapper over elem and template hooks registered over
// elem's hierarchy take precedence. Otherwise, or if none matches, the hook
// registered for dyn is used, then the one of its first base class
// (recursively), then the family default. The second result is false if
// no hook applies.
func (t *Table[F]) Resolve(dyn, elem *inspect.Type) (Hook[F], bool) {
	if elem != nil {
		if h, ok := t.lookup(t.templ, templPrefix, elem, false); ok {
			t.trace(dyn, elem, h.Key)
			return h, true
		}
	}
	h, ok := t.lookup(t.exact, "", dyn, true)
	if ok {
		t.trace(dyn, elem, h.Key)
	} else {
		t.trace(dyn, elem, "<none>")
	}
	return h, ok
}

// lookup only follows the first base class: once a type declares bases the
// search commits to the first one, even when a later base would match.
func (t *Table[F]) lookup(m map[string]F, kind string, typ *inspect.Type, useDefault bool) (Hook[F], bool) {
	if typ == nil {
		return t.fallback(useDefault)
	}
	name := inspect.HookName(typ)
	if fn, ok := m[name]; ok {
		return Hook[F]{Key: t.key(kind, name), Fn: fn}, true
	}
	base := typ
	if e := typ.Elem(); e != nil {
		base = e
	}
	if bases := base.BaseClasses(); len(bases) > 0 {
		bname := inspect.HookName(bases[0])
		if fn, ok := m[bname]; ok {
			return Hook[F]{Key: t.key(kind, bname), Fn: fn}, true
		}
		return t.lookup(m, kind, bases[0], useDefault)
	}
	return t.fallback(useDefault)
}

func (t *Table[F]) fallback(useDefault bool) (Hook[F], bool) {
	if useDefault && t.def != nil {
		return Hook[F]{Key: t.prefix + "_", Fn: *t.def}, true
	}
	return Hook[F]{}, false
}

func (t *Table[F]) trace(dyn, elem *inspect.Type, key string) {
	if !logflags.Dispatch() {
		return
	}
	if elem != nil {
		t.log.Debugf("%s_ for %s over %s resolved to %s", t.prefix, dyn, elem, key)
		return
	}
	t.log.Debugf("%s_ for %s resolved to %s", t.prefix, dyn, key)
}
