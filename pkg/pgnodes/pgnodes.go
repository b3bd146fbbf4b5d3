// Package pgnodes walks PostgreSQL's node trees: expression trees, plan
// trees, and the List container.
package pgnodes

import (
	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/dispatch"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/tagged"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

const (
	planTypeName = "Plan"
	argsField    = "args"
)

var childSlots = []string{"lefttree", "righttree"}

// nodeType returns the type of the node v refers to: the pointed-to type
// for pointers, the type of v otherwise.
func nodeType(v *inspect.Value) *inspect.Type {
	if e := v.Type().Elem(); e != nil {
		return e
	}
	return v.Type()
}

// CastFunc returns a cast hook reinterpreting node pointers as their
// concrete type. NULL pointers and values whose type has no tag are
// returned unchanged.
func CastFunc(dec *tagged.Decoder) dispatch.CastFunc {
	return func(v *inspect.Value) (*inspect.Value, error) {
		if !v.Type().IsPointer() {
			return v, nil
		}
		if e := v.Type().Elem(); e != nil && !e.HasField(tagged.TagField) {
			return v, nil
		}
		isnil, err := v.IsNil()
		if err != nil {
			return nil, err
		}
		if isnil {
			return v, nil
		}
		return dec.CastNode(v)
	}
}

// ExprRegistry returns the hooks of the expression tree walker: lists
// expand into their node elements, other nodes into their args list when
// they have one, and the fields listed in fields are printed.
func ExprRegistry(dec *tagged.Decoder, fields DisplayFields) *dispatch.Registry {
	reg := dispatch.NewRegistry()
	reg.Cast.Register("", CastFunc(dec))
	reg.Expand.Register(tagged.ListTypeName, func(v *inspect.Value) ([]*inspect.Value, error) {
		return dec.Nodes(v, tagged.NodeTypeName)
	})
	reg.Expand.Register("", func(v *inspect.Value) ([]*inspect.Value, error) {
		if !nodeType(v).HasField(argsField) {
			return nil, nil
		}
		args, err := v.Field(argsField)
		if err != nil {
			return nil, err
		}
		return dec.Nodes(args, tagged.NodeTypeName)
	})
	reg.Describe.Register("", func(v *inspect.Value) (string, bool, error) {
		desc, _, err := fields.Describe(v, inspect.HookName(v.Type()))
		return desc, true, err
	})
	return reg
}

// PlanRegistry returns the hooks of the plan tree walker: every plan node
// expands into its non NULL lefttree and righttree, scans print their
// range table index.
func PlanRegistry(dec *tagged.Decoder) *dispatch.Registry {
	reg := dispatch.NewRegistry()
	cast := CastFunc(dec)
	reg.Cast.Register("", cast)
	reg.Expand.Register("", func(v *inspect.Value) ([]*inspect.Value, error) {
		if !nodeType(v).HasField(childSlots[0]) {
			return nil, nil
		}
		planT, err := dec.Process().LookupType(planTypeName)
		if err != nil {
			return nil, err
		}
		plan := v
		if v.Type().IsPointer() {
			plan = v.Cast(dec.Process().PointerTo(planT))
		}
		var children []*inspect.Value
		for _, slot := range childSlots {
			child, err := plan.Field(slot)
			if err != nil {
				return nil, err
			}
			isnil, err := child.IsNil()
			if err != nil {
				return nil, err
			}
			if isnil {
				continue
			}
			child, err = cast(child)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return children, nil
	})
	reg.Describe.Register("Scan", showScan)
	reg.Describe.Register("SeqScan", showScan)
	return reg
}

func showScan(v *inspect.Value) (string, bool, error) {
	rel, err := v.Field("scanrelid")
	if err != nil {
		return "", false, err
	}
	return "scanrelid=" + rel.String(), true, nil
}

// NewExprWalker returns the expression tree walker.
func NewExprWalker(dec *tagged.Decoder, aliases *alias.Store, fields DisplayFields) *walker.Walker {
	return walker.New(ExprRegistry(dec, fields), aliases)
}

// NewPlanWalker returns the plan tree walker.
func NewPlanWalker(dec *tagged.Decoder, aliases *alias.Store) *walker.Walker {
	return walker.New(PlanRegistry(dec), aliases)
}
