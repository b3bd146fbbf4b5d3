package pgnodes

import (
	"fmt"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/tagged"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

// FormatNode casts v to its concrete node type, binds it to a new alias and
// prints it:
//
//	$c0 (SeqScan *) {plan = {...}, scanrelid = 1}
func FormatNode(dec *tagged.Decoder, aliases *alias.Store, v *inspect.Value, sink walker.Sink) error {
	n, err := dec.CastNode(v)
	if err != nil {
		return err
	}
	name := aliases.NewAllocator().Bind(n)
	body := n.String()
	if deref, err := n.Deref(); err == nil {
		body = deref.String()
	}
	sink.EmitLine(fmt.Sprintf("%s (%s) %s", name, n.Type(), body))
	return nil
}

// FormatList prints the elements of a List. Pointer elements are cast to
// their node type and bound to an alias:
//
//	List with 2 ptr_value elements
//	[0] = $d (Var *) 0x10040
//	[1] = $e (Const *) 0x10080
//
// Scalar elements are printed as numbers.
func FormatList(dec *tagged.Decoder, aliases *alias.Store, list *inspect.Value, sink walker.Sink) error {
	it, err := dec.Iterate(list, tagged.NodeTypeName)
	if err != nil {
		return err
	}
	sink.EmitLine(fmt.Sprintf("List with %d %s elements", it.Len(), it.Kind()))
	for it.Next() {
		var s string
		switch c := it.Cell().(type) {
		case *tagged.PtrCell:
			name := aliases.Bind(c.Target)
			s = fmt.Sprintf("%s (%s *) %s", name, inspect.HookName(c.Target.Type()), c.Target)
		default:
			s = c.String()
		}
		sink.EmitLine(fmt.Sprintf("[%d] = %s", it.Index(), s))
	}
	return it.Err()
}
