package dispatch

import (
	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// DescribeFunc returns the description printed after a node's value. A
// false second result suppresses the node's line entirely; an empty
// description prints the line without trailing fields.
type DescribeFunc func(v *inspect.Value) (string, bool, error)

// ExpandFunc returns the children of a node, in the order they must be
// visited.
type ExpandFunc func(v *inspect.Value) ([]*inspect.Value, error)

// CastFunc reinterprets a node as a more specific type.
type CastFunc func(v *inspect.Value) (*inspect.Value, error)

// Key prefixes of the three operation kinds.
const (
	DescribePrefix = "show"
	ExpandPrefix   = "walk"
	CastPrefix     = "cast"
)

// Registry groups the hook tables of one walker.
type Registry struct {
	Describe *Table[DescribeFunc]
	Expand   *Table[ExpandFunc]
	Cast     *Table[CastFunc]
}

// NewRegistry returns a registry with empty tables.
func NewRegistry() *Registry {
	return &Registry{
		Describe: NewTable[DescribeFunc](DescribePrefix),
		Expand:   NewTable[ExpandFunc](ExpandPrefix),
		Cast:     NewTable[CastFunc](CastPrefix),
	}
}
