// Package tagged decodes the tag discriminated structures of the inspected
// process: node pointers whose concrete type is named by their leading
// NodeTag, and List cells whose payload encoding is selected by the tag of
// the list header.
package tagged

import (
	"fmt"
	"strconv"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// Kind is the payload encoding of a list cell.
type Kind uint8

const (
	PtrKind Kind = iota
	IntKind
	OidKind
	XidKind
)

// field returns the ListCell union member holding payloads of kind k.
func (k Kind) field() string {
	switch k {
	case IntKind:
		return "int_value"
	case OidKind:
		return "oid_value"
	case XidKind:
		return "xid_value"
	}
	return "ptr_value"
}

func (k Kind) String() string { return k.field() }

// Tags are the discriminant values reserved for list payload kinds.
type Tags struct {
	Ptr int64 `yaml:"ptr"`
	Int int64 `yaml:"int"`
	Oid int64 `yaml:"oid"`
	Xid int64 `yaml:"xid"`
}

// DefaultTags are the list tags of the supported PostgreSQL builds.
var DefaultTags = Tags{Ptr: 1, Int: 451, Oid: 452, Xid: 453}

// UnmarshalYAML decodes t on top of DefaultTags, a partial mapping only
// replaces the kinds it names.
func (t *Tags) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Tags
	v := plain(DefaultTags)
	if err := unmarshal(&v); err != nil {
		return err
	}
	if err := Tags(v).Validate(); err != nil {
		return err
	}
	*t = Tags(v)
	return nil
}

// Validate returns an error if two payload kinds share a tag.
func (t Tags) Validate() error {
	vals := []struct {
		kind Kind
		tag  int64
	}{{PtrKind, t.Ptr}, {IntKind, t.Int}, {OidKind, t.Oid}, {XidKind, t.Xid}}
	for i := range vals {
		for j := i + 1; j < len(vals); j++ {
			if vals[i].tag == vals[j].tag {
				return fmt.Errorf("list tags of %s and %s are both %d", vals[i].kind, vals[j].kind, vals[i].tag)
			}
		}
	}
	return nil
}

// Kind maps a tag to a payload kind.
func (t Tags) Kind(tag int64) (Kind, error) {
	switch tag {
	case t.Ptr:
		return PtrKind, nil
	case t.Int:
		return IntKind, nil
	case t.Oid:
		return OidKind, nil
	case t.Xid:
		return XidKind, nil
	}
	return 0, &UnknownTagError{Tag: tag}
}

// Cell is a decoded list element. It is one of *PtrCell, IntCell, OidCell
// or XidCell.
type Cell interface {
	Kind() Kind
	String() string
}

// PtrCell is a pointer payload, already reinterpreted as a pointer to the
// element type (or to the concrete node type for Node lists).
type PtrCell struct {
	Target *inspect.Value
}

// IntCell is a signed integer payload.
type IntCell int64

// OidCell is an object identifier payload.
type OidCell uint32

// XidCell is a transaction identifier payload.
type XidCell uint32

func (*PtrCell) Kind() Kind { return PtrKind }
func (IntCell) Kind() Kind  { return IntKind }
func (OidCell) Kind() Kind  { return OidKind }
func (XidCell) Kind() Kind  { return XidKind }

func (c *PtrCell) String() string {
	return fmt.Sprintf("(%s) %s", c.Target.Type(), c.Target)
}

func (c IntCell) String() string { return strconv.FormatInt(int64(c), 10) }
func (c OidCell) String() string { return strconv.FormatUint(uint64(c), 10) }
func (c XidCell) String() string { return strconv.FormatUint(uint64(c), 10) }

// UnknownTagError is returned when a discriminant does not name a list
// payload kind.
type UnknownTagError struct {
	Tag int64
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown list cell tag %d", e.Tag)
}
