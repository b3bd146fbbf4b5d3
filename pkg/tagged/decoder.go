package tagged

import (
	"fmt"

	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
)

const (
	// NodeTypeName is the root of the node hierarchy. Pointer payloads
	// declared as Node are cast to the type named by their own tag.
	NodeTypeName = "Node"
	// ListTypeName is the tagged list container.
	ListTypeName = "List"
	// TagField is the discriminant member of nodes and list headers.
	TagField = "type"
	// TagPrefixLen is the length of the prefix of every NodeTag
	// enumerator ("T_").
	TagPrefixLen = 2
)

// Decoder decodes tagged values of one process.
type Decoder struct {
	proc *inspect.Process
	tags Tags
	log  logflags.Logger
}

// NewDecoder returns a decoder for p using tags for list payload kinds.
func NewDecoder(p *inspect.Process, tags Tags) *Decoder {
	return &Decoder{proc: p, tags: tags, log: logflags.TaggedLogger()}
}

// Process returns the process the decoder reads from.
func (d *Decoder) Process() *inspect.Process { return d.proc }

// Tags returns the list tags of the decoder.
func (d *Decoder) Tags() Tags { return d.tags }

// ReadTag reads the discriminant of a node or list header (or of a pointer
// to one), returning its value and its enumerator name.
func (d *Decoder) ReadTag(v *inspect.Value) (int64, string, error) {
	tv, err := v.Field(TagField)
	if err != nil {
		return 0, "", err
	}
	n, err := tv.Int()
	if err != nil {
		return 0, "", err
	}
	return n, tv.String(), nil
}

// ConcreteTypeName maps the textual form of a tag to the name of the
// type it designates.
func ConcreteTypeName(tagText string) (string, error) {
	if len(tagText) <= TagPrefixLen {
		return "", &inspect.TypeResolutionError{Name: tagText}
	}
	return tagText[TagPrefixLen:], nil
}

// CastNode reinterprets a pointer to a node as a pointer to the concrete
// type named by the node's tag. A void pointer is first viewed as a
// pointer to Node. Lists carry one of the list tags and are cast to List.
func (d *Decoder) CastNode(v *inspect.Value) (*inspect.Value, error) {
	if !v.Type().IsPointer() {
		return nil, fmt.Errorf("can not cast %s to a node, not a pointer", v.Type())
	}
	if v.Type().Elem() == nil {
		node, err := d.proc.LookupType(NodeTypeName)
		if err != nil {
			return nil, err
		}
		v = v.Cast(d.proc.PointerTo(node))
	}
	tag, text, err := d.ReadTag(v)
	if err != nil {
		return nil, err
	}
	var name string
	if _, err := d.tags.Kind(tag); err == nil {
		name = ListTypeName
	} else if name, err = ConcreteTypeName(text); err != nil {
		return nil, err
	}
	typ, err := d.proc.LookupType(name)
	if err != nil {
		return nil, err
	}
	if logflags.Tagged() {
		addr, _ := v.Pointer()
		d.log.Debugf("node at %#x tagged %s is a %s", addr, text, typ)
	}
	return v.Cast(d.proc.PointerTo(typ)), nil
}

// Decode decodes the payload of cell, a ListCell union, according to tag.
// Pointer payloads are reinterpreted as pointers to elem; if elem is the
// root Node type the pointed-to node's own tag decides the type. A nil elem
// leaves pointer payloads as void pointers.
func (d *Decoder) Decode(tag int64, cell *inspect.Value, elem *inspect.Type) (Cell, error) {
	k, err := d.tags.Kind(tag)
	if err != nil {
		return nil, err
	}
	payload, err := cell.Field(k.field())
	if err != nil {
		return nil, err
	}
	switch k {
	case PtrKind:
		switch {
		case elem == nil:
			return &PtrCell{Target: payload}, nil
		case elem.Name == NodeTypeName:
			isnil, err := payload.IsNil()
			if err != nil {
				return nil, err
			}
			if isnil {
				return &PtrCell{Target: payload.Cast(d.proc.PointerTo(elem))}, nil
			}
			target, err := d.CastNode(payload)
			if err != nil {
				return nil, err
			}
			return &PtrCell{Target: target}, nil
		default:
			return &PtrCell{Target: payload.Cast(d.proc.PointerTo(elem))}, nil
		}
	case IntKind:
		n, err := payload.Int()
		if err != nil {
			return nil, err
		}
		return IntCell(n), nil
	case OidKind:
		n, err := payload.Uint()
		if err != nil {
			return nil, err
		}
		return OidCell(uint32(n)), nil
	case XidKind:
		n, err := payload.Uint()
		if err != nil {
			return nil, err
		}
		return XidCell(uint32(n)), nil
	}
	return nil, &UnknownTagError{Tag: tag}
}
