package tagged

import (
	"fmt"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// ListIterator iterates over the cells of a List. It is not reusable: to
// iterate again, create a new iterator.
//
//	it, err := dec.Iterate(list, "Node")
//	for it.Next() {
//		use(it.Cell())
//	}
//	return it.Err()
type ListIterator struct {
	dec      *Decoder
	tag      int64
	kind     Kind
	length   int64
	elements *inspect.Value
	elem     *inspect.Type

	index int64
	cur   Cell
	err   error
}

// Iterate returns an iterator over list, a List or a pointer to one. A NULL
// pointer is the empty list. Pointer payloads are typed as pointers to
// elemTypeName, no cast is done if elemTypeName is empty.
func (d *Decoder) Iterate(list *inspect.Value, elemTypeName string) (*ListIterator, error) {
	it := &ListIterator{dec: d, index: -1}
	if elemTypeName != "" {
		elem, err := d.proc.LookupType(elemTypeName)
		if err != nil {
			return nil, err
		}
		it.elem = elem
	}
	if list.Type().IsPointer() {
		isnil, err := list.IsNil()
		if err != nil {
			return nil, err
		}
		if isnil {
			it.tag = d.tags.Ptr
			it.kind = PtrKind
			return it, nil
		}
	}
	tag, _, err := d.ReadTag(list)
	if err != nil {
		return nil, err
	}
	kind, err := d.tags.Kind(tag)
	if err != nil {
		return nil, err
	}
	lv, err := list.Field("length")
	if err != nil {
		return nil, err
	}
	length, err := lv.Int()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("list has negative length %d", length)
	}
	it.tag, it.kind, it.length = tag, kind, length
	if length > 0 {
		it.elements, err = list.Field("elements")
		if err != nil {
			return nil, err
		}
	}
	return it, nil
}

// Next advances to the next cell. It returns false when the list is
// exhausted or an error occurred.
func (it *ListIterator) Next() bool {
	if it.err != nil || it.index+1 >= it.length {
		it.cur = nil
		it.index = it.length
		return false
	}
	it.index++
	cell, err := it.elements.Index(it.index)
	if err != nil {
		it.err = err
		it.cur = nil
		return false
	}
	it.cur, it.err = it.dec.Decode(it.tag, cell, it.elem)
	if it.err != nil {
		it.err = fmt.Errorf("list element %d: %w", it.index, it.err)
		it.cur = nil
		return false
	}
	return true
}

// Cell returns the current cell.
func (it *ListIterator) Cell() Cell { return it.cur }

// Index returns the index of the current cell.
func (it *ListIterator) Index() int { return int(it.index) }

// Err returns the first error encountered while iterating.
func (it *ListIterator) Err() error { return it.err }

// Len returns the number of cells of the list.
func (it *ListIterator) Len() int { return int(it.length) }

// Kind returns the payload kind of the list.
func (it *ListIterator) Kind() Kind { return it.kind }

// Nodes returns the pointer payloads of list as values, skipping NULL
// pointers and scalar cells.
func (d *Decoder) Nodes(list *inspect.Value, elemTypeName string) ([]*inspect.Value, error) {
	it, err := d.Iterate(list, elemTypeName)
	if err != nil {
		return nil, err
	}
	var r []*inspect.Value
	for it.Next() {
		pc, ok := it.Cell().(*PtrCell)
		if !ok {
			continue
		}
		if isnil, err := pc.Target.IsNil(); err != nil {
			return nil, err
		} else if isnil {
			continue
		}
		r = append(r, pc.Target)
	}
	return r, it.Err()
}
