package inspect

import (
	"encoding/binary"
	"errors"
)

// MemoryReader reads memory of the inspected process.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// Catalog resolves named types of the inspected process.
type Catalog interface {
	LookupType(name string) (*Type, error)
}

// DynamicTyper is implemented by collaborators able to discover the most
// derived type of a value, for example through C++ RTTI.
type DynamicTyper interface {
	DynamicType(v *Value) (*Type, error)
}

// ErrTypeNotFound is wrapped by catalogs when a name is unknown.
var ErrTypeNotFound = errors.New("type not found")

// Process is the memory and type view of an inspected process.
type Process struct {
	Mem     MemoryReader
	Types   Catalog
	PtrSize int
	Order   binary.ByteOrder
	// Dynamic is optional; when nil the dynamic type of a value is its
	// declared type.
	Dynamic DynamicTyper
}

// NewProcess returns a little endian Process.
func NewProcess(mem MemoryReader, types Catalog, ptrSize int) *Process {
	return &Process{Mem: mem, Types: types, PtrSize: ptrSize, Order: binary.LittleEndian}
}

// LookupType resolves name, always returning a *TypeResolutionError on
// failure.
func (p *Process) LookupType(name string) (*Type, error) {
	t, err := p.Types.LookupType(name)
	if err != nil {
		var tre *TypeResolutionError
		if errors.As(err, &tre) {
			return nil, err
		}
		return nil, &TypeResolutionError{Name: name, Err: err}
	}
	if t == nil {
		return nil, &TypeResolutionError{Name: name}
	}
	return t, nil
}

// PointerTo returns the type of pointers to t.
func (p *Process) PointerTo(t *Type) *Type {
	return NewPointer(t, int64(p.PtrSize))
}

// ValueAt returns the value of type t stored at addr.
func (p *Process) ValueAt(addr uint64, t *Type) *Value {
	return &Value{proc: p, typ: t, addr: addr, located: true}
}

// PointerValue returns a pointer to target holding addr. The pointer itself
// does not live in the inspected memory.
func (p *Process) PointerValue(addr uint64, target *Type) *Value {
	buf := make([]byte, p.PtrSize)
	p.putUint(buf, addr)
	return &Value{proc: p, typ: p.PointerTo(target), data: buf}
}

func (p *Process) read(addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := p.Mem.ReadMemory(buf, addr)
	if err != nil {
		return nil, &MemoryError{Addr: addr, Len: n, Err: err}
	}
	if got != n {
		return nil, &MemoryError{Addr: addr, Len: n}
	}
	return buf, nil
}

func (p *Process) putUint(buf []byte, v uint64) {
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		p.Order.PutUint16(buf, uint16(v))
	case 4:
		p.Order.PutUint32(buf, uint32(v))
	case 8:
		p.Order.PutUint64(buf, v)
	}
}

func (p *Process) uint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(p.Order.Uint16(buf))
	case 4:
		return uint64(p.Order.Uint32(buf))
	case 8:
		return p.Order.Uint64(buf)
	}
	return 0
}
