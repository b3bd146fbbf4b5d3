// Package memimage implements a synthetic process image: a growable memory
// arena and a map based type catalog. It backs the tests of the engine and
// the demo command, where no real core file is available.
package memimage

import (
	"encoding/binary"
	"fmt"
)

// DefaultBase is the address of the first byte of an Image.
const DefaultBase = 0x10000

// Image is a contiguous block of memory starting at a base address.
type Image struct {
	base  uint64
	buf   []byte
	order binary.ByteOrder
}

// New returns an empty little endian image starting at base.
func New(base uint64) *Image {
	return &Image{base: base, order: binary.LittleEndian}
}

// ReadMemory implements inspect.MemoryReader.
func (m *Image) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr < m.base || addr+uint64(len(buf)) > m.base+uint64(len(m.buf)) {
		return 0, fmt.Errorf("address %#x not mapped", addr)
	}
	off := addr - m.base
	return copy(buf, m.buf[off:]), nil
}

// Alloc reserves size zeroed bytes aligned to align and returns their
// address. Address zero is never returned.
func (m *Image) Alloc(size, align int64) uint64 {
	if align <= 0 {
		align = 1
	}
	off := int64(len(m.buf))
	if off == 0 {
		off = align
	}
	if r := off % align; r != 0 {
		off += align - r
	}
	if size == 0 {
		size = 1
	}
	grown := make([]byte, off+size)
	copy(grown, m.buf)
	m.buf = grown
	return m.base + uint64(off)
}

// Write copies b to addr, which must have been allocated.
func (m *Image) Write(addr uint64, b []byte) error {
	if addr < m.base || addr+uint64(len(b)) > m.base+uint64(len(m.buf)) {
		return fmt.Errorf("address %#x not mapped", addr)
	}
	copy(m.buf[addr-m.base:], b)
	return nil
}

// WriteUint stores the size bytes wide integer v at addr.
func (m *Image) WriteUint(addr uint64, size int64, v uint64) error {
	b := make([]byte, size)
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		m.order.PutUint16(b, uint16(v))
	case 4:
		m.order.PutUint32(b, uint32(v))
	case 8:
		m.order.PutUint64(b, v)
	default:
		return fmt.Errorf("unsupported integer size %d", size)
	}
	return m.Write(addr, b)
}
