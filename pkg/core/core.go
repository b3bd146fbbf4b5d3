// Package core reads the memory of a crashed or gcore'd PostgreSQL backend
// from an ELF core file.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// A splicedMemory represents a memory space formed from multiple regions,
// each of which may override previously regions. For example, in the following
// core, the program text was loaded at 0x400000:
// Start               End                 Page Offset
// 0x0000000000400000  0x000000000044f000  0x0000000000000000
// but then it's partially overwritten with an RW mapping whose data is stored
// in the core file:
// Type           Offset             VirtAddr           PhysAddr
//
//	FileSiz            MemSiz              Flags  Align
//
// LOAD           0x0000000000004000 0x000000000049a000 0x0000000000000000
//
//	0x0000000000002000 0x0000000000002000  RW     1000
//
// This can be represented in a SplicedMemory by adding the original region,
// then putting the RW mapping on top of it.
type splicedMemory struct {
	readers []readerEntry
}

type readerEntry struct {
	offset uint64
	length uint64
	reader memoryReader
}

type memoryReader interface {
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// Add adds a new region to the SplicedMemory, which may override existing regions.
func (r *splicedMemory) Add(reader memoryReader, off, length uint64) {
	if length == 0 {
		return
	}
	end := off + length - 1
	newReaders := make([]readerEntry, 0, len(r.readers))
	add := func(e readerEntry) {
		if e.length == 0 {
			return
		}
		newReaders = append(newReaders, e)
	}
	inserted := false
	// Walk through the list of regions, fixing up any that overlap and inserting the new one.
	for _, entry := range r.readers {
		entryEnd := entry.offset + entry.length - 1
		switch {
		case entryEnd < off:
			// Entry is completely before the new region.
			add(entry)
		case end < entry.offset:
			// Entry is completely after the new region.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			add(entry)
		case off <= entry.offset && entryEnd <= end:
			// Entry is completely overwritten by the new region. Drop.
		case entry.offset < off && entryEnd <= end:
			// New region overwrites the end of the entry.
			entry.length = off - entry.offset
			add(entry)
		case off <= entry.offset && end < entryEnd:
			// New reader overwrites the beginning of the entry.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			overlap := end + 1 - entry.offset
			entry.offset += overlap
			entry.length -= overlap
			add(entry)
		case entry.offset < off && end < entryEnd:
			// New region punches a hole in the entry. Split it in two and put the new region in the middle.
			add(readerEntry{entry.offset, off - entry.offset, entry.reader})
			add(readerEntry{off, length, reader})
			add(readerEntry{end + 1, entryEnd - end, entry.reader})
			inserted = true
		default:
			panic(fmt.Sprintf("Unhandled case: existing entry is %v len %v, new is %v len %v", entry.offset, entry.length, off, length))
		}
	}
	if !inserted {
		newReaders = append(newReaders, readerEntry{off, length, reader})
	}
	r.readers = newReaders
}

// ReadMemory reads len(buf) bytes at addr, crossing region boundaries as
// long as the regions are contiguous.
func (r *splicedMemory) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	for _, entry := range r.readers {
		if entry.offset+entry.length <= addr {
			continue
		}
		if addr < entry.offset {
			break
		}
		// Don't go past the region.
		pb := buf
		if addr+uint64(len(buf)) > entry.offset+entry.length {
			pb = pb[:entry.offset+entry.length-addr]
		}
		pn, err := entry.reader.ReadMemory(pb, addr)
		n += pn
		if err != nil {
			return n, fmt.Errorf("error while reading spliced memory at %#x: %v", addr, err)
		}
		if pn != len(pb) {
			return n, nil
		}
		buf = buf[pn:]
		addr += uint64(pn)
		if len(buf) == 0 {
			// Done, don't bother scanning the rest.
			return n, nil
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("address %#x did not match any regions", addr)
	}
	return n, fmt.Errorf("hit unmapped area at %#x after %d bytes", addr, n)
}

// regions returns the number of distinct regions.
func (r *splicedMemory) regions() int { return len(r.readers) }

// offsetReaderAt wraps a ReaderAt into a memoryReader, subtracting a fixed
// offset from the address. This is useful to represent a mapping in an address
// space. For example, if program text is mapped in at 0x400000, an
// offsetReaderAt with offset 0x400000 can be wrapped around file.Open(program)
// to return the results of a read in that part of the address space.
type offsetReaderAt struct {
	reader io.ReaderAt
	offset uint64
}

// ReadMemory will read the memory at addr-offset.
func (r *offsetReaderAt) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	n, err = r.reader.ReadAt(buf, int64(addr-r.offset))
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	return n, err
}

var (
	// ErrShortRead is returned on a short read.
	ErrShortRead = errors.New("short read")

	// ErrUnrecognizedFormat is returned when the core file is not an ELF
	// file.
	ErrUnrecognizedFormat = errors.New("unrecognized core format")
)

// Core is the memory of a process as saved in a core file. It implements
// inspect.MemoryReader.
type Core struct {
	mem     *splicedMemory
	closers []io.Closer

	// PtrSize is the pointer size of the process.
	PtrSize int
	// Order is the byte order of the process.
	Order binary.ByteOrder
	// Pid is the process id recorded in the core, 0 if unknown.
	Pid int
	// Command is the process title of the dumped backend, such as
	// "postgres: alice db [local] SELECT".
	Command string
}

// ReadMemory will return memory from the core file at the specified location and put the
// read memory into `buf`, returning the length read, and returning an error if
// the length read is shorter than the length of the `buf` buffer.
func (c *Core) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	n, err = c.mem.ReadMemory(buf, addr)
	if err == nil && n != len(buf) {
		err = ErrShortRead
	}
	return n, err
}

// Close releases the files backing the core.
func (c *Core) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
