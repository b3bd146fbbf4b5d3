// Package dwarfcat implements inspect.Catalog over the DWARF debug
// information of a PostgreSQL executable.
package dwarfcat

import (
	"debug/dwarf"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/reader"
	lru "github.com/hashicorp/golang-lru"

	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
)

// convertedCacheSize is the number of converted types kept around.
const convertedCacheSize = 1024

// rank orders the entries sharing a name: typedefs win over complete
// structs, which win over declarations.
type rank uint8

const (
	rankDeclaration rank = iota
	rankDefinition
	rankTypedef
)

type indexEntry struct {
	off  dwarf.Offset
	rank rank
}

// Catalog resolves PostgreSQL types by name from DWARF.
type Catalog struct {
	dwarf  *dwarf.Data
	closer io.Closer
	log    logflags.Logger

	index map[string]indexEntry

	mu        sync.Mutex
	typeCache map[dwarf.Offset]godwarf.Type
	converted *lru.Cache // dwarf.Offset -> *inspect.Type

	// PtrSize is the pointer size of the executable, 0 when unknown.
	PtrSize int
}

// New indexes the named types of data.
func New(data *dwarf.Data) (*Catalog, error) {
	converted, err := lru.New(convertedCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		dwarf:     data,
		log:       logflags.DwarfLogger(),
		index:     make(map[string]indexEntry),
		typeCache: make(map[dwarf.Offset]godwarf.Type),
		converted: converted,
	}
	if err := c.buildIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) buildIndex() error {
	rdr := reader.New(c.dwarf)
	for {
		entry, err := rdr.NextType()
		if err != nil {
			return fmt.Errorf("could not index types: %v", err)
		}
		if entry == nil {
			break
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		if name == "" {
			continue
		}
		var r rank
		switch entry.Tag {
		case dwarf.TagTypedef:
			r = rankTypedef
		case dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType, dwarf.TagEnumerationType:
			r = rankDefinition
			if entry.Val(dwarf.AttrDeclaration) != nil {
				r = rankDeclaration
			}
		case dwarf.TagBaseType:
			r = rankDefinition
		default:
			continue
		}
		if c.PtrSize == 0 {
			c.PtrSize = rdr.AddressSize()
		}
		if old, ok := c.index[name]; ok && old.rank >= r {
			continue
		}
		c.index[name] = indexEntry{entry.Offset, r}
	}
	if logflags.Dwarf() {
		c.log.Debugf("indexed %d named types", len(c.index))
	}
	return nil
}

// LookupType implements inspect.Catalog.
func (c *Catalog) LookupType(name string) (*inspect.Type, error) {
	e, ok := c.index[name]
	if !ok {
		return nil, &inspect.TypeResolutionError{Name: name, Err: inspect.ErrTypeNotFound}
	}
	t, err := c.typeAt(e.off)
	if err != nil {
		return nil, &inspect.TypeResolutionError{Name: name, Err: err}
	}
	return t, nil
}

// Names returns the indexed type names, sorted.
func (c *Catalog) Names() []string {
	r := make([]string, 0, len(c.index))
	for name := range c.index {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// Close releases the file the debug information was read from.
func (c *Catalog) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

func (c *Catalog) typeAt(off dwarf.Offset) (*inspect.Type, error) {
	if t, ok := c.converted.Get(off); ok {
		return t.(*inspect.Type), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dt, err := godwarf.ReadType(c.dwarf, 0, off, c.typeCache)
	if err != nil {
		return nil, err
	}
	conv := &converter{cat: c, seen: make(map[dwarf.Offset]*inspect.Type)}
	t := conv.convert(dt)
	if conv.err != nil {
		return nil, conv.err
	}
	for o, ct := range conv.seen {
		c.converted.Add(o, ct)
	}
	return t, nil
}

func (c *Catalog) ptrSize() int {
	if c.PtrSize > 0 {
		return c.PtrSize
	}
	return 8
}
