// Package alias hands out the short names printed next to visited nodes
// and remembers what they refer to, so that a later command can start from
// a node seen in an earlier tree ("pgdbg> expr $a3").
package alias

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// DefaultMaxLen is the longest name generated by a Namer before it wraps
// back to "a".
const DefaultMaxLen = 2

// Namer generates the sequence a, b, ..., z, aa, ab, ..., zz, a, ...
type Namer struct {
	maxLen int
	cur    []byte
}

// NewNamer returns a namer generating names of at most maxLen letters.
func NewNamer(maxLen int) *Namer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Namer{maxLen: maxLen, cur: []byte{'a'}}
}

// Next returns the next name of the sequence.
func (n *Namer) Next() string {
	name := string(n.cur)
	for i := len(n.cur) - 1; i >= 0; i-- {
		if n.cur[i] == 'z' {
			continue
		}
		n.cur[i]++
		for j := i + 1; j < len(n.cur); j++ {
			n.cur[j] = 'a'
		}
		return name
	}
	l := len(n.cur) + 1
	if len(n.cur) >= n.maxLen {
		l = 1
	}
	n.cur = []byte(strings.Repeat("a", l))
	return name
}

// Store binds names to values for the lifetime of a session.
type Store struct {
	mu    sync.Mutex
	namer *Namer
	vars  map[string]*inspect.Value
}

// NewStore returns an empty store whose generated names have at most
// maxLen letters.
func NewStore(maxLen int) *Store {
	return &Store{namer: NewNamer(maxLen), vars: make(map[string]*inspect.Value)}
}

// Set binds name to v and returns the name as it is referred to, "$name".
func (s *Store) Set(name string, v *inspect.Value) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
	return "$" + name
}

// Bind binds v to the next generated name.
func (s *Store) Bind(v *inspect.Value) string {
	return s.Set(s.nextName(), v)
}

func (s *Store) nextName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namer.Next()
}

// Get returns the value bound to name. The leading '$' is optional.
func (s *Store) Get(name string) (*inspect.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// Names returns the bound names, without '$', sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]string, 0, len(s.vars))
	for name := range s.vars {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// Len returns the number of bound names.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vars)
}

// Allocator numbers the nodes of one walk: all of its names share a prefix
// taken from the store's sequence followed by a counter, $a0, $a1, ...
type Allocator struct {
	store  *Store
	prefix string
	n      int
}

// NewAllocator returns an allocator with a fresh prefix.
func (s *Store) NewAllocator() *Allocator {
	return &Allocator{store: s, prefix: s.nextName()}
}

// Prefix returns the name prefix shared by the allocator's names.
func (a *Allocator) Prefix() string { return a.prefix }

// Bind binds v to the next numbered name and returns it.
func (a *Allocator) Bind(v *inspect.Value) string {
	name := a.prefix + strconv.Itoa(a.n)
	a.n++
	return a.store.Set(name, v)
}
