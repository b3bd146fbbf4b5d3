package alias_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/memimage"
)

func TestNamerSequence(t *testing.T) {
	n := alias.NewNamer(2)
	var got []string
	for i := 0; i < 28; i++ {
		got = append(got, n.Next())
	}
	require.Equal(t, "a", got[0])
	require.Equal(t, "z", got[25])
	require.Equal(t, "aa", got[26])
	require.Equal(t, "ab", got[27])

	// 26 single letter names plus 26*26 two letter names, then wrap.
	n = alias.NewNamer(2)
	var last string
	for i := 0; i < 26+26*26; i++ {
		last = n.Next()
	}
	require.Equal(t, "zz", last)
	require.Equal(t, "a", n.Next())
}

func TestNamerCarry(t *testing.T) {
	n := alias.NewNamer(3)
	for i := 0; i < 26+25; i++ {
		n.Next()
	}
	require.Equal(t, "az", n.Next())
	require.Equal(t, "ba", n.Next())
}

func TestNamerDefaultLength(t *testing.T) {
	n := alias.NewNamer(0)
	for i := 0; i < 26+26*26; i++ {
		n.Next()
	}
	require.Equal(t, "a", n.Next())
}

func TestStore(t *testing.T) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	v := b.Node("Var").Ptr()
	c := b.Node("Const").Ptr()

	s := alias.NewStore(alias.DefaultMaxLen)
	require.Equal(t, "$a", s.Bind(v))
	require.Equal(t, "$b", s.Bind(c))
	require.Equal(t, "$x", s.Set("x", v))

	got, ok := s.Get("$b")
	require.True(t, ok)
	require.Same(t, c, got)
	got, ok = s.Get("x")
	require.True(t, ok)
	require.Same(t, v, got)
	_, ok = s.Get("$zz")
	require.False(t, ok)
	require.Equal(t, []string{"a", "b", "x"}, s.Names())
	require.Equal(t, 3, s.Len())
}

func TestAllocator(t *testing.T) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	v := b.Node("Var").Ptr()
	s := alias.NewStore(alias.DefaultMaxLen)

	a := s.NewAllocator()
	require.Equal(t, "a", a.Prefix())
	require.Equal(t, "$a0", a.Bind(v))
	require.Equal(t, "$a1", a.Bind(v))

	// a new walk restarts the counter under a fresh prefix
	a = s.NewAllocator()
	require.Equal(t, "$b0", a.Bind(v))
	require.Equal(t, []string{"a0", "a1", "b0"}, s.Names())
}
