package tagged_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/memimage"
	"github.com/pgdbg/pgdbg/pkg/tagged"
)

func newFixture() (*memimage.Builder, *tagged.Decoder) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	return b, tagged.NewDecoder(b.Proc, tagged.DefaultTags)
}

func collect(t *testing.T, dec *tagged.Decoder, list *inspect.Value, elem string) []tagged.Cell {
	t.Helper()
	it, err := dec.Iterate(list, elem)
	require.NoError(t, err)
	var r []tagged.Cell
	for it.Next() {
		require.Equal(t, len(r), it.Index())
		r = append(r, it.Cell())
	}
	require.NoError(t, it.Err())
	require.False(t, it.Next(), "exhausted iterator must stay exhausted")
	return r
}

func TestIterateScalarLists(t *testing.T) {
	b, dec := newFixture()
	tests := []struct {
		name string
		tag  int64
		vals []uint64
		want []tagged.Cell
	}{
		{"int", memimage.TagIntList, []uint64{1, 0xffffffff, 42}, []tagged.Cell{tagged.IntCell(1), tagged.IntCell(-1), tagged.IntCell(42)}},
		{"oid", memimage.TagOidList, []uint64{16384, 0xffffffff}, []tagged.Cell{tagged.OidCell(16384), tagged.OidCell(0xffffffff)}},
		{"xid", memimage.TagXidList, []uint64{731}, []tagged.Cell{tagged.XidCell(731)}},
		{"empty", memimage.TagIntList, nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := b.List(tc.tag, tc.vals...)
			got := collect(t, dec, l.Ptr(), "")
			require.Equal(t, tc.want, got)
		})
	}
}

func TestIterateIsDeterministic(t *testing.T) {
	b, dec := newFixture()
	l := b.PtrList(b.Node("Var"), b.Node("Const"), b.Node("OpExpr"))
	first := collect(t, dec, l.Ptr(), "Node")
	second := collect(t, dec, l.Ptr(), "Node")
	require.Len(t, first, 3)
	require.Len(t, second, 3)
	for i := range first {
		require.Equal(t, first[i].String(), second[i].String())
	}
}

func TestIterateNeverReadsPastLength(t *testing.T) {
	b, dec := newFixture()
	l := b.List(memimage.TagIntList, 7, 8, 9)
	l.Set("length", 2)
	got := collect(t, dec, l.Ptr(), "")
	require.Equal(t, []tagged.Cell{tagged.IntCell(7), tagged.IntCell(8)}, got)
}

func TestIterateNilList(t *testing.T) {
	b, dec := newFixture()
	nilList := b.Proc.PointerValue(0, b.Catalog.MustLookup("List"))
	it, err := dec.Iterate(nilList, "Node")
	require.NoError(t, err)
	require.Equal(t, 0, it.Len())
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestIterateNegativeLength(t *testing.T) {
	b, dec := newFixture()
	l := b.List(memimage.TagIntList)
	l.Set("length", 0xffffffff)
	_, err := dec.Iterate(l.Ptr(), "")
	require.Error(t, err)
}

func TestNodeListResolvesEmbeddedTags(t *testing.T) {
	b, dec := newFixture()
	l := b.PtrList(b.Node("Var"), b.Node("Const"), b.Node("FuncExpr"))
	cells := collect(t, dec, l.Ptr(), "Node")
	require.Len(t, cells, 3)
	for i, want := range []string{"Var", "Const", "FuncExpr"} {
		pc, ok := cells[i].(*tagged.PtrCell)
		require.True(t, ok, "cell %d is %T", i, cells[i])
		require.Equal(t, want, inspect.HookName(pc.Target.Type()))

		_, text, err := dec.ReadTag(pc.Target)
		require.NoError(t, err)
		name, err := tagged.ConcreteTypeName(text)
		require.NoError(t, err)
		require.Equal(t, name, inspect.HookName(pc.Target.Type()))
	}
}

func TestDeclaredElementTypeIsNotRecast(t *testing.T) {
	b, dec := newFixture()
	l := b.PtrList(b.Node("Var"))
	cells := collect(t, dec, l.Ptr(), "Expr")
	require.Len(t, cells, 1)
	require.Equal(t, "Expr *", cells[0].(*tagged.PtrCell).Target.Type().String())
}

func TestUnknownTag(t *testing.T) {
	b, dec := newFixture()
	cell := b.New("ListCell")
	for _, tag := range []int64{0, 2, 450, 454, -1} {
		_, err := dec.Decode(tag, cell.Value(), nil)
		var ute *tagged.UnknownTagError
		require.True(t, errors.As(err, &ute), "tag %d: %v", tag, err)
		require.Equal(t, tag, ute.Tag)
	}

	l := b.List(memimage.TagIntList, 1)
	l.Set("type", 77)
	_, err := dec.Iterate(l.Ptr(), "")
	var ute *tagged.UnknownTagError
	require.True(t, errors.As(err, &ute))
}

func TestCastNode(t *testing.T) {
	b, dec := newFixture()
	n := b.Node("SeqScan")
	n.Set("scan.scanrelid", 3)

	v, err := dec.CastNode(n.PtrAs("Node"))
	require.NoError(t, err)
	require.Equal(t, "SeqScan *", v.Type().String())
	rel, err := v.Field("scanrelid")
	require.NoError(t, err)
	require.Equal(t, "3", rel.String())

	void := b.Proc.PointerValue(n.Addr, b.Catalog.MustLookup("void"))
	v, err = dec.CastNode(void)
	require.NoError(t, err)
	require.Equal(t, "SeqScan *", v.Type().String())

	l := b.List(memimage.TagOidList, 1)
	v, err = dec.CastNode(l.PtrAs("Node"))
	require.NoError(t, err)
	require.Equal(t, "List *", v.Type().String())
}

func TestCastNodeUnknownType(t *testing.T) {
	b, dec := newFixture()
	n := b.Node("Var")
	n.Set("xpr.type", 9999)
	_, err := dec.CastNode(n.PtrAs("Node"))
	var tre *inspect.TypeResolutionError
	require.True(t, errors.As(err, &tre), "%v", err)
}

func TestConcreteTypeName(t *testing.T) {
	name, err := tagged.ConcreteTypeName("T_OpExpr")
	require.NoError(t, err)
	require.Equal(t, "OpExpr", name)
	_, err = tagged.ConcreteTypeName("T_")
	require.Error(t, err)
}
