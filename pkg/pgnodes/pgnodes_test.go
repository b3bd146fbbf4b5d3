package pgnodes_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/memimage"
	"github.com/pgdbg/pgdbg/pkg/pgnodes"
	"github.com/pgdbg/pgdbg/pkg/tagged"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

type lines []string

func (l *lines) EmitLine(s string) { *l = append(*l, s) }

func newFixture() (*memimage.Builder, *tagged.Decoder) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	return b, tagged.NewDecoder(b.Proc, tagged.DefaultTags)
}

func hex(o *memimage.Object) string { return fmt.Sprintf("%#x", o.Addr) }

func TestExprTree(t *testing.T) {
	b, dec := newFixture()
	v := b.Node("Var").Set("varno", 1).Set("varattno", 3).Set("vartype", 23)
	k := b.Node("Const").Set("consttype", 23).Set("constvalue", 5)
	op := b.Node("OpExpr").Set("opno", 96).SetPtr("args", b.PtrList(v, k))
	null := b.Node("Const").Set("consttype", 25).Set("constisnull", 1)
	or := b.Node("BoolExpr").SetEnum("boolop", "OR_EXPR").SetPtr("args", b.PtrList(op, null))

	var out lines
	w := pgnodes.NewExprWalker(dec, nil, pgnodes.DefaultDisplayFields())
	require.NoError(t, w.Walk(or.PtrAs("Node"), &out))
	require.Equal(t, lines{
		"$a0 (BoolExpr *) " + hex(or) + " boolop = OR_EXPR",
		"|--$a1 (OpExpr *) " + hex(op) + " opno = 96",
		"|  |--$a2 (Var *) " + hex(v) + " no = 1, attno = 3, type = 23",
		"|  `--$a3 (Const *) " + hex(k) + " type = 23, value = 5",
		"`--$a4 (Const *) " + hex(null) + " isnull = true, type = 25, value = 0",
	}, out)
}

func TestExprListOfNodes(t *testing.T) {
	b, dec := newFixture()
	v := b.Node("Var")
	k := b.Node("Const")
	fn := b.Node("FuncExpr").Set("funcid", 1317).Set("funcresulttype", 23)
	list := b.PtrList(v, k, fn)

	var out lines
	w := pgnodes.NewExprWalker(dec, nil, pgnodes.DefaultDisplayFields())
	require.NoError(t, w.Walk(list.PtrAs("Node"), &out))
	require.Equal(t, lines{
		"$a0 (List *) " + hex(list),
		"|--$a1 (Var *) " + hex(v) + " no = 0, attno = 0, type = 0",
		"|--$a2 (Const *) " + hex(k) + " type = 0, value = 0",
		"`--$a3 (FuncExpr *) " + hex(fn) + " funcid = 1317, funcresulttype = 23",
	}, out)
}

func TestExprScalarListIsLeaf(t *testing.T) {
	b, dec := newFixture()
	list := b.List(memimage.TagOidList, 1, 2, 3)
	var out lines
	w := pgnodes.NewExprWalker(dec, nil, pgnodes.DefaultDisplayFields())
	require.NoError(t, w.Walk(list.Ptr(), &out))
	require.Equal(t, lines{"$a0 (List *) " + hex(list)}, out)
}

func TestExprNodeWithoutArgs(t *testing.T) {
	b, dec := newFixture()
	v := b.Node("Var").Set("varno", 2)
	var out lines
	fields := pgnodes.DefaultDisplayFields().Merge(pgnodes.DisplayFields{"Var": {"varno"}})
	w := pgnodes.NewExprWalker(dec, nil, fields)
	require.NoError(t, w.Walk(v.PtrAs("Expr"), &out))
	require.Equal(t, lines{"$a0 (Var *) " + hex(v) + " no = 2"}, out)
}

func TestPlanSingleScan(t *testing.T) {
	b, dec := newFixture()
	scan := b.Node("SeqScan").Set("scan.scanrelid", 1)
	var out lines
	require.NoError(t, pgnodes.NewPlanWalker(dec, nil).Walk(scan.PtrAs("Plan"), &out))
	require.Len(t, out, 1)
	require.Equal(t, "$a0 (SeqScan *) "+hex(scan)+" scanrelid=1", out[0])
}

func TestPlanTree(t *testing.T) {
	b, dec := newFixture()
	outer := b.Node("SeqScan").Set("scan.scanrelid", 1)
	inner := b.Node("IndexScan").Set("scan.scanrelid", 2)
	hash := b.Node("Hash").SetPtr("plan.lefttree", inner)
	join := b.Node("HashJoin").SetPtr("join.plan.lefttree", outer).SetPtr("join.plan.righttree", hash)

	var out lines
	require.NoError(t, pgnodes.NewPlanWalker(dec, nil).Walk(join.PtrAs("Plan"), &out))
	require.Equal(t, lines{
		"$a0 (HashJoin *) " + hex(join),
		"|--$a1 (SeqScan *) " + hex(outer) + " scanrelid=1",
		"`--$a2 (Hash *) " + hex(hash),
		"   `--$a3 (IndexScan *) " + hex(inner) + " scanrelid=2",
	}, out)
}

func TestPlanDemo(t *testing.T) {
	d := memimage.NewDemo()
	dec := tagged.NewDecoder(d.Proc, tagged.DefaultTags)
	var out lines
	require.NoError(t, pgnodes.NewPlanWalker(dec, nil).Walk(d.Plan.PtrAs("Plan"), &out))
	require.Len(t, out, 5)
	require.True(t, strings.HasPrefix(out[0], "$a0 (Sort *) "), out[0])

	out = nil
	require.NoError(t, pgnodes.NewExprWalker(dec, nil, pgnodes.DefaultDisplayFields()).Walk(d.Qual.PtrAs("Node"), &out))
	require.Len(t, out, 8)
}

func TestCastFunc(t *testing.T) {
	b, dec := newFixture()
	cast := pgnodes.CastFunc(dec)

	n := b.Node("Const")
	v, err := cast(n.PtrAs("Node"))
	require.NoError(t, err)
	require.Equal(t, "Const *", v.Type().String())

	nilNode := b.Proc.PointerValue(0, b.Catalog.MustLookup("Node"))
	v, err = cast(nilNode)
	require.NoError(t, err)
	require.Same(t, nilNode, v)

	untagged := b.Proc.PointerValue(n.Addr, b.Catalog.MustLookup("int"))
	v, err = cast(untagged)
	require.NoError(t, err)
	require.Same(t, untagged, v)
}

func TestDisplayFieldsMerge(t *testing.T) {
	f := pgnodes.DefaultDisplayFields().Merge(pgnodes.DisplayFields{
		"Var":      nil,
		"SubPlan":  {"plan_id"},
		"BoolExpr": {"boolop", "location"},
	})
	require.NotContains(t, f, "Var")
	require.Equal(t, []string{"plan_id"}, f["SubPlan"])
	require.Equal(t, []string{"boolop", "location"}, f["BoolExpr"])
	require.Contains(t, pgnodes.DefaultDisplayFields(), "Var", "defaults are not modified")
	require.Equal(t, []string{"BoolExpr", "Const", "FuncExpr", "OpExpr", "ScalarArrayOpExpr", "SubPlan"}, f.Types())
}

func TestDisplayFieldsSkipsMissing(t *testing.T) {
	b, _ := newFixture()
	fields := pgnodes.DisplayFields{"Var": {"varno", "nosuchfield", "varattno:7"}}
	v := b.Node("Var").Set("varno", 4).Set("varattno", 7)
	desc, ok, err := fields.Describe(v.Ptr(), "Var")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "no = 4, attno = 7", desc)

	_, ok, err = fields.Describe(v.Ptr(), "Const")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFormatNode(t *testing.T) {
	b, dec := newFixture()
	v := b.Node("Var").Set("varno", 1)
	var out lines
	store := alias.NewStore(alias.DefaultMaxLen)
	require.NoError(t, pgnodes.FormatNode(dec, store, v.PtrAs("Node"), &out))
	require.Len(t, out, 1)
	require.True(t, strings.HasPrefix(out[0], "$a0 (Var *) {xpr = {...}, varno = 1, "), out[0])
	bound, ok := store.Get("a0")
	require.True(t, ok)
	require.Equal(t, "Var *", bound.Type().String())
}

func TestFormatList(t *testing.T) {
	b, dec := newFixture()
	v := b.Node("Var")
	k := b.Node("Const")
	store := alias.NewStore(alias.DefaultMaxLen)

	var out lines
	require.NoError(t, pgnodes.FormatList(dec, store, b.PtrList(v, k).Ptr(), &out))
	require.Equal(t, lines{
		"List with 2 ptr_value elements",
		"[0] = $a (Var *) " + hex(v),
		"[1] = $b (Const *) " + hex(k),
	}, out)

	out = nil
	require.NoError(t, pgnodes.FormatList(dec, store, b.List(memimage.TagOidList, 16384, 16385).Ptr(), &out))
	require.Equal(t, lines{
		"List with 2 oid_value elements",
		"[0] = 16384",
		"[1] = 16385",
	}, out)

	out = nil
	require.NoError(t, pgnodes.FormatList(dec, store, b.List(memimage.TagIntList).Ptr(), walker.Sink(&out)))
	require.Equal(t, lines{"List with 0 int_value elements"}, out)
}
