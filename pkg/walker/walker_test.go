package walker_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/dispatch"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/memimage"
	"github.com/pgdbg/pgdbg/pkg/tagged"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

type lines []string

func (l *lines) EmitLine(s string) { *l = append(*l, s) }

type fixture struct {
	b   *memimage.Builder
	dec *tagged.Decoder
	reg *dispatch.Registry
}

// newPlanFixture registers hooks equivalent to the plan tree walker:
// nodes are cast by tag, expanded through lefttree/righttree and scans
// show their relation index.
func newPlanFixture() *fixture {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	f := &fixture{b: b, dec: tagged.NewDecoder(b.Proc, tagged.DefaultTags), reg: dispatch.NewRegistry()}
	f.reg.Cast.Register("", func(v *inspect.Value) (*inspect.Value, error) {
		if e := v.Type().Elem(); e != nil && !e.HasField(tagged.TagField) {
			return v, nil
		}
		return f.dec.CastNode(v)
	})
	f.reg.Expand.Register("", func(v *inspect.Value) ([]*inspect.Value, error) {
		plan := v.Cast(b.Proc.PointerTo(b.Catalog.MustLookup("Plan")))
		var children []*inspect.Value
		for _, name := range []string{"lefttree", "righttree"} {
			child, err := plan.Field(name)
			if err != nil {
				return nil, err
			}
			if isnil, _ := child.IsNil(); !isnil {
				children = append(children, child)
			}
		}
		return children, nil
	})
	f.reg.Describe.Register("Scan", func(v *inspect.Value) (string, bool, error) {
		rel, err := v.Field("scanrelid")
		if err != nil {
			return "", false, err
		}
		return "scanrelid=" + rel.String(), true, nil
	})
	return f
}

func (f *fixture) walk(t *testing.T, root *inspect.Value) lines {
	t.Helper()
	var out lines
	require.NoError(t, walker.New(f.reg, nil).Walk(root, &out))
	return out
}

func hex(o *memimage.Object) string { return fmt.Sprintf("%#x", o.Addr) }

func TestWalkTreeLayout(t *testing.T) {
	f := newPlanFixture()
	b := f.b
	scan1 := b.Node("SeqScan").Set("scan.scanrelid", 1)
	hash := b.Node("Hash").SetPtr("plan.lefttree", scan1)
	scan2 := b.Node("IndexScan").Set("scan.scanrelid", 2)
	scan3 := b.Node("SeqScan").Set("scan.scanrelid", 3)
	inner := b.Node("NestLoop").SetPtr("join.plan.lefttree", scan3)
	join := b.Node("HashJoin").
		SetPtr("join.plan.lefttree", hash).
		SetPtr("join.plan.righttree", inner)
	inner.SetPtr("join.plan.righttree", scan2)

	out := f.walk(t, join.PtrAs("Plan"))
	require.Equal(t, lines{
		"$a0 (HashJoin *) " + hex(join),
		"|--$a1 (Hash *) " + hex(hash),
		"|  `--$a2 (SeqScan *) " + hex(scan1) + " scanrelid=1",
		"`--$a3 (NestLoop *) " + hex(inner),
		"   |--$a4 (SeqScan *) " + hex(scan3) + " scanrelid=3",
		"   `--$a5 (IndexScan *) " + hex(scan2) + " scanrelid=2",
	}, out)
}

// Every line of the subtree of a last child has a blank at the parent's
// column.
func TestWalkLastChildSubtreeIsBlank(t *testing.T) {
	f := newPlanFixture()
	b := f.b
	leaf := func() *memimage.Object { return b.Node("SeqScan") }
	deep := b.Node("Sort").SetPtr("plan.lefttree", b.Node("Hash").SetPtr("plan.lefttree", leaf()))
	root := b.Node("HashJoin").
		SetPtr("join.plan.lefttree", leaf()).
		SetPtr("join.plan.righttree", deep)

	out := f.walk(t, root.PtrAs("Plan"))
	require.Len(t, out, 5)
	require.True(t, strings.HasPrefix(out[2], "`--"), out[2])
	for _, l := range out[3:] {
		require.Equal(t, byte(' '), l[0], "line %q", l)
	}
}

func TestWalkPreOrder(t *testing.T) {
	f := newPlanFixture()
	b := f.b
	l := b.Node("SeqScan")
	r := b.Node("SeqScan")
	root := b.Node("NestLoop").SetPtr("join.plan.lefttree", l).SetPtr("join.plan.righttree", r)

	out := f.walk(t, root.PtrAs("Plan"))
	require.Len(t, out, 3)
	require.Contains(t, out[0], hex(root))
	require.Contains(t, out[1], hex(l))
	require.Contains(t, out[2], hex(r))
}

func TestWalkSingleScan(t *testing.T) {
	f := newPlanFixture()
	scan := f.b.Node("SeqScan").Set("scan.scanrelid", 7)
	out := f.walk(t, scan.PtrAs("Plan"))
	require.Equal(t, lines{"$a0 (SeqScan *) " + hex(scan) + " scanrelid=7"}, out)
}

func TestWalkEmptyChildren(t *testing.T) {
	f := newPlanFixture()
	calls := 0
	f.reg.Expand.Register("Result", func(v *inspect.Value) ([]*inspect.Value, error) {
		calls++
		return []*inspect.Value{}, nil
	})
	res := f.b.Node("Result").SetPtr("plan.lefttree", f.b.Node("SeqScan"))
	out := f.walk(t, res.PtrAs("Plan"))
	require.Equal(t, 1, calls)
	require.Equal(t, lines{"$a0 (Result *) " + hex(res)}, out)
}

func TestWalkSuppressedLineStillExpands(t *testing.T) {
	f := newPlanFixture()
	f.reg.Describe.Register("Hash", func(v *inspect.Value) (string, bool, error) {
		return "", false, nil
	})
	scan := f.b.Node("SeqScan").Set("scan.scanrelid", 4)
	hash := f.b.Node("Hash").SetPtr("plan.lefttree", scan)
	sort := f.b.Node("Sort").SetPtr("plan.lefttree", hash)

	out := f.walk(t, sort.PtrAs("Plan"))
	require.Equal(t, lines{
		"$a0 (Sort *) " + hex(sort),
		"   `--$a2 (SeqScan *) " + hex(scan) + " scanrelid=4",
	}, out)
}

func TestWalkNoHooks(t *testing.T) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	n := b.Node("SeqScan")
	var out lines
	require.NoError(t, walker.New(dispatch.NewRegistry(), nil).Walk(n.PtrAs("Plan"), &out))
	require.Equal(t, lines{"$a0 (Plan *) " + hex(n)}, out)
}

func TestWalkBindsAliases(t *testing.T) {
	f := newPlanFixture()
	store := alias.NewStore(alias.DefaultMaxLen)
	w := walker.New(f.reg, store)
	scan := f.b.Node("SeqScan")
	root := f.b.Node("Sort").SetPtr("plan.lefttree", scan)

	var out lines
	require.NoError(t, w.Walk(root.PtrAs("Plan"), &out))
	require.Equal(t, []string{"a0", "a1"}, store.Names())
	v, ok := store.Get("$a1")
	require.True(t, ok)
	require.Equal(t, "SeqScan *", v.Type().String())

	out = nil
	require.NoError(t, w.Walk(root.PtrAs("Plan"), &out))
	require.True(t, strings.HasPrefix(out[0], "$b0 "), out[0])
}

func TestWalkTemplateWrapper(t *testing.T) {
	f := newPlanFixture()
	cat := f.b.Catalog
	plan := cat.MustLookup("Plan")
	wrapper := memimage.Layout(inspect.Struct, "NodePtr<Plan>", memimage.M("ptr", f.b.Proc.PointerTo(plan)))
	wrapper.TemplateArgs = []*inspect.Type{plan}
	cat.Add(wrapper)

	f.reg.Cast.RegisterTemplate("Plan", func(v *inspect.Value) (*inspect.Value, error) {
		p, err := v.Field("ptr")
		if err != nil {
			return nil, err
		}
		return f.dec.CastNode(p)
	})
	scan := f.b.Node("SeqScan").Set("scan.scanrelid", 9)
	w := f.b.New("NodePtr<Plan>").SetPtr("ptr", scan)

	out := f.walk(t, w.Ptr())
	require.Equal(t, lines{"$a0 (SeqScan *) " + hex(scan) + " scanrelid=9"}, out)
}

func TestWalkErrorAborts(t *testing.T) {
	f := newPlanFixture()
	bad := f.b.Node("SeqScan").Set("scan.plan.type", 9999)
	root := f.b.Node("Sort").SetPtr("plan.lefttree", bad)

	var out lines
	err := walker.New(f.reg, nil).Walk(root.PtrAs("Plan"), &out)
	require.Error(t, err)
	require.Len(t, out, 1, "lines before the failure are kept")

	var we *walker.Error
	require.True(t, errors.As(err, &we), "%v", err)
	require.Equal(t, bad.Addr, we.Addr)
	require.Equal(t, "Plan *", we.Type)
	var tre *inspect.TypeResolutionError
	require.True(t, errors.As(err, &tre), "%v", err)
}

func TestWalkHookErrorIsWrapped(t *testing.T) {
	f := newPlanFixture()
	boom := errors.New("boom")
	f.reg.Describe.Register("Sort", func(v *inspect.Value) (string, bool, error) {
		return "", false, boom
	})
	root := f.b.Node("Sort")
	err := walker.New(f.reg, nil).Walk(root.PtrAs("Plan"), walker.SinkFunc(func(string) {}))
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "show_Sort")
	var we *walker.Error
	require.True(t, errors.As(err, &we))
	require.Equal(t, "Sort *", we.Type)
}

type dynamicTyper func(v *inspect.Value) (*inspect.Type, error)

func (f dynamicTyper) DynamicType(v *inspect.Value) (*inspect.Type, error) { return f(v) }

func TestWalkUsesDynamicType(t *testing.T) {
	b := memimage.NewBuilder(memimage.PostgresCatalog())
	seqscanPtr := b.Proc.PointerTo(b.Catalog.MustLookup("SeqScan"))
	b.Proc.Dynamic = dynamicTyper(func(v *inspect.Value) (*inspect.Type, error) {
		if e := v.Type().Elem(); e != nil && e.Name == "Plan" {
			return seqscanPtr, nil
		}
		return nil, nil
	})

	var castArg *inspect.Type
	reg := dispatch.NewRegistry()
	reg.Cast.Register("SeqScan", func(v *inspect.Value) (*inspect.Value, error) {
		castArg = v.Type()
		return v, nil
	})
	reg.Describe.Register("SeqScan", func(v *inspect.Value) (string, bool, error) {
		rel, err := v.Field("scanrelid")
		if err != nil {
			return "", false, err
		}
		return "scanrelid=" + rel.String(), true, nil
	})
	reg.Describe.Register("Plan", func(v *inspect.Value) (string, bool, error) {
		return "declared type", true, nil
	})

	scan := b.Node("SeqScan").Set("scan.scanrelid", 3)
	var out lines
	require.NoError(t, walker.New(reg, nil).Walk(scan.PtrAs("Plan"), &out))
	require.Equal(t, lines{"$a0 (SeqScan *) " + hex(scan) + " scanrelid=3"}, out)
	require.Same(t, seqscanPtr, castArg, "cast hook resolved against and handed the dynamic type")
}
