package memimage

// Demo is a synthetic backend holding a few trees of the shape PostgreSQL
// builds for
//
//	SELECT * FROM t1 JOIN t2 USING (id) WHERE t1.a = 1 AND length(t2.b) > 3
type Demo struct {
	*Builder

	// Qual is the WHERE clause: a BoolExpr over an OpExpr and a FuncExpr.
	Qual *Object
	// Plan is the top of a hash join plan.
	Plan *Object
	// Args is a pointer List of mixed expression nodes.
	Args *Object
	// Oids is an OID List.
	Oids *Object
}

// Well known catalog OIDs used by the demo trees.
const (
	oidInt4      = 23
	oidText      = 25
	oidInt4Eq    = 96
	oidInt4Gt    = 521
	oidLengthFn  = 1317
	oidTestTable = 16384
)

// NewDemo builds the demo trees into a fresh image.
func NewDemo() *Demo {
	b := NewBuilder(PostgresCatalog())
	d := &Demo{Builder: b}

	eq := b.Node("OpExpr").Set("opno", oidInt4Eq).Set("opresulttype", 16)
	eq.SetPtr("args", b.PtrList(d.variable(1, 2, oidInt4), d.constant(oidInt4, 1, false)))

	length := b.Node("FuncExpr").Set("funcid", oidLengthFn).Set("funcresulttype", oidInt4)
	length.SetPtr("args", b.PtrList(d.variable(2, 2, oidText)))
	gt := b.Node("OpExpr").Set("opno", oidInt4Gt).Set("opresulttype", 16)
	gt.SetPtr("args", b.PtrList(length, d.constant(oidInt4, 3, false)))

	d.Qual = b.Node("BoolExpr").SetEnum("boolop", "AND_EXPR")
	d.Qual.SetPtr("args", b.PtrList(eq, gt))

	outer := b.Node("SeqScan").Set("scan.scanrelid", 1)
	outer.SetPtr("scan.plan.qual", b.PtrList(eq))
	inner := b.Node("IndexScan").Set("scan.scanrelid", 2).Set("indexid", oidTestTable+1)
	hash := b.Node("Hash").SetPtr("plan.lefttree", inner)
	join := b.Node("HashJoin").
		SetEnum("join.jointype", "JOIN_INNER").
		SetPtr("join.plan.lefttree", outer).
		SetPtr("join.plan.righttree", hash)
	d.Plan = b.Node("Sort").Set("numCols", 1).SetPtr("plan.lefttree", join)

	d.Args = b.PtrList(d.variable(1, 1, oidInt4), d.constant(oidText, 0, true), gt)
	d.Oids = b.List(TagOidList, oidTestTable, oidTestTable+1)
	return d
}

func (d *Demo) variable(varno, attno, typ uint64) *Object {
	return d.Node("Var").Set("varno", varno).Set("varattno", attno).Set("vartype", typ).Set("vartypmod", 0xffffffff)
}

func (d *Demo) constant(typ, val uint64, isnull bool) *Object {
	c := d.Node("Const").Set("consttype", typ).Set("constvalue", val).Set("constlen", 4)
	if isnull {
		c.Set("constisnull", 1)
	}
	return c
}
