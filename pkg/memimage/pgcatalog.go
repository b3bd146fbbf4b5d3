package memimage

import (
	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// Node tags used by PostgresCatalog. The list tags match the defaults of
// the tagged package.
const (
	TagInvalid           = 0
	TagList              = 1
	TagResult            = 11
	TagSeqScan           = 12
	TagIndexScan         = 13
	TagNestLoop          = 14
	TagHashJoin          = 15
	TagSort              = 16
	TagHash              = 17
	TagScan              = 18
	TagJoin              = 19
	TagPlan              = 20
	TagVar               = 101
	TagConst             = 102
	TagFuncExpr          = 103
	TagOpExpr            = 104
	TagScalarArrayOpExpr = 105
	TagBoolExpr          = 106
	TagIntList           = 451
	TagOidList           = 452
	TagXidList           = 453
)

// BoolExprType values.
const (
	AndExpr = 0
	OrExpr  = 1
	NotExpr = 2
)

var nodeTags = []inspect.Enumerator{
	{Name: "T_Invalid", Val: TagInvalid},
	{Name: "T_List", Val: TagList},
	{Name: "T_Result", Val: TagResult},
	{Name: "T_SeqScan", Val: TagSeqScan},
	{Name: "T_IndexScan", Val: TagIndexScan},
	{Name: "T_NestLoop", Val: TagNestLoop},
	{Name: "T_HashJoin", Val: TagHashJoin},
	{Name: "T_Sort", Val: TagSort},
	{Name: "T_Hash", Val: TagHash},
	{Name: "T_Scan", Val: TagScan},
	{Name: "T_Join", Val: TagJoin},
	{Name: "T_Plan", Val: TagPlan},
	{Name: "T_Var", Val: TagVar},
	{Name: "T_Const", Val: TagConst},
	{Name: "T_FuncExpr", Val: TagFuncExpr},
	{Name: "T_OpExpr", Val: TagOpExpr},
	{Name: "T_ScalarArrayOpExpr", Val: TagScalarArrayOpExpr},
	{Name: "T_BoolExpr", Val: TagBoolExpr},
	{Name: "T_IntList", Val: TagIntList},
	{Name: "T_OidList", Val: TagOidList},
	{Name: "T_XidList", Val: TagXidList},
}

// PostgresCatalog returns a catalog with the subset of PostgreSQL's node
// definitions the expression and plan walkers need, laid out for a 64 bit
// little endian target.
func PostgresCatalog() *Catalog {
	const ptrSize = 8
	c := NewCatalog()
	ptr := func(t *inspect.Type) *inspect.Type { return inspect.NewPointer(t, ptrSize) }

	void := c.Add(&inspect.Type{Name: "void", Kind: inspect.Void})
	boolT := c.Add(Basic("bool", inspect.Bool, 1))
	intT := c.Add(Basic("int", inspect.Int, 4))
	int16T := c.Add(Basic("short", inspect.Int, 2))
	uintT := c.Add(Basic("unsigned int", inspect.Uint, 4))
	ulong := c.Add(Basic("unsigned long", inspect.Uint, 8))
	double := c.Add(Basic("double", inspect.Float, 8))

	oid := c.Add(Typedef("Oid", uintT))
	xid := c.Add(Typedef("TransactionId", uintT))
	index := c.Add(Typedef("Index", uintT))
	attr := c.Add(Typedef("AttrNumber", int16T))
	int32T := c.Add(Typedef("int32", intT))
	datum := c.Add(Typedef("Datum", ulong))
	cost := c.Add(Typedef("Cost", double))
	card := c.Add(Typedef("Cardinality", double))

	tag := c.Add(EnumOf("NodeTag", nodeTags...))
	boolop := c.Add(EnumOf("BoolExprType",
		inspect.Enumerator{Name: "AND_EXPR", Val: AndExpr},
		inspect.Enumerator{Name: "OR_EXPR", Val: OrExpr},
		inspect.Enumerator{Name: "NOT_EXPR", Val: NotExpr}))
	coercion := c.Add(EnumOf("CoercionForm",
		inspect.Enumerator{Name: "COERCE_EXPLICIT_CALL", Val: 0},
		inspect.Enumerator{Name: "COERCE_EXPLICIT_CAST", Val: 1},
		inspect.Enumerator{Name: "COERCE_IMPLICIT_CAST", Val: 2},
		inspect.Enumerator{Name: "COERCE_SQL_SYNTAX", Val: 3}))
	jointype := c.Add(EnumOf("JoinType",
		inspect.Enumerator{Name: "JOIN_INNER", Val: 0},
		inspect.Enumerator{Name: "JOIN_LEFT", Val: 1},
		inspect.Enumerator{Name: "JOIN_FULL", Val: 2},
		inspect.Enumerator{Name: "JOIN_RIGHT", Val: 3}))

	node := c.Add(Layout(inspect.Struct, "Node", M("type", tag)))

	cell := c.Add(Layout(inspect.Union, "ListCell",
		M("ptr_value", ptr(void)),
		M("int_value", intT),
		M("oid_value", oid),
		M("xid_value", xid)))
	list := c.Add(Layout(inspect.Struct, "List",
		M("type", tag),
		M("length", intT),
		M("max_length", intT),
		M("elements", ptr(cell)),
		M("initial_elements", ArrayOf(cell, -1))))
	listp := ptr(list)

	expr := c.Add(Layout(inspect.Struct, "Expr", M("type", tag)))
	c.Add(Layout(inspect.Struct, "Var",
		M("xpr", expr),
		M("varno", intT),
		M("varattno", attr),
		M("vartype", oid),
		M("vartypmod", int32T),
		M("varcollid", oid),
		M("varlevelsup", index),
		M("location", intT)))
	c.Add(Layout(inspect.Struct, "Const",
		M("xpr", expr),
		M("consttype", oid),
		M("consttypmod", int32T),
		M("constcollid", oid),
		M("constlen", intT),
		M("constvalue", datum),
		M("constisnull", boolT),
		M("constbyval", boolT),
		M("location", intT)))
	c.Add(Layout(inspect.Struct, "OpExpr",
		M("xpr", expr),
		M("opno", oid),
		M("opfuncid", oid),
		M("opresulttype", oid),
		M("opretset", boolT),
		M("opcollid", oid),
		M("inputcollid", oid),
		M("args", listp),
		M("location", intT)))
	c.Add(Layout(inspect.Struct, "ScalarArrayOpExpr",
		M("xpr", expr),
		M("opno", oid),
		M("opfuncid", oid),
		M("hashfuncid", oid),
		M("negfuncid", oid),
		M("useOr", boolT),
		M("inputcollid", oid),
		M("args", listp),
		M("location", intT)))
	c.Add(Layout(inspect.Struct, "BoolExpr",
		M("xpr", expr),
		M("boolop", boolop),
		M("args", listp),
		M("location", intT)))
	c.Add(Layout(inspect.Struct, "FuncExpr",
		M("xpr", expr),
		M("funcid", oid),
		M("funcresulttype", oid),
		M("funcretset", boolT),
		M("funcvariadic", boolT),
		M("funcformat", coercion),
		M("funccollid", oid),
		M("inputcollid", oid),
		M("args", listp),
		M("location", intT)))

	plan := &inspect.Type{Name: "Plan", Kind: inspect.Struct}
	LayoutInto(plan,
		M("type", tag),
		M("startup_cost", cost),
		M("total_cost", cost),
		M("plan_rows", card),
		M("plan_width", intT),
		M("parallel_aware", boolT),
		M("plan_node_id", intT),
		M("targetlist", listp),
		M("qual", listp),
		M("lefttree", ptr(plan)),
		M("righttree", ptr(plan)))
	c.Add(plan)
	scan := c.Add(Layout(inspect.Struct, "Scan", M("plan", plan), M("scanrelid", index)))
	c.Add(Layout(inspect.Struct, "SeqScan", M("scan", scan)))
	c.Add(Layout(inspect.Struct, "IndexScan",
		M("scan", scan),
		M("indexid", oid),
		M("indexqual", listp),
		M("indexorderby", listp)))
	join := c.Add(Layout(inspect.Struct, "Join",
		M("plan", plan),
		M("jointype", jointype),
		M("inner_unique", boolT),
		M("joinqual", listp)))
	c.Add(Layout(inspect.Struct, "HashJoin", M("join", join), M("hashclauses", listp)))
	c.Add(Layout(inspect.Struct, "NestLoop", M("join", join), M("nestParams", listp)))
	c.Add(Layout(inspect.Struct, "Hash",
		M("plan", plan),
		M("hashkeys", listp),
		M("skewTable", oid)))
	c.Add(Layout(inspect.Struct, "Sort", M("plan", plan), M("numCols", intT)))
	c.Add(Layout(inspect.Struct, "Result", M("plan", plan), M("resconstantqual", ptr(node))))
	return c
}
