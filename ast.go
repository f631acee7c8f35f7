package sqlgw

import (
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// parseSingleStatement enforces §4.1: exactly one statement, no stacked
// queries, no empty input. A single trailing semicolon is tolerated because
// pg_query.Parse does not emit an extra RawStmt for it.
func parseSingleStatement(sql string) (*pg_query.Node, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, errInvalidSQL(err)
	}
	if len(result.Stmts) == 0 {
		return nil, errInvalidSQL(nil)
	}
	if len(result.Stmts) > 1 {
		return nil, errInvalidSQL(nil)
	}
	raw := result.Stmts[0]
	if raw == nil || raw.Stmt == nil {
		return nil, errInvalidSQL(nil)
	}
	return raw.Stmt, nil
}

// deparse re-serializes a single root statement back to SQL text.
func deparse(root *pg_query.Node) (string, error) {
	result := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{Stmt: root}},
	}
	sql, err := pg_query.Deparse(result)
	if err != nil {
		return "", errInvalidSQL(err)
	}
	return sql, nil
}

// walk visits node and every descendant reachable through the statement and
// expression shapes a read-only SQL gateway actually needs to understand:
// SELECT bodies (including set operations and CTEs), FROM/JOIN trees,
// WHERE/HAVING predicates, and the write/DDL statement kinds that must be
// detectable wherever they appear (e.g. inside a CTE). visit is called on
// every node, including node itself; returning early is the visit
// function's responsibility (walk always fully descends).
func walk(node *pg_query.Node, visit func(*pg_query.Node)) {
	if node == nil || node.Node == nil {
		return
	}
	visit(node)

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		walkSelect(n.SelectStmt, visit)
	case *pg_query.Node_RangeVar:
		// leaf: no child expression nodes
	case *pg_query.Node_RangeSubselect:
		walk(n.RangeSubselect.Subquery, visit)
	case *pg_query.Node_RangeFunction:
		for _, f := range n.RangeFunction.Functions {
			walk(f, visit)
		}
	case *pg_query.Node_JoinExpr:
		walk(n.JoinExpr.Larg, visit)
		walk(n.JoinExpr.Rarg, visit)
		walk(n.JoinExpr.Quals, visit)
	case *pg_query.Node_FromExpr:
		for _, item := range n.FromExpr.Fromlist {
			walk(item, visit)
		}
		walk(n.FromExpr.Quals, visit)
	case *pg_query.Node_WithClause:
		for _, cte := range n.WithClause.Ctes {
			walk(cte, visit)
		}
	case *pg_query.Node_CommonTableExpr:
		walk(n.CommonTableExpr.Ctequery, visit)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			walk(arg, visit)
		}
	case *pg_query.Node_AExpr:
		walk(n.AExpr.Lexpr, visit)
		walk(n.AExpr.Rexpr, visit)
	case *pg_query.Node_ColumnRef:
		for _, f := range n.ColumnRef.Fields {
			walk(f, visit)
		}
	case *pg_query.Node_FuncCall:
		for _, a := range n.FuncCall.Args {
			walk(a, visit)
		}
	case *pg_query.Node_SubLink:
		walk(n.SubLink.Testexpr, visit)
		walk(n.SubLink.Subselect, visit)
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			walk(item, visit)
		}
	case *pg_query.Node_ResTarget:
		walk(n.ResTarget.Val, visit)
	case *pg_query.Node_TypeCast:
		walk(n.TypeCast.Arg, visit)
	case *pg_query.Node_CaseExpr:
		for _, w := range n.CaseExpr.Args {
			walk(w, visit)
		}
		walk(n.CaseExpr.Defresult, visit)
	case *pg_query.Node_CaseWhen:
		walk(n.CaseWhen.Expr, visit)
		walk(n.CaseWhen.Result, visit)
	case *pg_query.Node_NullTest:
		walk(n.NullTest.Arg, visit)
	case *pg_query.Node_BooleanTest:
		walk(n.BooleanTest.Arg, visit)
	case *pg_query.Node_AIndirection:
		walk(n.AIndirection.Arg, visit)
	case *pg_query.Node_AArrayExpr:
		for _, e := range n.AArrayExpr.Elements {
			walk(e, visit)
		}
	case *pg_query.Node_RowExpr:
		for _, a := range n.RowExpr.Args {
			walk(a, visit)
		}
	case *pg_query.Node_CoalesceExpr:
		for _, a := range n.CoalesceExpr.Args {
			walk(a, visit)
		}
	case *pg_query.Node_SortBy:
		walk(n.SortBy.Node, visit)
	case *pg_query.Node_InsertStmt:
		walk(n.InsertStmt.SelectStmt, visit)
	case *pg_query.Node_UpdateStmt:
		for _, f := range n.UpdateStmt.FromClause {
			walk(f, visit)
		}
		walk(n.UpdateStmt.WhereClause, visit)
	case *pg_query.Node_DeleteStmt:
		for _, u := range n.DeleteStmt.UsingClause {
			walk(u, visit)
		}
		walk(n.DeleteStmt.WhereClause, visit)
	case *pg_query.Node_MergeStmt:
		walk(n.MergeStmt.SourceRelation, visit)
		walk(n.MergeStmt.JoinCondition, visit)
	default:
		// Leaf or a statement kind (Create/Drop/Alter/Truncate/...) whose
		// internals don't contain nested SELECTs in practice — presence of
		// the node itself is what the read-only gate cares about.
	}
}

func walkSelect(s *pg_query.SelectStmt, visit func(*pg_query.Node)) {
	if s == nil {
		return
	}
	if s.WithClause != nil {
		walk(&pg_query.Node{Node: &pg_query.Node_WithClause{WithClause: s.WithClause}}, visit)
	}
	if s.Larg != nil {
		walk(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Larg}}, visit)
	}
	if s.Rarg != nil {
		walk(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Rarg}}, visit)
	}
	for _, t := range s.TargetList {
		walk(t, visit)
	}
	for _, f := range s.FromClause {
		walk(f, visit)
	}
	walk(s.WhereClause, visit)
	walk(s.HavingClause, visit)
	for _, g := range s.GroupClause {
		walk(g, visit)
	}
	for _, o := range s.SortClause {
		walk(o, visit)
	}
	walk(s.LimitCount, visit)
	walk(s.LimitOffset, visit)
}

// isWriteOrDDL reports whether node is one of the statement kinds the
// read-only gate must reject (§4.2 defense in depth).
func isWriteOrDDL(node *pg_query.Node) bool {
	if node == nil || node.Node == nil {
		return false
	}
	switch node.Node.(type) {
	case *pg_query.Node_InsertStmt,
		*pg_query.Node_UpdateStmt,
		*pg_query.Node_DeleteStmt,
		*pg_query.Node_MergeStmt,
		*pg_query.Node_CreateStmt,
		*pg_query.Node_CreateTableAsStmt,
		*pg_query.Node_DropStmt,
		*pg_query.Node_AlterTableStmt,
		*pg_query.Node_AlterTableCmd,
		*pg_query.Node_TruncateStmt,
		*pg_query.Node_ViewStmt,
		*pg_query.Node_IndexStmt,
		*pg_query.Node_GrantStmt,
		*pg_query.Node_CreateFunctionStmt,
		*pg_query.Node_DoStmt,
		*pg_query.Node_VariableSetStmt,
		*pg_query.Node_CopyStmt:
		return true
	default:
		return false
	}
}

// collectCTEAliases returns the set of CTE names defined anywhere in root
// (WITH clauses at any nesting level), per §2 AST Utilities / GLOSSARY.
func collectCTEAliases(root *pg_query.Node) map[string]struct{} {
	aliases := make(map[string]struct{})
	walk(root, func(n *pg_query.Node) {
		if cte, ok := n.Node.(*pg_query.Node_CommonTableExpr); ok {
			aliases[cte.CommonTableExpr.Ctename] = struct{}{}
		}
	})
	return aliases
}

// collectRealTables returns every RangeVar-named table in root that is not
// a CTE alias (§4.4).
func collectRealTables(root *pg_query.Node) []string {
	aliases := collectCTEAliases(root)
	seen := make(map[string]struct{})
	var names []string
	walk(root, func(n *pg_query.Node) {
		rv, ok := n.Node.(*pg_query.Node_RangeVar)
		if !ok {
			return
		}
		name := rv.RangeVar.Relname
		if _, isCTE := aliases[name]; isCTE {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}

// directTable is one entry of a Select's direct-table map (§4.6).
type directTable struct {
	RealTable string
	Qualifier string // alias if present, else RealTable
	RangeVar  *pg_query.RangeVar
}

// directTables returns the direct (non-subquery) tables of sel: every
// RangeVar reachable through FromClause/JoinExpr without descending into a
// nested Select, RangeSubselect, or SubLink, with CTE aliases excluded.
func directTables(sel *pg_query.SelectStmt, cteAliases map[string]struct{}) []directTable {
	var out []directTable
	var visitFrom func(node *pg_query.Node)
	visitFrom = func(node *pg_query.Node) {
		if node == nil || node.Node == nil {
			return
		}
		switch n := node.Node.(type) {
		case *pg_query.Node_RangeVar:
			rv := n.RangeVar
			if _, isCTE := cteAliases[rv.Relname]; isCTE {
				return
			}
			q := rv.Relname
			if rv.Alias != nil && rv.Alias.Aliasname != "" {
				q = rv.Alias.Aliasname
			}
			out = append(out, directTable{RealTable: rv.Relname, Qualifier: q, RangeVar: rv})
		case *pg_query.Node_JoinExpr:
			visitFrom(n.JoinExpr.Larg)
			visitFrom(n.JoinExpr.Rarg)
		case *pg_query.Node_RangeSubselect:
			// subquery boundary: do not descend
		default:
			// anything else (function scans, etc.) contributes no real table
		}
	}
	for _, f := range sel.FromClause {
		visitFrom(f)
	}
	return out
}

// qualifierMap inverts directTables into qualifier -> real table.
func qualifierMap(tables []directTable) map[string]string {
	m := make(map[string]string, len(tables))
	for _, t := range tables {
		m[t.Qualifier] = t.RealTable
	}
	return m
}

// funcName lowercases and joins a FuncCall's (possibly schema-qualified) name.
func funcName(fc *pg_query.FuncCall) string {
	parts := make([]string, 0, len(fc.Funcname))
	for _, n := range fc.Funcname {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	return strings.ToLower(strings.Join(parts, "."))
}

// columnRefParts splits a ColumnRef into (qualifier, column, isStar). A bare
// column has qualifier == "". A bare "*" has column == "" and isStar == true;
// a qualified "q.*" has qualifier == "q", column == "" and isStar == true.
func columnRefParts(cr *pg_query.ColumnRef) (qualifier, column string, isStar bool) {
	var fields []string
	for _, f := range cr.Fields {
		switch v := f.Node.(type) {
		case *pg_query.Node_String_:
			fields = append(fields, v.String_.Sval)
		case *pg_query.Node_AStar:
			isStar = true
		}
	}
	if isStar {
		if len(fields) == 0 {
			return "", "", true
		}
		return fields[len(fields)-1], "", true
	}
	switch len(fields) {
	case 0:
		return "", "", isStar
	case 1:
		return "", fields[0], isStar
	default:
		return fields[0], fields[len(fields)-1], isStar
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// forEachSelect visits every SelectStmt reachable from root, at any nesting
// level (top-level, CTE bodies, derived tables, lateral/correlated
// subqueries) — the scope required by star expansion, column enforcement,
// and user-filter injection alike (§4.6).
func forEachSelect(root *pg_query.Node, visit func(sel *pg_query.SelectStmt)) {
	walk(root, func(n *pg_query.Node) {
		if s, ok := n.Node.(*pg_query.Node_SelectStmt); ok {
			visit(s.SelectStmt)
		}
	})
}

// walkOwn is like walk but stops at a nested Select/RangeSubselect/SubLink
// boundary, so callers can inspect exactly the expressions that belong to
// one Select's own scope (its own target list, from/join quals, where,
// having) without wandering into a subquery that forEachSelect will visit
// separately.
func walkOwn(node *pg_query.Node, visit func(*pg_query.Node)) {
	if node == nil || node.Node == nil {
		return
	}
	switch node.Node.(type) {
	case *pg_query.Node_SelectStmt, *pg_query.Node_RangeSubselect, *pg_query.Node_SubLink:
		return
	}
	visit(node)

	switch n := node.Node.(type) {
	case *pg_query.Node_JoinExpr:
		walkOwn(n.JoinExpr.Larg, visit)
		walkOwn(n.JoinExpr.Rarg, visit)
		walkOwn(n.JoinExpr.Quals, visit)
	case *pg_query.Node_BoolExpr:
		for _, a := range n.BoolExpr.Args {
			walkOwn(a, visit)
		}
	case *pg_query.Node_AExpr:
		walkOwn(n.AExpr.Lexpr, visit)
		walkOwn(n.AExpr.Rexpr, visit)
	case *pg_query.Node_FuncCall:
		for _, a := range n.FuncCall.Args {
			walkOwn(a, visit)
		}
	case *pg_query.Node_List:
		for _, it := range n.List.Items {
			walkOwn(it, visit)
		}
	case *pg_query.Node_ResTarget:
		walkOwn(n.ResTarget.Val, visit)
	case *pg_query.Node_TypeCast:
		walkOwn(n.TypeCast.Arg, visit)
	case *pg_query.Node_CaseExpr:
		for _, w := range n.CaseExpr.Args {
			walkOwn(w, visit)
		}
		walkOwn(n.CaseExpr.Defresult, visit)
	case *pg_query.Node_CaseWhen:
		walkOwn(n.CaseWhen.Expr, visit)
		walkOwn(n.CaseWhen.Result, visit)
	case *pg_query.Node_NullTest:
		walkOwn(n.NullTest.Arg, visit)
	case *pg_query.Node_BooleanTest:
		walkOwn(n.BooleanTest.Arg, visit)
	case *pg_query.Node_AIndirection:
		walkOwn(n.AIndirection.Arg, visit)
	case *pg_query.Node_AArrayExpr:
		for _, e := range n.AArrayExpr.Elements {
			walkOwn(e, visit)
		}
	case *pg_query.Node_RowExpr:
		for _, a := range n.RowExpr.Args {
			walkOwn(a, visit)
		}
	case *pg_query.Node_CoalesceExpr:
		for _, a := range n.CoalesceExpr.Args {
			walkOwn(a, visit)
		}
	}
}

// selectOwnColumnRefs calls visit for every ColumnRef in sel's own scope:
// target list (if includeTargetList), from/join conditions, where, having.
// inTargetList tells the caller whether the ref came from the projection.
func selectOwnColumnRefs(sel *pg_query.SelectStmt, includeTargetList bool, visit func(cr *pg_query.ColumnRef, inTargetList bool)) {
	collect := func(inTargetList bool) func(*pg_query.Node) {
		return func(n *pg_query.Node) {
			if cr, ok := n.Node.(*pg_query.Node_ColumnRef); ok {
				visit(cr.ColumnRef, inTargetList)
			}
		}
	}
	if includeTargetList {
		for _, t := range sel.TargetList {
			walkOwn(t, collect(true))
		}
	}
	for _, f := range sel.FromClause {
		walkOwn(f, collect(false))
	}
	walkOwn(sel.WhereClause, collect(false))
	walkOwn(sel.HavingClause, collect(false))
}

// mentionsColumn reports whether node's subtree (full depth, including
// nested subqueries — correlated references count) contains a Column node
// named column with qualifier exactly qualifier.
func mentionsColumn(node *pg_query.Node, qualifier, column string) bool {
	found := false
	walk(node, func(n *pg_query.Node) {
		cr, ok := n.Node.(*pg_query.Node_ColumnRef)
		if !ok {
			return
		}
		q, c, _ := columnRefParts(cr.ColumnRef)
		if q == qualifier && c == column {
			found = true
		}
	})
	return found
}

func colRefNode(qualifier, column string) *pg_query.Node {
	fields := []*pg_query.Node{stringNode(qualifier), stringNode(column)}
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{
		ColumnRef: &pg_query.ColumnRef{Fields: fields},
	}}
}

func stringNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

// eqPredicate builds `qualifier.column = <int literal value>`.
func eqPredicate(qualifier, column string, value int) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
		Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
		Name:  []*pg_query.Node{stringNode("=")},
		Lexpr: colRefNode(qualifier, column),
		Rexpr: &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(value)}},
		}}},
	}}}
}
