package sqlgw

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

func TestCollectCTEAliasesAndRealTables(t *testing.T) {
	t.Parallel()
	root, err := parseSingleStatement(
		"WITH recent AS (SELECT e.id FROM employee AS e) SELECT * FROM recent JOIN department AS d ON true")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	aliases := collectCTEAliases(root)
	if _, ok := aliases["recent"]; !ok {
		t.Fatalf("expected recent to be a collected CTE alias, got %v", aliases)
	}
	tables := collectRealTables(root)
	want := map[string]bool{"employee": true, "department": true}
	if len(tables) != len(want) {
		t.Fatalf("expected 2 real tables, got %v", tables)
	}
	for _, name := range tables {
		if !want[name] {
			t.Fatalf("unexpected real table %q in %v", name, tables)
		}
		if name == "recent" {
			t.Fatal("CTE alias leaked into collectRealTables")
		}
	}
}

func TestDirectTablesStopsAtSubqueryBoundary(t *testing.T) {
	t.Parallel()
	root, err := parseSingleStatement(
		"SELECT * FROM employee AS e JOIN (SELECT * FROM salary) AS s ON true")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	var outer *pg_query.SelectStmt
	count := 0
	forEachSelect(root, func(sel *pg_query.SelectStmt) {
		count++
		if outer == nil {
			outer = sel
		}
	})
	if count != 2 {
		t.Fatalf("expected forEachSelect to find the outer select and the subquery, got %d", count)
	}
	tables := directTables(outer, collectCTEAliases(root))
	if len(tables) != 1 {
		t.Fatalf("expected directTables to stop at the subquery boundary, got %v", tables)
	}
	if tables[0].RealTable != "employee" {
		t.Fatalf("expected employee as the only direct table, got %q", tables[0].RealTable)
	}
}

func TestColumnRefPartsBareQualifiedAndStar(t *testing.T) {
	t.Parallel()
	root, err := parseSingleStatement("SELECT e.first_name, id, e.* FROM employee AS e")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt

	var got []struct {
		Qualifier string
		Column    string
		IsStar    bool
	}
	for _, target := range sel.TargetList {
		rt := target.Node.(*pg_query.Node_ResTarget).ResTarget
		cr := rt.Val.Node.(*pg_query.Node_ColumnRef).ColumnRef
		q, c, star := columnRefParts(cr)
		got = append(got, struct {
			Qualifier string
			Column    string
			IsStar    bool
		}{q, c, star})
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 target list entries, got %d", len(got))
	}
	if got[0].Qualifier != "e" || got[0].Column != "first_name" || got[0].IsStar {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].Qualifier != "" || got[1].Column != "id" || got[1].IsStar {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if got[2].Qualifier != "e" || !got[2].IsStar {
		t.Fatalf("unexpected third entry: %+v", got[2])
	}
}

func TestMentionsColumnFindsCorrelatedSubqueryReference(t *testing.T) {
	t.Parallel()
	root, err := parseSingleStatement(
		"SELECT e.first_name FROM employee AS e WHERE EXISTS (SELECT 1 FROM salary AS s WHERE s.employee_id = e.id)")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	if !mentionsColumn(sel.WhereClause, "e", "id") {
		t.Fatal("expected mentionsColumn to find e.id inside the correlated subquery")
	}
	if mentionsColumn(sel.WhereClause, "e", "first_name") {
		t.Fatal("expected mentionsColumn to report false for a column not present")
	}
}

func TestFuncNameLowercasesAndJoinsQualifiedName(t *testing.T) {
	t.Parallel()
	root, err := parseSingleStatement("SELECT PG_CATALOG.NOW()")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	rt := sel.TargetList[0].Node.(*pg_query.Node_ResTarget).ResTarget
	fc := rt.Val.Node.(*pg_query.Node_FuncCall).FuncCall
	if got := funcName(fc); got != "pg_catalog.now" {
		t.Fatalf("expected pg_catalog.now, got %q", got)
	}
}
