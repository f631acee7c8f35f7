package sqlgw

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

func parseOrFatal(t *testing.T, sql string) *pg_query.Node {
	t.Helper()
	root, err := parseSingleStatement(sql)
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", sql, err)
	}
	return root
}

func TestEnforceReadOnlyRejectsNonSelectTopLevel(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "INSERT INTO employee (id) VALUES (1)")
	if err := enforceReadOnly(root); err == nil {
		t.Fatal("expected rejection of a non-Select top-level statement")
	}
}

func TestEnforceReadOnlyAcceptsPlainSelect(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT 1")
	if err := enforceReadOnly(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnforceReadOnlyRejectsWriteInsideCTE(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t,
		"WITH deleted AS (DELETE FROM employee WHERE id = 1 RETURNING id) SELECT * FROM deleted")
	if err := enforceReadOnly(root); err == nil {
		t.Fatal("expected rejection of a write statement nested in a CTE")
	}
}

func TestEnforceSafeFunctionsRejectsBlockedFunction(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT pg_sleep(5)")
	m := exampleManifest()
	err := enforceSafeFunctions(root, m)
	if err == nil {
		t.Fatal("expected rejection of a blocked function call")
	}
	gwErr := err.(*Error)
	if gwErr.Kind != BlockedFunction || gwErr.Function != "pg_sleep" {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestEnforceSafeFunctionsAllowsUnlistedFunction(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT lower(e.first_name) FROM employee AS e")
	m := exampleManifest()
	if err := enforceSafeFunctions(root, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnforceTableAccessRejectsUnknownTable(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT * FROM pg_shadow")
	m := exampleManifest()
	err := enforceTableAccess(root, m)
	if err == nil {
		t.Fatal("expected rejection of a table absent from policy")
	}
	gwErr := err.(*Error)
	if gwErr.Kind != TableNotAllowed || gwErr.Table != "pg_shadow" {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestEnforceTableAccessAllowsCTEAlias(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "WITH recent AS (SELECT id FROM employee) SELECT * FROM recent")
	m := exampleManifest()
	if err := enforceTableAccess(root, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpandSelectStarBareExpandsAllDirectTables(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT * FROM department AS d")
	m := exampleManifest()
	expandSelectStar(root, m)
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	if len(sel.TargetList) != 2 {
		t.Fatalf("expected 2 expanded columns (id, dept_name), got %d", len(sel.TargetList))
	}
}

func TestExpandSelectStarQualifiedLeavesUnknownQualifierAlone(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "WITH recent AS (SELECT id FROM employee) SELECT recent.* FROM recent")
	m := exampleManifest()
	expandSelectStar(root, m)
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	if len(sel.TargetList) != 1 {
		t.Fatalf("expected recent.* left untouched (CTE alias), got %d targets", len(sel.TargetList))
	}
}

func TestEnforceColumnAccessRejectsDisallowedColumn(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT e.ssn FROM employee AS e")
	m := exampleManifest()
	err := enforceColumnAccess(root, m)
	if err == nil {
		t.Fatal("expected rejection of a column absent from allowed_columns")
	}
	gwErr := err.(*Error)
	if gwErr.Kind != ColumnNotAllowed || gwErr.Column != "ssn" {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestEnforceColumnAccessFlagsAmbiguousUnqualifiedPredicateColumn(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT e.first_name FROM employee AS e, salary AS s WHERE employee_id = 1")
	m := exampleManifest()
	err := enforceColumnAccess(root, m)
	if err == nil {
		t.Fatal("expected rejection of an ambiguous unqualified predicate column")
	}
	gwErr := err.(*Error)
	if gwErr.Kind != AmbiguousUnqualifiedColumn {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestEnforceColumnAccessFlagsAmbiguousColumnOnlyReachableViaNestedSubquery(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT d.dept_name FROM department AS d "+
		"JOIN (SELECT employee_id, amount FROM salary) AS sv ON sv.employee_id = d.id "+
		"WHERE employee_id = 1")
	m := exampleManifest()
	err := enforceColumnAccess(root, m)
	if err == nil {
		t.Fatal("expected rejection: employee_id is ambiguous against salary, a user-scoped table reachable only through the JOIN subquery, not the outer select's own FROM/JOIN list")
	}
	gwErr := err.(*Error)
	if gwErr.Kind != AmbiguousUnqualifiedColumn {
		t.Fatalf("unexpected error: %+v", gwErr)
	}
}

func TestEnforceColumnAccessAllowsUnqualifiedProjectionColumn(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT first_name FROM employee AS e")
	m := exampleManifest()
	if err := enforceColumnAccess(root, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnforceLimitAddsLimitWhenAbsent(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT 1")
	enforceLimit(root, MaxLimit)
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	if sel.LimitCount == nil {
		t.Fatal("expected a LIMIT to be added")
	}
}

func TestEnforceLimitCapsOversizedLiteral(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT 1 LIMIT 100000")
	enforceLimit(root, MaxLimit)
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	ival := sel.LimitCount.Node.(*pg_query.Node_AConst).AConst.Val.(*pg_query.A_Const_Ival)
	if int(ival.Ival.Ival) != MaxLimit {
		t.Fatalf("expected limit capped to %d, got %d", MaxLimit, ival.Ival.Ival)
	}
}

func TestEnforceLimitPreservesSmallerLiteral(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT 1 LIMIT 3")
	enforceLimit(root, MaxLimit)
	sel := root.Node.(*pg_query.Node_SelectStmt).SelectStmt
	ival := sel.LimitCount.Node.(*pg_query.Node_AConst).AConst.Val.(*pg_query.A_Const_Ival)
	if int(ival.Ival.Ival) != 3 {
		t.Fatalf("expected the smaller literal preserved, got %d", ival.Ival.Ival)
	}
}

func TestQualifyTablesWithSchemaSkipsCTEAlias(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "WITH recent AS (SELECT id FROM employee) SELECT * FROM recent")
	m := exampleManifest()
	m.DefaultSchema = "public"
	qualifyTablesWithSchema(root, m)
	var sawSchema bool
	walk(root, func(n *pg_query.Node) {
		rv, ok := n.Node.(*pg_query.Node_RangeVar)
		if !ok {
			return
		}
		if rv.RangeVar.Relname == "recent" && rv.RangeVar.Schemaname != "" {
			sawSchema = true
		}
	})
	if sawSchema {
		t.Fatal("expected the CTE alias reference to remain unqualified")
	}
}

func TestQualifyTablesWithSchemaQualifiesRealTable(t *testing.T) {
	t.Parallel()
	root := parseOrFatal(t, "SELECT * FROM employee AS e")
	m := exampleManifest()
	m.DefaultSchema = "public"
	qualifyTablesWithSchema(root, m)
	rv := root.Node.(*pg_query.Node_SelectStmt).SelectStmt.FromClause[0].Node.(*pg_query.Node_RangeVar).RangeVar
	if rv.Schemaname != "public" {
		t.Fatalf("expected schema public, got %q", rv.Schemaname)
	}
}
