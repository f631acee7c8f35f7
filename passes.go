package sqlgw

import (
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// enforceReadOnly implements §4.2. The top-level node must be a Select (a
// bare SetOperation_SETOP_NONE select counts as "Select"; any other Op value
// is the "Union" case from §3's statement-kind list) and no write/DDL node
// may appear anywhere in the tree, including inside a CTE.
func enforceReadOnly(root *pg_query.Node) error {
	if _, ok := root.Node.(*pg_query.Node_SelectStmt); !ok {
		return errNotReadOnly()
	}
	var violated bool
	walk(root, func(n *pg_query.Node) {
		if isWriteOrDDL(n) {
			violated = true
		}
	})
	if violated {
		return errNotReadOnly()
	}
	return nil
}

// enforceSafeFunctions implements §4.3.
func enforceSafeFunctions(root *pg_query.Node, m *Manifest) error {
	var bad string
	walk(root, func(n *pg_query.Node) {
		if bad != "" {
			return
		}
		fc, ok := n.Node.(*pg_query.Node_FuncCall)
		if !ok {
			return
		}
		name := funcName(fc.FuncCall)
		if m.isBlockedFunction(name) {
			bad = name
		}
	})
	if bad != "" {
		return errBlockedFunction(bad)
	}
	return nil
}

// enforceTableAccess implements §4.4.
func enforceTableAccess(root *pg_query.Node, m *Manifest) error {
	for _, name := range collectRealTables(root) {
		if _, ok := m.Policy[name]; !ok {
			return errTableNotAllowed(name)
		}
	}
	return nil
}

// expandSelectStar implements §4.5. Runs after table-access enforcement so
// every direct table it touches is a known policy entry.
func expandSelectStar(root *pg_query.Node, m *Manifest) {
	cteAliases := collectCTEAliases(root)
	forEachSelect(root, func(sel *pg_query.SelectStmt) {
		tables := directTables(sel, cteAliases)
		if len(tables) == 0 {
			return
		}
		qmap := qualifierMap(tables)

		var expanded []*pg_query.Node
		changed := false
		for _, target := range sel.TargetList {
			rt, ok := target.Node.(*pg_query.Node_ResTarget)
			if !ok || rt.ResTarget.Val == nil {
				expanded = append(expanded, target)
				continue
			}
			cr, ok := rt.ResTarget.Val.Node.(*pg_query.Node_ColumnRef)
			if !ok {
				expanded = append(expanded, target)
				continue
			}
			qualifier, _, isStar := columnRefParts(cr.ColumnRef)
			if !isStar {
				expanded = append(expanded, target)
				continue
			}

			if qualifier == "" {
				// Bare * expands across every direct real table.
				changed = true
				for _, t := range tables {
					p := m.Policy[t.RealTable]
					cols := append([]string(nil), p.AllowedColumns...)
					sort.Strings(cols)
					for _, col := range cols {
						expanded = append(expanded, resTargetColumn(t.Qualifier, col))
					}
				}
				continue
			}

			// Qualified q.*
			realTable, known := qmap[qualifier]
			if !known {
				expanded = append(expanded, target) // CTE alias or unknown: leave as-is
				continue
			}
			p, known := m.Policy[realTable]
			if !known {
				expanded = append(expanded, target)
				continue
			}
			changed = true
			cols := append([]string(nil), p.AllowedColumns...)
			sort.Strings(cols)
			for _, col := range cols {
				expanded = append(expanded, resTargetColumn(qualifier, col))
			}
		}
		if changed {
			sel.TargetList = expanded
		}
	})
}

func resTargetColumn(qualifier, column string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{
		Val: colRefNode(qualifier, column),
	}}}
}

// enforceColumnAccess implements §4.7.
func enforceColumnAccess(root *pg_query.Node, m *Manifest) error {
	cteAliases := collectCTEAliases(root)
	var violation error

	// The ambiguous-unqualified-column candidate set is computed once over
	// the entire statement (every real table anywhere, at any nesting
	// level), not per-Select — mirroring the original's
	// referenced_real_tables = self._extract_tables(ast), so a user-scoped
	// table named only in a derived-table/JOIN subquery still makes an
	// unqualified predicate column ambiguous in an outer Select that never
	// names it directly (§4.7).
	allRealTables := collectRealTables(root)

	forEachSelect(root, func(sel *pg_query.SelectStmt) {
		if violation != nil {
			return
		}
		tables := directTables(sel, cteAliases)
		qmap := qualifierMap(tables)

		selectOwnColumnRefs(sel, true, func(cr *pg_query.ColumnRef, inTargetList bool) {
			if violation != nil {
				return
			}
			qualifier, column, isStar := columnRefParts(cr)
			if isStar {
				return // handled by star expansion / left alone for unresolvable cases
			}

			if qualifier != "" {
				if _, isCTE := cteAliases[qualifier]; isCTE {
					return
				}
				realTable := qualifier
				if _, ok := m.Policy[qualifier]; !ok {
					resolved, ok := qmap[qualifier]
					if !ok {
						return // unresolved qualifier: leave as-is (§4.7 bullet 3)
					}
					realTable = resolved
				}
				p, ok := m.Policy[realTable]
				if !ok {
					return
				}
				if !p.allows(column) {
					violation = errColumnNotAllowed(column, realTable)
				}
				return
			}

			// Unqualified.
			if inTargetList {
				return // direct projection: DB resolves or rejects
			}
			var candidates []string
			for _, realTable := range allRealTables {
				p, ok := m.Policy[realTable]
				if !ok {
					continue
				}
				if p.Scope != ScopeUser {
					continue
				}
				if column == p.UserKey || p.allows(column) {
					candidates = append(candidates, realTable)
				}
			}
			if len(candidates) > 0 {
				violation = errAmbiguousColumn(column, candidates)
			}
		})
	})
	return violation
}

// enforceLimit implements §4.10. Mutates root in place.
func enforceLimit(root *pg_query.Node, limit int) {
	top, ok := root.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return
	}
	sel := top.SelectStmt
	capNode := &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(limit)}},
	}}}

	if sel.LimitCount == nil {
		sel.LimitCount = capNode
		return
	}
	ac, ok := sel.LimitCount.Node.(*pg_query.Node_AConst)
	if !ok {
		sel.LimitCount = capNode
		return
	}
	ival, ok := ac.AConst.Val.(*pg_query.A_Const_Ival)
	if !ok {
		// Not an integer literal (e.g. a parameter) — replace with the cap.
		sel.LimitCount = capNode
		return
	}
	if int(ival.Ival.Ival) > limit {
		sel.LimitCount = capNode
	}
}

// qualifyTablesWithSchema implements §4.11. Mutates root in place.
func qualifyTablesWithSchema(root *pg_query.Node, m *Manifest) {
	if m.DefaultSchema == "" {
		return
	}
	cteAliases := collectCTEAliases(root)
	walk(root, func(n *pg_query.Node) {
		rv, ok := n.Node.(*pg_query.Node_RangeVar)
		if !ok {
			return
		}
		if _, isCTE := cteAliases[rv.RangeVar.Relname]; isCTE {
			return
		}
		if rv.RangeVar.Schemaname != "" {
			return
		}
		if _, known := m.Policy[rv.RangeVar.Relname]; !known {
			return
		}
		rv.RangeVar.Schemaname = m.DefaultSchema
	})
}
