package sqlgw

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// userFilterTarget is one (qualifier, user_key) pair the injector/audit
// must enforce for a single Select.
type userFilterTarget struct {
	Qualifier string
	Key       string
}

// filterTargets computes which direct tables of sel need a user filter,
// honoring the request's skip flags (§4.8 "Skip flags").
func filterTargets(sel *pg_query.SelectStmt, m *Manifest, cteAliases map[string]struct{}, req Request) []userFilterTarget {
	if req.SkipUserFilter {
		return nil
	}
	var targets []userFilterTarget
	for _, t := range directTables(sel, cteAliases) {
		if _, skip := req.skipTableSet()[t.RealTable]; skip {
			continue
		}
		p, ok := m.Policy[t.RealTable]
		if !ok || p.UserKey == "" {
			continue
		}
		if p.Scope != ScopeUser && !req.EnforceUserFilterOnGlobalTables {
			continue
		}
		targets = append(targets, userFilterTarget{Qualifier: t.Qualifier, Key: p.UserKey})
	}
	return targets
}

// injectUserFilters implements §4.8: walks every Select in the AST and, for
// each one, strips existing conditions on the target columns and injects
// the authoritative q.k = u predicate.
func injectUserFilters(root *pg_query.Node, m *Manifest, req Request, userID int) {
	cteAliases := collectCTEAliases(root)
	forEachSelect(root, func(sel *pg_query.SelectStmt) {
		targets := filterTargets(sel, m, cteAliases, req)
		for _, target := range targets {
			sel.WhereClause = stripColumn(sel.WhereClause, target.Qualifier, target.Key)
			predicate := eqPredicate(target.Qualifier, target.Key, userID)
			if sel.WhereClause == nil {
				sel.WhereClause = predicate
			} else {
				sel.WhereClause = andNode(parenNode(sel.WhereClause), predicate)
			}
		}
	})
}

// stripColumn implements the bottom-up rewrite of §4.8 "Stripping" for a
// single (qualifier, key) target. Returns nil for "empty".
func stripColumn(node *pg_query.Node, qualifier, key string) *pg_query.Node {
	if node == nil || node.Node == nil {
		return node
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		be := n.BoolExpr
		switch be.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			var kept []*pg_query.Node
			for _, arg := range be.Args {
				s := stripColumn(arg, qualifier, key)
				if s != nil {
					kept = append(kept, s)
				}
			}
			switch len(kept) {
			case 0:
				return nil
			case 1:
				return kept[0]
			default:
				return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
					Boolop: pg_query.BoolExprType_AND_EXPR, Args: kept,
				}}}
			}
		case pg_query.BoolExprType_OR_EXPR:
			for _, arg := range be.Args {
				if mentionsColumn(arg, qualifier, key) {
					return nil // entire Or deleted — see §4.8 "Or" rule
				}
			}
			return node // neither branch mentions q.k: keep unchanged
		case pg_query.BoolExprType_NOT_EXPR:
			if mentionsColumn(node, qualifier, key) {
				return nil
			}
			return node
		}
		return node
	default:
		if mentionsColumn(node, qualifier, key) {
			return nil
		}
		return node
	}
}

// parenNode marks inner as the left operand of the injected AND. pg_query's
// AST has no explicit grouping node — precedence is the tree shape itself,
// so nesting the caller's surviving predicate (even an Or) as one AND operand
// already gives the mandatory parenthesization; deparse emits real
// parentheses around it whenever precedence requires.
func parenNode(inner *pg_query.Node) *pg_query.Node {
	return inner
}

func andNode(left, right *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
		Boolop: pg_query.BoolExprType_AND_EXPR,
		Args:   []*pg_query.Node{left, right},
	}}}
}

// auditUserFilters implements §4.9: re-walks every Select and verifies the
// authoritative q.k = u predicate is a top-level AND-conjunct of Where, for
// the very userID this request injected — mirroring the original's
// _match_eq, which compares the RHS literal to uid rather than accepting
// any equality on q.k (§4.9/P4).
func auditUserFilters(root *pg_query.Node, m *Manifest, req Request, userID int) error {
	cteAliases := collectCTEAliases(root)
	var failure *Error
	forEachSelect(root, func(sel *pg_query.SelectStmt) {
		if failure != nil {
			return
		}
		targets := filterTargets(sel, m, cteAliases, req)
		qmap := qualifierMap(directTables(sel, cteAliases))
		for _, target := range targets {
			if !hasTopLevelConjunct(sel.WhereClause, target.Qualifier, target.Key, userID) {
				failure = errMissingUserFilter(qmap[target.Qualifier])
				return
			}
		}
	})
	if failure != nil {
		return failure
	}
	return nil
}

// hasTopLevelConjunct reports whether node contains a `qualifier.key = userID`
// comparison reachable by descending only through And/Paren-equivalent
// structure (pg_query has no explicit Paren node — grouping is represented
// by tree shape alone, so "And only" is exactly "And, recursively"). The
// RHS must be the authoritative integer literal itself, not merely some
// equality on q.k.
func hasTopLevelConjunct(node *pg_query.Node, qualifier, key string, userID int) bool {
	if node == nil || node.Node == nil {
		return false
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		be := n.BoolExpr
		if be.Boolop != pg_query.BoolExprType_AND_EXPR {
			return false
		}
		for _, arg := range be.Args {
			if hasTopLevelConjunct(arg, qualifier, key, userID) {
				return true
			}
		}
		return false
	case *pg_query.Node_AExpr:
		ae := n.AExpr
		if ae.Kind != pg_query.A_Expr_Kind_AEXPR_OP || len(ae.Name) != 1 {
			return false
		}
		if opName, ok := ae.Name[0].Node.(*pg_query.Node_String_); !ok || opName.String_.Sval != "=" {
			return false
		}
		cr, ok := ae.Lexpr.Node.(*pg_query.Node_ColumnRef)
		if !ok {
			return false
		}
		q, c, _ := columnRefParts(cr.ColumnRef)
		if q != qualifier || c != key {
			return false
		}
		return rexprMatchesUserID(ae.Rexpr, userID)
	default:
		return false
	}
}

// rexprMatchesUserID reports whether node is the A_Const integer literal
// userID — the same shape eqPredicate builds.
func rexprMatchesUserID(node *pg_query.Node, userID int) bool {
	if node == nil || node.Node == nil {
		return false
	}
	ac, ok := node.Node.(*pg_query.Node_AConst)
	if !ok {
		return false
	}
	ival, ok := ac.AConst.Val.(*pg_query.A_Const_Ival)
	if !ok {
		return false
	}
	return int(ival.Ival.Ival) == userID
}
