// Package sqlgw is the SQL Safety Gateway: it accepts an untrusted SQL
// string produced by an LLM agent on behalf of an authenticated end user
// and either rejects it or returns a rewritten, provably-safe equivalent —
// read-only, table/column whitelisted, user-row-scoped, and bounded in
// result size.
//
// The gateway does no I/O, authenticates nobody, and chooses no physical
// connection: it is a pure AST-level rewrite-and-audit stage sitting
// between a stochastic text generator and a relational database. Parsing
// and re-serialization are delegated to PostgreSQL's own grammar via
// pg_query, so every statement the gateway accepts or rejects is judged by
// the same parser Postgres itself uses.
//
// # Library Usage
//
//	manifest, err := sqlgw.LoadManifest("manifest.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	gw := sqlgw.New(manifest, logger)
//
//	sql, err := gw.ValidateQuery(sqlgw.Request{
//		SQL:            "SELECT e.first_name FROM employee AS e WHERE e.id = 10001",
//		CurrentUserID:  456,
//	})
//	if err != nil {
//		var gwErr *sqlgw.Error
//		errors.As(err, &gwErr)
//		// gwErr.Kind is one of the taxonomy kinds: InvalidSQL, NotReadOnly,
//		// BlockedFunction, TableNotAllowed, ColumnNotAllowed,
//		// AmbiguousUnqualifiedColumn, MissingUserFilter.
//	}
//
// # Hooks
//
// OnValidated runs fire-and-forget after a successful call, for callers
// that want to mirror validated (never raw) SQL into a cache or audit
// sink without blocking the caller:
//
//	gw := sqlgw.New(manifest, logger, sqlgw.WithOnValidated(func(original, rewritten string) {
//		auditLog.Info().Str("rewritten", rewritten).Msg("query validated")
//	}))
//
// # MCP tool surface
//
// Register validate_query as an MCP tool with:
//
//	mcptool.RegisterTools(mcpServer, gw, logger)
//
// For the manifest JSON schema, error taxonomy, and pipeline ordering, see
// DESIGN.md and SPEC_FULL.md in the module root.
package sqlgw
