// Package downstream documents the execution seam a gateway embedder is
// expected to provide. sqlgw itself never opens a connection or issues a
// query — ValidateQuery's only output is a rewritten SQL string, safe to
// hand to whatever pgx.Tx or pgxpool.Pool the embedding process already
// holds.
package downstream

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Executor is the shape of a pgx query surface capable of running a
// gateway-validated statement. *pgxpool.Pool, *pgx.Conn, and pgx.Tx all
// satisfy it as-is; nothing in this package wraps or constructs one.
//
// A typical caller looks like:
//
//	out, err := gw.ValidateQuery(req)
//	if err != nil {
//		return err
//	}
//	rows, err := executor.Query(ctx, out)
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
