package sqldb

import (
	"context"
	"database/sql"
)

// Queryable is the part of *sql.DB, *sql.Conn and *sql.Tx that is needed to run a migration plan. Use a *sql.Conn
// when the plan sets session-level settings, since a *sql.DB may run each statement on a different connection.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ Queryable = (*sql.DB)(nil)
	_ Queryable = (*sql.Conn)(nil)
	_ Queryable = (*sql.Tx)(nil)
)
