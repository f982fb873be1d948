// Package db provides the execute/query capability the reconciliation engine
// runs against, behind standardized DB and Tx interfaces. Two adapters are
// included: a Postgres adapter wrapping pgx, and a portable database/sql
// adapter covering MSSQL, MySQL, and SQLite. Both stay deliberately thin —
// no implicit retries, no connection pooling — because the engine mints one
// connection per worker via a Factory and owns its lifecycle.
package db

import "context"

// DB is a single connection capable of queries, statements, and transactions.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	BeginTx(ctx context.Context) (Tx, error)
	Dialect() Dialect
	Close(ctx context.Context) error
}

// Rows is the minimal result-set surface the engine needs.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Tx supports per-row savepoint isolation and bulk inserts in addition to the
// usual statement and lifecycle methods. Savepoint/RollbackTo/Release take a
// bare name; the adapter renders the dialect-appropriate SQL.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory mints a fresh connection. The engine calls it once per worker so
// concurrent batches never share a connection or transaction.
type Factory func(ctx context.Context) (DB, error)

// Dialect abstracts the SQL differences the engine cares about: parameter
// placeholders and identifier quoting. Everything else in the engine's
// generated SQL is plain ANSI.
type Dialect interface {
	// Placeholder returns the parameter marker for the i-th argument, 1-based.
	Placeholder(i int) string
	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(ident string) string
}
