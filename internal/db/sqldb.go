// Portable database/sql adapter covering MSSQL, MySQL, and SQLite. It favors
// portability over engine-specific bulk paths: CopyInto is a chunked
// multi-row INSERT inside the transaction, which keeps import code
// database-agnostic at the cost of raw COPY speed.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type sqlDB struct {
	db      *sql.DB
	driver  string
	dialect Dialect
}

// OpenSQL opens a database/sql connection for the given driver name
// ("sqlserver", "mysql", "sqlite") and verifies it with a short ping.
func OpenSQL(ctx context.Context, driver, dsn string) (DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", driver)
	}
	raw, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := raw.PingContext(pingCtx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	if driver == "sqlite" {
		_, _ = raw.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	}
	return &sqlDB{db: raw, driver: driver, dialect: dialectFor(driver)}, nil
}

func (d *sqlDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func (d *sqlDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

func (d *sqlDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, driver: d.driver, dialect: d.dialect}, nil
}

func (d *sqlDB) Dialect() Dialect            { return d.dialect }
func (d *sqlDB) Close(context.Context) error { return d.db.Close() }

type sqlRows struct{ rows *sql.Rows }

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

type sqlTx struct {
	tx      *sql.Tx
	driver  string
	dialect Dialect
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

// copyChunkParams bounds parameters per INSERT statement; MSSQL rejects
// statements with more than 2100 parameters.
const copyChunkParams = 900

// CopyInto inserts rows with chunked multi-row INSERT statements. All chunks
// run inside the owning transaction, so a failed chunk rolls back with the
// batch (or with the caller's savepoint).
func (t *sqlTx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("CopyInto: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	perChunk := copyChunkParams / len(columns)
	if perChunk < 1 {
		perChunk = 1
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = t.dialect.QuoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		t.dialect.QuoteIdent(table), strings.Join(quoted, ", "))

	var total int64
	for start := 0; start < len(rows); start += perChunk {
		end := start + perChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, len(chunk)*len(columns))
		n := 1
		for ri, row := range chunk {
			if len(row) != len(columns) {
				return total, fmt.Errorf("CopyInto: row %d has %d values, want %d", start+ri, len(row), len(columns))
			}
			if ri > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for ci := range columns {
				if ci > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(t.dialect.Placeholder(n))
				n++
			}
			sb.WriteByte(')')
			args = append(args, row...)
		}
		res, err := t.tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return total, err
		}
		if affected, aerr := res.RowsAffected(); aerr == nil {
			total += affected
		} else {
			total += int64(len(chunk))
		}
	}
	return total, nil
}

// Savepoint SQL differs on MSSQL (SAVE TRANSACTION, no release).
func (t *sqlTx) Savepoint(ctx context.Context, name string) error {
	if t.driver == "sqlserver" || t.driver == "mssql" {
		return t.Exec(ctx, "SAVE TRANSACTION "+name)
	}
	return t.Exec(ctx, "SAVEPOINT "+name)
}

func (t *sqlTx) RollbackTo(ctx context.Context, name string) error {
	if t.driver == "sqlserver" || t.driver == "mssql" {
		return t.Exec(ctx, "ROLLBACK TRANSACTION "+name)
	}
	return t.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
}

func (t *sqlTx) Release(ctx context.Context, name string) error {
	if t.driver == "sqlserver" || t.driver == "mssql" {
		return nil
	}
	return t.Exec(ctx, "RELEASE SAVEPOINT "+name)
}

func (t *sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }
