package engine

// An in-memory database fake for engine tests. It understands exactly the
// SQL shapes the engine generates (single-table SELECT ... WHERE col IN,
// INSERT, UPDATE with equality/IS NULL predicates, TRUNCATE/DELETE) and
// supports transactions with savepoints, so end-to-end runs stay hermetic
// and deterministic.
//
// Commit replaces the store's tables wholesale, so tests that assert on
// stored contents drive the engine with a single worker.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"rowsync/internal/db"
	"rowsync/internal/rowset"
)

type pgLikeDialect struct{}

func (pgLikeDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (pgLikeDialect) QuoteIdent(s string) string { return `"` + s + `"` }

// memStore is the shared state behind every connection a test factory mints.
type memStore struct {
	mu     sync.Mutex
	tables map[string][]rowset.Record

	// execErr, when set, can veto individual writes (row-isolation tests).
	execErr func(sql string, args []any) error
	// copyErr fails CopyInto to force the per-row fallback path.
	copyErr error
	// queryErr fails connection-level queries (FK lookup failures).
	queryErr error

	conns     int
	truncated []string
}

func newMemStore() *memStore {
	return &memStore{tables: map[string][]rowset.Record{}}
}

func (s *memStore) seed(table string, recs ...rowset.Record) {
	s.tables[table] = append(s.tables[table], recs...)
}

func (s *memStore) factory(context.Context) (db.DB, error) {
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	return &memDB{store: s}, nil
}

func (s *memStore) rows(table string) []rowset.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rowset.Record, len(s.tables[table]))
	for i, r := range s.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

func cloneTables(in map[string][]rowset.Record) map[string][]rowset.Record {
	out := make(map[string][]rowset.Record, len(in))
	for t, recs := range in {
		cp := make([]rowset.Record, len(recs))
		for i, r := range recs {
			cp[i] = r.Clone()
		}
		out[t] = cp
	}
	return out
}

type memDB struct {
	store  *memStore
	closed bool
}

func (d *memDB) Dialect() db.Dialect { return pgLikeDialect{} }

func (d *memDB) Close(context.Context) error {
	d.closed = true
	return nil
}

func (d *memDB) Exec(_ context.Context, sql string, args ...any) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	switch {
	case strings.HasPrefix(sql, "TRUNCATE TABLE "), strings.HasPrefix(sql, "DELETE FROM "):
		table := unquote(sql[strings.LastIndex(sql, " ")+1:])
		d.store.tables[table] = nil
		d.store.truncated = append(d.store.truncated, table)
		return nil
	}
	return execOn(d.store.tables, d.store, sql, args)
}

func (d *memDB) Query(_ context.Context, sql string, args ...any) (db.Rows, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	if d.store.queryErr != nil {
		return nil, d.store.queryErr
	}
	return queryOn(d.store.tables, sql, args)
}

func (d *memDB) BeginTx(context.Context) (db.Tx, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	return &memTx{
		store: d.store,
		work:  cloneTables(d.store.tables),
		saves: map[string]map[string][]rowset.Record{},
	}, nil
}

type memTx struct {
	store *memStore
	work  map[string][]rowset.Record
	saves map[string]map[string][]rowset.Record
	done  bool
}

func (t *memTx) Exec(_ context.Context, sql string, args ...any) error {
	return execOn(t.work, t.store, sql, args)
}

func (t *memTx) Query(_ context.Context, sql string, args ...any) (db.Rows, error) {
	return queryOn(t.work, sql, args)
}

func (t *memTx) CopyInto(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if t.store.copyErr != nil {
		return 0, t.store.copyErr
	}
	for _, vals := range rows {
		rec := make(rowset.Record, len(columns))
		for i, c := range columns {
			rec[c] = vals[i]
		}
		t.work[table] = append(t.work[table], rec)
	}
	return int64(len(rows)), nil
}

func (t *memTx) Savepoint(_ context.Context, name string) error {
	t.saves[name] = cloneTables(t.work)
	return nil
}

func (t *memTx) RollbackTo(_ context.Context, name string) error {
	snap, ok := t.saves[name]
	if !ok {
		return fmt.Errorf("unknown savepoint %q", name)
	}
	t.work = snap
	return nil
}

func (t *memTx) Release(_ context.Context, name string) error {
	delete(t.saves, name)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.tables = t.work
	t.done = true
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func unquote(s string) string { return strings.Trim(strings.TrimSpace(s), `"`) }

func splitIdents(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = unquote(p)
	}
	return out
}

// queryOn evaluates SELECT <cols> FROM <table> WHERE <col> IN (...).
func queryOn(tables map[string][]rowset.Record, sql string, args []any) (db.Rows, error) {
	from := strings.Index(sql, " FROM ")
	where := strings.Index(sql, " WHERE ")
	if !strings.HasPrefix(sql, "SELECT ") || from < 0 || where < 0 {
		return nil, fmt.Errorf("fake: unsupported query %q", sql)
	}
	cols := splitIdents(sql[len("SELECT "):from])
	table := unquote(sql[from+len(" FROM ") : where])
	inIdx := strings.Index(sql[where:], " IN (")
	filterCol := unquote(sql[where+len(" WHERE ") : where+inIdx])

	wanted := make(map[string]struct{}, len(args))
	for _, a := range args {
		wanted[rowset.Canonical(a)] = struct{}{}
	}

	var tuples [][]any
	for _, rec := range tables[table] {
		if _, ok := wanted[rowset.Canonical(rec[filterCol])]; !ok {
			continue
		}
		t := make([]any, len(cols))
		for i, c := range cols {
			t[i] = rec[c]
		}
		tuples = append(tuples, t)
	}
	return &sliceRows{tuples: tuples}, nil
}

// execOn evaluates INSERT INTO t (cols) VALUES (...) and
// UPDATE t SET c = $n[, ...] WHERE k = $n | k IS NULL [AND ...].
// Placeholder arguments are consumed positionally, matching how the engine
// renders them.
func execOn(tables map[string][]rowset.Record, store *memStore, sql string, args []any) error {
	if store.execErr != nil {
		if err := store.execErr(sql, args); err != nil {
			return err
		}
	}

	switch {
	case strings.HasPrefix(sql, "INSERT INTO "):
		open := strings.Index(sql, " (")
		closeIdx := strings.Index(sql, ") VALUES")
		table := unquote(sql[len("INSERT INTO "):open])
		cols := splitIdents(sql[open+2 : closeIdx])
		if len(cols) != len(args) {
			return fmt.Errorf("fake: insert arity mismatch in %q", sql)
		}
		rec := make(rowset.Record, len(cols))
		for i, c := range cols {
			rec[c] = args[i]
		}
		tables[table] = append(tables[table], rec)
		return nil

	case strings.HasPrefix(sql, "UPDATE "):
		setIdx := strings.Index(sql, " SET ")
		whereIdx := strings.Index(sql, " WHERE ")
		table := unquote(sql[len("UPDATE "):setIdx])

		next := 0
		type setOp struct {
			col string
			val any
		}
		var sets []setOp
		for _, part := range strings.Split(sql[setIdx+len(" SET "):whereIdx], ", ") {
			col := unquote(part[:strings.Index(part, " = ")])
			sets = append(sets, setOp{col, args[next]})
			next++
		}
		type cond struct {
			col    string
			isNull bool
			val    any
		}
		var conds []cond
		for _, part := range strings.Split(sql[whereIdx+len(" WHERE "):], " AND ") {
			if strings.HasSuffix(part, " IS NULL") {
				conds = append(conds, cond{col: unquote(strings.TrimSuffix(part, " IS NULL")), isNull: true})
				continue
			}
			col := unquote(part[:strings.Index(part, " = ")])
			conds = append(conds, cond{col: col, val: args[next]})
			next++
		}

		for _, rec := range tables[table] {
			match := true
			for _, c := range conds {
				if c.isNull {
					if rec[c.col] != nil {
						match = false
						break
					}
					continue
				}
				if !rowset.Equal(rec[c.col], c.val) {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			for _, s := range sets {
				rec[s.col] = s.val
			}
		}
		return nil
	}
	return fmt.Errorf("fake: unsupported statement %q", sql)
}
