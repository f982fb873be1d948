package engine

import (
	"context"
	"fmt"
	"strings"

	"rowsync/internal/db"
	"rowsync/internal/rowset"
)

// action is what the worker must do for one row. The decision engine never
// touches the database for writes; it only reads existing state and returns
// a tagged result.
type action int

const (
	actInsert action = iota
	actUpdate
	actSkip
	actError
)

type decision struct {
	act action
	msg string
	// setCols are the columns an actUpdate writes, in target-schema order.
	setCols []string
	// existing is the matched record, needed to target the update.
	existing rowset.Record
}

// fetchExisting loads every target record whose primary key-column value
// appears in the batch, in a single query, and indexes them by full business
// key. When the table itself holds duplicate keys the last row scanned wins.
func fetchExisting(ctx context.Context, q querier, d db.Dialect, job *Job, rows []rowset.Row) (map[string]rowset.Record, error) {
	existing := make(map[string]rowset.Record)
	if len(job.KeyColumns) == 0 {
		return existing, nil
	}
	primary := job.KeyColumns[0]

	distinct := make(map[string]any)
	for _, row := range rows {
		if v := row.Data[primary]; v != nil {
			distinct[rowset.Canonical(v)] = v
		}
	}
	if len(distinct) == 0 {
		return existing, nil
	}

	args := make([]any, 0, len(distinct))
	ph := make([]string, 0, len(distinct))
	for _, v := range distinct {
		args = append(args, v)
		ph = append(ph, d.Placeholder(len(args)))
	}
	quoted := make([]string, len(job.Columns))
	for i, c := range job.Columns {
		quoted[i] = d.QuoteIdent(c)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(quoted, ", "), d.QuoteIdent(job.Table),
		d.QuoteIdent(primary), strings.Join(ph, ", "))

	res, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("existing-record lookup: %w", err)
	}
	defer res.Close()
	for res.Next() {
		vals := make([]any, len(job.Columns))
		ptrs := make([]any, len(job.Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := res.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("existing-record scan: %w", err)
		}
		rec := make(rowset.Record, len(job.Columns))
		for i, c := range job.Columns {
			rec[c] = vals[i]
		}
		if key, ok := rowset.KeyOf(rec, job.KeyColumns); ok {
			existing[key] = rec
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("existing-record lookup: %w", err)
	}
	return existing, nil
}

// decide applies the reconciliation policy to one row against the existing
// state. In sync mode the comparison-before-write rule holds: an existing
// record is only ever updated when every supplied non-volatile field matches
// it exactly; any structural difference forces a brand-new insert so
// identity-defining fields are never silently overwritten.
func decide(job *Job, rec rowset.Record, existing rowset.Record) decision {
	switch job.Mode {
	case ModeInsert:
		if existing != nil {
			return decision{act: actError, msg: "record already exists (insert mode)"}
		}
		return decision{act: actInsert}

	case ModeUpdate:
		if existing == nil {
			return decision{act: actError, msg: "record not found (update mode)"}
		}
		set := writableColumns(job, rec, false)
		if len(set) == 0 {
			return decision{act: actSkip, msg: "no non-key columns supplied"}
		}
		return decision{act: actUpdate, setCols: set, existing: existing}

	case ModeSync:
		if existing == nil {
			return decision{act: actInsert}
		}
		volatile := toSet(job.VolatileColumns)
		keys := toSet(job.KeyColumns)
		for _, col := range job.Columns {
			if _, isKey := keys[col]; isKey {
				continue
			}
			if _, isVolatile := volatile[col]; isVolatile {
				continue
			}
			v, supplied := rec[col]
			if !supplied {
				continue
			}
			if !rowset.Equal(existing[col], v) {
				return decision{act: actInsert}
			}
		}
		var set []string
		for _, col := range job.VolatileColumns {
			if _, isKey := keys[col]; isKey {
				continue
			}
			v, supplied := rec[col]
			if supplied && !rowset.Equal(existing[col], v) {
				set = append(set, col)
			}
		}
		if len(set) == 0 {
			return decision{act: actSkip}
		}
		return decision{act: actUpdate, setCols: set, existing: existing}
	}
	return decision{act: actError, msg: fmt.Sprintf("unknown mode %q", job.Mode)}
}

// writableColumns returns the columns an insert or update writes for this
// record, in target-schema order. Updates exclude key columns.
func writableColumns(job *Job, rec rowset.Record, includeKeys bool) []string {
	keys := toSet(job.KeyColumns)
	var out []string
	for _, col := range job.Columns {
		if _, ok := rec[col]; !ok {
			continue
		}
		if !includeKeys {
			if _, isKey := keys[col]; isKey {
				continue
			}
		}
		out = append(out, col)
	}
	return out
}

func toSet(cols []string) map[string]struct{} {
	s := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		s[c] = struct{}{}
	}
	return s
}
