package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"rowsync/internal/db"
	"rowsync/internal/rowset"
)

// querier is satisfied by both db.DB and db.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (db.Rows, error)
}

// lookupArg canonicalizes a natural-key value for the lookup query.
// Spreadsheet readers deliver numeric cells as floats ("1234.0"), so
// integral numbers are sent as int64 to match integer natural-key columns.
func lookupArg(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return int64(t + 0.5)
	case float32:
		return lookupArg(float64(t))
	case int:
		return int64(t)
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == float64(int64(f)) {
				return int64(f)
			}
			return int64(f + 0.5)
		}
		return s
	default:
		return v
	}
}

// resolveForeignKeys rewrites natural-key values to surrogate ids using one
// lookup query per mapped column — never one per row; at upload scale the
// per-row round trips are the dominant cost.
//
// Rows whose value has no match in the referenced table are excluded from
// the write path and reported as error outcomes naming every unresolved
// column and value. Query failures are infrastructure errors and abort the
// resolution (not the job; the caller reports all rows as errored).
func resolveForeignKeys(ctx context.Context, q querier, d db.Dialect, rows []rowset.Row, fks []ForeignKey) (kept []rowset.Row, errs []RowOutcome, err error) {
	if len(fks) == 0 {
		return rows, nil, nil
	}

	// column → canonical lookup value → surrogate id
	resolved := make(map[string]map[string]any, len(fks))

	for _, fk := range fks {
		distinct := make(map[string]any)
		for _, row := range rows {
			v, ok := row.Data[fk.Column]
			if !ok || v == nil {
				continue
			}
			arg := lookupArg(v)
			distinct[rowset.Canonical(arg)] = arg
		}
		resolved[fk.Column] = make(map[string]any, len(distinct))
		if len(distinct) == 0 {
			continue
		}

		args := make([]any, 0, len(distinct))
		ph := make([]string, 0, len(distinct))
		for _, arg := range distinct {
			args = append(args, arg)
			ph = append(ph, d.Placeholder(len(args)))
		}
		sql := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
			d.QuoteIdent(fk.LookupColumn), d.QuoteIdent(fk.IDColumn),
			d.QuoteIdent(fk.Table), d.QuoteIdent(fk.LookupColumn),
			strings.Join(ph, ", "))

		res, qerr := q.Query(ctx, sql, args...)
		if qerr != nil {
			return nil, nil, fmt.Errorf("fk lookup on %s.%s: %w", fk.Table, fk.LookupColumn, qerr)
		}
		for res.Next() {
			var natural, id any
			if serr := res.Scan(&natural, &id); serr != nil {
				res.Close()
				return nil, nil, fmt.Errorf("fk lookup scan on %s: %w", fk.Table, serr)
			}
			resolved[fk.Column][rowset.Canonical(natural)] = id
		}
		if rerr := res.Err(); rerr != nil {
			res.Close()
			return nil, nil, fmt.Errorf("fk lookup on %s: %w", fk.Table, rerr)
		}
		res.Close()
	}

	kept = rows[:0:0]
	for _, row := range rows {
		var failed []string
		for _, fk := range fks {
			v, ok := row.Data[fk.Column]
			if !ok || v == nil {
				continue
			}
			id, hit := resolved[fk.Column][rowset.Canonical(lookupArg(v))]
			if !hit {
				failed = append(failed, fmt.Sprintf("%s (value: %q)", fk.Column, rowset.Canonical(v)))
				continue
			}
			row.Data[fk.Column] = id
		}
		if len(failed) > 0 {
			errs = append(errs, errorOutcome(row.Pos,
				"foreign key not resolved: "+strings.Join(failed, ", "), row.Data))
			continue
		}
		kept = append(kept, row)
	}
	return kept, errs, nil
}
