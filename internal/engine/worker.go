package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rowsync/internal/db"
	"rowsync/internal/rowset"
)

// partitionWork hands a worker every batch of one partition. A partition is
// never split across two workers at the same time; that, plus business-key
// hashing, is what makes concurrent writers lock-contention-free.
type partitionWork struct {
	partition int
	batches   []Batch
}

type pool struct {
	job     *Job
	factory db.Factory
	retry   RetryPolicy
	agg     *aggregator
	log     *slog.Logger
}

// run fans partitions out to the worker pool and blocks until every batch is
// accounted for. Workers never propagate errors through the group: an
// infrastructure failure is fatal for that worker's current batch only, and
// the failed connection is discarded so the next batch reconnects.
func (p *pool) run(ctx context.Context, work []partitionWork) {
	workCh := make(chan partitionWork)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < p.job.Workers; w++ {
		id := w + 1
		g.Go(func() error {
			var conn db.DB
			defer func() {
				if conn != nil {
					_ = conn.Close(context.Background())
				}
			}()
			for pw := range workCh {
				for _, batch := range pw.batches {
					if conn == nil {
						c, err := p.factory(gctx)
						if err != nil {
							p.agg.addAll(batchFailure(batch, 0, fmt.Errorf("worker %d connect: %w", id, err)))
							continue
						}
						conn = c
					}
					outs, healthy := p.runBatch(gctx, conn, batch, id)
					p.agg.addAll(outs)
					if !healthy {
						_ = conn.Close(context.Background())
						conn = nil
					}
				}
			}
			return nil
		})
	}

	go func() {
		defer close(workCh)
		for _, pw := range work {
			select {
			case workCh <- pw:
			case <-gctx.Done():
				return
			}
		}
	}()

	_ = g.Wait()
}

// runBatch executes one batch with bounded retry on transient transaction
// failures. healthy=false tells the worker to discard its connection.
func (p *pool) runBatch(ctx context.Context, conn db.DB, batch Batch, workerID int) (outs []RowOutcome, healthy bool) {
	start := time.Now()
	bulk := p.job.Mode == ModeInsert && len(p.job.KeyColumns) == 0
	attempt := 0
	for {
		var err error
		if bulk {
			outs, err = p.bulkInsertBatch(ctx, conn, batch)
			if err != nil && !db.IsTransient(err) {
				// Fall back to row-at-a-time so one bad row costs one row,
				// not the whole batch.
				bulk = false
				continue
			}
		} else {
			outs, err = p.applyBatch(ctx, conn, batch)
		}
		if err == nil {
			p.logBatch(batch, workerID, outs, attempt, start)
			return outs, true
		}
		if db.IsTransient(err) && attempt < p.retry.MaxRetries {
			attempt++
			p.log.Warn("transient batch failure, retrying",
				"batch", batch.Number, "partition", batch.Partition,
				"attempt", attempt, "error", err)
			if werr := p.retry.Wait(ctx, attempt); werr != nil {
				return batchFailure(batch, attempt, werr), false
			}
			continue
		}
		if db.IsTransient(err) {
			err = fmt.Errorf("batch failed after %d retries: %w", p.retry.MaxRetries, err)
		}
		return batchFailure(batch, attempt, err), false
	}
}

// applyBatch runs the decision engine over one batch inside a single
// transaction, with per-row savepoints so one failing statement rolls back
// alone while the rest of the batch commits.
func (p *pool) applyBatch(ctx context.Context, conn db.DB, batch Batch) ([]RowOutcome, error) {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	d := conn.Dialect()
	needLookup := p.job.Mode != ModeInsert || len(p.job.KeyColumns) > 0
	var existing map[string]rowset.Record
	if needLookup {
		existing, err = fetchExisting(ctx, tx, d, p.job, batch.Rows)
		if err != nil {
			return nil, err
		}
	}

	outs := make([]RowOutcome, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		var match rowset.Record
		if needLookup {
			if key, ok := rowset.KeyOf(row.Data, p.job.KeyColumns); ok {
				match = existing[key]
			}
		}
		dec := decide(p.job, row.Data, match)

		switch dec.act {
		case actSkip:
			outs = append(outs, RowOutcome{Pos: row.Pos, Status: StatusSkipped, Message: dec.msg})
			continue
		case actError:
			outs = append(outs, errorOutcome(row.Pos, dec.msg, row.Data))
			continue
		}

		stmt, args := p.buildWrite(d, row.Data, dec)
		sp := fmt.Sprintf("sp_%d", row.Pos)
		if err := tx.Savepoint(ctx, sp); err != nil {
			return nil, fmt.Errorf("savepoint: %w", err)
		}
		if err := tx.Exec(ctx, stmt, args...); err != nil {
			if db.IsTransient(err) {
				return nil, err
			}
			_ = tx.RollbackTo(ctx, sp)
			_ = tx.Release(ctx, sp)
			outs = append(outs, errorOutcome(row.Pos, "row write failed: "+err.Error(), row.Data))
			continue
		}
		if err := tx.Release(ctx, sp); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}

		if dec.act == actInsert {
			outs = append(outs, RowOutcome{Pos: row.Pos, Status: StatusInserted})
			// A sync-mode insert changes what later rows in this batch must
			// see for the same business key.
			if needLookup {
				if key, ok := rowset.KeyOf(row.Data, p.job.KeyColumns); ok {
					existing[key] = row.Data
				}
			}
		} else {
			outs = append(outs, RowOutcome{Pos: row.Pos, Status: StatusUpdated})
			if needLookup && match != nil {
				for _, col := range dec.setCols {
					match[col] = row.Data[col]
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return outs, nil
}

// bulkInsertBatch is the keyless insert fast path: one CopyInto per batch
// (COPY on Postgres, chunked multi-row INSERT elsewhere).
func (p *pool) bulkInsertBatch(ctx context.Context, conn db.DB, batch Batch) ([]RowOutcome, error) {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	rows := make([][]any, len(batch.Rows))
	for i, row := range batch.Rows {
		vals := make([]any, len(p.job.Columns))
		for ci, col := range p.job.Columns {
			vals[ci] = row.Data[col]
		}
		rows[i] = vals
	}
	if _, err := tx.CopyInto(ctx, p.job.Table, p.job.Columns, rows); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	outs := make([]RowOutcome, len(batch.Rows))
	for i, row := range batch.Rows {
		outs[i] = RowOutcome{Pos: row.Pos, Status: StatusInserted}
	}
	return outs, nil
}

// buildWrite renders the INSERT or UPDATE statement for one decided row.
// Updates pin the matched record with every column the statement is not
// changing, valued from the matched record itself (IS NULL for absent
// values). The business key alone is not enough: a structural difference
// inserts a new record instead of overwriting, so several records can share
// one key and a key-only predicate would rewrite the preserved ones too.
func (p *pool) buildWrite(d db.Dialect, rec rowset.Record, dec decision) (string, []any) {
	if dec.act == actInsert {
		cols := writableColumns(p.job, rec, true)
		quoted := make([]string, len(cols))
		ph := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, c := range cols {
			quoted[i] = d.QuoteIdent(c)
			ph[i] = d.Placeholder(i + 1)
			args[i] = rec[c]
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.QuoteIdent(p.job.Table), strings.Join(quoted, ", "), strings.Join(ph, ", ")), args
	}

	var sb strings.Builder
	args := make([]any, 0, len(dec.setCols)+len(p.job.Columns))
	sb.WriteString("UPDATE ")
	sb.WriteString(d.QuoteIdent(p.job.Table))
	sb.WriteString(" SET ")
	for i, c := range dec.setCols {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, rec[c])
		sb.WriteString(d.QuoteIdent(c))
		sb.WriteString(" = ")
		sb.WriteString(d.Placeholder(len(args)))
	}
	sb.WriteString(" WHERE ")
	updated := toSet(dec.setCols)
	first := true
	for _, c := range p.job.Columns {
		if _, ok := updated[c]; ok {
			continue
		}
		if !first {
			sb.WriteString(" AND ")
		}
		first = false
		v := dec.existing[c]
		if v == nil {
			sb.WriteString(d.QuoteIdent(c))
			sb.WriteString(" IS NULL")
			continue
		}
		args = append(args, v)
		sb.WriteString(d.QuoteIdent(c))
		sb.WriteString(" = ")
		sb.WriteString(d.Placeholder(len(args)))
	}
	return sb.String(), args
}

// batchFailure marks every row of a batch errored with one shared message.
func batchFailure(batch Batch, attempts int, err error) []RowOutcome {
	msg := fmt.Sprintf("batch %d failed: %v", batch.Number, err)
	if attempts > 0 {
		msg = fmt.Sprintf("batch %d failed after %d attempt(s): %v", batch.Number, attempts+1, err)
	}
	outs := make([]RowOutcome, len(batch.Rows))
	for i, row := range batch.Rows {
		outs[i] = errorOutcome(row.Pos, msg, row.Data)
	}
	return outs
}

// logBatch emits one progress line per batch with counts and rows/sec.
func (p *pool) logBatch(batch Batch, workerID int, outs []RowOutcome, attempt int, start time.Time) {
	var ins, upd, skip, errs int
	for _, o := range outs {
		switch o.Status {
		case StatusInserted:
			ins++
		case StatusUpdated:
			upd++
		case StatusSkipped:
			skip++
		case StatusError:
			errs++
		}
	}
	elapsed := time.Since(start)
	rps := float64(0)
	if elapsed > 0 {
		rps = float64(len(outs)) / elapsed.Seconds()
	}
	p.log.Info("batch done",
		"batch", batch.Number, "partition", batch.Partition, "worker", workerID,
		"rows", len(outs), "inserted", ins, "updated", upd, "skipped", skip,
		"errored", errs, "attempt", attempt+1,
		"elapsed", elapsed.Round(time.Millisecond), "rps", int(rps))
}
