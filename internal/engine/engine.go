// Package engine implements the batch reconciliation core: it takes a
// mapped, cleaned row set plus foreign-key lookup rules and a mode
// (insert / update / sync) and turns it into a partitioned set of
// concurrently executed database operations with per-row accounting.
//
// The processing order is fixed: normalize, resolve foreign keys (one
// lookup query per mapped column), derive business keys, partition by key
// hash, then fan batches out to a bounded worker pool where each worker
// owns its own connection and transaction scope. No error in one row or
// one batch aborts the job; Run always returns a complete SyncReport.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rowsync/internal/db"
	"rowsync/internal/rowset"
)

// Run executes one reconciliation job. The only errors it returns are input
// problems (bad mode, unusable mapping) and the inability to open the very
// first connection; everything after that is accounted for in the report.
func Run(ctx context.Context, job Job, factory db.Factory) (SyncReport, error) {
	start := time.Now()
	if err := job.validate(); err != nil {
		return SyncReport{}, err
	}
	if job.Mapping != nil {
		usable := 0
		colSet := toSet(job.Columns)
		for _, dst := range job.Mapping {
			if _, ok := colSet[dst]; ok {
				usable++
			}
		}
		if usable == 0 {
			return SyncReport{}, fmt.Errorf("column mapping matches no usable target columns")
		}
	}

	jobID := uuid.NewString()
	log := slog.Default().With("job_id", jobID, "table", job.Table, "mode", string(job.Mode))
	agg := newAggregator(job.DetailCap)

	log.Info("job started", "rows", len(job.Rows), "workers", job.Workers, "batch_size", job.BatchSize)

	// Admin connection: clean load and FK resolution happen up front on a
	// single connection before any worker starts.
	conn, err := factory(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close(context.Background())

	// Normalize: restrict to the schema, map source names, nil out empties,
	// enforce required columns.
	normalizer := rowset.NewNormalizer(job.Columns, job.RequiredColumns)
	rows := make([]rowset.Row, 0, len(job.Rows))
	var preErrs []RowOutcome
	for _, row := range job.Rows {
		mapped, merr := rowset.ApplyMapping(row.Data, job.Mapping, job.Columns)
		if merr != nil {
			preErrs = append(preErrs, errorOutcome(row.Pos, merr.Error(), row.Data))
			continue
		}
		rec, nerr := normalizer.Apply(mapped)
		if nerr != nil {
			preErrs = append(preErrs, errorOutcome(row.Pos, nerr.Error(), rec))
			continue
		}
		rows = append(rows, rowset.Row{Pos: row.Pos, Data: rec})
	}
	agg.addAll(preErrs)

	// Foreign keys: one lookup query per mapped column over the whole row
	// set. An infrastructure failure here fails every remaining row, not
	// the job.
	resolved, fkErrs, fkFatal := resolveForeignKeys(ctx, conn, conn.Dialect(), rows, job.ForeignKeys)
	if fkFatal != nil {
		log.Error("foreign key resolution failed", "error", fkFatal)
		fatal := make([]RowOutcome, len(rows))
		for i, row := range rows {
			fatal[i] = errorOutcome(row.Pos, "foreign key resolution failed: "+fkFatal.Error(), row.Data)
		}
		agg.addAll(fatal)
		return finalize(agg, &job, jobID, 0, start, log), nil
	}
	rows = resolved
	agg.addAll(fkErrs)

	if job.CleanLoad {
		if err := cleanTable(ctx, conn, job.Table); err != nil {
			log.Error("clean load failed", "error", err)
			for _, row := range rows {
				agg.addAll([]RowOutcome{errorOutcome(row.Pos, "clean load failed: "+err.Error(), row.Data)})
			}
			return finalize(agg, &job, jobID, 0, start, log), nil
		}
		log.Info("target table truncated for clean load")
	}

	// Partition by business-key hash and slice into batches.
	parts, keyErrs := partitionRows(rows, job.KeyColumns, job.Workers, job.needsKey())
	agg.addAll(keyErrs)

	var work []partitionWork
	batches := 0
	for pi, part := range parts {
		if len(part) == 0 {
			continue
		}
		pb := sliceBatches([][]rowset.Row{part}, job.BatchSize)
		for i := range pb {
			batches++
			pb[i].Number = batches
			pb[i].Partition = pi
		}
		work = append(work, partitionWork{partition: pi, batches: pb})
	}
	log.Info("rows partitioned", "partitions", len(work), "batches", batches,
		"validation_errors", len(preErrs)+len(fkErrs)+len(keyErrs))

	p := &pool{job: &job, factory: factory, retry: DefaultRetryPolicy, agg: agg, log: log}
	p.run(ctx, work)

	return finalize(agg, &job, jobID, batches, start, log), nil
}

func finalize(agg *aggregator, job *Job, jobID string, batches int, start time.Time, log *slog.Logger) SyncReport {
	r := agg.report()
	r.JobID = jobID
	r.Table = job.Table
	r.Mode = job.Mode
	r.Partitions = job.Workers
	r.Batches = batches
	r.Workers = job.Workers
	r.BatchSize = job.BatchSize
	r.Elapsed = time.Since(start)
	rps := float64(0)
	if r.Elapsed > 0 {
		rps = float64(r.Total) / r.Elapsed.Seconds()
	}
	log.Info("job done",
		"total", r.Total, "inserted", r.Inserted, "updated", r.Updated,
		"skipped", r.Skipped, "errored", r.Errored, "batches", r.Batches,
		"elapsed", r.Elapsed.Round(time.Millisecond), "rps", int(rps))
	return r
}

// cleanTable empties the target for an insert-mode clean load. TRUNCATE is
// preferred; engines without it (SQLite) fall back to DELETE.
func cleanTable(ctx context.Context, conn db.DB, table string) error {
	q := conn.Dialect().QuoteIdent(table)
	if err := conn.Exec(ctx, "TRUNCATE TABLE "+q); err != nil {
		return conn.Exec(ctx, "DELETE FROM "+q)
	}
	return nil
}
