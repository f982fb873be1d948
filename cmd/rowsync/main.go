// Command rowsync reconciles a CSV upload against a relational table.
//
// Usage:
//
//	rowsync -config job.json [-mode sync] [-workers 6] [-report report.txt]
//
// The job file selects the target database, the input CSV, and the
// reconciliation parameters; see internal/config. The final SyncReport is
// printed to stdout as JSON, with an optional plain-text rendering written
// to -report.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"rowsync/internal/config"
	"rowsync/internal/db"
	"rowsync/internal/engine"
	"rowsync/internal/logging"
	"rowsync/internal/rowset"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to job config JSON (required)")
		mode       = flag.String("mode", "", "override job mode: insert|update|sync")
		workers    = flag.Int("workers", 0, "override worker count")
		batchSize  = flag.Int("batch_size", 0, "override batch size")
		reportPath = flag.String("report", "", "also write a plain-text report to this path")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rowsync -config job.json [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*configPath, *mode, *workers, *batchSize, *reportPath); err != nil {
		slog.Error("rowsync failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, modeOverride string, workers, batchSize int, reportPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	rows, err := readCSV(cfg.Input.Path, rune(cfg.Input.Delimiter[0]))
	if err != nil {
		return err
	}

	job := buildJob(cfg, rows)
	if modeOverride != "" {
		job.Mode = engine.Mode(modeOverride)
	}
	if workers > 0 {
		job.Workers = workers
	}
	if batchSize > 0 {
		job.BatchSize = batchSize
	}

	driver, dsn := cfg.DB.Driver, cfg.DB.DSN
	factory := func(ctx context.Context) (db.DB, error) {
		return db.Open(ctx, driver, dsn)
	}

	report, err := engine.Run(context.Background(), job, factory)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		if err := engine.WriteTextReport(f, report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func buildJob(cfg *config.Config, rows []rowset.Row) engine.Job {
	fks := make([]engine.ForeignKey, len(cfg.Job.ForeignKeys))
	for i, fk := range cfg.Job.ForeignKeys {
		fks[i] = engine.ForeignKey{
			Column:       fk.Column,
			Table:        fk.Table,
			IDColumn:     fk.IDColumn,
			LookupColumn: fk.LookupColumn,
		}
	}
	return engine.Job{
		Table:           cfg.Job.Table,
		Columns:         cfg.Job.Columns,
		Mapping:         cfg.Job.Mapping,
		Mode:            engine.Mode(cfg.Job.Mode),
		KeyColumns:      cfg.Job.KeyColumns,
		VolatileColumns: cfg.Job.VolatileColumns,
		RequiredColumns: cfg.Job.RequiredColumns,
		ForeignKeys:     fks,
		CleanLoad:       cfg.Job.CleanLoad,
		BatchSize:       cfg.Job.BatchSize,
		Workers:         cfg.Job.Workers,
		DetailCap:       cfg.Job.DetailCap,
		Rows:            rows,
	}
}

// readCSV materializes the upload. Row positions are 1-based file lines:
// the header is line 1, so the first data row reports as 2, matching what a
// user sees in their spreadsheet.
func readCSV(path string, delim rune) ([]rowset.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []rowset.Row
	pos := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		pos++
		data := make(rowset.Record, len(header))
		for i, name := range header {
			if i < len(rec) {
				data[name] = rec[i]
			}
		}
		rows = append(rows, rowset.Row{Pos: pos, Data: data})
	}
	return rows, nil
}
