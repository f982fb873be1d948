package engine

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// SyncReport is the single output contract of a run. Counts are exact and
// uncapped; Details is bounded by the job's detail cap so the report stays
// small even when every row fails.
type SyncReport struct {
	JobID string `json:"job_id"`
	Table string `json:"table"`
	Mode  Mode   `json:"mode"`

	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`

	Details []RowOutcome `json:"details"`

	Partitions int           `json:"partitions_used"`
	Batches    int           `json:"batches_processed"`
	Workers    int           `json:"workers"`
	BatchSize  int           `json:"batch_size"`
	Elapsed    time.Duration `json:"elapsed"`
}

// aggregator merges per-batch outcomes from all workers. It is the only
// cross-worker shared mutable state in the engine; everything goes through
// one mutex, including the detail cap counter.
type aggregator struct {
	mu        sync.Mutex
	detailCap int

	inserted int
	updated  int
	skipped  int
	errored  int
	details  []RowOutcome
}

func newAggregator(detailCap int) *aggregator {
	return &aggregator{detailCap: detailCap}
}

// addAll folds a slice of outcomes in under one lock acquisition; workers
// call it once per batch rather than once per row.
func (a *aggregator) addAll(outs []RowOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range outs {
		switch o.Status {
		case StatusInserted:
			a.inserted++
		case StatusUpdated:
			a.updated++
		case StatusSkipped:
			a.skipped++
		case StatusError:
			a.errored++
		}
		if o.Status == StatusError && len(a.details) < a.detailCap {
			a.details = append(a.details, o)
		}
	}
}

// report finalizes counts into a SyncReport. Details are sorted by source
// position so the capped list is deterministic enough to read.
func (a *aggregator) report() SyncReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	details := make([]RowOutcome, len(a.details))
	copy(details, a.details)
	sort.Slice(details, func(i, j int) bool { return details[i].Pos < details[j].Pos })
	return SyncReport{
		Total:    a.inserted + a.updated + a.skipped + a.errored,
		Inserted: a.inserted,
		Updated:  a.updated,
		Skipped:  a.skipped,
		Errored:  a.errored,
		Details:  details,
	}
}

// WriteTextReport renders a plain-text job summary suitable for dropping
// next to the processed upload.
func WriteTextReport(w io.Writer, r SyncReport) error {
	_, err := fmt.Fprintf(w, `SYNCHRONIZATION REPORT
======================
Job:        %s
Table:      %s
Mode:       %s (%s)

Rows processed: %d
  inserted: %d
  updated:  %d
  skipped:  %d
  errored:  %d

Partitions: %d  Batches: %d  Workers: %d  BatchSize: %d
Elapsed:    %s
`,
		r.JobID, r.Table, r.Mode, r.Mode.Description(),
		r.Total, r.Inserted, r.Updated, r.Skipped, r.Errored,
		r.Partitions, r.Batches, r.Workers, r.BatchSize,
		r.Elapsed.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if len(r.Details) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\nError details (first %d):\n", len(r.Details)); err != nil {
		return err
	}
	for _, d := range r.Details {
		if _, err := fmt.Fprintf(w, "  row %d: %s\n", d.Pos, d.Message); err != nil {
			return err
		}
	}
	return nil
}
