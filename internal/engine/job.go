package engine

import (
	"fmt"

	"rowsync/internal/rowset"
)

// Mode selects the reconciliation policy.
type Mode string

const (
	ModeInsert Mode = "insert"
	ModeUpdate Mode = "update"
	ModeSync   Mode = "sync"
)

// Description returns the human-readable policy description used in job
// summaries.
func (m Mode) Description() string {
	switch m {
	case ModeInsert:
		return "Insert only (optionally truncating the table first)"
	case ModeUpdate:
		return "Update existing records only"
	case ModeSync:
		return "Synchronize (insert new, update existing)"
	}
	return string(m)
}

// ForeignKey declares that a column carries natural-key values which must be
// rewritten to surrogate ids from a referenced table before writing.
type ForeignKey struct {
	Column       string `json:"column"`
	Table        string `json:"table"`
	IDColumn     string `json:"id_column"`
	LookupColumn string `json:"lookup_column"`
}

// Tuning defaults, sized for uploads in the tens of thousands of rows.
const (
	DefaultBatchSize = 3000
	DefaultWorkers   = 6
	DefaultDetailCap = 20
)

// Job is the full input contract of one reconciliation run. Rows must be
// materialized before the engine starts; there is no streaming path.
type Job struct {
	// Table is the reconciliation target.
	Table string `json:"table"`
	// Columns is the usable target column set; unknown columns in uploads
	// are dropped against it.
	Columns []string `json:"columns"`
	// Mapping renames source columns to target columns. Nil means rows
	// already carry target names.
	Mapping map[string]string `json:"mapping,omitempty"`

	Mode Mode `json:"mode"`

	// KeyColumns form the business key. Required for update and sync.
	KeyColumns []string `json:"key_columns"`
	// VolatileColumns may change across resubmissions without forcing a new
	// record in sync mode (e.g. decision/outcome free text).
	VolatileColumns []string `json:"volatile_columns,omitempty"`
	// RequiredColumns must be present and non-empty in every row.
	RequiredColumns []string `json:"required_columns,omitempty"`

	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`

	// CleanLoad truncates the target before an insert-mode run.
	CleanLoad bool `json:"clean_load,omitempty"`

	BatchSize int `json:"batch_size,omitempty"`
	Workers   int `json:"workers,omitempty"`
	DetailCap int `json:"detail_cap,omitempty"`

	Rows []rowset.Row `json:"-"`
}

// validate applies defaults and rejects inputs the engine cannot run with.
// It is the only place Run returns an error instead of a report.
func (j *Job) validate() error {
	if j.Table == "" {
		return fmt.Errorf("job: target table required")
	}
	if len(j.Columns) == 0 {
		return fmt.Errorf("job: target column set required")
	}
	switch j.Mode {
	case ModeInsert, ModeUpdate, ModeSync:
	default:
		return fmt.Errorf("job: unknown mode %q", j.Mode)
	}
	if (j.Mode == ModeUpdate || j.Mode == ModeSync) && len(j.KeyColumns) == 0 {
		return fmt.Errorf("job: key columns required for mode %q", j.Mode)
	}
	if j.CleanLoad && j.Mode != ModeInsert {
		return fmt.Errorf("job: clean_load only valid in insert mode")
	}
	colSet := make(map[string]struct{}, len(j.Columns))
	for _, c := range j.Columns {
		colSet[c] = struct{}{}
	}
	for _, k := range j.KeyColumns {
		if _, ok := colSet[k]; !ok {
			return fmt.Errorf("job: key column %q not in target column set", k)
		}
	}
	for _, fk := range j.ForeignKeys {
		if fk.Column == "" || fk.Table == "" || fk.IDColumn == "" || fk.LookupColumn == "" {
			return fmt.Errorf("job: incomplete foreign key mapping for column %q", fk.Column)
		}
	}
	if j.BatchSize <= 0 {
		j.BatchSize = DefaultBatchSize
	}
	if j.Workers <= 0 {
		j.Workers = DefaultWorkers
	}
	if j.DetailCap <= 0 {
		j.DetailCap = DefaultDetailCap
	}
	return nil
}

// needsKey reports whether rows without a business key are validation errors
// for this job. Insert mode can run keyless (pure append).
func (j *Job) needsKey() bool {
	return j.Mode != ModeInsert || len(j.KeyColumns) > 0
}
