package engine

import (
	"github.com/zeebo/xxh3"

	"rowsync/internal/rowset"
)

// Batch is one unit of work for one worker: a bounded, order-preserving
// slice of a single partition.
type Batch struct {
	Number    int
	Partition int
	Rows      []rowset.Row
}

// partitionKey assigns a business key to one of n partitions. xxh3 is stable
// across runs and uniform, so identical keys always land together and
// distinct keys spread evenly.
func partitionKey(key string, n int) int {
	return int(xxh3.HashString(key) % uint64(n))
}

// partitionRows buckets rows by business-key hash. Rows that cannot produce
// a key are returned as validation-error outcomes when the job requires one;
// in keyless insert mode rows are dealt round-robin since no two workers can
// contend on a logical record anyway.
//
// Within a partition the original row order is preserved, which keeps
// reporting stable and means a duplicated business key in the upload is
// applied in source order by its single owning worker.
func partitionRows(rows []rowset.Row, keyCols []string, n int, requireKey bool) (parts [][]rowset.Row, errs []RowOutcome) {
	parts = make([][]rowset.Row, n)
	next := 0
	for _, row := range rows {
		if len(keyCols) == 0 {
			parts[next%n] = append(parts[next%n], row)
			next++
			continue
		}
		key, ok := rowset.KeyOf(row.Data, keyCols)
		if !ok {
			if requireKey {
				errs = append(errs, errorOutcome(row.Pos, "business key missing: column "+keyCols[0]+" has no value", row.Data))
				continue
			}
			parts[next%n] = append(parts[next%n], row)
			next++
			continue
		}
		p := partitionKey(key, n)
		parts[p] = append(parts[p], row)
	}
	return parts, errs
}

// sliceBatches cuts each partition into batches of at most batchSize rows.
// Batch numbers are global and 1-based for log correlation.
func sliceBatches(parts [][]rowset.Row, batchSize int) []Batch {
	var batches []Batch
	num := 1
	for p, rows := range parts {
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			batches = append(batches, Batch{Number: num, Partition: p, Rows: rows[start:end]})
			num++
		}
	}
	return batches
}
