// Package rowset defines the canonical in-memory representation of a mapped
// tabular upload: one Record per source row, keyed by target column name,
// plus the normalization and equality rules the reconciliation engine builds
// on. Records are plain maps; the set of usable keys is fixed up front by the
// target schema, so downstream code never sees arbitrary columns.
package rowset

import "strings"

// Record is one row keyed by target column name. Absent values are stored as
// nil; the normalizer guarantees no empty-string values survive.
type Record map[string]any

// Row pairs a Record with its 1-based position in the source file. Position 1
// is the header, so the first data row is 2. The position travels through the
// whole pipeline for error reporting.
type Row struct {
	Pos  int
	Data Record
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// keySep joins business key components. A literal "|" inside a component
// could create ambiguity, but it does not occur in the natural keys this
// handles (case numbers, document ids).
const keySep = "|"

// KeyOf derives the business key of a record from the given column list.
// The first column is the primary identifying value and must be present;
// later columns may be absent and render as an empty component (two records
// with the same absent secondary component compare equal, matching the
// null-aware equality rules).
//
// Returns ok=false when no key can be derived; such rows are validation
// errors for update/sync modes.
func KeyOf(rec Record, cols []string) (string, bool) {
	if len(cols) == 0 {
		return "", false
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		v, present := rec[c]
		if v == nil || !present {
			if i == 0 {
				return "", false
			}
			parts[i] = ""
			continue
		}
		s := Canonical(v)
		if i == 0 && s == "" {
			return "", false
		}
		parts[i] = s
	}
	return strings.Join(parts, keySep), true
}
