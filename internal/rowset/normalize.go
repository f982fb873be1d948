package rowset

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer restricts raw rows to the target schema and converts the
// various "missing" representations to an explicit nil. It has no side
// effects and is safe for concurrent use once built.
type Normalizer struct {
	columns  map[string]struct{}
	required []string
}

// NewNormalizer builds a normalizer for the given target column set.
// Required columns must be present and non-empty in every row; an absent
// value there is a validation error rather than a silent null.
func NewNormalizer(columns []string, required []string) *Normalizer {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return &Normalizer{columns: set, required: required}
}

// Apply normalizes one raw row. Unknown columns are dropped, string values
// trimmed and NFC-normalized, and absent/empty values stored as nil. The
// returned record always contains an entry for every known column the raw
// row mentioned; required-column violations return an error naming every
// offending column.
func (n *Normalizer) Apply(raw Record) (Record, error) {
	out := make(Record, len(raw))
	for col, v := range raw {
		if _, ok := n.columns[col]; !ok {
			continue
		}
		if s, ok := v.(string); ok {
			s = Canonical(s)
			if s == "" {
				out[col] = nil
				continue
			}
			out[col] = s
			continue
		}
		out[col] = v
	}

	var missing []string
	for _, col := range n.required {
		if v, ok := out[col]; !ok || v == nil {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, fmt.Errorf("required column(s) missing: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ApplyMapping renames source columns to target columns, keeping only
// mappings whose target exists in the schema. A mapping that matches zero
// usable columns is an input error. A nil mapping means the row already uses
// target names and is passed through restricted to the schema.
func ApplyMapping(raw Record, mapping map[string]string, columns []string) (Record, error) {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	out := make(Record, len(raw))
	if mapping == nil {
		for col, v := range raw {
			if _, ok := set[col]; ok {
				out[col] = v
			}
		}
	} else {
		for src, dst := range mapping {
			if _, ok := set[dst]; !ok {
				continue
			}
			if v, ok := raw[src]; ok {
				out[dst] = v
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("column mapping matches no usable target columns")
	}
	return out, nil
}
