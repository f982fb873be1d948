package rowset

import (
	"strings"
	"testing"
)

// TestNormalizerApply verifies the cleaning contract: unknown columns are
// dropped, strings are trimmed and empties become nil, non-strings pass
// through untouched, and required-column violations name every offender.
func TestNormalizerApply(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"case_no", "status", "amount"}, []string{"case_no"})

	rec, err := n.Apply(Record{
		"case_no":  "  EXP-1 ",
		"status":   "   ",
		"amount":   42.5,
		"ignored":  "dropped",
		"ignored2": nil,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := rec["case_no"]; got != "EXP-1" {
		t.Fatalf("case_no = %#v, want trimmed EXP-1", got)
	}
	if got, ok := rec["status"]; !ok || got != nil {
		t.Fatalf("status = %#v, want explicit nil", got)
	}
	if got := rec["amount"]; got != 42.5 {
		t.Fatalf("amount = %#v, want 42.5 untouched", got)
	}
	if _, ok := rec["ignored"]; ok {
		t.Fatalf("unknown column survived normalization")
	}
}

// TestNormalizerApply_RequiredMissing verifies that an empty required value is
// a validation error, not a silent null, and the message lists the columns
// sorted for stable reporting.
func TestNormalizerApply_RequiredMissing(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"a", "b", "c"}, []string{"b", "a"})
	_, err := n.Apply(Record{"a": "", "c": "x"})
	if err == nil {
		t.Fatalf("Apply accepted row missing required columns")
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Fatalf("error %q does not list missing columns in order", err)
	}
}

// TestApplyMapping verifies source-to-target renaming: only mappings whose
// target exists in the schema apply, unmapped source columns are dropped, and
// a nil mapping passes target-named rows through restricted to the schema.
func TestApplyMapping(t *testing.T) {
	t.Parallel()

	cols := []string{"case_no", "status"}
	mapping := map[string]string{
		"Nro Expediente": "case_no",
		"Estado":         "status",
		"Extra":          "not_a_column",
	}

	rec, err := ApplyMapping(Record{"Nro Expediente": "E1", "Estado": "open", "Extra": "x", "Junk": "y"}, mapping, cols)
	if err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if rec["case_no"] != "E1" || rec["status"] != "open" {
		t.Fatalf("mapped record = %#v", rec)
	}
	if len(rec) != 2 {
		t.Fatalf("mapped record has %d columns, want 2: %#v", len(rec), rec)
	}

	rec, err = ApplyMapping(Record{"case_no": "E2", "junk": 1}, nil, cols)
	if err != nil {
		t.Fatalf("nil mapping: %v", err)
	}
	if rec["case_no"] != "E2" || len(rec) != 1 {
		t.Fatalf("passthrough record = %#v", rec)
	}
}

// TestApplyMapping_NoUsableColumns verifies that a mapping matching zero
// target columns is an input error rather than an empty write.
func TestApplyMapping_NoUsableColumns(t *testing.T) {
	t.Parallel()

	_, err := ApplyMapping(Record{"x": 1}, map[string]string{"x": "nope"}, []string{"case_no"})
	if err == nil {
		t.Fatalf("mapping with no usable targets accepted")
	}
}

// TestRecordClone verifies Clone is a real copy at the map level.
func TestRecordClone(t *testing.T) {
	t.Parallel()

	r := Record{"a": 1}
	c := r.Clone()
	c["a"] = 2
	if r["a"] != 1 {
		t.Fatalf("Clone aliases the original map")
	}
}
