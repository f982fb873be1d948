package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

// TestReadCSV verifies row positions match what a user sees in a spreadsheet
// (header is line 1, first data row is 2) and that ragged rows only populate
// the columns they actually carry.
func TestReadCSV(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "case_no,status,amount\nE1,open,100\nE2,closed\n\"E3\",\"with, comma\",5\n")
	rows, err := readCSV(path, ',')
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Pos != 2 || rows[1].Pos != 3 || rows[2].Pos != 4 {
		t.Fatalf("positions = %d,%d,%d, want 2,3,4", rows[0].Pos, rows[1].Pos, rows[2].Pos)
	}
	if rows[0].Data["case_no"] != "E1" || rows[0].Data["amount"] != "100" {
		t.Fatalf("row 2 = %#v", rows[0].Data)
	}
	if _, ok := rows[1].Data["amount"]; ok {
		t.Fatalf("short row invented a value for amount: %#v", rows[1].Data)
	}
	if rows[2].Data["status"] != "with, comma" {
		t.Fatalf("quoted field = %#v", rows[2].Data["status"])
	}
}

// TestReadCSV_Delimiter verifies the configurable delimiter path.
func TestReadCSV_Delimiter(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "a;b\n1;2\n")
	rows, err := readCSV(path, ';')
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(rows) != 1 || rows[0].Data["a"] != "1" || rows[0].Data["b"] != "2" {
		t.Fatalf("rows = %#v", rows)
	}
}

// TestReadCSV_Errors verifies missing-file and empty-file handling.
func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(filepath.Join(t.TempDir(), "absent.csv"), ','); err == nil {
		t.Fatalf("missing file accepted")
	}
	if _, err := readCSV(writeCSV(t, ""), ','); err == nil {
		t.Fatalf("file with no header accepted")
	}
}
