package engine

import "rowsync/internal/rowset"

// Status is the terminal state of one source row.
type Status string

const (
	StatusInserted Status = "inserted"
	StatusUpdated  Status = "updated"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

// RowOutcome records what happened to one source row. Pos is the 1-based
// position in the source (header is row 1), so users can find the offending
// line in their upload. Data echoes the row's values as strings for error
// reports; it is only populated on detailed entries.
type RowOutcome struct {
	Pos     int               `json:"row"`
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

func errorOutcome(pos int, msg string, rec rowset.Record) RowOutcome {
	return RowOutcome{Pos: pos, Status: StatusError, Message: msg, Data: echoData(rec)}
}

// echoData stringifies a record for the report detail list.
func echoData(rec rowset.Record) map[string]string {
	if rec == nil {
		return nil
	}
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		out[k] = rowset.Canonical(v)
	}
	return out
}
