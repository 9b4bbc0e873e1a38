package attendance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/rowstore"
)

// Outcome enumerates the three results of a check-in scan.
type Outcome string

const (
	// OutcomeEntryMarked means a new record was appended with the entry time.
	OutcomeEntryMarked Outcome = "entry"
	// OutcomeExitMarked means the open record for the day received its exit time.
	OutcomeExitMarked Outcome = "exit"
	// OutcomeAlreadyComplete means the member already entered and left today; nothing was written.
	OutcomeAlreadyComplete Outcome = "already_complete"
)

// Partitioning selects how attendance rows are grouped in the row store.
type Partitioning string

const (
	// PartitionPerDay binds a dedicated collection to each calendar date.
	PartitionPerDay Partitioning = "per_day"
	// PartitionCombined keeps every date in one table filtered by the date column.
	PartitionCombined Partitioning = "combined"
)

// Table and column names of the attendance collection. Column order is significant.
const (
	TableName     = "attendance"
	FieldMemberID = "member_id"
	FieldDate     = "date"
	FieldInTime   = "in_time"
	FieldOutTime  = "out_time"
	FieldName     = "name"
)

// Layout is the positional schema of an attendance row.
var Layout = rowstore.Layout{
	Table:   TableName,
	Columns: []string{FieldMemberID, FieldDate, FieldInTime, FieldOutTime, FieldName},
}

// ErrInvalidPartitioning indicates an unsupported partitioning mode.
var ErrInvalidPartitioning = errors.New("attendance: invalid partitioning")

// ParsePartitioning validates a configured partitioning mode.
func ParsePartitioning(value string) (Partitioning, error) {
	switch Partitioning(strings.ToLower(strings.TrimSpace(value))) {
	case PartitionPerDay, "":
		return PartitionPerDay, nil
	case PartitionCombined:
		return PartitionCombined, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPartitioning, value)
	}
}

// Record is one member's visit on one date.
type Record struct {
	Row      int    `json:"row"`
	MemberID string `json:"member_id"`
	Date     string `json:"date"`
	InTime   string `json:"in_time"`
	OutTime  string `json:"out_time"`
	Name     string `json:"name,omitempty"`
}

// Open reports whether the visit still awaits its exit scan.
func (r Record) Open() bool {
	return r.OutTime == ""
}

func recordFromRow(row rowstore.Record) Record {
	return Record{
		Row:      row.Row,
		MemberID: row.Get(FieldMemberID),
		Date:     row.Get(FieldDate),
		InTime:   row.Get(FieldInTime),
		OutTime:  row.Get(FieldOutTime),
		Name:     row.Get(FieldName),
	}
}

// CheckIn carries one scan. Date and Time come from the caller's clock.
type CheckIn struct {
	MemberID string
	Date     string
	Time     string
	Name     string
}

// Result reports the outcome and the record as it stands after the write.
type Result struct {
	Outcome Outcome
	Record  Record
}
