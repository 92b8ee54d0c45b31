package etl

import "time"

// TimeLayout is the textual timestamp format persisted in the store. Values
// are UTC; the layout keeps SQLite julianday/strftime usable directly.
const TimeLayout = "2006-01-02T15:04:05"

// FactRow is a normalized service request ready for loading. Nil pointer
// fields become NULL columns; empty dimension values become NULL foreign
// keys.
type FactRow struct {
	UniqueKey             int64
	CreatedDate           *time.Time
	ClosedDate            *time.Time
	ResolutionDescription *string
	IncidentZip           *string
	Latitude              *float64
	Longitude             *float64
	Agency                string
	ComplaintType         string
	Descriptor            string
	Borough               string
}

// RejectReason tags why a raw record was skipped. Empty means accepted.
type RejectReason string

// Reject reasons surfaced in the run summary.
const (
	RejectNone         RejectReason = ""
	RejectMissingKey   RejectReason = "missing_unique_key"
	RejectMalformedKey RejectReason = "malformed_unique_key"
)
