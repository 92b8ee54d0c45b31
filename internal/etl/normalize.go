// Package etl turns raw Socrata records into fact rows and loads them into
// the embedded store with upsert semantics.
package etl

import (
	"strconv"
	"time"

	"github.com/civicworks/nyc311-pipeline/internal/socrata"
)

// Socrata floating timestamps come with or without fractional seconds.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// Normalize converts one raw record into a FactRow, or rejects it. The only
// required field is the natural unique identifier; every other malformed
// field degrades to NULL rather than rejecting the record.
func Normalize(rec socrata.Record) (FactRow, RejectReason) {
	rawKey := rec.String("unique_key")
	if rawKey == "" {
		return FactRow{}, RejectMissingKey
	}
	key, err := strconv.ParseInt(rawKey, 10, 64)
	if err != nil {
		return FactRow{}, RejectMalformedKey
	}

	return FactRow{
		UniqueKey:             key,
		CreatedDate:           parseTimestamp(rec.String("created_date")),
		ClosedDate:            parseTimestamp(rec.String("closed_date")),
		ResolutionDescription: optionalText(rec.String("resolution_description")),
		IncidentZip:           optionalText(rec.String("incident_zip")),
		Latitude:              parseCoordinate(rec.String("latitude"), 90),
		Longitude:             parseCoordinate(rec.String("longitude"), 180),
		Agency:                rec.String("agency"),
		ComplaintType:         rec.String("complaint_type"),
		Descriptor:            rec.String("descriptor"),
		Borough:               rec.String("borough"),
	}, RejectNone
}

// parseTimestamp returns nil for empty or unparsable values.
func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// parseCoordinate returns nil for non-numeric or out-of-range values.
func parseCoordinate(raw string, bound float64) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -bound || v > bound {
		return nil
	}
	return &v
}

func optionalText(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
