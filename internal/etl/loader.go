package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/civicworks/nyc311-pipeline/internal/storage/sqlite"
)

const upsertFact = `
INSERT INTO service_requests (
	unique_key, created_date, closed_date, resolution_description, incident_zip,
	latitude, longitude, agency_id, complaint_type_id, descriptor_id, borough_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(unique_key) DO UPDATE SET
	created_date           = excluded.created_date,
	closed_date            = excluded.closed_date,
	resolution_description = excluded.resolution_description,
	incident_zip           = excluded.incident_zip,
	latitude               = excluded.latitude,
	longitude              = excluded.longitude,
	agency_id              = excluded.agency_id,
	complaint_type_id      = excluded.complaint_type_id,
	descriptor_id          = excluded.descriptor_id,
	borough_id             = excluded.borough_id`

// Loader writes batches of fact rows into the store. Each batch commits as
// one transaction; a row with a previously seen unique key is fully replaced.
type Loader struct {
	store *sqlite.Store
	dims  *DimResolver
}

// NewLoader builds a Loader sharing one dimension resolver per run.
func NewLoader(store *sqlite.Store, dims *DimResolver) *Loader {
	if dims == nil {
		dims = NewDimResolver()
	}
	return &Loader{store: store, dims: dims}
}

// LoadBatch upserts all rows inside one transaction: either every row in the
// batch becomes visible or none does.
func (l *Loader) LoadBatch(ctx context.Context, rows []FactRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, row := range rows {
		if err = l.upsertRow(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert %d: %w", row.UniqueKey, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (l *Loader) upsertRow(ctx context.Context, tx *sql.Tx, row FactRow) error {
	agencyID, err := l.dims.Resolve(ctx, tx, DimAgency, row.Agency)
	if err != nil {
		return err
	}
	complaintTypeID, err := l.dims.Resolve(ctx, tx, DimComplaintType, row.ComplaintType)
	if err != nil {
		return err
	}
	descriptorID, err := l.dims.Resolve(ctx, tx, DimDescriptor, row.Descriptor)
	if err != nil {
		return err
	}
	boroughID, err := l.dims.Resolve(ctx, tx, DimBorough, row.Borough)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, upsertFact,
		row.UniqueKey,
		formatTimestamp(row.CreatedDate),
		formatTimestamp(row.ClosedDate),
		row.ResolutionDescription,
		row.IncidentZip,
		row.Latitude,
		row.Longitude,
		agencyID,
		complaintTypeID,
		descriptorID,
		boroughID,
	)
	return err
}

// formatTimestamp renders a nullable time as the stored text layout.
func formatTimestamp(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC().Format(TimeLayout)
}
