package etl

import (
	"context"
	"database/sql"
	"fmt"
)

// Dimension tables. Table names are interpolated into SQL, so resolution is
// restricted to this fixed set.
const (
	DimAgency        = "agency"
	DimComplaintType = "complaint_type"
	DimDescriptor    = "descriptor"
	DimBorough       = "borough"
)

var dimTables = map[string]bool{
	DimAgency:        true,
	DimComplaintType: true,
	DimDescriptor:    true,
	DimBorough:       true,
}

type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DimResolver maps raw text values to dimension surrogate keys, inserting a
// row on first sight. Resolved ids are memoized for the life of the run; the
// UNIQUE constraint on name is the backstop against duplicates.
type DimResolver struct {
	cache map[string]map[string]int64
}

// NewDimResolver builds an empty resolver.
func NewDimResolver() *DimResolver {
	cache := make(map[string]map[string]int64, len(dimTables))
	for table := range dimTables {
		cache[table] = make(map[string]int64)
	}
	return &DimResolver{cache: cache}
}

// Resolve returns the surrogate key for name in the given dimension table.
// Empty names resolve to a NULL foreign key without creating a row.
func (r *DimResolver) Resolve(ctx context.Context, q queryExecer, table, name string) (sql.NullInt64, error) {
	if name == "" {
		return sql.NullInt64{}, nil
	}
	if !dimTables[table] {
		return sql.NullInt64{}, fmt.Errorf("unknown dimension table %q", table)
	}
	if id, ok := r.cache[table][name]; ok {
		return sql.NullInt64{Int64: id, Valid: true}, nil
	}

	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s(name) VALUES (?)", table), name,
	); err != nil {
		return sql.NullInt64{}, fmt.Errorf("insert %s dimension: %w", table, err)
	}
	var id int64
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name,
	).Scan(&id); err != nil {
		return sql.NullInt64{}, fmt.Errorf("lookup %s dimension: %w", table, err)
	}

	r.cache[table][name] = id
	return sql.NullInt64{Int64: id, Valid: true}, nil
}
