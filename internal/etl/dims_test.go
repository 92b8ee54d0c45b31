package etl

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicworks/nyc311-pipeline/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestResolveCreatesOnFirstSight(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	resolver := NewDimResolver()
	ctx := context.Background()

	id, err := resolver.Resolve(ctx, store.DB(), DimAgency, "NYPD")
	require.NoError(t, err)
	require.True(t, id.Valid)

	// Same name resolves to the same id, no duplicate row.
	again, err := resolver.Resolve(ctx, store.DB(), DimAgency, "NYPD")
	require.NoError(t, err)
	require.Equal(t, id, again)

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM agency").Scan(&count))
	require.Equal(t, 1, count)
}

func TestResolveSurvivesColdCache(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := NewDimResolver()
	id, err := first.Resolve(ctx, store.DB(), DimBorough, "QUEENS")
	require.NoError(t, err)

	// A later run starts with an empty cache but must find the same row.
	second := NewDimResolver()
	again, err := second.Resolve(ctx, store.DB(), DimBorough, "QUEENS")
	require.NoError(t, err)
	require.Equal(t, id.Int64, again.Int64)

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM borough").Scan(&count))
	require.Equal(t, 1, count)
}

func TestResolveEmptyValueIsNullKey(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	resolver := NewDimResolver()

	id, err := resolver.Resolve(context.Background(), store.DB(), DimDescriptor, "")
	require.NoError(t, err)
	require.False(t, id.Valid)

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM descriptor").Scan(&count))
	require.Equal(t, 0, count, "absent value must not create a dimension row")
}

func TestResolveRejectsUnknownTable(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	resolver := NewDimResolver()

	_, err := resolver.Resolve(context.Background(), store.DB(), "service_requests", "x")
	require.Error(t, err)
}

func TestResolveDistinctValuesGetDistinctIDs(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	resolver := NewDimResolver()
	ctx := context.Background()

	a, err := resolver.Resolve(ctx, store.DB(), DimComplaintType, "Noise - Residential")
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, store.DB(), DimComplaintType, "Illegal Parking")
	require.NoError(t, err)
	require.NotEqual(t, a.Int64, b.Int64)
}
