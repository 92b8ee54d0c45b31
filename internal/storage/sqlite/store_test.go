package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAppliesSchema(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	for _, table := range []string{"agency", "complaint_type", "descriptor", "borough", "service_requests"} {
		var name string
		err := store.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.sqlite")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.DB().Exec("INSERT INTO agency(name) VALUES ('NYPD')")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening must not disturb existing rows.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM agency").Scan(&count))
	require.Equal(t, 1, count)
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, err = store.DB().Exec(
		"INSERT INTO service_requests (unique_key, agency_id) VALUES (1, 999)",
	)
	require.Error(t, err, "dangling foreign key must be rejected")
}

func TestDimensionNamesUnique(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, err = store.DB().Exec("INSERT INTO borough(name) VALUES ('BROOKLYN')")
	require.NoError(t, err)
	_, err = store.DB().Exec("INSERT INTO borough(name) VALUES ('BROOKLYN')")
	require.Error(t, err, "duplicate dimension name must be rejected")
}

func TestBeginCommitVisibility(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO agency(name) VALUES ('DOT')")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM agency").Scan(&count))
	require.Equal(t, 0, count, "rolled back rows must not be visible")
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("")
	require.Error(t, err)
}
