package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/socrata"
)

// fakeSource replays fixed pages, then optionally fails.
type fakeSource struct {
	pages [][]socrata.Record
	err   error
	calls int
}

func (f *fakeSource) Next(context.Context) ([]socrata.Record, error) {
	if f.calls < len(f.pages) {
		page := f.pages[f.calls]
		f.calls++
		return page, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func TestPipelineLoadsAndCountsSkips(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	source := &fakeSource{pages: [][]socrata.Record{
		{
			{"unique_key": "1", "agency": "NYPD", "created_date": "2024-01-01T10:00:00"},
			{"unique_key": "2", "agency": "DOT", "created_date": "2024-01-01T11:00:00"},
			{"agency": "DSNY"}, // no unique key
			{"unique_key": "3", "borough": "BRONX"},
			{"unique_key": "4"},
		},
	}}

	p := NewPipeline(source, NewLoader(store, nil), "run-1", zap.NewNop())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	// 5 raw records, 1 lacking an identifier: 4 loaded, 1 recorded skip.
	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 5, summary.Fetched)
	require.Equal(t, 4, summary.Loaded)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.SkippedByReason[RejectMissingKey])

	var facts int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM service_requests").Scan(&facts))
	require.Equal(t, 4, facts)
}

func TestPipelineMultiPage(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	source := &fakeSource{pages: [][]socrata.Record{
		{{"unique_key": "1"}, {"unique_key": "2"}},
		{{"unique_key": "3"}, {"unique_key": "4"}},
		{{"unique_key": "5"}},
	}}

	p := NewPipeline(source, NewLoader(store, nil), "run-2", zap.NewNop())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Pages)
	require.Equal(t, 5, summary.Loaded)
	require.Zero(t, summary.Skipped)
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	pages := [][]socrata.Record{{
		{"unique_key": "1", "agency": "NYPD", "created_date": "2024-01-01T10:00:00"},
		{"unique_key": "2", "agency": "NYPD", "closed_date": "2024-01-02T10:00:00"},
	}}

	run := func(runID string) Summary {
		p := NewPipeline(&fakeSource{pages: pages}, NewLoader(store, nil), runID, zap.NewNop())
		summary, err := p.Run(context.Background())
		require.NoError(t, err)
		return summary
	}

	first := run("run-a")
	second := run("run-b")
	require.Equal(t, first.Loaded, second.Loaded)

	var facts, agencies int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM service_requests").Scan(&facts))
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM agency").Scan(&agencies))
	require.Equal(t, 2, facts, "overlapping reruns depend only on the latest value per key")
	require.Equal(t, 1, agencies)
}

func TestPipelineAbortsOnFetchFailure(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	source := &fakeSource{
		pages: [][]socrata.Record{{{"unique_key": "1"}}},
		err:   errors.New("retries exhausted"),
	}

	p := NewPipeline(source, NewLoader(store, nil), "run-3", zap.NewNop())
	summary, err := p.Run(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "retries exhausted")

	// The committed first page survives; the failure is not silent.
	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 1, summary.Loaded)
}
