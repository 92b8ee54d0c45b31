package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, maxAttempts int) *Client {
	t.Helper()
	c := NewClient(Config{
		BaseURL: url,
		Timeout: 2 * time.Second,
		Policy: RetryPolicy{
			MaxAttempts: maxAttempts,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}, nil)
	// No real waiting in tests.
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func testQuery(pageSize int) Query {
	return Query{
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		PageSize: pageSize,
	}
}

func TestFetchPageSendsSocrataParams(t *testing.T) {
	t.Parallel()

	var gotQuery, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotToken = r.Header.Get("X-App-Token")
		fmt.Fprint(w, `[{"unique_key":"1"}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	c.cfg.AppToken = "token123"

	records, err := c.FetchPage(context.Background(), testQuery(50), 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "1", records[0].String("unique_key"))

	require.Contains(t, gotQuery, "%24limit=50")
	require.Contains(t, gotQuery, "%24offset=100")
	require.Contains(t, gotQuery, "%24order=created_date")
	require.Contains(t, gotQuery, "created_date+between")
	require.Equal(t, "token123", gotToken)
}

func TestFetchPageRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"unique_key":"7"}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	records, err := c.FetchPage(context.Background(), testQuery(10), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	// Fails transiently exactly twice, so exactly three total attempts.
	require.Equal(t, int32(3), attempts.Load())
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.FetchPage(context.Background(), testQuery(10), 0)
	require.Error(t, err)
	require.Equal(t, int32(3), attempts.Load())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestFetchPageFailsFastOnClientError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	_, err := c.FetchPage(context.Background(), testQuery(10), 0)
	require.Error(t, err)
	require.Equal(t, int32(1), attempts.Load(), "4xx must not be retried")
}

func TestFetchPageRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not":"an array"`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	_, err := c.FetchPage(context.Background(), testQuery(10), 0)
	require.Error(t, err)
}

func TestCountParsesEstimate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.RawQuery, "count%281%29")
		fmt.Fprint(w, `[{"count_1":"12345"}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	n, err := c.Count(context.Background(), testQuery(10))
	require.NoError(t, err)
	require.Equal(t, 12345, n)
}

// pagedServer serves n synthetic records honoring $limit/$offset, counting
// page requests.
func pagedServer(t *testing.T, n int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("$limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		var page []map[string]string
		for i := offset; i < offset+limit && i < n; i++ {
			page = append(page, map[string]string{"unique_key": strconv.Itoa(i + 1)})
		}
		if page == nil {
			page = []map[string]string{}
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestPagerFetchesAllPages(t *testing.T) {
	t.Parallel()

	const total, pageSize = 25, 10
	srv, requests := pagedServer(t, total)

	c := newTestClient(t, srv.URL, 1)
	pager := NewPager(c, testQuery(pageSize), 0)

	var records int
	for {
		page, err := pager.Next(context.Background())
		require.NoError(t, err)
		if page == nil {
			break
		}
		records += len(page)
	}

	require.Equal(t, total, records)
	// ceil(25/10) = 3 page requests; the short final page ends the walk.
	require.Equal(t, int32(3), requests.Load())

	// Subsequent calls keep returning nil without extra requests.
	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, page)
	require.Equal(t, int32(3), requests.Load())
}

func TestPagerEmptySource(t *testing.T) {
	t.Parallel()

	srv, requests := pagedServer(t, 0)
	c := newTestClient(t, srv.URL, 1)
	pager := NewPager(c, testQuery(10), 0)

	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, page)
	require.Equal(t, int32(1), requests.Load())
}

func TestPagerPropagatesFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	pager := NewPager(c, testQuery(10), 0)

	_, err := pager.Next(context.Background())
	require.Error(t, err)
}
