// Package socrata fetches service-request records from a Socrata SODA
// endpoint, one page at a time, with bounded retry on transient failures.
package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/metrics"
)

// Record is one raw API record: a loosely-typed field mapping. Socrata
// serializes most values as strings but nested objects (location) appear as
// maps, so values stay untyped until normalization.
type Record map[string]any

// String returns the named field as a trimmed string, or "" when the field
// is absent or not a scalar.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Query describes the ingestion window and page size.
type Query struct {
	Start    time.Time
	End      time.Time
	PageSize int
}

func (q Query) where() string {
	return fmt.Sprintf("created_date between '%sT00:00:00' and '%sT23:59:59'",
		q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
}

// Config controls Client behavior.
type Config struct {
	BaseURL  string
	AppToken string
	Timeout  time.Duration
	Policy   RetryPolicy
}

// Client issues paginated GET requests against the source API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// FetchPage fetches one page of records at the given offset. Transient
// failures are retried with backoff; exhausting the attempt budget returns
// the last error.
func (c *Client) FetchPage(ctx context.Context, q Query, offset int) ([]Record, error) {
	params := url.Values{}
	params.Set("$limit", strconv.Itoa(q.PageSize))
	params.Set("$offset", strconv.Itoa(offset))
	params.Set("$order", "created_date")
	params.Set("$where", q.where())

	body, err := c.getWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode page at offset %d: %w", offset, err)
	}
	return records, nil
}

// Count runs the $select=count(1) pre-pass used for progress estimation.
func (c *Client) Count(ctx context.Context, q Query) (int, error) {
	params := url.Values{}
	params.Set("$select", "count(1)")
	params.Set("$where", q.where())

	body, err := c.getWithRetry(ctx, params)
	if err != nil {
		return 0, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("empty count response")
	}
	for _, v := range rows[0] {
		switch t := v.(type) {
		case string:
			n, err := strconv.Atoi(t)
			if err != nil {
				return 0, fmt.Errorf("parse count %q: %w", t, err)
			}
			return n, nil
		case float64:
			return int(t), nil
		}
	}
	return 0, fmt.Errorf("count column missing in response")
}

func (c *Client) getWithRetry(ctx context.Context, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		body, err := c.get(ctx, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !c.cfg.Policy.ShouldRetry(err, attempt) {
			break
		}
		wait := c.cfg.Policy.Backoff(err, attempt)
		c.logger.Warn("source request failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		metrics.ObserveBackoff(wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch after %d attempt(s): %w", c.attemptsFor(lastErr), lastErr)
}

// attemptsFor reports how many attempts a terminal error consumed. Permanent
// errors stop after one try, transient ones exhaust the budget.
func (c *Client) attemptsFor(err error) int {
	if c.cfg.Policy.ShouldRetry(err, 1) || c.cfg.Policy.MaxAttempts == 1 {
		return c.cfg.Policy.MaxAttempts
	}
	return 1
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", c.cfg.AppToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveHTTPRequest(0)
		return nil, fmt.Errorf("source get: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	metrics.ObserveHTTPRequest(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(snippet),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
