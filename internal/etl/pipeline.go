package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/metrics"
	"github.com/civicworks/nyc311-pipeline/internal/socrata"
)

// PageSource yields raw-record batches until exhausted (nil page). It is
// satisfied by *socrata.Pager.
type PageSource interface {
	Next(ctx context.Context) ([]socrata.Record, error)
}

// Summary accounts for one ingestion run. Every skipped record shows up
// here; nothing is dropped silently.
type Summary struct {
	RunID           string
	Pages           int
	Fetched         int
	Loaded          int
	Skipped         int
	SkippedByReason map[RejectReason]int
	EstimatedTotal  int
	Duration        time.Duration
}

// Pipeline drives one ingestion run: fetch pages, normalize records, load
// batches. Single-threaded by design.
type Pipeline struct {
	source PageSource
	loader *Loader
	logger *zap.Logger
	runID  string

	// EstimatedTotal, when > 0, is used for progress logging only.
	EstimatedTotal int
}

// NewPipeline builds a Pipeline.
func NewPipeline(source PageSource, loader *Loader, runID string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source: source,
		loader: loader,
		logger: logger,
		runID:  runID,
	}
}

// Run executes the ingestion loop. Malformed records are skipped and
// counted; fetch or load failures abort the run with the partial summary.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	summary = Summary{
		RunID:           p.runID,
		SkippedByReason: make(map[RejectReason]int),
		EstimatedTotal:  p.EstimatedTotal,
	}
	defer func() {
		summary.Duration = time.Since(start)
		metrics.ObserveRun(summary.Duration)
	}()

	for {
		page, err := p.source.Next(ctx)
		if err != nil {
			metrics.ObservePage("error")
			return summary, fmt.Errorf("fetch page %d: %w", summary.Pages+1, err)
		}
		if page == nil {
			break
		}
		summary.Pages++
		summary.Fetched += len(page)

		batch := make([]FactRow, 0, len(page))
		for _, rec := range page {
			row, reason := Normalize(rec)
			if reason != RejectNone {
				summary.Skipped++
				summary.SkippedByReason[reason]++
				p.logger.Warn("record skipped",
					zap.String("reason", string(reason)),
					zap.String("unique_key", rec.String("unique_key")),
				)
				continue
			}
			batch = append(batch, row)
		}
		metrics.ObserveRecords("skipped", len(page)-len(batch))

		if err := p.loader.LoadBatch(ctx, batch); err != nil {
			metrics.ObservePage("error")
			return summary, fmt.Errorf("load page %d: %w", summary.Pages, err)
		}
		summary.Loaded += len(batch)
		metrics.ObservePage("ok")
		metrics.ObserveRecords("loaded", len(batch))

		p.logProgress(summary)
	}

	return summary, nil
}

func (p *Pipeline) logProgress(summary Summary) {
	fields := []zap.Field{
		zap.String("run_id", p.runID),
		zap.Int("pages", summary.Pages),
		zap.Int("fetched", summary.Fetched),
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", summary.Skipped),
	}
	if p.EstimatedTotal > 0 {
		pct := 100 * float64(summary.Fetched) / float64(p.EstimatedTotal)
		fields = append(fields,
			zap.Int("estimated_total", p.EstimatedTotal),
			zap.String("progress", fmt.Sprintf("%.1f%%", pct)),
		)
	}
	p.logger.Info("page loaded", fields...)
}
