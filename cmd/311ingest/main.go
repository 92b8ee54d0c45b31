// Package main wires together the ingestion binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/config"
	"github.com/civicworks/nyc311-pipeline/internal/etl"
	"github.com/civicworks/nyc311-pipeline/internal/logging"
	"github.com/civicworks/nyc311-pipeline/internal/metrics"
	"github.com/civicworks/nyc311-pipeline/internal/ops"
	"github.com/civicworks/nyc311-pipeline/internal/socrata"
	"github.com/civicworks/nyc311-pipeline/internal/storage/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	start, end, err := cfg.Window(time.Now())
	if err != nil {
		logger.Error("resolve ingest window failed", zap.Error(err))
		return 1
	}
	logger.Info("ingestion starting",
		zap.String("source", cfg.Source.URL),
		zap.String("window_start", start.Format("2006-01-02")),
		zap.String("window_end", end.Format("2006-01-02")),
		zap.Int("page_size", cfg.Ingest.PageSize),
	)

	store, err := sqlite.Open(cfg.DB.Path)
	if err != nil {
		logger.Error("open store failed", zap.Error(err))
		return 1
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close store failed", zap.Error(cerr))
		}
	}()

	if cfg.Metrics.Enabled {
		opsServer := ops.NewServer(cfg.Metrics.Port, logger.Named("ops"))
		opsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := opsServer.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("ops listener shutdown failed", zap.Error(serr))
			}
		}()
	}

	client := socrata.NewClient(socrata.Config{
		BaseURL:  cfg.Source.URL,
		AppToken: cfg.Source.AppToken,
		Timeout:  cfg.HTTPTimeout(),
		Policy: socrata.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		},
	}, logger.Named("socrata"))

	query := socrata.Query{Start: start, End: end, PageSize: cfg.Ingest.PageSize}

	// The count pre-pass only feeds progress logging; its failure is not
	// worth aborting the run.
	total, err := client.Count(ctx, query)
	if err != nil {
		logger.Warn("count estimate unavailable", zap.Error(err))
		total = 0
	} else {
		logger.Info("count estimate", zap.Int("records", total))
	}

	pager := socrata.NewPager(client, query, cfg.PageDelay())
	pipeline := etl.NewPipeline(pager, etl.NewLoader(store, nil), runID, logger)
	pipeline.EstimatedTotal = total

	summary, runErr := pipeline.Run(ctx)
	printSummary(summary)

	if runErr != nil {
		logger.Error("ingestion failed", zap.Error(runErr))
		return 1
	}
	logger.Info("ingestion complete",
		zap.Int("pages", summary.Pages),
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	return 0
}

func printSummary(s etl.Summary) {
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Ingestion run %s\n", s.RunID)
	fmt.Printf("  pages fetched:   %d\n", s.Pages)
	fmt.Printf("  records fetched: %d\n", s.Fetched)
	fmt.Printf("  records loaded:  %d\n", s.Loaded)
	fmt.Printf("  records skipped: %d\n", s.Skipped)
	for reason, count := range s.SkippedByReason {
		fmt.Printf("    %s: %d\n", reason, count)
	}
	fmt.Printf("  duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Println("------------------------------------------------------------")
}
