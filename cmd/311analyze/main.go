// Package main wires together the analysis binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/analysis"
	"github.com/civicworks/nyc311-pipeline/internal/config"
	"github.com/civicworks/nyc311-pipeline/internal/logging"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(cfg.DB.Path); err != nil {
		logger.Error("store not found; run 311ingest first",
			zap.String("path", cfg.DB.Path),
			zap.Error(err),
		)
		return 1
	}

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

	runner := analysis.NewRunner(store.DB(), analysis.Config{OutputDir: cfg.Output.Dir}, logger)
	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("analysis setup failed", zap.Error(err))
		return 1
	}
	if failed := report.Failed(); failed > 0 {
		logger.Warn("some questions failed", zap.Int("failed", failed))
	}
	return 0
}
