// Package analysis runs the fixed battery of analytical questions over a
// loaded store and writes CSV and chart artifacts.
package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Config is passed explicitly instead of ambient process state.
type Config struct {
	OutputDir string
}

// Question is one independent analysis. Run returns the artifact paths it
// produced.
type Question struct {
	ID    string
	Title string
	Run   func(ctx context.Context, db *sql.DB, outDir string) ([]string, error)
}

// Result reports one question's outcome.
type Result struct {
	ID        string
	Title     string
	Artifacts []string
	Err       error
}

// Report collects all question outcomes for the terminal summary.
type Report struct {
	Results []Result
}

// Failed returns how many questions ended in error.
func (r Report) Failed() int {
	var n int
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Runner executes each question in order, isolating failures: a question
// that errors (or panics on degenerate input) is reported and skipped, and
// the remaining questions still run.
type Runner struct {
	db        *sql.DB
	cfg       Config
	logger    *zap.Logger
	out       io.Writer
	questions []Question
}

// NewRunner builds a Runner. With no explicit questions it runs the default
// Q1..Q5 battery.
func NewRunner(db *sql.DB, cfg Config, logger *zap.Logger, questions ...Question) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(questions) == 0 {
		questions = DefaultQuestions()
	}
	return &Runner{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		out:       os.Stdout,
		questions: questions,
	}
}

// SetOutput redirects the terminal summary (used in tests).
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Run executes the battery and prints the summary. The returned error covers
// only setup failures; individual question failures live in the Report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o750); err != nil {
		return Report{}, fmt.Errorf("create output dir: %w", err)
	}

	var report Report
	for _, q := range r.questions {
		artifacts, err := r.runOne(ctx, q)
		if err != nil {
			r.logger.Warn("analysis question failed",
				zap.String("question", q.ID),
				zap.Error(err),
			)
		} else {
			r.logger.Info("analysis question complete",
				zap.String("question", q.ID),
				zap.Strings("artifacts", artifacts),
			)
		}
		report.Results = append(report.Results, Result{
			ID:        q.ID,
			Title:     q.Title,
			Artifacts: artifacts,
			Err:       err,
		})
	}

	r.printSummary(report)
	return report, nil
}

// runOne isolates a single question, converting panics on degenerate input
// (empty groups, division by zero) into reported errors.
func (r *Runner) runOne(ctx context.Context, q Question) (artifacts []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			artifacts = nil
			err = fmt.Errorf("question %s panicked: %v", q.ID, rec)
		}
	}()
	return q.Run(ctx, r.db, r.cfg.OutputDir)
}

func (r *Runner) printSummary(report Report) {
	fmt.Fprintln(r.out, strings.Repeat("=", 72))
	fmt.Fprintln(r.out, "Analysis summary")
	fmt.Fprintln(r.out, strings.Repeat("=", 72))
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = "FAILED: " + res.Err.Error()
		}
		fmt.Fprintf(r.out, "%-4s %-50s %s\n", res.ID, res.Title, status)
		for _, artifact := range res.Artifacts {
			fmt.Fprintf(r.out, "     -> %s\n", artifact)
		}
	}
	fmt.Fprintf(r.out, "%d/%d questions succeeded\n",
		len(report.Results)-report.Failed(), len(report.Results))
}
