package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-folio/internal/config"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/progress"
	"github.com/kozaktomas/face-folio/internal/recognition"
	"github.com/kozaktomas/face-folio/internal/sorter"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// addMatchingFlags registers the flags shared by commands that run the pipeline.
// Their defaults come from the configuration.
func addMatchingFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("tolerance", 0, "Maximum face distance for a match (default from FACE_TOLERANCE or 0.6)")
	cmd.Flags().String("mode", "", "Match mode: first or best (default from FACE_MATCH_MODE or first)")
	cmd.Flags().Int("concurrency", 0, "Number of parallel recognition requests (default from FACE_CONCURRENCY or 1)")
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()

	if cmd.Flags().Lookup("tolerance") != nil {
		if v := mustGetFloat64(cmd, "tolerance"); v > 0 {
			cfg.Matching.Tolerance = v
		}
		if v := mustGetString(cmd, "mode"); v != "" {
			cfg.Matching.Mode = v
		}
		if v := mustGetInt(cmd, "concurrency"); v > 0 {
			cfg.Matching.Concurrency = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSorter wires the embedding service client into a sorter.
// cfg must have passed Validate.
func newSorter(cfg *config.Config) *sorter.Sorter {
	metric, _ := recognition.ParseMetric(cfg.Matching.Metric)
	mode, _ := facematch.ParseMatchMode(cfg.Matching.Mode)
	client := recognition.NewClient(cfg.Embedding.URL, metric, cfg.Embedding.Timeout)

	return sorter.New(client, sorter.Options{
		Tolerance:       cfg.Matching.Tolerance,
		Mode:            mode,
		Concurrency:     cfg.Matching.Concurrency,
		PortraitPadding: cfg.Portrait.Padding,
		PortraitQuality: cfg.Portrait.Quality,
		LockPath:        cfg.Run.LockPath(),
		Logger:          slog.Default(),
	})
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nReceived interrupt signal, stopping after the current photo...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newReporter returns a progress callback for w: a progress bar on a terminal,
// otherwise one line per status message. finish must be called once the run ends.
func newReporter(w io.Writer) (report progress.Func, finish func()) {
	if isTerminal(w) {
		bar := progress.NewBar(w)
		return bar.Report, func() {
			bar.Finish()
			fmt.Fprintln(w)
		}
	}

	return func(message string, fraction float64) {
		fmt.Fprintf(w, "[%3.0f%%] %s\n", fraction*100, message)
	}, func() {}
}

// stagedReporter reports progress of a run that is interrupted by prompts.
// Each stage gets its own reporter; Finish ends the current stage once.
type stagedReporter struct {
	w        io.Writer
	newStage func(io.Writer) (progress.Func, func())
	report   progress.Func
	finish   func()
}

func newStagedReporter(w io.Writer) *stagedReporter {
	s := &stagedReporter{w: w, newStage: newReporter}
	s.Next()
	return s
}

// Next starts a new stage.
func (s *stagedReporter) Next() {
	s.report, s.finish = s.newStage(s.w)
}

// Report forwards to the reporter of the current stage.
func (s *stagedReporter) Report(message string, fraction float64) {
	s.report(message, fraction)
}

// Finish ends the current stage. Later calls do nothing until Next.
func (s *stagedReporter) Finish() {
	s.finish()
	s.finish = func() {}
}
