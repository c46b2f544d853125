package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/torosent/rangefetch/internal/config"
	"github.com/torosent/rangefetch/internal/dashboard"
	"github.com/torosent/rangefetch/internal/fetcher"
	"github.com/torosent/rangefetch/internal/logging"
	"github.com/torosent/rangefetch/internal/metrics"
	"github.com/torosent/rangefetch/internal/output"
	"github.com/torosent/rangefetch/internal/resource"
	"github.com/torosent/rangefetch/internal/runner"
	"github.com/torosent/rangefetch/internal/store"
	"github.com/torosent/rangefetch/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second

	completionMessage = "Download complete."
)

// historyInterval is how often the collector is sampled for the HTML
// report when no progress line or dashboard is doing it already.
var historyInterval = time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rng := cfg.Range()
	runID := output.NewRunID()

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.Run{
		ID:      runID.String(),
		Range:   rng,
		Workers: cfg.Workers,
		Store:   cfg.Store,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.New(ctx, store.Config{
		Location:    cfg.Store,
		KeyTemplate: resource.Template(cfg.KeyTemplate),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	f, err := fetcher.New(fetcher.Options{
		URLTemplate:  resource.Template(cfg.URLTemplate),
		Timeout:      cfg.Timeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		UserAgent:    cfg.UserAgent,
		Tracer:       tp.Tracer(),
		Propagate:    tp.ShouldPropagate(),
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheus(registry)
	if err != nil {
		return err
	}

	observers := []runner.Observer{collector, prom}
	if cfg.LogErrors {
		observers = append(observers, runner.LoggingObserver(logger))
	}

	r, err := runner.New(runner.Options{
		Workers:   cfg.Workers,
		Store:     st,
		Fetcher:   f,
		Observers: observers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			Range:       rng,
			Workers:     cfg.Workers,
			URLTemplate: cfg.URLTemplate,
			Store:       cfg.Store,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, stopRun)
		if err != nil {
			return err
		}
	}

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(collector, int64(rng.Len()), progressInterval, stderr)
	}

	logger.Debug("starting run",
		zap.Stringer("range", rng),
		zap.Int("workers", cfg.Workers),
		zap.String("store", cfg.Store),
	)

	collector.Start()
	stopHistory := startHistorySampler(cfg, collector)
	if dash != nil {
		dash.Start()
	}
	if progress != nil {
		progress.Start()
	}

	spanCtx, runSpan := tp.StartRun(runCtx)
	result, runErr := r.Run(spanCtx, rng)
	tracing.EndSpan(runSpan, runErr,
		tracing.AttrFetched.Int64(result.Fetched),
		tracing.AttrSkipped.Int64(result.Skipped),
		tracing.AttrFailed.Int64(result.Failed),
	)

	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}
	stopHistory()
	collector.Snapshot()

	stats := collector.Stats(result.Duration)
	prom.ObserveRun(result.Total, result.Duration, result.Complete(), time.Now())

	info := output.RunInfo{
		Range:       rng,
		Workers:     cfg.Workers,
		URLTemplate: cfg.URLTemplate,
		Store:       cfg.Store,
		Total:       result.Total,
		Complete:    result.Complete(),
	}

	if err := writeReports(cfg, info, stats, collector.History(), stdout); err != nil {
		return err
	}
	if cfg.TimingsFile != "" {
		err := output.AppendTiming(cfg.TimingsFile, output.Timing{
			Label:   cfg.Label,
			Elapsed: result.Duration,
			RunID:   runID,
			Start:   cfg.Start,
			End:     cfg.End,
			Workers: cfg.Workers,
			Fetched: result.Fetched,
			Skipped: result.Skipped,
			Failed:  result.Failed,
		})
		if err != nil {
			return err
		}
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted after %d of %d identifiers: %w", result.Processed(), result.Total, runErr)
	}

	// Machine-readable output keeps stdout clean.
	if cfg.JSONOutput || cfg.YAMLOutput {
		fmt.Fprintln(stderr, completionMessage)
	} else {
		fmt.Fprintln(stdout, completionMessage)
	}
	return nil
}

// startHistorySampler samples the collector for the HTML report's charts.
// The progress reporter and the dashboard already take snapshots on their
// own ticks, so the sampler only runs when neither is enabled.
func startHistorySampler(cfg *config.Config, collector *metrics.Collector) (stop func()) {
	if cfg.HTMLOutput == "" || cfg.Progress || cfg.Dashboard {
		return func() {}
	}
	return collector.SampleHistory(historyInterval)
}

func writeReports(cfg *config.Config, info output.RunInfo, stats metrics.Stats, history []metrics.DataPoint, stdout io.Writer) error {
	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(stdout, info, stats); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(stdout, info, stats); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, info, stats)
	}

	if cfg.HTMLOutput == "" {
		return nil
	}
	f, err := os.Create(cfg.HTMLOutput)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, info, stats, history); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
