package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"phantomqa/internal/logger"
	"phantomqa/internal/metrics"
	"phantomqa/internal/models"
	"phantomqa/pkg/config"
	"phantomqa/pkg/pipeline"
	"phantomqa/pkg/render"
	"phantomqa/pkg/seriesio"
)

const component = "cli"

// errQAFailed is returned in strict mode when a metric is out of tolerance
var errQAFailed = errors.New("phantom QA failed")

type runOptions struct {
	seriesDir   string
	pairDir     string
	configPath  string
	format      string
	logLevel    string
	metricsFile string
	description string
	workers     int
	strict      bool

	// changed reports whether a flag was set on the command line
	changed func(name string) bool
}

func runQA(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.Output.LogLevel)
	log := logger.NewConsoleLogger(stderr, level)
	format, _ := render.ParseFormat(cfg.Output.Format)

	series, err := loadSeries(opts.seriesDir, cfg.SeriesOptions())
	if err != nil {
		return err
	}
	log.Info(component, "series loaded", map[string]interface{}{
		"dir": opts.seriesDir, "description": series.Description, "slices": len(series.Slices),
	})

	var pairs []models.SliceImage
	if opts.pairDir != "" {
		pair, err := loadSeries(opts.pairDir, cfg.SeriesOptions())
		if err != nil {
			return fmt.Errorf("pair series: %w", err)
		}
		pairs = pair.Slices
	}

	rec := metrics.New()
	runner, err := pipeline.NewRunner(cfg.QA, pipeline.WithLogger(log), pipeline.WithMetrics(rec))
	if err != nil {
		return err
	}

	start := time.Now()
	rep, err := runner.Run(ctx, series.Slices, pairs)
	if err != nil {
		log.Error(component, err, map[string]interface{}{"dir": opts.seriesDir})
		return fmt.Errorf("QA run: %w", err)
	}
	summary := rep.Summary()
	log.Info(component, "QA run completed", map[string]interface{}{
		"report":      rep.ID.String(),
		"seconds":     time.Since(start).Seconds(),
		"pass":        summary.Pass,
		"fail":        summary.Fail,
		"unavailable": summary.Unavailable,
	})

	if err := render.Write(stdout, rep, format); err != nil {
		return err
	}
	if cfg.Output.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Output.MetricsFile, rec.Registry()); err != nil {
			log.Error(component, err, map[string]interface{}{"metrics_file": cfg.Output.MetricsFile})
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if opts.strict && summary.Fail > 0 {
		return fmt.Errorf("%d metrics out of tolerance: %w", summary.Fail, errQAFailed)
	}
	return nil
}

// applyFlags lets command line flags override the configuration file
func applyFlags(cfg *config.Config, opts runOptions) {
	changed := opts.changed
	if changed == nil {
		changed = func(string) bool { return false }
	}
	if changed("format") {
		cfg.Output.Format = opts.format
	}
	if changed("log-level") {
		cfg.Output.LogLevel = opts.logLevel
	}
	if changed("metrics-file") {
		cfg.Output.MetricsFile = opts.metricsFile
	}
	if changed("series") {
		cfg.Series.Description = opts.description
	}
	if changed("workers") {
		cfg.QA.Workers = opts.workers
	}
}

// loadSeries returns the single series found in dir
func loadSeries(dir string, opts seriesio.Options) (seriesio.Series, error) {
	all, err := seriesio.Load(dir, opts)
	if err != nil {
		return seriesio.Series{}, fmt.Errorf("load series from %s: %w", dir, err)
	}
	if len(all) > 1 {
		names := make([]string, len(all))
		for i, s := range all {
			names[i] = fmt.Sprintf("%q", s.Description)
		}
		return seriesio.Series{}, fmt.Errorf("%s holds %d series (%s), select one with --series",
			dir, len(all), strings.Join(names, ", "))
	}
	return all[0], nil
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return config.CreateDefaultConfigFile(path)
}
