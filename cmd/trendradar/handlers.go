package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/okian/trendradar/internal/adapters/http/api"
	"github.com/okian/trendradar/internal/adapters/http/swagger"
	"github.com/okian/trendradar/internal/adapters/ingest"
	app "github.com/okian/trendradar/internal/app"
	"github.com/okian/trendradar/internal/config"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/sample"
	"github.com/okian/trendradar/pkg/logger"
	"github.com/okian/trendradar/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

var errUnknownFormat = errors.New("unknown output format")

// setup loads configuration and initializes the global logger on w.
func setup(ctx context.Context, w io.Writer) (*config.Config, error) {
	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithWriter(w), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	// Fall back to info on an invalid level.
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func newService(cfg *config.Config) (*app.Service, error) {
	p, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	return app.New(
		app.WithLogger(logger.Named("service")),
		app.WithPipeline(p),
		app.WithThreshold(cfg.Threshold),
		app.WithMaxRuns(cfg.MaxRuns),
	), nil
}

func runServe(parent context.Context, addr string) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := setup(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if addr != "" {
		cfg.Addr = addr
	}
	log := logger.Get()

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc,
		api.WithMaxLimit(cfg.MaxRankingLimit),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithLogger(logger.Named("api")),
	).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}

// report is the json/yaml shape of a scored file.
type report struct {
	RunID     string      `json:"run_id" yaml:"run_id"`
	Source    string      `json:"source" yaml:"source"`
	Threshold float64     `json:"threshold" yaml:"threshold"`
	Category  string      `json:"category,omitempty" yaml:"category,omitempty"`
	Total     int         `json:"total" yaml:"total"`
	Trending  int         `json:"trending" yaml:"trending"`
	Excluded  int         `json:"excluded" yaml:"excluded"`
	Dropped   []string    `json:"dropped_metrics,omitempty" yaml:"dropped_metrics,omitempty"`
	Failures  []string    `json:"failed_categories,omitempty" yaml:"failed_categories,omitempty"`
	Results   []reportRow `json:"results" yaml:"results"`
}

type reportRow struct {
	Rank     int      `json:"rank,omitempty" yaml:"rank,omitempty"`
	ID       string   `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"`
	Score    *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Trending bool     `json:"trending" yaml:"trending"`
	Excluded bool     `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Issues   []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

func runScore(ctx context.Context, out, errOut io.Writer, path string, threshold, beta *float64, f scoreFlags) error {
	format := strings.ToLower(f.format)
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, f.format)
	}

	cfg, err := setup(ctx, errOut)
	if err != nil {
		return err
	}
	if beta != nil {
		cfg.ExternalSignalWeight = *beta
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	rows, err := ingest.ReadFile(path)
	if err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	run, err := svc.Score(ctx, path, rows)
	if err != nil {
		return err
	}
	ranking, err := svc.Classify(run, app.Query{
		Threshold:    threshold,
		Category:     f.category,
		Limit:        f.top,
		TrendingOnly: !f.all,
	})
	if err != nil {
		return err
	}

	rep := report{
		RunID:     run.ID,
		Source:    path,
		Threshold: ranking.Threshold,
		Category:  ranking.Category,
		Total:     ranking.Total,
		Trending:  ranking.Trending,
		Excluded:  ranking.Excluded,
		Dropped:   run.Outcome.Dropped,
		Results:   make([]reportRow, 0, len(ranking.Results)),
	}
	for _, fail := range run.Outcome.Failures {
		rep.Failures = append(rep.Failures, fail.Error())
	}
	for _, r := range ranking.Results {
		rep.Results = append(rep.Results, toRow(r))
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeTable(out, rep)
	}
}

func toRow(r model.ScoreResult) reportRow {
	row := reportRow{
		Rank:     r.Rank,
		ID:       r.ID,
		Category: r.Category,
		Trending: r.Trending,
		Excluded: r.Excluded,
	}
	if !r.Excluded {
		score := r.Score
		row.Score = &score
	}
	for _, issue := range r.Issues {
		row.Issues = append(row.Issues, issue.Metric+" "+string(issue.Kind))
	}
	return row
}

func writeTable(out io.Writer, rep report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tCATEGORY\tSCORE\tTRENDING")
	for _, r := range rep.Results {
		rank, score, trending := "-", "excluded", ""
		if r.Rank > 0 {
			rank = strconv.Itoa(r.Rank)
		}
		if r.Score != nil {
			score = strconv.FormatFloat(*r.Score, 'f', 3, 64)
		} else if len(r.Issues) > 0 {
			score = "excluded (" + strings.Join(r.Issues, ", ") + ")"
		}
		if r.Trending {
			trending = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rank, r.ID, r.Category, score, trending)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d records, %d trending at threshold %g, %d excluded\n",
		rep.Total, rep.Trending, rep.Threshold, rep.Excluded)
	for _, fail := range rep.Failures {
		fmt.Fprintf(out, "skipped: %s\n", fail)
	}
	return nil
}

func sampleConfig(seed uint64, categories []string, products int, turkish bool, missing, noise float64) sample.Config {
	cfg := sample.DefaultConfig()
	cfg.Seed = seed
	if len(categories) > 0 {
		cfg.Categories = categories
	}
	if products > 0 {
		cfg.ProductsPerCategory = products
	}
	cfg.Turkish = turkish
	cfg.MissingRate = missing
	cfg.NoiseRate = noise
	return cfg
}

func runSample(stdout io.Writer, path string, cfg sample.Config) error {
	if cfg.MissingRate < 0 || cfg.NoiseRate < 0 || cfg.MissingRate+cfg.NoiseRate > 1 {
		return fmt.Errorf("missing-rate and noise-rate must be non-negative and sum to at most 1")
	}
	rows := sample.Generate(cfg)
	if path == "" {
		return sample.WriteCSV(stdout, cfg, rows)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := sample.WriteCSV(f, cfg, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
