// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trendradar/internal/adapters/repository"
	"github.com/okian/trendradar/internal/domain/classify"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/pipeline"
	"github.com/okian/trendradar/internal/domain/scoring"
	"github.com/okian/trendradar/pkg/logger"
	"github.com/okian/trendradar/pkg/metrics"
)

// LatestRun is the run id alias resolving to the most recent run.
const LatestRun = "latest"

// Query selects a view of a cached run.
type Query struct {
	// Threshold overrides the configured cutoff when set.
	Threshold *float64
	// Category restricts ranking to one category; empty ranks all records.
	Category string
	// Limit caps the number of results; 0 returns all.
	Limit int
	// TrendingOnly drops records below the threshold.
	TrendingOnly bool
}

// Ranking is a classified view of one run.
type Ranking struct {
	RunID     string              `json:"run_id"`
	Threshold float64             `json:"threshold"`
	Category  string              `json:"category,omitempty"`
	Total     int                 `json:"total"`
	Trending  int                 `json:"trending"`
	Excluded  int                 `json:"excluded"`
	Results   []model.ScoreResult `json:"results"`
}

// Service implements the API dependencies for trend scoring.
type Service struct {
	mu sync.RWMutex

	// Core components
	runs     repository.Store
	pipeline pipeline.Config

	// Configuration
	threshold float64
	maxRuns   int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPipeline sets the vocabulary, metric weights and blend used for runs.
func WithPipeline(cfg pipeline.Config) Option {
	return func(s *Service) {
		s.pipeline = cfg
	}
}

// WithThreshold sets the default trending cutoff.
func WithThreshold(threshold float64) Option {
	return func(s *Service) {
		s.threshold = threshold
	}
}

// WithMaxRuns bounds the number of cached runs.
func WithMaxRuns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// WithStore replaces the default in-memory run store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.runs = store
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		threshold: 0.5,
		maxRuns:   repository.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the configuration and prepares the run store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.pipeline.Logger == nil {
		s.pipeline.Logger = s.logger.Named("pipeline")
	}
	if err := scoring.Validate(s.pipeline.Metrics, s.pipeline.ExternalWeight); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	if _, err := classify.Classify(nil, s.threshold); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	if s.runs == nil {
		s.runs = repository.NewMemoryStore(repository.WithCapacity(s.maxRuns))
	}

	s.started = true
	s.logger.Info(ctx, "trend service started",
		logger.Int("metrics", len(s.pipeline.Metrics)),
		logger.Float64("threshold", s.threshold),
		logger.Float64("externalWeight", s.pipeline.ExternalWeight),
		logger.Int("maxRuns", s.maxRuns),
	)
	return nil
}

// Stop marks the service stopped. Cached runs are dropped with the process.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "trend service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Score runs the pipeline over rows and caches the outcome as a new run.
func (s *Service) Score(ctx context.Context, source string, rows []map[string]any) (*repository.Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		metrics.RecordRunError(ErrorKind(ErrEmptyRun))
		return nil, ErrEmptyRun
	}

	id := uuid.NewString()
	log := s.logger.With(logger.String("runID", id), logger.String("source", source))
	start := time.Now()

	outcome, err := pipeline.ResolveAndScore(ctx, rows, s.pipeline)
	if err != nil {
		kind := ErrorKind(err)
		metrics.RecordRunError(kind)
		log.Warn(ctx, "run rejected",
			logger.String("kind", kind),
			logger.Int("rows", len(rows)),
			logger.Error(err),
		)
		return nil, err
	}
	elapsed := time.Since(start)

	run := &repository.Run{
		ID:        id,
		CreatedAt: start.UTC(),
		Duration:  elapsed,
		Source:    source,
		Rows:      len(rows),
		Outcome:   outcome,
	}
	if err := s.runs.Put(ctx, run); err != nil {
		return nil, fmt.Errorf("store run: %w", err)
	}

	metrics.RecordRun(float64(elapsed.Microseconds())/1000, outcome.Scored(), outcome.Excluded(),
		len(outcome.Failures), len(outcome.Flagged), len(classify.Categories(outcome.Results)))
	for _, f := range outcome.Failures {
		log.Warn(ctx, "category skipped", logger.Error(f))
	}
	if len(outcome.Unmapped) > 0 {
		log.Debug(ctx, "unmapped columns kept as metadata", logger.Strings("columns", outcome.Unmapped))
	}
	log.Info(ctx, "run scored",
		logger.Int("rows", len(rows)),
		logger.Int("scored", outcome.Scored()),
		logger.Int("excluded", outcome.Excluded()),
		logger.Int("failedCategories", len(outcome.Failures)),
		logger.Duration("took", elapsed),
	)
	return run, nil
}

// Run returns a cached run; LatestRun or "" selects the most recent one.
func (s *Service) Run(ctx context.Context, id string) (*repository.Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if id == "" || strings.EqualFold(id, LatestRun) {
		return s.runs.Latest(ctx)
	}
	return s.runs.Get(ctx, id)
}

// Runs returns the cached runs, newest first.
func (s *Service) Runs(ctx context.Context) ([]*repository.Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.runs.List(ctx), nil
}

// Latest returns the most recent run.
func (s *Service) Latest(ctx context.Context) (*repository.Run, error) {
	return s.Run(ctx, LatestRun)
}

// Trending reclassifies a cached run. Scores are never recomputed.
func (s *Service) Trending(ctx context.Context, runID string, q Query) (*Ranking, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.Classify(run, q)
}

// Classify ranks a run's results for q.
func (s *Service) Classify(run *repository.Run, q Query) (*Ranking, error) {
	threshold := s.Threshold()
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	start := time.Now()
	ranked, err := classify.ClassifyCategory(run.Outcome.Results, q.Category, threshold)
	if err != nil {
		return nil, err
	}
	trending := classify.Trending(ranked)
	metrics.RecordClassify(float64(time.Since(start).Microseconds())/1000, len(trending))

	out := &Ranking{
		RunID:     run.ID,
		Threshold: threshold,
		Category:  q.Category,
		Total:     len(ranked),
		Trending:  len(trending),
	}
	for _, r := range ranked {
		if r.Excluded {
			out.Excluded++
		}
	}
	if q.TrendingOnly {
		ranked = trending
	}
	out.Results = classify.Top(ranked, q.Limit)
	return out, nil
}

// Threshold returns the configured trending cutoff.
func (s *Service) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":        s.started,
		"threshold":      s.threshold,
		"maxRuns":        s.maxRuns,
		"externalWeight": s.pipeline.ExternalWeight,
	}
	metricNames := make([]string, 0, len(s.pipeline.Metrics))
	for _, m := range s.pipeline.Metrics {
		metricNames = append(metricNames, m.Name)
	}
	stats["metrics"] = metricNames

	if s.started {
		cached := s.runs.Count(ctx)
		stats["cachedRuns"] = cached
		if latest, err := s.runs.Latest(ctx); err == nil {
			stats["latestRun"] = latest.ID
			stats["latestRunScored"] = latest.Outcome.Scored()
			stats["latestRunExcluded"] = latest.Outcome.Excluded()
		}
		metrics.UpdateCachedRuns(cached)
	}
	return stats
}
