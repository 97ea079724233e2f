// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"maps"
	"math"
	"runtime"
	"slices"
	"strings"

	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/pipeline"
	"github.com/okian/trendradar/internal/domain/schema"
	"github.com/okian/trendradar/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Threshold is the default trending cutoff.
	Threshold float64 `koanf:"threshold"`

	// ExternalSignalWeight is β, the share of the score taken by the
	// external signal.
	ExternalSignalWeight float64 `koanf:"external_signal_weight"`

	// ExternalSignal names the canonical column of the external signal.
	ExternalSignal string `koanf:"external_signal"`

	// WorkerCount bounds concurrent category normalization.
	WorkerCount int `koanf:"worker_count"`

	// MaxRuns bounds the number of cached runs.
	MaxRuns int `koanf:"max_runs"`

	// MaxRankingLimit caps ?limit on ranking endpoints.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// MaxUploadBytes caps request bodies on POST /runs.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MetricSpecs lists the scored metrics with sign and weight.
	MetricSpecs []model.MetricSpec `koanf:"metric_specs"`

	// Derivations computes ratio metrics absent from the input.
	Derivations []model.DerivationRule `koanf:"derivations"`

	// Fields replaces the built-in vocabulary when non-empty.
	Fields []schema.Field `koanf:"fields"`

	// Synonyms adds accepted column names per canonical name.
	Synonyms map[string][]string `koanf:"synonyms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		Threshold:            0.5,
		ExternalSignalWeight: 0,
		ExternalSignal:       "popularity",
		WorkerCount:          runtime.NumCPU(),
		MaxRuns:              32,
		MaxRankingLimit:      500,
		MaxUploadBytes:       32 << 20,
		MetricSpecs:          DefaultMetricSpecs(),
		Derivations:          pipeline.DefaultDerivations(),
	}
}

// DefaultMetricSpecs weighs the funnel rates equally and penalizes high
// inventory cover when stock and sales are available.
func DefaultMetricSpecs() []model.MetricSpec {
	return []model.MetricSpec{
		{Name: "CTR", Required: true, Sign: model.Higher, Weight: 1},
		{Name: "CR", Required: true, Sign: model.Higher, Weight: 1},
		{Name: "STR", Required: true, Sign: model.Higher, Weight: 1},
		{Name: "cover", Required: false, Sign: model.Lower, Weight: 1},
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0):
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidConfig)
	case c.ExternalSignalWeight > 0 && strings.TrimSpace(c.ExternalSignal) == "":
		return fmt.Errorf("%w: external_signal must be set when external_signal_weight > 0", ErrInvalidConfig)
	case c.MaxRuns < 1:
		return fmt.Errorf("%w: max_runs must be positive", ErrInvalidConfig)
	case c.MaxRankingLimit < 1:
		return fmt.Errorf("%w: max_ranking_limit must be positive", ErrInvalidConfig)
	}
	if err := scoring.Validate(c.MetricSpecs, c.ExternalSignalWeight); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Schema(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Schema builds the synonym table: Fields (or the built-in vocabulary)
// extended with Synonyms.
func (c *Config) Schema() (*schema.Schema, error) {
	fields := c.Fields
	if len(fields) == 0 {
		fields = schema.DefaultFields()
	}
	merged := make([]schema.Field, 0, len(fields)+len(c.Synonyms))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		index[f.Canonical] = len(merged)
		merged = append(merged, schema.Field{Canonical: f.Canonical, Synonyms: append([]string(nil), f.Synonyms...)})
	}
	for _, canonical := range slices.Sorted(maps.Keys(c.Synonyms)) {
		extra := c.Synonyms[canonical]
		if i, ok := index[canonical]; ok {
			merged[i].Synonyms = append(merged[i].Synonyms, extra...)
			continue
		}
		merged = append(merged, schema.Field{Canonical: canonical, Synonyms: extra})
	}
	return schema.New(merged...)
}

// Pipeline returns the scoring configuration derived from c.
func (c *Config) Pipeline() (pipeline.Config, error) {
	s, err := c.Schema()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Schema:         s,
		Metrics:        append([]model.MetricSpec(nil), c.MetricSpecs...),
		Derivations:    append([]model.DerivationRule(nil), c.Derivations...),
		External:       c.ExternalSignal,
		ExternalWeight: c.ExternalSignalWeight,
		Workers:        c.WorkerCount,
	}, nil
}
