// Package pipeline runs Resolve → Normalize → Score over one dataset. The
// output is cached by callers; threshold changes only need Classify.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/trendradar/internal/domain/classify"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/normalize"
	"github.com/okian/trendradar/internal/domain/schema"
	"github.com/okian/trendradar/internal/domain/scoring"
	"github.com/okian/trendradar/pkg/logger"
)

// Config fixes the vocabulary, weights and blend of one run.
type Config struct {
	Schema         *schema.Schema
	Metrics        []model.MetricSpec
	Derivations    []model.DerivationRule
	External       string  // canonical name of the external signal
	ExternalWeight float64 // β in [0,1]; 0 ignores the external signal
	Workers        int
	Logger         logger.Logger
}

// Outcome is the scored dataset before classification.
type Outcome struct {
	Results       []model.ScoreResult // ordered by category, then ID
	Failures      []error             // per-category errors
	Flagged       []error             // per-cell coercion errors
	Dropped       []string            // optional metrics absent from the dataset
	Unmapped      []string            // source columns outside the vocabulary
	Stats         map[string]map[string]normalize.Stats
	ExternalStats normalize.Stats
}

// Scored counts results that received a score.
func (o *Outcome) Scored() int {
	n := 0
	for _, r := range o.Results {
		if !r.Excluded {
			n++
		}
	}
	return n
}

// Excluded counts results left out of scoring.
func (o *Outcome) Excluded() int { return len(o.Results) - o.Scored() }

// DefaultDerivations are the ratio metrics computed when not supplied.
func DefaultDerivations() []model.DerivationRule {
	return []model.DerivationRule{
		{Target: "turnover", Numerator: "sales", Denominator: "stock"},
		{Target: "cover", Numerator: "stock", Denominator: "sales"},
	}
}

// ResolveAndScore resolves the schema of rows, normalizes each category and
// scores every record. Structural errors abort before any scoring.
func ResolveAndScore(ctx context.Context, rows []map[string]any, cfg Config) (*Outcome, error) {
	if cfg.Schema == nil {
		cfg.Schema = schema.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	scorer, err := scoring.New(cfg.Metrics, scoring.WithExternalWeight(cfg.ExternalWeight))
	if err != nil {
		return nil, err
	}
	useExternal := cfg.ExternalWeight > 0
	if useExternal && cfg.External == "" {
		return nil, fmt.Errorf("%w: external weight set without an external signal", scoring.ErrInvalidWeights)
	}

	req := schema.Requirements{
		Required:    []string{schema.FieldID, schema.FieldCategory},
		Derivations: cfg.Derivations,
	}
	for _, spec := range cfg.Metrics {
		if spec.Required {
			req.Required = append(req.Required, spec.Name)
		} else {
			req.Optional = append(req.Optional, spec.Name)
		}
	}
	if useExternal {
		req.Required = append(req.Required, cfg.External)
	}

	mapping, err := cfg.Schema.Resolve(schema.Columns(rows), req)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(cfg.Metrics))
	for _, spec := range cfg.Metrics {
		values = append(values, spec.Name)
		if rule, ok := mapping.Derived(spec.Name); ok {
			values = append(values, rule.Numerator, rule.Denominator)
		}
	}
	opts := schema.ApplyOptions{Values: values}
	if useExternal {
		opts.External = cfg.External
	}
	records, err := mapping.Apply(rows, opts)
	if err != nil {
		return nil, err
	}

	in := normalize.Input{Records: records, Specs: cfg.Metrics, Mapping: mapping, External: opts.External}
	nz := normalize.New(normalize.WithWorkers(cfg.Workers), normalize.WithLogger(cfg.Logger))
	normalized, err := nz.Normalize(ctx, in)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Results:       scorer.Score(normalized),
		Failures:      normalized.Failures(),
		Flagged:       normalized.Flagged,
		Dropped:       normalized.Dropped,
		Unmapped:      mapping.Unmapped(),
		Stats:         make(map[string]map[string]normalize.Stats, len(normalized.Groups)),
		ExternalStats: normalized.ExternalStats,
	}
	for _, g := range normalized.Groups {
		if g.Err == nil {
			out.Stats[g.Category] = g.Stats
		}
	}
	if len(out.Results) == 0 && len(out.Failures) > 0 {
		return nil, errors.Join(append([]error{ErrNoScorableData}, out.Failures...)...)
	}
	return out, nil
}

// Classify ranks an outcome's results against threshold.
func Classify(results []model.ScoreResult, threshold float64) ([]model.ScoreResult, error) {
	return classify.Classify(results, threshold)
}
