// Package scoring combines standardized metrics into one composite trend
// score per record.
//
//	local = Σ(sign·weight·z) / Σ weight        over the group's active metrics
//	score = (1 − β)·local + β·z_external       β is the external weight
package scoring

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/normalize"
)

// Scorer holds one run's fixed weights and signs.
type Scorer struct {
	specs          map[string]model.MetricSpec
	order          []string
	externalWeight float64
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithExternalWeight sets β, the share of the score taken by the external
// signal. Validated by New.
func WithExternalWeight(beta float64) Option {
	return func(s *Scorer) {
		s.externalWeight = beta
	}
}

// New validates specs and builds a Scorer. Signs must be +1 or −1, weights
// finite and non-negative with a positive sum, names unique, β in [0, 1].
func New(specs []model.MetricSpec, opts ...Option) (*Scorer, error) {
	s := &Scorer{specs: make(map[string]model.MetricSpec, len(specs))}
	for _, opt := range opts {
		opt(s)
	}
	if err := Validate(specs, s.externalWeight); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		s.specs[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}
	return s, nil
}

// Validate checks a metric spec list and external weight.
func Validate(specs []model.MetricSpec, beta float64) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: no metrics", ErrInvalidWeights)
	}
	if math.IsNaN(beta) || beta < 0 || beta > 1 {
		return fmt.Errorf("%w: external weight %v outside [0,1]", ErrInvalidWeights, beta)
	}
	seen := make(map[string]bool, len(specs))
	var total float64
	for _, spec := range specs {
		switch {
		case spec.Name == "":
			return fmt.Errorf("%w: unnamed metric", ErrInvalidWeights)
		case seen[spec.Name]:
			return fmt.Errorf("%w: duplicate metric %q", ErrInvalidWeights, spec.Name)
		case spec.Sign != model.Higher && spec.Sign != model.Lower:
			return fmt.Errorf("%w: metric %q sign %d must be +1 or -1", ErrInvalidWeights, spec.Name, spec.Sign)
		case math.IsNaN(spec.Weight) || math.IsInf(spec.Weight, 0) || spec.Weight < 0:
			return fmt.Errorf("%w: metric %q weight %v", ErrInvalidWeights, spec.Name, spec.Weight)
		}
		seen[spec.Name] = true
		total += spec.Weight
	}
	if total <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}
	return nil
}

// ExternalWeight returns β.
func (s *Scorer) ExternalWeight() float64 { return s.externalWeight }

// Score produces one result per member of every scorable group, ordered by
// category then record ID. Groups with an error are skipped.
func (s *Scorer) Score(n *normalize.Normalized) []model.ScoreResult {
	var out []model.ScoreResult
	for _, g := range n.Groups {
		if g.Err != nil {
			continue
		}
		for _, m := range g.Members {
			ext, hasExt := n.External[m.Record.ID]
			out = append(out, s.ScoreMember(m, g.Active, ext, hasExt))
		}
	}
	return out
}

// ScoreMember scores one normalized member given its group's active metrics.
func (s *Scorer) ScoreMember(m normalize.Member, active []string, externalZ float64, hasExternal bool) model.ScoreResult {
	res := model.ScoreResult{
		ID:       m.Record.ID,
		Category: m.Record.Category,
		Meta:     maps.Clone(m.Record.Meta),
		Issues:   slices.Clone(m.Issues),
	}
	if m.Excluded {
		res.Excluded = true
		return res
	}

	var total float64
	for _, name := range active {
		total += s.specs[name].Weight
	}
	if total <= 0 {
		res.Excluded = true
		return res
	}
	localShare := 1 - s.externalWeight

	res.Components = make([]model.Component, 0, len(active))
	for _, name := range s.order {
		if !slices.Contains(active, name) {
			continue
		}
		spec := s.specs[name]
		z := m.Z[name]
		part := float64(spec.Sign) * spec.Weight * z / total
		res.Local += part
		res.Components = append(res.Components, model.Component{
			Metric:       name,
			Raw:          m.Raw[name],
			Standardized: z,
			Contribution: localShare * part,
		})
	}

	res.Score = res.Local
	if hasExternal {
		res.ExternalZ = externalZ
	}
	if s.externalWeight > 0 {
		res.Score = localShare*res.Local + s.externalWeight*externalZ
	}
	return res
}
