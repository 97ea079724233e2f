// Package normalize standardizes metrics within category groups.
//
// Statistics are computed per category because metric scales differ across
// categories. A metric without spread in a group (fewer than two defined
// values, or all values identical) standardizes to exactly 0.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/schema"
	"github.com/okian/trendradar/pkg/logger"
)

// Stats summarizes one metric inside one group.
type Stats struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Degenerate bool    `json:"degenerate"`
}

// Member is a record annotated with coerced and standardized values.
type Member struct {
	Record   model.Record
	Raw      map[string]float64 // defined raw or derived values
	Z        map[string]float64 // standardized values of active metrics
	Issues   []model.Issue
	Excluded bool
}

// Group is one category's normalized members. Err is set when the category
// could not be normalized; its members are then not scorable.
type Group struct {
	Category string
	Members  []Member // ordered by record ID
	Stats    map[string]Stats
	Active   []string // metrics taking part in this group's scores
	Err      error
}

// Normalized is the output of a normalization pass.
type Normalized struct {
	Groups        []Group // ordered by category
	External      map[string]float64
	ExternalStats Stats
	Dropped       []string // optional metrics the dataset cannot provide
	Flagged       []error  // *model.NonNumericValueError per rejected cell
}

// Failures returns the per-category errors.
func (n *Normalized) Failures() []error {
	var out []error
	for _, g := range n.Groups {
		if g.Err != nil {
			out = append(out, g.Err)
		}
	}
	return out
}

// Input bundles everything a pass reads.
type Input struct {
	Records []model.Record
	Specs   []model.MetricSpec
	Mapping *schema.Mapping
	// External names the external signal; empty disables it.
	External string
}

// Normalizer computes per-group standardized values.
type Normalizer struct {
	workers int
	logger  logger.Logger
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithWorkers bounds how many groups are processed concurrently.
func WithWorkers(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.workers = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(nz *Normalizer) {
		if l != nil {
			nz.logger = l
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		workers: runtime.NumCPU(),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize coerces raw cells, derives computed metrics and standardizes
// every active metric within each category group. Only context
// cancellation and structural inconsistencies are returned as errors;
// per-category shortfalls are reported on the groups.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*Normalized, error) {
	if in.Mapping == nil {
		return nil, fmt.Errorf("%w: nil mapping", ErrInvalidInput)
	}
	out := &Normalized{}

	var metrics []model.MetricSpec
	for _, spec := range in.Specs {
		if in.Mapping.Has(spec.Name) {
			metrics = append(metrics, spec)
			continue
		}
		if spec.Required {
			return nil, &model.MissingColumnError{Metric: spec.Name}
		}
		out.Dropped = append(out.Dropped, spec.Name)
	}

	members := make([]Member, len(in.Records))
	for i, rec := range in.Records {
		m := Member{
			Record: rec,
			Raw:    make(map[string]float64, len(metrics)),
			Z:      make(map[string]float64, len(metrics)),
		}
		for _, spec := range metrics {
			v, issue, ok := n.value(rec, spec.Name, in.Mapping)
			if ok {
				m.Raw[spec.Name] = v
				continue
			}
			m.Issues = append(m.Issues, issue)
			if issue.Kind == model.IssueNonNumeric {
				out.Flagged = append(out.Flagged, &model.NonNumericValueError{RecordID: rec.ID, Metric: spec.Name, Value: issue.Value})
			}
		}
		members[i] = m
	}

	if in.External != "" {
		n.standardizeExternal(members, in.External, out)
	}

	out.Groups = partition(members)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i := range out.Groups {
		grp := &out.Groups[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			standardizeGroup(grp, metrics)
			if grp.Err != nil {
				n.logger.Warn(gctx, "category not scorable",
					logger.String("category", grp.Category),
					logger.Error(grp.Err),
				)
				return nil
			}
			n.logger.Debug(gctx, "category normalized",
				logger.String("category", grp.Category),
				logger.Int("members", len(grp.Members)),
				logger.Int("active_metrics", len(grp.Active)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("normalize groups: %w", err)
	}
	return out, nil
}

// value returns a record's raw or derived value for a metric.
func (n *Normalizer) value(rec model.Record, metric string, mapping *schema.Mapping) (float64, model.Issue, bool) {
	rule, derived := mapping.Derived(metric)
	if !derived {
		cell := rec.Values[metric]
		v, kind, ok := Coerce(cell)
		if !ok {
			return 0, model.Issue{Metric: metric, Kind: kind, Value: cellText(cell)}, false
		}
		return v, model.Issue{}, true
	}

	num, kind, ok := Coerce(rec.Values[rule.Numerator])
	if !ok {
		return 0, model.Issue{Metric: metric, Kind: kind, Value: cellText(rec.Values[rule.Numerator])}, false
	}
	den, kind, ok := Coerce(rec.Values[rule.Denominator])
	if !ok {
		return 0, model.Issue{Metric: metric, Kind: kind, Value: cellText(rec.Values[rule.Denominator])}, false
	}
	if den == 0 {
		return 0, model.Issue{Metric: metric, Kind: model.IssueUndefinedRatio}, false
	}
	return num / den, model.Issue{}, true
}

func (n *Normalizer) standardizeExternal(members []Member, name string, out *Normalized) {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return members[order[a]].Record.ID < members[order[b]].Record.ID })

	ids := make([]string, 0, len(members))
	values := make([]float64, 0, len(members))
	for _, i := range order {
		m := &members[i]
		v, kind, ok := Coerce(m.Record.External)
		if !ok {
			m.Issues = append(m.Issues, model.Issue{Metric: name, Kind: kind, Value: cellText(m.Record.External)})
			m.Excluded = true
			if kind == model.IssueNonNumeric {
				out.Flagged = append(out.Flagged, &model.NonNumericValueError{RecordID: m.Record.ID, Metric: name, Value: cellText(m.Record.External)})
			}
			continue
		}
		ids = append(ids, m.Record.ID)
		values = append(values, v)
	}

	stats, z := Standardize(values)
	out.ExternalStats = stats
	out.External = make(map[string]float64, len(ids))
	for i, id := range ids {
		out.External[id] = z[i]
	}
}

// partition groups members by category, both levels sorted for determinism.
func partition(members []Member) []Group {
	byCategory := make(map[string][]Member)
	for _, m := range members {
		byCategory[m.Record.Category] = append(byCategory[m.Record.Category], m)
	}
	groups := make([]Group, 0, len(byCategory))
	for category, ms := range byCategory {
		sort.Slice(ms, func(i, j int) bool { return ms[i].Record.ID < ms[j].Record.ID })
		groups = append(groups, Group{Category: category, Members: ms})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups
}

func standardizeGroup(g *Group, metrics []model.MetricSpec) {
	g.Stats = make(map[string]Stats, len(metrics))
	var insufficient []error
	for _, spec := range metrics {
		idx := make([]int, 0, len(g.Members))
		values := make([]float64, 0, len(g.Members))
		for i := range g.Members {
			if v, ok := g.Members[i].Raw[spec.Name]; ok {
				idx = append(idx, i)
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			if spec.Required {
				insufficient = append(insufficient, &model.InsufficientDataError{Category: g.Category, Metric: spec.Name})
			}
			continue
		}
		stats, z := Standardize(values)
		g.Stats[spec.Name] = stats
		g.Active = append(g.Active, spec.Name)
		for k, i := range idx {
			g.Members[i].Z[spec.Name] = z[k]
		}
	}
	if len(insufficient) > 0 {
		g.Err = errors.Join(insufficient...)
		return
	}
	// Without an active metric carrying weight no member has a score.
	if activeWeight(metrics, g.Active) <= 0 {
		for i := range g.Members {
			g.Members[i].Excluded = true
		}
		return
	}
	for i := range g.Members {
		m := &g.Members[i]
		for _, name := range g.Active {
			if _, ok := m.Z[name]; !ok {
				m.Excluded = true
			}
		}
	}
}

func activeWeight(metrics []model.MetricSpec, active []string) float64 {
	var total float64
	for _, spec := range metrics {
		for _, name := range active {
			if spec.Name == name {
				total += spec.Weight
			}
		}
	}
	return total
}

// largeMagnitude is where squared deviations start risking overflow.
const largeMagnitude = 1e150

// Standardize returns population statistics and z-scores for values, in
// input order. Degenerate inputs yield Degenerate stats and all-zero scores.
func Standardize(values []float64) (Stats, []float64) {
	z := make([]float64, len(values))
	stats := Stats{Count: len(values)}
	if len(values) == 0 {
		stats.Degenerate = true
		return stats, z
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	// Very large values are divided by the largest magnitude first. z-scores
	// do not depend on the scale.
	scale := math.Max(math.Abs(lo), math.Abs(hi))
	if scale < largeMagnitude {
		scale = 1
	}

	var sum float64
	for _, v := range values {
		sum += v / scale
	}
	mean := sum / float64(len(values))
	stats.Mean = mean * scale
	if len(values) < 2 || lo == hi {
		stats.Degenerate = true
		return stats, z
	}

	var sq float64
	for _, v := range values {
		d := v/scale - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		stats.Degenerate = true
		return stats, z
	}
	stats.Std = std * scale
	for i, v := range values {
		z[i] = (v/scale - mean) / std
	}
	return stats, z
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
