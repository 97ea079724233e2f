// Package model contains domain models passed between pipeline stages.
package model

// Record is one product row after column resolution. Values hold raw,
// uncoerced cells keyed by canonical metric name.
type Record struct {
	ID       string         // unique within a dataset
	Category string         // grouping key, required
	Values   map[string]any // canonical metric -> raw cell
	External any            // raw external signal cell, nil when absent
	Meta     map[string]any // display metadata, opaque to scoring
	Row      int            // 1-based source row
}

// Sign of a metric: Higher favors larger raw values, Lower favors smaller ones.
const (
	Higher = 1
	Lower  = -1
)

// MetricSpec describes how a canonical metric takes part in the score.
type MetricSpec struct {
	Name     string  `json:"name" yaml:"name" koanf:"name"`
	Required bool    `json:"required" yaml:"required" koanf:"required"`
	Sign     int     `json:"sign" yaml:"sign" koanf:"sign"`
	Weight   float64 `json:"weight" yaml:"weight" koanf:"weight"`
}

// DerivationRule computes Target as Numerator / Denominator when the
// dataset carries no column for Target.
type DerivationRule struct {
	Target      string `json:"target" yaml:"target" koanf:"target"`
	Numerator   string `json:"numerator" yaml:"numerator" koanf:"numerator"`
	Denominator string `json:"denominator" yaml:"denominator" koanf:"denominator"`
}

// IssueKind classifies a non-fatal per-record data problem.
type IssueKind string

const (
	IssueNonNumeric     IssueKind = "non_numeric"
	IssueMissing        IssueKind = "missing"
	IssueUndefinedRatio IssueKind = "undefined_ratio"
)

// Issue is a data problem that kept a record out of a metric's statistics.
type Issue struct {
	Metric string    `json:"metric"`
	Kind   IssueKind `json:"kind"`
	Value  string    `json:"value,omitempty"`
}

// Component explains one metric's part in a score.
type Component struct {
	Metric       string  `json:"metric"`
	Raw          float64 `json:"raw"`
	Standardized float64 `json:"standardized"`
	Contribution float64 `json:"contribution"`
}

// ScoreResult is the scored view of one record. Results are values and are
// never modified after the stage that produced them; later stages copy.
type ScoreResult struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Score      float64        `json:"score"`
	Local      float64        `json:"local_score"`
	ExternalZ  float64        `json:"external_z"`
	Components []Component    `json:"components,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Excluded   bool           `json:"excluded"`
	Issues     []Issue        `json:"issues,omitempty"`
	Rank       int            `json:"rank,omitempty"`
	Trending   bool           `json:"trending"`
}
