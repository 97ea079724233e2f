package service

import (
	"context"
	"errors"

	"github.com/okian/trendradar/internal/adapters/ingest"
	"github.com/okian/trendradar/internal/domain/classify"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/internal/domain/pipeline"
	"github.com/okian/trendradar/internal/domain/scoring"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrEmptyRun   = errors.New("no rows to score")
)

// ErrorKind maps an error to a stable snake_case code for logs, metrics and
// API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrAmbiguousColumn):
		return "ambiguous_column"
	case errors.Is(err, model.ErrMissingColumn):
		return "missing_column"
	case errors.Is(err, model.ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, pipeline.ErrNoScorableData):
		return "no_scorable_data"
	case errors.Is(err, scoring.ErrInvalidWeights):
		return "invalid_weights"
	case errors.Is(err, classify.ErrInvalidThreshold):
		return "invalid_threshold"
	case errors.Is(err, ingest.ErrEmptyInput), errors.Is(err, ErrEmptyRun):
		return "empty_input"
	case errors.Is(err, ingest.ErrMalformed):
		return "malformed_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
