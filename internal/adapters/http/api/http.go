// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/trendradar/internal/adapters/repository"
	service "github.com/okian/trendradar/internal/app"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Score runs the pipeline over uploaded rows and caches the run.
	Score(ctx context.Context, source string, rows []map[string]any) (*repository.Run, error)

	// Run returns a cached run; "latest" selects the newest one.
	Run(ctx context.Context, id string) (*repository.Run, error)

	// Runs returns the cached runs, newest first.
	Runs(ctx context.Context) ([]*repository.Run, error)

	// Classify ranks a cached run without recomputing scores.
	Classify(run *repository.Run, q service.Query) (*service.Ranking, error)

	// Threshold is the default trending cutoff.
	Threshold() float64
}

// Defaults for handler limits.
const (
	DefaultMaxLimit       = 500
	DefaultMaxUploadBytes = 32 << 20
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	runsHandler   *RunsHandler
}

// Option applies a configuration option to the RunsHandler.
type Option func(*RunsHandler)

// WithMaxLimit caps ?limit on ranking endpoints.
func WithMaxLimit(n int) Option {
	return func(h *RunsHandler) {
		if n > 0 {
			h.maxLimit = n
		}
	}
}

// WithMaxUploadBytes caps request bodies on POST /runs.
func WithMaxUploadBytes(n int64) Option {
	return func(h *RunsHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithLogger sets a custom logger for request handling.
func WithLogger(l logger.Logger) Option {
	return func(h *RunsHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		runsHandler:   NewRunsHandler(deps, opts...),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/runs", MetricsMiddleware(s.runsHandler.HandleRuns, "runs"))
	mux.HandleFunc("/runs/", MetricsMiddleware(s.runsHandler.HandleGetRun, "run"))
	mux.Handle("/metrics", MetricsHandler())
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Column  string   `json:"column,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Row     int      `json:"row,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps service and pipeline errors to a status and a body that
// names the offending column or row.
func writeFailure(w http.ResponseWriter, err error) {
	resp := errorResponse{Code: service.ErrorKind(err), Message: err.Error()}
	status := http.StatusInternalServerError

	var (
		missing   *model.MissingColumnError
		ambiguous *model.AmbiguousColumnError
		invalid   *model.InvalidRecordError
	)
	switch {
	case errors.Is(err, ErrTooLarge):
		status, resp.Code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.As(err, &ambiguous):
		status = http.StatusUnprocessableEntity
		resp.Column, resp.Columns = ambiguous.Metric, ambiguous.Columns
	case errors.As(err, &missing):
		status = http.StatusUnprocessableEntity
		resp.Column = missing.Metric
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
		resp.Row = invalid.Row
	case resp.Code == "no_scorable_data":
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotStarted):
		status, resp.Code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ErrBadRequest), resp.Code == "empty_input", resp.Code == "malformed_input", resp.Code == "invalid_threshold":
		status = http.StatusBadRequest
		if resp.Code == "internal" {
			resp.Code = "bad_request"
		}
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok && status == http.StatusUnprocessableEntity {
		for _, e := range joined.Unwrap() {
			resp.Details = append(resp.Details, e.Error())
		}
	}
	writeJSON(w, status, resp)
}
