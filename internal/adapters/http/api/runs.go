package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/trendradar/internal/adapters/ingest"
	"github.com/okian/trendradar/internal/adapters/repository"
	service "github.com/okian/trendradar/internal/app"
	"github.com/okian/trendradar/internal/domain/model"
	"github.com/okian/trendradar/pkg/logger"
)

// RunsHandler handles run upload and ranking requests.
type RunsHandler struct {
	deps           Dependencies
	maxLimit       int
	maxUploadBytes int64
	logger         logger.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies, opts ...Option) *RunsHandler {
	h := &RunsHandler{
		deps:           deps,
		maxLimit:       DefaultMaxLimit,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// runSummary describes a cached run.
type runSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMs float64   `json:"duration_ms"`
	Source     string    `json:"source,omitempty"`
	Rows       int       `json:"rows"`
	Scored     int       `json:"scored"`
	Excluded   int       `json:"excluded"`
	Failures   []string  `json:"category_failures,omitempty"`
	NonNumeric []string  `json:"non_numeric,omitempty"`
	Dropped    []string  `json:"dropped_metrics,omitempty"`
	Unmapped   []string  `json:"unmapped_columns,omitempty"`
}

// resultView is one ranked record. Excluded records carry no score.
type resultView struct {
	Rank       int               `json:"rank,omitempty"`
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Score      *float64          `json:"score,omitempty"`
	Local      *float64          `json:"local_score,omitempty"`
	Trending   bool              `json:"trending"`
	Excluded   bool              `json:"excluded,omitempty"`
	Components []model.Component `json:"components,omitempty"`
	Issues     []model.Issue     `json:"issues,omitempty"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

type rankingResponse struct {
	RunID     string       `json:"run_id"`
	Threshold float64      `json:"threshold"`
	Category  string       `json:"category,omitempty"`
	Total     int          `json:"total"`
	Trending  int          `json:"trending"`
	Excluded  int          `json:"excluded"`
	Results   []resultView `json:"results"`
}

type postRunResponse struct {
	Run     runSummary      `json:"run"`
	Ranking rankingResponse `json:"ranking"`
}

type listRunsResponse struct {
	Runs []runSummary `json:"runs"`
}

// HandleRuns dispatches /runs by method.
func (h *RunsHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandlePostRun(w, r)
	case http.MethodGet:
		h.HandleListRuns(w, r)
	default:
		http.NotFound(w, r)
	}
}

// HandleListRuns handles GET /runs requests, newest run first.
func (h *RunsHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_runs"
	runs, err := h.deps.Runs(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	resp := listRunsResponse{Runs: make([]runSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, summarize(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePostRun handles POST /runs requests. The body is JSON rows or a
// delimited table; ?source= labels the run.
func (h *RunsHandler) HandlePostRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_run"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		source = "upload"
	}

	rows, err := h.readRows(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = WrapKind(op, ErrTooLarge, err)
		} else {
			err = Wrap(op, err)
		}
		h.reject(w, r, source, err)
		return
	}

	run, err := h.deps.Score(r.Context(), source, rows)
	if err != nil {
		h.reject(w, r, source, err)
		return
	}
	ranking, err := h.deps.Classify(run, q)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID)
	writeJSON(w, http.StatusCreated, postRunResponse{Run: summarize(run), Ranking: rankingView(ranking)})
}

// reject logs a refused upload and writes the failure response.
func (h *RunsHandler) reject(w http.ResponseWriter, r *http.Request, source string, err error) {
	h.logger.Warn(r.Context(), "upload rejected",
		logger.String("source", source),
		logger.String("kind", service.ErrorKind(err)),
		logger.Any("contentLength", r.ContentLength),
		logger.Error(err),
	)
	writeFailure(w, err)
}

// HandleGetRun handles GET /runs/{id} and GET /runs/{id}/trending, where id
// may be "latest".
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, view, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if id == "" || (ok && view != "trending") {
		http.NotFound(w, r)
		return
	}

	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	run, err := h.deps.Run(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, summarize(run))
		return
	}

	ranking, err := h.deps.Classify(run, q)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rankingView(ranking))
}

// parseQuery reads threshold, category, limit and all. Without all=true only
// trending records are listed.
func (h *RunsHandler) parseQuery(r *http.Request) (service.Query, error) {
	values := r.URL.Query()
	q := service.Query{
		Category:     strings.TrimSpace(values.Get("category")),
		Limit:        h.maxLimit,
		TrendingOnly: true,
	}
	if s := values.Get("threshold"); s != "" {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("invalid threshold %q", s)
		}
		q.Threshold = &t
	}
	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		if n > h.maxLimit {
			return q, fmt.Errorf("limit %d exceeds %d", n, h.maxLimit)
		}
		q.Limit = n
	}
	if s := values.Get("all"); s != "" {
		all, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid all %q", s)
		}
		q.TrendingOnly = !all
	}
	return q, nil
}

// readRows decodes the upload by content type, sniffing the first byte when
// the type is absent or generic.
func (h *RunsHandler) readRows(w http.ResponseWriter, r *http.Request) ([]map[string]any, error) {
	body := bufio.NewReader(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return ingest.DecodeJSON(body)
	case "text/csv":
		return ingest.ReadTable(body)
	case "text/tab-separated-values":
		return ingest.ReadTable(body, ingest.WithDelimiter('\t'))
	}

	head, err := body.Peek(512)
	if err != nil && len(head) == 0 {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, ingest.ErrEmptyInput
	}
	if first := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\ufeff")), " \t\r\n"); len(first) > 0 && (first[0] == '{' || first[0] == '[') {
		return ingest.DecodeJSON(body)
	}
	return ingest.ReadTable(body)
}

func summarize(run *repository.Run) runSummary {
	o := run.Outcome
	s := runSummary{
		ID:         run.ID,
		CreatedAt:  run.CreatedAt,
		DurationMs: float64(run.Duration.Microseconds()) / 1000,
		Source:     run.Source,
		Rows:       run.Rows,
		Scored:     o.Scored(),
		Excluded:   o.Excluded(),
		Dropped:    o.Dropped,
		Unmapped:   o.Unmapped,
	}
	for _, err := range o.Failures {
		s.Failures = append(s.Failures, err.Error())
	}
	for _, err := range o.Flagged {
		s.NonNumeric = append(s.NonNumeric, err.Error())
	}
	return s
}

func rankingView(r *service.Ranking) rankingResponse {
	out := rankingResponse{
		RunID:     r.RunID,
		Threshold: r.Threshold,
		Category:  r.Category,
		Total:     r.Total,
		Trending:  r.Trending,
		Excluded:  r.Excluded,
		Results:   make([]resultView, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		v := resultView{
			Rank:     res.Rank,
			ID:       res.ID,
			Category: res.Category,
			Trending: res.Trending,
			Excluded: res.Excluded,
			Issues:   res.Issues,
			Meta:     res.Meta,
		}
		if !res.Excluded {
			score, local := res.Score, res.Local
			v.Score, v.Local = &score, &local
			v.Components = res.Components
		}
		out.Results = append(out.Results, v)
	}
	return out
}
