package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/alerts"
	"github.com/quizfunnel/quizfunnel/server/internal/catalogue"
	"github.com/quizfunnel/quizfunnel/server/internal/config"
	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
	"github.com/quizfunnel/quizfunnel/server/internal/metrics"
	"github.com/quizfunnel/quizfunnel/server/internal/receiver"
	"github.com/quizfunnel/quizfunnel/server/internal/scoring"
	"github.com/quizfunnel/quizfunnel/server/internal/store"
)

// Request body caps.
const (
	maxQuizBody   = 1 << 20
	maxEventsBody = 8 << 20
)

// Deps are the collaborators of a Handler. Only Store is required.
type Deps struct {
	Store       store.Store
	Receiver    *receiver.Receiver
	Alerts      *alerts.Engine
	Counters    *metrics.Counters
	Catalogue   *catalogue.Catalogue
	Experiments []experiment.Experiment

	// ReportRange is the window for the experiment list, alert evaluation
	// and /metrics. Defaults to 7d.
	ReportRange experiment.TimeRange

	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// quizState pairs a catalogue with the engine built on it so both are
// swapped together on reload.
type quizState struct {
	catalogue *catalogue.Catalogue
	engine    *scoring.Engine
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	mux         *http.ServeMux
	store       store.Store
	receiver    *receiver.Receiver
	alerts      *alerts.Engine
	counters    *metrics.Counters
	reportRange experiment.TimeRange
	now         func() time.Time

	quiz        atomic.Pointer[quizState]
	experiments atomic.Pointer[[]experiment.Experiment]
}

// New creates a Handler from d and registers all routes.
func New(d Deps) *Handler {
	h := &Handler{
		mux:         http.NewServeMux(),
		store:       d.Store,
		receiver:    d.Receiver,
		alerts:      d.Alerts,
		counters:    d.Counters,
		reportRange: d.ReportRange,
		now:         d.Now,
	}
	if h.receiver == nil {
		h.receiver = receiver.New(d.Store, config.IngestConfig{})
	}
	if h.alerts == nil {
		h.alerts = alerts.New(config.AlertsConfig{})
	}
	if h.counters == nil {
		h.counters = &metrics.Counters{}
	}
	if h.reportRange == "" {
		h.reportRange = experiment.DefaultRange
	}
	if h.now == nil {
		h.now = time.Now
	}
	cat := d.Catalogue
	if cat == nil {
		cat = catalogue.Default()
	}
	h.SetCatalogue(cat)
	h.SetExperiments(d.Experiments)

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/styles", h.styles)
	h.mux.HandleFunc("/api/v1/questions", h.questions)
	h.mux.HandleFunc("/api/v1/quiz/scores", h.scores)
	h.mux.HandleFunc("/api/v1/quiz/completeness", h.completeness)
	h.mux.HandleFunc("/api/v1/quiz/selections", h.selections)
	h.mux.HandleFunc("/api/v1/quiz/results", h.createResult)
	h.mux.HandleFunc("/api/v1/quiz/results/", h.getResult) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/events", h.ingest)
	h.mux.HandleFunc("/api/v1/experiments", h.listExperiments)
	h.mux.HandleFunc("/api/v1/experiments/", h.experimentSubtree) // {name}/report, {name}/assign
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/metrics", h.metrics)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetCatalogue swaps the question catalogue used by the quiz endpoints.
func (h *Handler) SetCatalogue(c *catalogue.Catalogue) {
	h.quiz.Store(&quizState{catalogue: c, engine: scoring.New(c)})
}

// SetExperiments swaps the configured experiment list.
func (h *Handler) SetExperiments(exps []experiment.Experiment) {
	cp := append([]experiment.Experiment(nil), exps...)
	h.experiments.Store(&cp)
}

func (h *Handler) experimentList() []experiment.Experiment {
	return *h.experiments.Load()
}

func (h *Handler) findExperiment(name string) (experiment.Experiment, bool) {
	for _, e := range h.experimentList() {
		if e.Name == name {
			return e, true
		}
	}
	return experiment.Experiment{}, false
}

// Reports evaluates every configured experiment over rng.
func (h *Handler) Reports(ctx context.Context, rng experiment.TimeRange) ([]experiment.Report, error) {
	return h.reportsFor(ctx, h.experimentList(), rng)
}

// reportsFor evaluates exps over rng. Callers that pair the reports back up
// with their experiments pass the same snapshot they iterate, since a reload
// can swap the configured list between two loads.
func (h *Handler) reportsFor(ctx context.Context, exps []experiment.Experiment, rng experiment.TimeRange) ([]experiment.Report, error) {
	now := h.now()
	events, err := h.store.ListEvents(ctx, rng.Since(now))
	if err != nil {
		return nil, fmt.Errorf("api: list events: %w", err)
	}
	w := experiment.Window{Range: rng, Now: now}
	out := make([]experiment.Report, 0, len(exps))
	for _, exp := range exps {
		out = append(out, experiment.BuildReport(exp, experiment.Evaluate(exp, events, w), now))
	}
	return out, nil
}

// EvaluateAlerts runs the alert rules against the current reports.
func (h *Handler) EvaluateAlerts(ctx context.Context) error {
	reports, err := h.Reports(ctx, h.reportRange)
	if err != nil {
		return err
	}
	for _, rep := range reports {
		h.alerts.Evaluate(rep)
	}
	return nil
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cat := h.quiz.Load().catalogue
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentCount:  len(h.experimentList()),
		QuestionCount:    cat.Len(),
		ScoringQuestions: len(cat.ScoringQuestionIDs()),
		AlertCount:       len(h.alerts.Active()),
	})
}

// styles returns GET /api/v1/styles in canonical order.
func (h *Handler) styles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	all := types.AllStyles()
	out := make([]StyleResponse, len(all))
	for i, s := range all {
		out[i] = StyleResponse{Tag: s, DisplayName: s.DisplayName(), Order: i + 1}
	}
	jsonResp(w, http.StatusOK, out)
}

// questions returns GET /api/v1/questions.
func (h *Handler) questions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.quiz.Load().catalogue.Questions())
}

// scores handles POST /api/v1/quiz/scores.
func (h *Handler) scores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ResponsesRequest
	if !decodeBody(w, r, maxQuizBody, &req) {
		return
	}
	jsonResp(w, http.StatusOK, h.quiz.Load().engine.CalculateStyleScores(req.Responses))
}

// completeness handles POST /api/v1/quiz/completeness.
func (h *Handler) completeness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ResponsesRequest
	if !decodeBody(w, r, maxQuizBody, &req) {
		return
	}
	q := h.quiz.Load()
	missing := q.engine.MissingQuestions(req.Responses)
	if missing == nil {
		missing = []string{}
	}
	expected := len(q.catalogue.ScoringQuestionIDs())
	jsonResp(w, http.StatusOK, CompletenessResponse{
		Complete: len(missing) == 0,
		Missing:  missing,
		Answered: expected - len(missing),
		Expected: expected,
	})
}

// selections handles POST /api/v1/quiz/selections: one multi-select answer
// is validated, resolved to styles and merged into the answer set.
func (h *Handler) selections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req SelectionRequest
	if !decodeBody(w, r, maxQuizBody, &req) {
		return
	}
	q := h.quiz.Load()
	resp, styles := q.engine.ProcessSelections(req.QuestionID, req.OptionIDs, h.now())
	if err := q.catalogue.ValidateSelection(resp); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	merged := types.ReplaceResponse(req.Responses, resp)
	jsonResp(w, http.StatusOK, SelectionResponse{
		Response:  resp,
		Styles:    styles,
		Responses: merged,
		Complete:  q.engine.ValidateCompleteness(merged),
	})
}

// createResult handles POST /api/v1/quiz/results.
func (h *Handler) createResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ResultRequest
	if !decodeBody(w, r, maxQuizBody, &req) {
		return
	}
	q := h.quiz.Load()
	for _, resp := range req.Responses {
		if err := q.catalogue.ValidateSelection(resp); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if missing := q.engine.MissingQuestions(req.Responses); len(missing) > 0 && !req.AllowPartial {
		jsonResp(w, http.StatusUnprocessableEntity, IncompleteResponse{
			Error:   "quiz is incomplete",
			Missing: missing,
		})
		return
	}

	result := q.engine.DetermineResult(req.Responses, strings.TrimSpace(req.ParticipantName))
	if err := h.store.SaveResult(r.Context(), result); err != nil {
		slog.Error("api: save result failed", "id", result.ID, "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not save result")
		return
	}
	h.counters.ResultsSaved.Add(1)
	slog.Debug("api: quiz result saved",
		"id", result.ID,
		"predominant", result.PredominantStyle.Style,
	)
	jsonResp(w, http.StatusCreated, result)
}

// getResult returns GET /api/v1/quiz/results/{id}.
func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/quiz/results/")
	if id == "" || strings.Contains(id, "/") {
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	}
	result, err := h.store.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		slog.Error("api: get result failed", "id", id, "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not load result")
		return
	}
	jsonResp(w, http.StatusOK, result)
}

// ingest handles POST /api/v1/events. The body is either a JSON array of
// events or an object with an "events" array.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	events, err := readEvents(w, r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.receiver.Receive(r.Context(), events)
	switch {
	case errors.Is(err, receiver.ErrRateLimited):
		h.counters.RateLimited.Add(1)
		w.Header().Set("Retry-After", "1")
		jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	case errors.Is(err, receiver.ErrEmptyBatch), errors.Is(err, receiver.ErrBatchTooLarge):
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("api: ingest failed", "events", len(events), "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not store events")
		return
	}
	h.counters.EventsIngested.Add(uint64(res.Accepted))
	h.counters.EventsRejected.Add(uint64(len(res.Rejected)))

	if res.Accepted > 0 {
		if err := h.EvaluateAlerts(r.Context()); err != nil {
			slog.Warn("api: alert evaluation failed", "error", err)
		}
	}
	jsonResp(w, http.StatusAccepted, res)
}

// listExperiments returns GET /api/v1/experiments with each experiment's
// verdict over the report range.
func (h *Handler) listExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	exps := h.experimentList()
	reports, err := h.reportsFor(r.Context(), exps, h.reportRange)
	if err != nil {
		slog.Error("api: build reports failed", "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not evaluate experiments")
		return
	}
	out := make([]ExperimentResponse, len(exps))
	for i, exp := range exps {
		out[i] = ExperimentResponse{
			Experiment: exp,
			TimeRange:  reports[i].TimeRange,
			Verdict:    reports[i].Verdict(),
			Lift:       reports[i].Lift(),
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// experimentSubtree dispatches /api/v1/experiments/{name}/{action}.
func (h *Handler) experimentSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/experiments/")
	if rest == "" {
		h.listExperiments(w, r)
		return
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	name, action := rest[:i], rest[i+1:]
	exp, ok := h.findExperiment(name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "experiment not found")
		return
	}
	switch action {
	case "report":
		h.report(w, r, exp)
	case "assign":
		h.assign(w, r, exp)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// report returns GET /api/v1/experiments/{name}/report?range=&download=&trend_days=.
func (h *Handler) report(w http.ResponseWriter, r *http.Request, exp experiment.Experiment) {
	q := r.URL.Query()
	rng, err := experiment.ParseTimeRange(q.Get("range"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	trendDays := experiment.DefaultTrendDays
	if s := q.Get("trend_days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > experiment.MaxTrendDays {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("trend_days must be 1..%d", experiment.MaxTrendDays))
			return
		}
		trendDays = n
	}
	now := h.now()
	since := rng.Since(now)
	if ts := experiment.TrendSince(now, trendDays); !since.IsZero() && ts.Before(since) {
		since = ts
	}
	events, err := h.store.ListEvents(r.Context(), since)
	if err != nil {
		slog.Error("api: list events failed", "experiment", exp.Name, "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not load events")
		return
	}
	ev := experiment.Evaluate(exp, events, experiment.Window{Range: rng, Now: now})
	rep := experiment.BuildReport(exp, ev, now)

	if isTruthy(q.Get("download")) {
		body, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, "could not encode report")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename()))
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
		return
	}

	jsonResp(w, http.StatusOK, ReportResponse{
		Report:   rep,
		Lift:     rep.Lift(),
		Insights: computeInsights(rep),
		Trend:    experiment.DailyTrend(exp, events, now, trendDays),
	})
}

// assign returns GET /api/v1/experiments/{name}/assign?user_key=.
func (h *Handler) assign(w http.ResponseWriter, r *http.Request, exp experiment.Experiment) {
	key := r.URL.Query().Get("user_key")
	if key == "" {
		jsonErr(w, http.StatusBadRequest, "user_key is required")
		return
	}
	v := experiment.AssignVariant(exp.Name, key, exp.TrafficSplit)
	arm := exp.VariantA
	if v == experiment.ArmB {
		arm = exp.VariantB
	}
	jsonResp(w, http.StatusOK, AssignmentResponse{
		Experiment: exp.Name,
		UserKey:    key,
		Variant:    v,
		Arm:        arm,
	})
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	active := h.alerts.Active()
	out := make([]AlertResponse, len(active))
	for i, a := range active {
		out[i] = AlertResponse{
			ID:         a.ID,
			RuleName:   a.RuleName,
			Experiment: a.Experiment,
			Severity:   a.Severity,
			Message:    a.Message,
			Value:      a.Value,
			State:      a.State,
			FiredAt:    rfc3339(a.FiredAt),
		}
		if a.ResolvedAt != nil {
			s := rfc3339(*a.ResolvedAt)
			out[i].ResolvedAt = &s
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reports, err := h.Reports(r.Context(), h.reportRange)
	if err != nil {
		slog.Error("api: build reports failed", "error", err)
		jsonErr(w, http.StatusInternalServerError, "could not evaluate experiments")
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	if err := metrics.Write(w, metrics.Families(reports, h.counters)); err != nil {
		slog.Warn("api: write metrics failed", "error", err)
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// decodeBody decodes a JSON body into v, writing a 400 and returning false
// on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func readEvents(w http.ResponseWriter, r *http.Request) ([]types.Event, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventsBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var events []types.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return events, nil
	}
	var wrapped struct {
		Events []types.Event `json:"events"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return wrapped.Events, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}
