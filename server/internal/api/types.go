package api

import (
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
	"github.com/quizfunnel/quizfunnel/server/internal/receiver"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentCount  int    `json:"experiment_count"`
	QuestionCount    int    `json:"question_count"`
	ScoringQuestions int    `json:"scoring_questions"`
	AlertCount       int    `json:"alert_count"`
}

// StyleResponse is one entry of GET /api/v1/styles.
type StyleResponse struct {
	Tag         types.StyleTag `json:"tag"`
	DisplayName string         `json:"display_name"`
	Order       int            `json:"order"`
}

// ResponsesRequest is the body shared by the scoring endpoints.
type ResponsesRequest struct {
	Responses []types.QuizResponse `json:"responses"`
}

// CompletenessResponse is the payload for POST /api/v1/quiz/completeness.
type CompletenessResponse struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
	Answered int      `json:"answered"`
	Expected int      `json:"expected"`
}

// SelectionRequest is the body for POST /api/v1/quiz/selections. Responses is
// the answer set so far; the new answer replaces any earlier one to the same
// question.
type SelectionRequest struct {
	QuestionID string               `json:"question_id"`
	OptionIDs  []string             `json:"option_ids"`
	Responses  []types.QuizResponse `json:"responses"`
}

// SelectionResponse is the payload for POST /api/v1/quiz/selections.
type SelectionResponse struct {
	Response  types.QuizResponse   `json:"response"`
	Styles    []types.StyleTag     `json:"styles"`
	Responses []types.QuizResponse `json:"responses"`
	Complete  bool                 `json:"complete"`
}

// ResultRequest is the body for POST /api/v1/quiz/results.
type ResultRequest struct {
	ParticipantName string               `json:"participant_name"`
	Responses       []types.QuizResponse `json:"responses"`
	AllowPartial    bool                 `json:"allow_partial"`
}

// IncompleteResponse is the 422 payload when a result is requested for an
// unfinished quiz.
type IncompleteResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
}

// IngestResponse is the payload for POST /api/v1/events.
type IngestResponse = receiver.Result

// ExperimentResponse is one entry of GET /api/v1/experiments.
type ExperimentResponse struct {
	experiment.Experiment
	TimeRange experiment.TimeRange `json:"timeRange"`
	Verdict   experiment.Verdict   `json:"verdict"`
	Lift      float64              `json:"lift"`
}

// ReportResponse is the payload for GET /api/v1/experiments/{name}/report.
// Trend is not part of the downloadable export.
type ReportResponse struct {
	Report   experiment.Report       `json:"report"`
	Lift     float64                 `json:"lift"`
	Insights []Insight               `json:"insights"`
	Trend    []experiment.TrendPoint `json:"trend"`
}

// AssignmentResponse is the payload for GET /api/v1/experiments/{name}/assign.
type AssignmentResponse struct {
	Experiment string         `json:"experiment"`
	UserKey    string         `json:"user_key"`
	Variant    string         `json:"variant"`
	Arm        experiment.Arm `json:"arm"`
}

// AlertResponse is one entry of GET /api/v1/alerts.
type AlertResponse struct {
	ID         string  `json:"id"`
	RuleName   string  `json:"rule_name"`
	Experiment string  `json:"experiment"`
	Severity   string  `json:"severity"`
	Message    string  `json:"message"`
	Value      float64 `json:"value"`
	State      string  `json:"state"`
	FiredAt    string  `json:"fired_at"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func rfc3339(t time.Time) string { return t.UTC().Format(time.RFC3339) }
