package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

// ordinalStride spaces selection ordinals by response so that
// responseIndex*stride + selectionIndex never collides across responses.
// It is raised per call when a response carries more selections than this.
const ordinalStride = 10

// unsetOrder marks a style that has not been selected yet. It sorts after
// every real ordinal.
const unsetOrder = math.MaxInt

// complementaryCount is how many styles after the predominant one are
// considered complementary.
const complementaryCount = 2

// Catalogue is the question catalogue as seen by the engine.
type Catalogue interface {
	// ResolveOption maps an option of a question to a style, or false when
	// the option awards nothing.
	ResolveOption(questionID, optionID string) (types.StyleTag, bool)

	// ScoringQuestionIDs lists every scoring-eligible question.
	ScoringQuestionIDs() []string
}

// StyleScore is one row of the ranked style table.
type StyleScore struct {
	Style      types.StyleTag `json:"style"`
	Points     int            `json:"points"`
	Percentage int            `json:"percentage"`
	Rank       int            `json:"rank"`
}

// QuizResult is the immutable outcome of a completed quiz.
type QuizResult struct {
	ID                     string               `json:"id"`
	ParticipantName        string               `json:"participant_name"`
	Responses              []types.QuizResponse `json:"responses"`
	StyleScores            []StyleScore         `json:"style_scores"`
	PredominantStyle       StyleScore           `json:"predominant_style"`
	ComplementaryStyles    []StyleScore         `json:"complementary_styles"`
	TotalQuestionsExpected int                  `json:"total_questions_expected"`
	CalculatedAt           time.Time            `json:"calculated_at"`
}

// Engine scores quiz responses against a catalogue.
//
// Every method is a pure function of its arguments and the catalogue; the
// engine holds no per-call state and is safe for concurrent use.
type Engine struct {
	catalogue Catalogue
	now       func() time.Time
	newID     func() string
}

// New returns an Engine that resolves options through c. A nil catalogue is
// allowed; every option is then unresolvable and scores degrade to zero.
func New(c Catalogue) *Engine {
	return &Engine{
		catalogue: c,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// tally accumulates one style's points during a single scoring call.
type tally struct {
	style           types.StyleTag
	canonical       int
	points          int
	firstOrderIndex int
}

// ranksBefore orders tallies by points descending, then by the earliest first
// selection, then by canonical declaration order.
func ranksBefore(a, b tally) bool {
	if a.points != b.points {
		return a.points > b.points
	}
	if a.firstOrderIndex != b.firstOrderIndex {
		return a.firstOrderIndex < b.firstOrderIndex
	}
	return a.canonical < b.canonical
}

// CalculateStyleScores returns one StyleScore per known style, ranked.
//
// Each resolvable selection is worth one point. Ties are broken in favour of
// the style whose first selection came earliest in the response sequence.
// With no resolvable selections every style scores zero and ranks follow the
// canonical declaration order.
func (e *Engine) CalculateStyleScores(responses []types.QuizResponse) []StyleScore {
	tallies := make([]tally, 0, types.StyleCount())
	for i, s := range types.AllStyles() {
		tallies = append(tallies, tally{style: s, canonical: i, firstOrderIndex: unsetOrder})
	}

	stride := strideFor(responses)
	total := 0
	for ri, resp := range responses {
		for si, optionID := range resp.SelectedOptionIDs {
			style, ok := e.resolve(resp.QuestionID, optionID)
			if !ok {
				continue
			}
			idx, _ := style.Index()
			t := &tallies[idx]
			t.points++
			total++
			if t.firstOrderIndex == unsetOrder {
				t.firstOrderIndex = ri*stride + si
			}
		}
	}

	if total > 0 {
		sort.SliceStable(tallies, func(i, j int) bool {
			return ranksBefore(tallies[i], tallies[j])
		})
	}

	out := make([]StyleScore, len(tallies))
	for i, t := range tallies {
		out[i] = StyleScore{
			Style:      t.style,
			Points:     t.points,
			Percentage: percentage(t.points, total),
			Rank:       i + 1,
		}
	}
	return out
}

// DetermineResult scores responses and builds a fresh QuizResult.
//
// The rank-1 style is always reported as predominant, even when nothing
// scored. Complementary styles are ranks 2 and 3 restricted to styles with at
// least one point.
func (e *Engine) DetermineResult(responses []types.QuizResponse, participantName string) QuizResult {
	scores := e.CalculateStyleScores(responses)

	complementary := make([]StyleScore, 0, complementaryCount)
	for _, s := range scores[1 : 1+complementaryCount] {
		if s.Points > 0 {
			complementary = append(complementary, s)
		}
	}

	snapshot := make([]types.QuizResponse, len(responses))
	for i, r := range responses {
		snapshot[i] = r.Clone()
	}

	return QuizResult{
		ID:                     e.newID(),
		ParticipantName:        participantName,
		Responses:              snapshot,
		StyleScores:            scores,
		PredominantStyle:       scores[0],
		ComplementaryStyles:    complementary,
		TotalQuestionsExpected: len(e.scoringQuestions()),
		CalculatedAt:           e.now(),
	}
}

// ValidateCompleteness reports whether every scoring-eligible question has at
// least one response.
func (e *Engine) ValidateCompleteness(responses []types.QuizResponse) bool {
	return len(e.MissingQuestions(responses)) == 0
}

// MissingQuestions returns the scoring-eligible question ids that have no
// response, in catalogue order.
func (e *Engine) MissingQuestions(responses []types.QuizResponse) []string {
	answered := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		answered[r.QuestionID] = struct{}{}
	}
	var missing []string
	for _, id := range e.scoringQuestions() {
		if _, ok := answered[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// ProcessSelections turns a raw multi-select answer into a QuizResponse and
// reports the styles the selections resolve to, in selection order.
// Unresolvable options are kept in the response but award no style.
func (e *Engine) ProcessSelections(questionID string, optionIDs []string, at time.Time) (types.QuizResponse, []types.StyleTag) {
	resp := types.QuizResponse{
		QuestionID:        questionID,
		SelectedOptionIDs: append([]string(nil), optionIDs...),
		Timestamp:         at,
	}
	styles := make([]types.StyleTag, 0, len(optionIDs))
	for _, id := range optionIDs {
		if s, ok := e.resolve(questionID, id); ok {
			styles = append(styles, s)
		}
	}
	return resp, styles
}

// resolve looks an option up and rejects anything outside the closed
// enumeration.
func (e *Engine) resolve(questionID, optionID string) (types.StyleTag, bool) {
	if e.catalogue == nil {
		return "", false
	}
	s, ok := e.catalogue.ResolveOption(questionID, optionID)
	if !ok || !s.Valid() {
		return "", false
	}
	return s, true
}

func (e *Engine) scoringQuestions() []string {
	if e.catalogue == nil {
		return nil
	}
	return e.catalogue.ScoringQuestionIDs()
}

// strideFor returns the ordinal stride for a call: ordinalStride, or the
// longest selection list when that is larger.
func strideFor(responses []types.QuizResponse) int {
	stride := ordinalStride
	for _, r := range responses {
		if n := len(r.SelectedOptionIDs); n > stride {
			stride = n
		}
	}
	return stride
}

// percentage rounds points/total*100 half away from zero.
func percentage(points, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(points) / float64(total) * 100))
}
