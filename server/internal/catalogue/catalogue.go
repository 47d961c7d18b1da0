package catalogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

// Question types. Strategic questions branch the funnel and never score.
const (
	TypeNormal    = "normal"
	TypeImage     = "image"
	TypeStrategic = "strategic"
)

// defaultMaxSelections applies when a question omits max_selections.
const defaultMaxSelections = 1

// Selection validation errors returned by ValidateSelection.
var (
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrUnknownOption     = errors.New("unknown option")
	ErrDuplicateOption   = errors.New("option selected more than once")
	ErrTooManySelections = errors.New("too many selections")
	ErrNoSelection       = errors.New("no option selected")
)

//go:embed default_catalogue.yaml
var defaultYAML []byte

// Option is one selectable answer. Style may be empty for options that do not
// award any style. Weight is carried for display; scoring ignores it.
type Option struct {
	ID     string         `yaml:"id" json:"id"`
	Text   string         `yaml:"text" json:"text"`
	Style  types.StyleTag `yaml:"style" json:"style,omitempty"`
	Weight float64        `yaml:"weight" json:"weight,omitempty"`
}

// Question is one catalogue entry.
type Question struct {
	ID            string   `yaml:"id" json:"id"`
	Order         int      `yaml:"order" json:"order"`
	Text          string   `yaml:"question" json:"question"`
	Type          string   `yaml:"type" json:"type"`
	MaxSelections int      `yaml:"max_selections" json:"max_selections"`
	Options       []Option `yaml:"options" json:"options"`
}

// ScoringEligible reports whether answers to q count towards the style result.
func (q Question) ScoringEligible() bool {
	return q.Type != TypeStrategic
}

type file struct {
	Questions []Question `yaml:"questions"`
}

// Catalogue is an immutable, validated set of questions. It is safe for
// concurrent use; reloading builds a new Catalogue.
type Catalogue struct {
	questions []Question
	byID      map[string]int
	styles    map[string]map[string]types.StyleTag
}

// New validates questions and builds a Catalogue ordered by Order, then ID.
func New(questions []Question) (*Catalogue, error) {
	qs := make([]Question, len(questions))
	copy(qs, questions)
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Order == qs[j].Order {
			return qs[i].ID < qs[j].ID
		}
		return qs[i].Order < qs[j].Order
	})

	c := &Catalogue{
		questions: qs,
		byID:      make(map[string]int, len(qs)),
		styles:    make(map[string]map[string]types.StyleTag, len(qs)),
	}
	for i := range qs {
		q := &qs[i]
		if q.ID == "" {
			return nil, fmt.Errorf("questions[%d]: id is required", i)
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("question %q: duplicate id", q.ID)
		}
		switch q.Type {
		case "":
			q.Type = TypeNormal
		case TypeNormal, TypeImage, TypeStrategic:
		default:
			return nil, fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
		}
		if q.MaxSelections < 0 {
			return nil, fmt.Errorf("question %q: max_selections must not be negative", q.ID)
		}
		if q.MaxSelections == 0 {
			q.MaxSelections = defaultMaxSelections
		}
		q.Options = append([]Option(nil), q.Options...)

		opts := make(map[string]types.StyleTag, len(q.Options))
		for j, o := range q.Options {
			if o.ID == "" {
				return nil, fmt.Errorf("question %q options[%d]: id is required", q.ID, j)
			}
			if _, dup := opts[o.ID]; dup {
				return nil, fmt.Errorf("question %q option %q: duplicate id", q.ID, o.ID)
			}
			if o.Style != "" && !o.Style.Valid() {
				return nil, fmt.Errorf("question %q option %q: unknown style %q", q.ID, o.ID, o.Style)
			}
			opts[o.ID] = o.Style
		}
		c.byID[q.ID] = i
		c.styles[q.ID] = opts
	}
	return c, nil
}

// Parse decodes a YAML catalogue document.
func Parse(data []byte) (*Catalogue, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalogue: parse yaml: %w", err)
	}
	c, err := New(f.Questions)
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	return c, nil
}

// Load reads and validates the YAML catalogue at path.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read %q: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalogue.
func Default() *Catalogue {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalogue is invalid: %v", err))
	}
	return c
}

// ResolveOption maps an option of a question to its style. It returns false
// for unknown questions, unknown options and options without a style.
func (c *Catalogue) ResolveOption(questionID, optionID string) (types.StyleTag, bool) {
	opts, ok := c.styles[questionID]
	if !ok {
		return "", false
	}
	s, ok := opts[optionID]
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ScoringQuestionIDs returns the ids of every scoring-eligible question in
// catalogue order.
func (c *Catalogue) ScoringQuestionIDs() []string {
	out := make([]string, 0, len(c.questions))
	for _, q := range c.questions {
		if q.ScoringEligible() {
			out = append(out, q.ID)
		}
	}
	return out
}

// Questions returns a copy of all questions in catalogue order.
func (c *Catalogue) Questions() []Question {
	out := make([]Question, len(c.questions))
	for i, q := range c.questions {
		q.Options = append([]Option(nil), q.Options...)
		out[i] = q
	}
	return out
}

// Question looks up a single question by id.
func (c *Catalogue) Question(id string) (Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Question{}, false
	}
	q := c.questions[i]
	q.Options = append([]Option(nil), q.Options...)
	return q, true
}

// Len returns the number of questions.
func (c *Catalogue) Len() int { return len(c.questions) }

// ValidateSelection checks a response against its question: the question must
// exist, at least one option must be picked, options must belong to the
// question, appear once, and not exceed the question's selection cap.
//
// Scoring never calls this; it exists for intake paths that want to reject
// malformed answers before they reach a response set.
func (c *Catalogue) ValidateSelection(r types.QuizResponse) error {
	i, ok := c.byID[r.QuestionID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, r.QuestionID)
	}
	q := c.questions[i]
	if len(r.SelectedOptionIDs) == 0 {
		return fmt.Errorf("question %q: %w", q.ID, ErrNoSelection)
	}
	if len(r.SelectedOptionIDs) > q.MaxSelections {
		return fmt.Errorf("question %q: %w (%d > %d)",
			q.ID, ErrTooManySelections, len(r.SelectedOptionIDs), q.MaxSelections)
	}
	seen := make(map[string]struct{}, len(r.SelectedOptionIDs))
	opts := c.styles[q.ID]
	for _, id := range r.SelectedOptionIDs {
		if _, ok := opts[id]; !ok {
			return fmt.Errorf("question %q: %w %q", q.ID, ErrUnknownOption, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("question %q: %w: %q", q.ID, ErrDuplicateOption, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
