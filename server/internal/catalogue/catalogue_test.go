package catalogue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if c.Len() != 12 {
		t.Fatalf("Len = %d, want 12", c.Len())
	}
	ids := c.ScoringQuestionIDs()
	if len(ids) != 10 {
		t.Fatalf("ScoringQuestionIDs: got %d, want 10 (strategic questions excluded)", len(ids))
	}
	if ids[0] != "q1" || ids[9] != "q10" {
		t.Errorf("ScoringQuestionIDs order: got %v", ids)
	}
}

func TestResolveOption(t *testing.T) {
	c := Default()
	tests := []struct {
		name     string
		q, o     string
		want     types.StyleTag
		resolved bool
	}{
		{"known option", "q1", "opt1_2", types.StyleNatural, true},
		{"strategic option still resolves", "sq1", "sq1_3", types.StyleCriativo, true},
		{"unknown option", "q1", "opt9_9", "", false},
		{"option of another question", "q1", "opt2_1", "", false},
		{"unknown question", "nope", "opt1_1", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.ResolveOption(tc.q, tc.o)
			if ok != tc.resolved || got != tc.want {
				t.Errorf("ResolveOption(%q,%q) = (%q,%v), want (%q,%v)",
					tc.q, tc.o, got, ok, tc.want, tc.resolved)
			}
		})
	}
}

func TestNew_OptionWithoutStyle(t *testing.T) {
	c, err := New([]Question{{
		ID:      "q1",
		Options: []Option{{ID: "a"}, {ID: "b", Style: types.StyleSensual}},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.ResolveOption("q1", "a"); ok {
		t.Error("option without style should not resolve")
	}
	q, _ := c.Question("q1")
	if q.Type != TypeNormal || q.MaxSelections != defaultMaxSelections {
		t.Errorf("defaults not applied: %+v", q)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		qs   []Question
	}{
		{"missing id", []Question{{Options: []Option{{ID: "a"}}}}},
		{"duplicate question", []Question{{ID: "q"}, {ID: "q"}}},
		{"unknown type", []Question{{ID: "q", Type: "quiz"}}},
		{"negative cap", []Question{{ID: "q", MaxSelections: -1}}},
		{"duplicate option", []Question{{ID: "q", Options: []Option{{ID: "a"}, {ID: "a"}}}}},
		{"unknown style", []Question{{ID: "q", Options: []Option{{ID: "a", Style: "gothic"}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.qs); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidateSelection(t *testing.T) {
	c := Default()
	tests := []struct {
		name string
		r    types.QuizResponse
		want error
	}{
		{"ok multi", types.QuizResponse{QuestionID: "q1", SelectedOptionIDs: []string{"opt1_1", "opt1_3"}}, nil},
		{"unknown question", types.QuizResponse{QuestionID: "zz", SelectedOptionIDs: []string{"a"}}, ErrUnknownQuestion},
		{"empty", types.QuizResponse{QuestionID: "q1"}, ErrNoSelection},
		{"unknown option", types.QuizResponse{QuestionID: "q1", SelectedOptionIDs: []string{"x"}}, ErrUnknownOption},
		{"duplicate", types.QuizResponse{QuestionID: "q1", SelectedOptionIDs: []string{"opt1_1", "opt1_1"}}, ErrDuplicateOption},
		{"strategic cap", types.QuizResponse{QuestionID: "sq1", SelectedOptionIDs: []string{"sq1_1", "sq1_2"}}, ErrTooManySelections},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := c.ValidateSelection(tc.r)
			if tc.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "questions.yaml")
	content := `questions:
  - id: b
    order: 2
    options:
      - {id: b1, style: natural}
  - id: a
    order: 1
    type: strategic
    options:
      - {id: a1, style: classico}
`
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	qs := c.Questions()
	if qs[0].ID != "a" || qs[1].ID != "b" {
		t.Errorf("questions not ordered by order: %v, %v", qs[0].ID, qs[1].ID)
	}
	if ids := c.ScoringQuestionIDs(); len(ids) != 1 || ids[0] != "b" {
		t.Errorf("ScoringQuestionIDs = %v, want [b]", ids)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	p := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(p, []byte("questions: [::"), 0o600) //nolint:errcheck
	if _, err := Load(p); err == nil {
		t.Error("bad yaml: expected error")
	}
}
