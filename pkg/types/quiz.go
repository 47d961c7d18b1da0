package types

import "time"

// QuizResponse is one participant's answer to one question.
// SelectedOptionIDs keeps the order in which the options were picked.
type QuizResponse struct {
	QuestionID        string    `json:"question_id"`
	SelectedOptionIDs []string  `json:"selected_option_ids"`
	Timestamp         time.Time `json:"timestamp"`
}

// Clone returns a deep copy of r.
func (r QuizResponse) Clone() QuizResponse {
	out := r
	if r.SelectedOptionIDs != nil {
		out.SelectedOptionIDs = append([]string(nil), r.SelectedOptionIDs...)
	}
	return out
}

// ReplaceResponse returns a new response set where r replaces any earlier
// response to the same question. Position is preserved for a replaced answer;
// a first answer is appended. The input slice is not modified.
func ReplaceResponse(set []QuizResponse, r QuizResponse) []QuizResponse {
	out := make([]QuizResponse, 0, len(set)+1)
	replaced := false
	for _, existing := range set {
		if existing.QuestionID == r.QuestionID {
			if !replaced {
				out = append(out, r.Clone())
				replaced = true
			}
			continue
		}
		out = append(out, existing.Clone())
	}
	if !replaced {
		out = append(out, r.Clone())
	}
	return out
}
