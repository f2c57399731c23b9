// Package session implements the grading engine: per-review session state,
// the weighted scoring rules, and the phase machine that drives a live
// grading session from first question to finalized report.
package session

import (
	"reviewdeck/internal/model"
)

// Languages selectable in the practical editor panel.
const (
	LanguageC    = "c"
	LanguageJava = "java"
)

const cTemplate = "#include <stdio.h>\n\nint main() {\n    printf(\"Hello World\\n\");\n    return 0;\n}"

const javaTemplate = "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello World\");\n    }\n}"

// CodeTemplate returns the starter buffer for a language.
func CodeTemplate(language string) string {
	if language == LanguageJava {
		return javaTemplate
	}
	return cTemplate
}

// QuestionResult is the proctor's judgement of one question within a session.
// At most one result exists per question id; later judgements replace earlier
// ones.
type QuestionResult struct {
	QuestionID int64           `json:"questionId"`
	Status     model.Judgement `json:"status"`
	Score      int             `json:"score"`
}

// State is the transient working state of one review-in-progress. Its JSON
// encoding is the session snapshot used for resumption and cross-device
// mirroring.
type State struct {
	CurrentIndex  int              `json:"currentIndex"`
	Results       []QuestionResult `json:"results"`
	PracticalMark float64          `json:"practicalMark"`
	PracticalLink string           `json:"practicalLink"`
	Seconds       int              `json:"seconds"`
	Notes         string           `json:"notes"`
	Language      string           `json:"language"`
	Code          string           `json:"code"`
	IsPaused      bool             `json:"isPaused"`
}

// DefaultState returns the zero-valued session state for a fresh session.
func DefaultState() State {
	return State{
		Results:  []QuestionResult{},
		Language: LanguageC,
		Code:     CodeTemplate(LanguageC),
	}
}

// Clone returns a deep copy safe to hand outside the machine's lock.
func (st State) Clone() State {
	out := st
	out.Results = make([]QuestionResult, len(st.Results))
	copy(out.Results, st.Results)
	return out
}

// Result returns the recorded judgement for a question, if any.
func (st State) Result(questionID int64) (QuestionResult, bool) {
	for _, r := range st.Results {
		if r.QuestionID == questionID {
			return r, true
		}
	}
	return QuestionResult{}, false
}

// normalize clamps loaded values into their legal ranges so a stale or
// hand-edited snapshot can never produce an invalid session.
func (st *State) normalize(questionCount int) {
	if st.CurrentIndex < 0 {
		st.CurrentIndex = 0
	}
	if questionCount > 0 && st.CurrentIndex > questionCount-1 {
		st.CurrentIndex = questionCount - 1
	}
	if questionCount == 0 {
		st.CurrentIndex = 0
	}
	if st.Seconds < 0 {
		st.Seconds = 0
	}
	if st.PracticalMark < 0 {
		st.PracticalMark = 0
	}
	if st.PracticalMark > 10 {
		st.PracticalMark = 10
	}
	if st.Language != LanguageC && st.Language != LanguageJava {
		st.Language = LanguageC
	}
	if st.Code == "" {
		st.Code = CodeTemplate(st.Language)
	}
	if st.Results == nil {
		st.Results = []QuestionResult{}
	}
}
