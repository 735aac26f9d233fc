package model

import (
	"encoding/json"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// QuestionInput is one structured question as produced by the paper parser.
type QuestionInput struct {
	Number        int             `json:"question_number" binding:"min=0,max=1000"`
	Text          string          `json:"question_text" binding:"required,max=4000"`
	Options       attempt.Options `json:"options"`
	CorrectOption string          `json:"correct_option" binding:"omitempty,choice"`
}

// IngestQuestionsRequest replaces all questions of a quiz. Either Questions
// or Raw is set; Raw holds unstructured parser output that may be wrapped in
// code fences or prose.
type IngestQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"omitempty,dive"`
	Raw       string          `json:"raw" binding:"omitempty,max=2000000"`
}

// ToQuestions numbers unnumbered entries by position and normalizes choices.
func (r *IngestQuestionsRequest) ToQuestions() []attempt.Question {
	out := make([]attempt.Question, 0, len(r.Questions))
	for i, in := range r.Questions {
		q := attempt.Question{
			Number:  in.Number,
			Text:    in.Text,
			Options: in.Options,
		}
		if q.Number <= 0 {
			q.Number = i + 1
		}
		if c, ok := attempt.ParseChoice(in.CorrectOption); ok {
			q.CorrectOption = &c
		}
		out = append(out, q)
	}
	return out
}

// AnswerKeyRequest carries an answer key either as a question-number → option
// map or as raw text such as "1. B 2) C 3: A".
type AnswerKeyRequest struct {
	Key  map[string]string `json:"key"`
	Text string            `json:"text" binding:"omitempty,max=200000"`
}

// AnswerKeyRaw returns the request as the raw input of the answer-key parser.
func (r *AnswerKeyRequest) AnswerKeyRaw() string {
	if len(r.Key) > 0 {
		b, _ := json.Marshal(r.Key)
		return string(b)
	}
	return r.Text
}

// AnswerKeyResult reports what applying an answer key did.
type AnswerKeyResult struct {
	KeyEntries       int `json:"key_entries"`
	MatchedQuestions int `json:"matched_questions"`
	GradedAttempts   int `json:"graded_attempts"`
}
