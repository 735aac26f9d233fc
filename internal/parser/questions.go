package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// ErrNotQuestionList is returned when a parser response holds no question array.
var ErrNotQuestionList = errors.New("expected a JSON array of questions")

type rawQuestion struct {
	Number  any               `json:"question_number"`
	Text    string            `json:"question_text"`
	Options map[string]string `json:"options"`
}

// ParseQuestionsJSON normalizes the output of the external question parser.
// It accepts a bare array or an object wrapping one (e.g. {"questions": [...]}).
// Numbers may be JSON numbers or numeric strings; missing, unparseable and
// non-positive numbers default to the 1-based position. Missing options are empty.
func ParseQuestionsJSON(raw string) ([]attempt.Question, error) {
	cleaned := CleanJSON(raw)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		found := false
		for _, v := range wrapper {
			if json.Unmarshal(v, &items) == nil {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotQuestionList
		}
	}

	questions := make([]attempt.Question, 0, len(items))
	for i, item := range items {
		var rq rawQuestion
		if err := json.Unmarshal(item, &rq); err != nil {
			continue
		}
		number, ok := questionNumber(rq.Number)
		if !ok {
			number = i + 1
		}
		questions = append(questions, attempt.Question{
			Number: number,
			Text:   rq.Text,
			Options: attempt.Options{
				A: rq.Options["A"],
				B: rq.Options["B"],
				C: rq.Options["C"],
				D: rq.Options["D"],
			},
		})
	}
	return questions, nil
}

func questionNumber(v any) (int, bool) {
	var n int
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	return n, n > 0
}
