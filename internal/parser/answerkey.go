package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// MaxKeyQuestion bounds question numbers accepted by the regex extractor.
const MaxKeyQuestion = 300

// ErrEmptyAnswerKey is returned when no question-answer pair was found.
var ErrEmptyAnswerKey = errors.New("no answers found in answer key")

var answerKeyPatterns = []*regexp.Regexp{
	// "1. B", "1) B", "1: B", "1 - B", "Q1: B", "1. (B)", "1) [B]"
	regexp.MustCompile(`(?:Q\.?\s*)?(\d+)\s*[.):\-]\s*[(\[]?([A-Da-d])[)\]]?`),
	// "1 B", "Q.1 B"
	regexp.MustCompile(`(\d+)\s+([A-Da-d])\b`),
}

// ParseAnswerKeyText extracts question-answer pairs from answer-key text.
// Later patterns override earlier ones for the same question number.
func ParseAnswerKeyText(text string) map[int]attempt.Choice {
	answers := make(map[int]attempt.Choice)
	for _, re := range answerKeyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > MaxKeyQuestion {
				continue
			}
			answers[n] = attempt.Choice(strings.ToUpper(m[2]))
		}
	}
	return answers
}

// ParseAnswerKeyJSON reads a {"1": "B", ...} object, tolerating fences and
// prose around it. Non-numeric keys and values outside A-D are dropped.
func ParseAnswerKeyJSON(raw string) (map[int]attempt.Choice, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &obj); err != nil {
		return nil, fmt.Errorf("decode answer key: %w", err)
	}

	answers := make(map[int]attempt.Choice, len(obj))
	for k, v := range obj {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if c, ok := attempt.ParseChoice(s); ok {
			answers[n] = c
		}
	}
	return answers, nil
}

// ParseAnswerKey tries the JSON form first and falls back to regex
// extraction over the raw text.
func ParseAnswerKey(raw string) (map[int]attempt.Choice, error) {
	if answers, err := ParseAnswerKeyJSON(raw); err == nil && len(answers) > 0 {
		return answers, nil
	}
	answers := ParseAnswerKeyText(raw)
	if len(answers) == 0 {
		return nil, ErrEmptyAnswerKey
	}
	return answers, nil
}
