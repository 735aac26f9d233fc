package grading

import (
	"math"
	"sort"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

// Detail is the per-question line of a graded attempt.
type Detail struct {
	Question  int             `json:"q"`
	User      *attempt.Choice `json:"user"`
	Correct   attempt.Choice  `json:"correct"`
	IsCorrect bool            `json:"is_correct"`
}

// Result is a graded attempt.
type Result struct {
	Score      int      `json:"score"`
	Total      int      `json:"total"`
	Percentage float64  `json:"percentage"`
	Details    []Detail `json:"details"`
}

// Grade compares user answers against the answer key. Only questions present
// in the key count towards the total; unanswered questions score zero.
func Grade(answers map[int]attempt.Choice, key map[int]attempt.Choice) Result {
	numbers := make([]int, 0, len(key))
	for n := range key {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	res := Result{
		Total:   len(numbers),
		Details: make([]Detail, 0, len(numbers)),
	}
	for _, n := range numbers {
		correct := key[n]
		d := Detail{Question: n, Correct: correct}
		if user, ok := answers[n]; ok && user != "" {
			u := user
			d.User = &u
			d.IsCorrect = user == correct
		}
		if d.IsCorrect {
			res.Score++
		}
		res.Details = append(res.Details, d)
	}

	if res.Total > 0 {
		res.Percentage = math.Round(float64(res.Score)/float64(res.Total)*1000) / 10
	}
	return res
}
