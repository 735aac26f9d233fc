package grading

import (
	"testing"

	"github.com/stemsi/paperquiz-backend/internal/attempt"
)

func TestGrade(t *testing.T) {
	key := map[int]attempt.Choice{1: "B", 2: "A", 3: "C"}

	tests := []struct {
		name       string
		answers    map[int]attempt.Choice
		score      int
		percentage float64
	}{
		{name: "all correct", answers: map[int]attempt.Choice{1: "B", 2: "A", 3: "C"}, score: 3, percentage: 100},
		{name: "one of three", answers: map[int]attempt.Choice{1: "B", 2: "C"}, score: 1, percentage: 33.3},
		{name: "two of three", answers: map[int]attempt.Choice{1: "B", 3: "C"}, score: 2, percentage: 66.7},
		{name: "nothing answered", answers: nil, score: 0, percentage: 0},
		{name: "answers outside key ignored", answers: map[int]attempt.Choice{9: "A"}, score: 0, percentage: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Grade(tc.answers, key)
			if got.Score != tc.score || got.Total != 3 || got.Percentage != tc.percentage {
				t.Fatalf("Grade = score %d total %d pct %v, want %d/3 %v", got.Score, got.Total, got.Percentage, tc.score, tc.percentage)
			}
		})
	}
}

func TestGradeDetailsSortedByQuestion(t *testing.T) {
	key := map[int]attempt.Choice{10: "A", 2: "B", 1: "C"}
	got := Grade(map[int]attempt.Choice{2: "B", 10: "D"}, key)

	wantOrder := []int{1, 2, 10}
	for i, n := range wantOrder {
		if got.Details[i].Question != n {
			t.Fatalf("Details[%d].Question = %d, want %d", i, got.Details[i].Question, n)
		}
	}
	if got.Details[0].User != nil || got.Details[0].IsCorrect {
		t.Fatalf("unanswered detail = %+v", got.Details[0])
	}
	if !got.Details[1].IsCorrect {
		t.Fatalf("question 2 should be correct")
	}
	if got.Details[2].IsCorrect || *got.Details[2].User != "D" {
		t.Fatalf("question 10 detail = %+v", got.Details[2])
	}
}

func TestGradeEmptyKey(t *testing.T) {
	got := Grade(map[int]attempt.Choice{1: "A"}, nil)
	if got.Total != 0 || got.Percentage != 0 || len(got.Details) != 0 {
		t.Fatalf("Grade with empty key = %+v", got)
	}
}
