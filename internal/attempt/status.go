package attempt

import "fmt"

// State enumerates the lifecycle of an attempt controller.
type State string

const (
	StateLoading     State = "LOADING"
	StateInProgress  State = "IN_PROGRESS"
	StateNoQuestions State = "NO_QUESTIONS"
	StateSubmitted   State = "SUBMITTED"
	StateClosed      State = "CLOSED"
)

// Status is the per-question label shown in the question palette.
type Status string

const (
	StatusNotVisited  Status = "not-visited"
	StatusNotAnswered Status = "not-answered"
	StatusAnswered    Status = "answered"
	StatusReview      Status = "review"
)

const (
	// CriticalSeconds and WarningSeconds are the remaining-time thresholds for
	// presentational treatment of the countdown.
	CriticalSeconds = 60
	WarningSeconds  = 300
)

// deriveStatus applies the palette precedence: review, answered, visited.
func deriveStatus(marked, answered, visited bool) Status {
	switch {
	case marked:
		return StatusReview
	case answered:
		return StatusAnswered
	case visited:
		return StatusNotAnswered
	default:
		return StatusNotVisited
	}
}

// Counts aggregates the palette buckets.
type Counts struct {
	Answered    int `json:"answered"`
	NotAnswered int `json:"not_answered"`
	NotVisited  int `json:"not_visited"`
	Review      int `json:"review"`
}

// computeCounts derives the display buckets. NotAnswered is clamped at zero:
// a question can be visited and marked for review at the same time, which the
// subtraction would otherwise count twice.
func computeCounts(total, visited, answered, review int) Counts {
	notAnswered := visited - answered - review
	if notAnswered < 0 {
		notAnswered = 0
	}
	return Counts{
		Answered:    answered,
		NotAnswered: notAnswered,
		NotVisited:  total - visited,
		Review:      review,
	}
}

// FormatRemaining renders seconds as MM:SS. Minutes are not wrapped into hours.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
