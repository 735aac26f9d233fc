package websocket

import "github.com/stemsi/paperquiz-backend/internal/attempt"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionGoTo       Action = "goto"
	ActionSelect     Action = "select"
	ActionSaveNext   Action = "save_next"
	ActionSaveReview Action = "save_review"
	ActionReviewNext Action = "review_next"
	ActionClear      Action = "clear"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// Request is any client message. Index is read by goto; Question and
// Answer are read by select.
type Request struct {
	Action   Action `json:"action"`
	Index    *int   `json:"index,omitempty"`
	Question int    `json:"q,omitempty"`
	Answer   string `json:"ans,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventSubmitted Event = "submitted"
	EventClosed    Event = "closed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the full presentation state after every action.
// Questions is only set on the first state event of a connection.
type StateResponse struct {
	Event     Event              `json:"event"`
	State     attempt.Snapshot   `json:"state"`
	Questions []attempt.Question `json:"questions,omitempty"`
}

type TickResponse struct {
	Event                Event  `json:"event"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	TimeRemaining        string `json:"time_remaining"`
	TimeCritical         bool   `json:"time_critical"`
	TimeWarning          bool   `json:"time_warning"`
}

type SubmittedResponse struct {
	Event     Event           `json:"event"`
	AttemptID string          `json:"attempt_id,omitempty"`
	Trigger   attempt.Trigger `json:"trigger"`
	Answered  int             `json:"answered"`
	Error     string          `json:"error,omitempty"`
}

type ClosedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewTickResponse builds a tick event for the given remaining seconds.
func NewTickResponse(remaining int) TickResponse {
	return TickResponse{
		Event:                EventTick,
		TimeRemainingSeconds: remaining,
		TimeRemaining:        attempt.FormatRemaining(remaining),
		TimeCritical:         remaining <= attempt.CriticalSeconds,
		TimeWarning:          remaining <= attempt.WarningSeconds,
	}
}

// NewSubmittedResponse builds a submitted event from a submission result.
func NewSubmittedResponse(res attempt.Result) SubmittedResponse {
	out := SubmittedResponse{
		Event:     EventSubmitted,
		AttemptID: res.AttemptID,
		Trigger:   res.Trigger,
		Answered:  len(res.Answers),
	}
	if res.Err != nil {
		out.Error = "attempt could not be saved"
	}
	return out
}
