package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimerMinutes is used when a quiz carries no positive duration.
	DefaultTimerMinutes = 30

	defaultSubmitTimeout = 10 * time.Second
)

// Controller errors.
var (
	ErrLoadFailed       = errors.New("question set could not be loaded")
	ErrAlreadyLoaded    = errors.New("attempt already loaded")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrNotInProgress    = errors.New("attempt is not in progress")
)

// Loader supplies the question set and timer duration of a quiz.
type Loader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]Question, int, error)
}

// Sink persists a finished attempt and returns its attempt identifier.
type Sink interface {
	Persist(ctx context.Context, sub Submission) (string, error)
}

// Identity is the authenticated user owning the attempt. Subscribe registers
// a callback for auth-state changes and returns a function that removes it.
type Identity interface {
	UserID() string
	Subscribe(fn func(signedIn bool)) (unsubscribe func())
}

// Submission is the single event handed to the Sink.
type Submission struct {
	QuizID         string         `json:"quiz_id"`
	UserID         string         `json:"user_id"`
	Answers        map[int]Choice `json:"answers"`
	TotalQuestions int            `json:"total_questions"`
	Trigger        Trigger        `json:"trigger"`
}

// Trigger tells what caused a submission.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

// Result is the outcome of the one submission of an attempt. Err is set when
// the sink failed; the attempt stays submitted regardless.
type Result struct {
	AttemptID string         `json:"attempt_id,omitempty"`
	Answers   map[int]Choice `json:"answers"`
	Trigger   Trigger        `json:"trigger"`
	Err       error          `json:"-"`
}

// Hooks are invoked outside the controller lock and must not call back into
// the controller synchronously.
type Hooks struct {
	// OnAnswer reports an answer change; choice is empty when cleared.
	OnAnswer func(number int, choice Choice)
	// OnTick reports the remaining seconds after each timer tick.
	OnTick func(remaining int)
	// OnSubmitted fires once, after the sink returned.
	OnSubmitted func(Result)
	// OnClosed fires when the attempt is torn down without submission.
	OnClosed func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithTicker replaces the one-second ticker factory.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = fn }
}

// WithLogger sets the controller's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithHooks registers event hooks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithResume seeds the attempt with autosaved answers and the time already
// spent, so a reconnect continues the countdown.
func WithResume(answers map[int]Choice, elapsed time.Duration) Option {
	return func(c *Controller) {
		c.resumeAnswers = answers
		c.resumeElapsed = elapsed
	}
}

// WithSubmitTimeout bounds the sink call made on timer expiry.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.submitTimeout = d }
}

// Controller owns the in-memory state of one quiz-taking session. Every
// handler runs atomically under mu.
type Controller struct {
	mu sync.Mutex

	quizID        string
	identity      Identity
	sink          Sink
	log           zerolog.Logger
	hooks         Hooks
	newTicker     func(time.Duration) Ticker
	submitTimeout time.Duration
	resumeAnswers map[int]Choice
	resumeElapsed time.Duration

	state     State
	questions []Question
	byNumber  map[int]int
	answers   map[int]Choice
	current   int
	visited   map[int]struct{}
	review    map[int]struct{}
	remaining int
	attemptID string
	submitErr error

	ticker      Ticker
	stopTick    chan struct{}
	unsubscribe func()
}

// New creates a controller in the Loading state. identity may be nil when no
// auth-state subscription is wanted.
func New(quizID string, identity Identity, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		quizID:        quizID,
		identity:      identity,
		sink:          sink,
		log:           zerolog.Nop(),
		newTicker:     NewRealTicker,
		submitTimeout: defaultSubmitTimeout,
		state:         StateLoading,
		answers:       make(map[int]Choice),
		visited:       make(map[int]struct{}),
		review:        make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if identity != nil {
		c.unsubscribe = identity.Subscribe(func(signedIn bool) {
			if !signedIn {
				c.log.Info().Msg("Identity signed out, closing attempt")
				c.Close()
			}
		})
	}
	return c
}

// QuizID returns the quiz this attempt belongs to.
func (c *Controller) QuizID() string { return c.quizID }

// UserID returns the owner of the attempt, or "" without identity.
func (c *Controller) UserID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.UserID()
}

// Load fetches the question set and enters InProgress, or NoQuestions when
// the set is empty or the loader failed.
func (c *Controller) Load(ctx context.Context, loader Loader) error {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.mu.Unlock()

	questions, minutes, loadErr := loader.LoadQuestions(ctx, c.quizID)

	c.mu.Lock()
	if c.state != StateLoading {
		// Closed while the load was pending.
		c.mu.Unlock()
		return ErrNotInProgress
	}
	if loadErr != nil {
		c.state = StateNoQuestions
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrLoadFailed, loadErr)
	}
	if len(questions) == 0 {
		c.state = StateNoQuestions
		c.mu.Unlock()
		c.log.Info().Str("quiz_id", c.quizID).Msg("Quiz has no questions")
		return nil
	}

	c.questions = make([]Question, len(questions))
	copy(c.questions, questions)
	c.byNumber = make(map[int]int, len(questions))
	for i, q := range c.questions {
		if _, dup := c.byNumber[q.Number]; !dup {
			c.byNumber[q.Number] = i
		}
	}

	if minutes <= 0 {
		minutes = DefaultTimerMinutes
	}
	c.remaining = minutes*60 - int(c.resumeElapsed/time.Second)
	if c.remaining < 0 {
		c.remaining = 0
	}
	for number, choice := range c.resumeAnswers {
		if _, ok := c.byNumber[number]; ok && choice.Valid() {
			c.answers[number] = choice
		}
	}
	c.resumeAnswers = nil

	c.state = StateInProgress
	c.visitLocked(0)

	expired := c.remaining == 0
	var sub Submission
	if expired {
		sub, _ = c.beginSubmitLocked()
	} else {
		c.startTimerLocked()
	}
	c.mu.Unlock()

	c.log.Info().
		Str("quiz_id", c.quizID).
		Int("questions", len(questions)).
		Int("remaining_seconds", c.Remaining()).
		Msg("Attempt started")

	if expired {
		c.finishSubmit(ctx, sub, TriggerTimer)
	}
	return nil
}

// ─── Navigation & answers ──────────────────────────────────────────────────

// GoToQuestion moves to index and marks it visited. Out-of-range indices are
// ignored.
func (c *Controller) GoToQuestion(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress || index < 0 || index >= len(c.questions) {
		return false
	}
	c.visitLocked(index)
	return true
}

// SelectAnswer sets the answer of a question, or clears it when choice is
// already the stored answer.
func (c *Controller) SelectAnswer(number int, choice Choice) bool {
	c.mu.Lock()
	if c.state != StateInProgress || !choice.Valid() {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.byNumber[number]; !ok {
		c.mu.Unlock()
		return false
	}

	var next Choice
	if c.answers[number] == choice {
		delete(c.answers, number)
	} else {
		c.answers[number] = choice
		next = choice
	}
	hook := c.hooks.OnAnswer
	c.mu.Unlock()

	if hook != nil {
		hook(number, next)
	}
	return true
}

// SaveAndNext advances to the next question. It does not wrap.
func (c *Controller) SaveAndNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return false
	}
	return c.advanceLocked()
}

// SaveAndMarkForReview flags the current question and advances, keeping its
// answer.
func (c *Controller) SaveAndMarkForReview() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return false
	}
	c.review[c.current] = struct{}{}
	c.advanceLocked()
	return true
}

// MarkForReviewAndNext flags the current question, clears its answer and
// advances.
func (c *Controller) MarkForReviewAndNext() bool {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return false
	}
	c.review[c.current] = struct{}{}
	number, cleared := c.clearAnswerLocked()
	c.advanceLocked()
	hook := c.hooks.OnAnswer
	c.mu.Unlock()

	if cleared && hook != nil {
		hook(number, "")
	}
	return true
}

// ClearResponse removes the current answer and review flag.
func (c *Controller) ClearResponse() bool {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return false
	}
	delete(c.review, c.current)
	number, cleared := c.clearAnswerLocked()
	hook := c.hooks.OnAnswer
	c.mu.Unlock()

	if cleared && hook != nil {
		hook(number, "")
	}
	return true
}

func (c *Controller) visitLocked(index int) {
	c.current = index
	c.visited[index] = struct{}{}
}

func (c *Controller) advanceLocked() bool {
	if c.current >= len(c.questions)-1 {
		return false
	}
	c.visitLocked(c.current + 1)
	return true
}

func (c *Controller) clearAnswerLocked() (int, bool) {
	number := c.questions[c.current].Number
	_, had := c.answers[number]
	delete(c.answers, number)
	return number, had
}

// ─── Timer ─────────────────────────────────────────────────────────────────

func (c *Controller) startTimerLocked() {
	t := c.newTicker(time.Second)
	stop := make(chan struct{})
	c.ticker = t
	c.stopTick = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				c.Tick()
			}
		}
	}()
}

func (c *Controller) stopTimerLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stopTick)
	c.ticker = nil
	c.stopTick = nil
}

// Tick advances the countdown by one second and returns the remaining time.
// Reaching zero submits the attempt. Ticks outside InProgress are ignored.
func (c *Controller) Tick() int {
	c.mu.Lock()
	if c.state != StateInProgress {
		r := c.remaining
		c.mu.Unlock()
		return r
	}

	if c.remaining > 1 {
		c.remaining--
		r := c.remaining
		hook := c.hooks.OnTick
		c.mu.Unlock()
		if hook != nil {
			hook(r)
		}
		return r
	}

	c.remaining = 0
	sub, ok := c.beginSubmitLocked()
	hook := c.hooks.OnTick
	c.mu.Unlock()

	if ok {
		c.log.Info().Str("quiz_id", c.quizID).Msg("Time expired, submitting attempt")
		ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
		c.finishSubmit(ctx, sub, TriggerTimer)
		cancel()
	}
	if hook != nil {
		hook(0)
	}
	return 0
}

// ─── Submission & teardown ─────────────────────────────────────────────────

// Submit ends the attempt and hands the answers to the sink. Only the first
// call across manual and timer triggers reaches the sink.
func (c *Controller) Submit(ctx context.Context) (Result, error) {
	c.mu.Lock()
	sub, ok := c.beginSubmitLocked()
	state := c.state
	c.mu.Unlock()

	if !ok {
		if state == StateSubmitted {
			return Result{}, ErrAlreadySubmitted
		}
		return Result{}, ErrNotInProgress
	}
	return c.finishSubmit(ctx, sub, TriggerManual), nil
}

// beginSubmitLocked is the check-and-set guarding exactly-once submission.
func (c *Controller) beginSubmitLocked() (Submission, bool) {
	if c.state != StateInProgress {
		return Submission{}, false
	}
	c.state = StateSubmitted
	c.stopTimerLocked()

	final := make(map[int]Choice, len(c.answers))
	for k, v := range c.answers {
		final[k] = v
	}
	return Submission{
		QuizID:         c.quizID,
		UserID:         c.UserID(),
		Answers:        final,
		TotalQuestions: len(c.questions),
	}, true
}

func (c *Controller) finishSubmit(ctx context.Context, sub Submission, trigger Trigger) Result {
	c.dropSubscription()

	sub.Trigger = trigger
	attemptID, err := c.sink.Persist(ctx, sub)

	c.mu.Lock()
	c.attemptID = attemptID
	c.submitErr = err
	hook := c.hooks.OnSubmitted
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).
			Str("quiz_id", sub.QuizID).
			Str("user_id", sub.UserID).
			Str("trigger", string(trigger)).
			Msg("Persisting submitted attempt failed")
	} else {
		c.log.Info().
			Str("quiz_id", sub.QuizID).
			Str("attempt_id", attemptID).
			Int("answered", len(sub.Answers)).
			Str("trigger", string(trigger)).
			Msg("Attempt submitted")
	}

	res := Result{AttemptID: attemptID, Answers: sub.Answers, Trigger: trigger, Err: err}
	if hook != nil {
		hook(res)
	}
	return res
}

// Close tears the attempt down without submitting. Submitted and NoQuestions
// attempts are left as they are.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state != StateLoading && c.state != StateInProgress {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.stopTimerLocked()
	hook := c.hooks.OnClosed
	c.mu.Unlock()

	c.dropSubscription()
	if hook != nil {
		hook()
	}
}

func (c *Controller) dropSubscription() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// ─── Queries ───────────────────────────────────────────────────────────────

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentIndex returns the zero-based position in the question sequence.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Remaining returns the seconds left on the countdown.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Answer returns the stored answer of a question number.
func (c *Controller) Answer(number int) (Choice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.answers[number]
	return ch, ok
}

// StatusAt derives the palette status of a question index.
func (c *Controller) StatusAt(index int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(index)
}

func (c *Controller) statusLocked(index int) Status {
	if index < 0 || index >= len(c.questions) {
		return StatusNotVisited
	}
	_, marked := c.review[index]
	_, answered := c.answers[c.questions[index].Number]
	_, visited := c.visited[index]
	return deriveStatus(marked, answered, visited)
}

// Counts returns the aggregate palette buckets.
func (c *Controller) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return computeCounts(len(c.questions), len(c.visited), len(c.answers), len(c.review))
}

// Questions returns the question set without correct options.
func (c *Controller) Questions() []Question {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Question, len(c.questions))
	for i, q := range c.questions {
		q.CorrectOption = nil
		out[i] = q
	}
	return out
}

// Snapshot is the presentation view of an attempt.
type Snapshot struct {
	QuizID               string         `json:"quiz_id"`
	State                State          `json:"state"`
	TotalQuestions       int            `json:"total_questions"`
	CurrentIndex         int            `json:"current_index"`
	Statuses             []Status       `json:"statuses"`
	Answers              map[int]Choice `json:"answers"`
	Counts               Counts         `json:"counts"`
	TimeRemainingSeconds int            `json:"time_remaining_seconds"`
	TimeRemaining        string         `json:"time_remaining"`
	TimeCritical         bool           `json:"time_critical"`
	TimeWarning          bool           `json:"time_warning"`
	AttemptID            string         `json:"attempt_id,omitempty"`
	SubmitError          string         `json:"submit_error,omitempty"`
}

// Snapshot captures the current state for a presentation layer.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]Status, len(c.questions))
	for i := range c.questions {
		statuses[i] = c.statusLocked(i)
	}
	answers := make(map[int]Choice, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}

	s := Snapshot{
		QuizID:               c.quizID,
		State:                c.state,
		TotalQuestions:       len(c.questions),
		CurrentIndex:         c.current,
		Statuses:             statuses,
		Answers:              answers,
		Counts:               computeCounts(len(c.questions), len(c.visited), len(c.answers), len(c.review)),
		TimeRemainingSeconds: c.remaining,
		TimeRemaining:        FormatRemaining(c.remaining),
		TimeCritical:         c.remaining <= CriticalSeconds,
		TimeWarning:          c.remaining <= WarningSeconds,
		AttemptID:            c.attemptID,
	}
	if c.submitErr != nil {
		s.SubmitError = c.submitErr.Error()
	}
	return s
}
