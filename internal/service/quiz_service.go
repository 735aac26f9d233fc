package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/model"
	"github.com/stemsi/paperquiz-backend/internal/parser"
	"github.com/stemsi/paperquiz-backend/internal/response"
)

// Domain Errors
var (
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrNotQuizOwner       = errors.New("not the owner of this quiz")
	ErrNoQuestions        = errors.New("quiz has no questions")
	ErrInvalidQuestions   = errors.New("question list could not be read")
	ErrInvalidAnswerKey   = errors.New("answer key could not be read")
	ErrAnswerKeyUnmatched = errors.New("answer key matches no question of the quiz")
	ErrQuizNotReady       = errors.New("quiz is still being processed")
)

// QuizStore is the quiz persistence used by QuizService.
type QuizStore interface {
	Create(ctx context.Context, q *model.Quiz) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListByOwner(ctx context.Context, ownerID string, page, perPage int) ([]model.Quiz, int, error)
	ListTakeable(ctx context.Context) ([]model.Quiz, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error
}

// QuestionStore is the question persistence shared by the quiz and grading services.
type QuestionStore interface {
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]attempt.Question, error)
	ReplaceAll(ctx context.Context, quizID uuid.UUID, questions []attempt.Question) error
	// SetCorrectOptions replaces the whole key; a key matching no question
	// leaves the previous one in place.
	SetCorrectOptions(ctx context.Context, quizID uuid.UUID, key map[int]attempt.Choice) (int, error)
	AnswerKey(ctx context.Context, quizID uuid.UUID) (map[int]attempt.Choice, error)
}

// QuizGrader grades every ungraded attempt of a quiz.
type QuizGrader interface {
	GradeQuiz(ctx context.Context, quizID uuid.UUID) (int, error)
}

// QuizService handles quiz business logic and the Redis question cache. It
// is the question loader of every attempt.
type QuizService struct {
	quizzes   QuizStore
	questions QuestionStore
	cache     QuizCache
	grader    QuizGrader
	log       zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizzes QuizStore,
	questions QuestionStore,
	cache QuizCache,
	grader QuizGrader,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizzes:   quizzes,
		questions: questions,
		cache:     cache,
		grader:    grader,
		log:       log.With().Str("component", "quiz_service").Logger(),
	}
}

// Create inserts a new quiz owned by ownerID in the PROCESSING state.
func (s *QuizService) Create(ctx context.Context, ownerID string, req *model.CreateQuizRequest) (*model.Quiz, error) {
	quiz := &model.Quiz{
		OwnerID:      ownerID,
		Title:        req.Title,
		SourceFile:   req.SourceFile,
		TimerMinutes: req.TimerMinutes,
	}
	if quiz.TimerMinutes <= 0 {
		quiz.TimerMinutes = attempt.DefaultTimerMinutes
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// List retrieves one page of the owner's quizzes.
func (s *QuizService) List(ctx context.Context, ownerID string, page, perPage int) ([]model.Quiz, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	quizzes, total, err := s.quizzes.ListByOwner(ctx, ownerID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	return quizzes, response.NewPagination(page, perPage, total), nil
}

// Get retrieves a quiz by ID.
func (s *QuizService) Get(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

// GetOwned retrieves a quiz and checks that ownerID owns it.
func (s *QuizService) GetOwned(ctx context.Context, quizID uuid.UUID, ownerID string) (*model.Quiz, error) {
	quiz, err := s.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.OwnerID != ownerID {
		return nil, ErrNotQuizOwner
	}
	return quiz, nil
}

// Detail returns a quiz with its questions. Correct options are only shown
// to the owner.
func (s *QuizService) Detail(ctx context.Context, quizID uuid.UUID, userID string) (*model.QuizDetail, error) {
	quiz, err := s.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]attempt.Question, len(questions))
	for i, q := range questions {
		if quiz.OwnerID != userID {
			q.CorrectOption = nil
		}
		out[i] = q
	}
	return &model.QuizDetail{Quiz: *quiz, Questions: out}, nil
}

// IngestQuestions replaces the quiz's questions with the parser output.
// Questions carrying correct options make the quiz READY right away.
func (s *QuizService) IngestQuestions(ctx context.Context, quizID uuid.UUID, ownerID string, questions []attempt.Question) (*model.Quiz, error) {
	quiz, err := s.GetOwned(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.questions.ReplaceAll(ctx, quizID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}

	status := model.QuizStatusReview
	for _, q := range questions {
		if q.CorrectOption != nil {
			status = model.QuizStatusReady
			break
		}
	}
	if err := s.quizzes.UpdateStatus(ctx, quizID, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	quiz.Status = status
	quiz.QuestionCount = len(questions)

	s.refreshCache(ctx, quiz)

	s.log.Info().
		Str("quiz_id", quizID.String()).
		Int("questions", len(questions)).
		Str("status", string(status)).
		Msg("Questions ingested")
	return quiz, nil
}

// IngestRaw parses unstructured parser output and ingests the questions.
func (s *QuizService) IngestRaw(ctx context.Context, quizID uuid.UUID, ownerID string, raw string) (*model.Quiz, error) {
	questions, err := parser.ParseQuestionsJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuestions, err)
	}
	return s.IngestQuestions(ctx, quizID, ownerID, questions)
}

// ApplyAnswerKey parses an answer key (JSON map first, text patterns as a
// fallback), stores it on the questions and grades every pending attempt.
func (s *QuizService) ApplyAnswerKey(ctx context.Context, quizID uuid.UUID, ownerID string, raw string) (*model.AnswerKeyResult, error) {
	quiz, err := s.GetOwned(ctx, quizID, ownerID)
	if err != nil {
		return nil, err
	}
	if quiz.Status == model.QuizStatusProcessing {
		return nil, ErrQuizNotReady
	}

	key, err := parser.ParseAnswerKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAnswerKey, err)
	}

	matched, err := s.questions.SetCorrectOptions(ctx, quizID, key)
	if err != nil {
		return nil, fmt.Errorf("set correct options: %w", err)
	}
	if matched == 0 {
		return nil, ErrAnswerKeyUnmatched
	}

	if err := s.quizzes.UpdateStatus(ctx, quizID, model.QuizStatusReady); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	quiz.Status = model.QuizStatusReady
	s.refreshCache(ctx, quiz)

	graded, err := s.grader.GradeQuiz(ctx, quizID)
	if err != nil {
		s.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Grading pending attempts failed")
	}

	s.log.Info().
		Str("quiz_id", quizID.String()).
		Int("key_entries", len(key)).
		Int("matched", matched).
		Int("graded", graded).
		Msg("Answer key applied")

	return &model.AnswerKeyResult{
		KeyEntries:       len(key),
		MatchedQuestions: matched,
		GradedAttempts:   graded,
	}, nil
}

// LoadQuestions serves the question set and timer of a quiz from Redis,
// falling back to PostgreSQL and re-caching on a miss. A quiz still being
// processed yields an empty set.
func (s *QuizService) LoadQuestions(ctx context.Context, quizID string) ([]attempt.Question, int, error) {
	id, err := uuid.Parse(quizID)
	if err != nil {
		return nil, 0, ErrQuizNotFound
	}

	payload, err := s.cache.GetPayload(ctx, id)
	if err == nil {
		return payload.Questions, payload.TimerMinutes, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Quiz cache read failed, using database")
	}

	quiz, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if !quiz.Takeable() {
		return nil, quiz.TimerMinutes, nil
	}

	payload, err = s.Warm(ctx, quiz)
	if err != nil {
		return nil, 0, err
	}
	return payload.Questions, payload.TimerMinutes, nil
}

// Warm loads a quiz's questions and answer key from PostgreSQL into the cache.
func (s *QuizService) Warm(ctx context.Context, quiz *model.Quiz) (*model.QuizPayload, error) {
	questions, err := s.questions.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	key := make(map[int]attempt.Choice)
	public := make([]attempt.Question, len(questions))
	for i, q := range questions {
		if q.CorrectOption != nil {
			key[q.Number] = *q.CorrectOption
		}
		q.CorrectOption = nil
		public[i] = q
	}

	payload := &model.QuizPayload{
		QuizID:       quiz.ID,
		Title:        quiz.Title,
		TimerMinutes: quiz.TimerMinutes,
		Questions:    public,
	}

	if len(public) > 0 {
		if err := s.cache.Store(ctx, payload, key); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Caching quiz failed")
		}
	}
	return payload, nil
}

// PrewarmAllCaches loads every takeable quiz into Redis. Run it before the
// server accepts traffic so the first attempts do not all miss the cache.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizzes.ListTakeable(ctx)
	if err != nil {
		return fmt.Errorf("list takeable quizzes: %w", err)
	}

	warmed := 0
	for i := range quizzes {
		if _, err := s.Warm(ctx, &quizzes[i]); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizzes[i].ID.String()).Msg("Prewarm failed")
			continue
		}
		warmed++
	}

	s.log.Info().Int("quizzes", warmed).Msg("Quiz cache prewarmed")
	return nil
}

func (s *QuizService) refreshCache(ctx context.Context, quiz *model.Quiz) {
	if err := s.cache.Invalidate(ctx, quiz.ID); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Cache invalidation failed")
	}
	if _, err := s.Warm(ctx, quiz); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Cache warm failed")
	}
}
