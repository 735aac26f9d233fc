package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/model"
	"github.com/stemsi/paperquiz-backend/internal/response"
	"github.com/stemsi/paperquiz-backend/internal/service"
)

func newQuizRouter(userID string, h *QuizHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/quizzes", withUser(userID))
	g.POST("", h.CreateQuiz)
	g.GET("", h.ListQuizzes)
	g.GET("/:quiz_id", h.GetQuiz)
	g.PUT("/:quiz_id/questions", h.IngestQuestions)
	g.POST("/:quiz_id/answer-key", h.ApplyAnswerKey)
	g.GET("/:quiz_id/attempts", h.ListAttempts)
	return r
}

func TestCreateQuiz(t *testing.T) {
	quizzes := newFakeQuizzes()
	r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodPost, "/quizzes", gin.H{"title": "Chemistry", "timer_minutes": 45})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var quiz model.Quiz
	if err := json.Unmarshal(env.Data["quiz"], &quiz); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}
	if quiz.OwnerID != "owner-1" || quiz.TimerMinutes != 45 {
		t.Errorf("quiz = %+v", quiz)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(), newFakeAttempts(), 0))

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing title", gin.H{"timer_minutes": 10}, "title"},
		{"timer too long", gin.H{"title": "x", "timer_minutes": 601}, "timer_minutes"},
		{"malformed json", `{"title":`, "detail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, r, http.MethodPost, "/quizzes", tt.body)
			if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
				t.Fatalf("status = %d code = %s", w.Code, errCode(env))
			}
			if _, ok := env.Error.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want key %q", env.Error.Fields, tt.field)
			}
		})
	}
}

func TestCreateQuizRequiresClaims(t *testing.T) {
	r := newQuizRouter("", NewQuizHandler(newFakeQuizzes(), newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodPost, "/quizzes", gin.H{"title": "x"})
	if w.Code != http.StatusUnauthorized || errCode(env) != response.ErrTokenRequired {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestListQuizzesPaginates(t *testing.T) {
	quizzes := newFakeQuizzes(
		&model.Quiz{ID: uuid.New(), OwnerID: "owner-1", Title: "a"},
		&model.Quiz{ID: uuid.New(), OwnerID: "owner-1", Title: "b"},
		&model.Quiz{ID: uuid.New(), OwnerID: "other", Title: "c"},
	)
	r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodGet, "/quizzes?page=1&per_page=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list []model.Quiz
	if err := json.Unmarshal(env.Data["quizzes"], &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
	if !strings.Contains(w.Body.String(), `"total_items":2`) {
		t.Errorf("pagination missing: %s", w.Body.String())
	}
}

func TestGetQuizErrors(t *testing.T) {
	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(), newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodGet, "/quizzes/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest || errCode(env) != response.ErrInvalidID {
		t.Errorf("bad id: status = %d code = %s", w.Code, errCode(env))
	}

	w, env = doJSON(t, r, http.MethodGet, "/quizzes/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound || errCode(env) != response.ErrNotFound {
		t.Errorf("missing: status = %d code = %s", w.Code, errCode(env))
	}
}

func TestIngestQuestionsStructured(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1", Status: model.QuizStatusProcessing}
	quizzes := newFakeQuizzes(quiz)
	r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))

	body := gin.H{"questions": []gin.H{
		{"question_text": "2+2?", "options": gin.H{"A": "3", "B": "4", "C": "5", "D": "6"}, "correct_option": "b"},
		{"question_text": "3+3?", "options": gin.H{"A": "6", "B": "7", "C": "8", "D": "9"}},
	}}
	w, _ := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(quizzes.ingested) != 2 {
		t.Fatalf("ingested %d questions, want 2", len(quizzes.ingested))
	}
	if quizzes.ingested[1].Number != 2 {
		t.Errorf("second question numbered %d, want 2", quizzes.ingested[1].Number)
	}
	if c := quizzes.ingested[0].CorrectOption; c == nil || *c != attempt.ChoiceB {
		t.Errorf("correct option = %v, want B", c)
	}
}

func TestIngestQuestionsRejectsBadChoice(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(quiz), newFakeAttempts(), 0))

	body := gin.H{"questions": []gin.H{{"question_text": "?", "correct_option": "E"}}}
	w, env := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", body)
	if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestIngestQuestionsRaw(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	quizzes := newFakeQuizzes(quiz)
	r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))

	w, _ := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", gin.H{"raw": "```json\n[]\n```"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if quizzes.raw == "" {
		t.Error("raw payload was not forwarded")
	}
}

func TestIngestQuestionsEmptyBody(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(quiz), newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", gin.H{})
	if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestIngestQuestionsTooLarge(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(quiz), newFakeAttempts(), 64))

	w, env := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", gin.H{"raw": strings.Repeat("x", 500)})
	if w.Code != http.StatusRequestEntityTooLarge || errCode(env) != response.ErrPayloadTooLarge {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestIngestQuestionsNotOwner(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	r := newQuizRouter("intruder", NewQuizHandler(newFakeQuizzes(quiz), newFakeAttempts(), 0))

	w, env := doJSON(t, r, http.MethodPut, "/quizzes/"+quiz.ID.String()+"/questions", gin.H{"raw": "[]"})
	if w.Code != http.StatusForbidden || errCode(env) != response.ErrNotQuizAuthor {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestApplyAnswerKey(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1", Status: model.QuizStatusReview}
	quizzes := newFakeQuizzes(quiz)
	r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))
	path := "/quizzes/" + quiz.ID.String() + "/answer-key"

	w, _ := doJSON(t, r, http.MethodPost, path, gin.H{"key": gin.H{"1": "B"}})
	if w.Code != http.StatusOK {
		t.Fatalf("map key: status = %d", w.Code)
	}
	if quizzes.keyRaw != `{"1":"B"}` {
		t.Errorf("raw = %q", quizzes.keyRaw)
	}

	w, _ = doJSON(t, r, http.MethodPost, path, gin.H{"text": "1. B 2) C"})
	if w.Code != http.StatusOK || quizzes.keyRaw != "1. B 2) C" {
		t.Fatalf("text key: status = %d raw = %q", w.Code, quizzes.keyRaw)
	}

	w, env := doJSON(t, r, http.MethodPost, path, gin.H{})
	if w.Code != http.StatusBadRequest || errCode(env) != response.ErrValidation {
		t.Errorf("empty: status = %d code = %s", w.Code, errCode(env))
	}
}

func TestApplyAnswerKeyErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrInvalidAnswerKey, http.StatusUnprocessableEntity, response.ErrInvalidAnswerKey},
		{service.ErrAnswerKeyUnmatched, http.StatusUnprocessableEntity, response.ErrInvalidAnswerKey},
		{service.ErrQuizNotReady, http.StatusConflict, response.ErrQuizNotReady},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
			quizzes := newFakeQuizzes(quiz)
			quizzes.keyErr = tt.err
			r := newQuizRouter("owner-1", NewQuizHandler(quizzes, newFakeAttempts(), 0))

			w, env := doJSON(t, r, http.MethodPost, "/quizzes/"+quiz.ID.String()+"/answer-key", gin.H{"text": "1 A"})
			if w.Code != tt.status || errCode(env) != tt.code {
				t.Fatalf("status = %d code = %s", w.Code, errCode(env))
			}
		})
	}
}

func TestListAttemptsOwnerOnly(t *testing.T) {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1"}
	attempts := newFakeAttempts(
		&model.Attempt{ID: uuid.New(), QuizID: quiz.ID, UserID: "student-1"},
		&model.Attempt{ID: uuid.New(), QuizID: uuid.New(), UserID: "student-2"},
	)

	r := newQuizRouter("owner-1", NewQuizHandler(newFakeQuizzes(quiz), attempts, 0))
	w, env := doJSON(t, r, http.MethodGet, "/quizzes/"+quiz.ID.String()+"/attempts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list []model.Attempt
	if err := json.Unmarshal(env.Data["attempts"], &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "student-1" {
		t.Errorf("attempts = %+v", list)
	}

	r = newQuizRouter("student-1", NewQuizHandler(newFakeQuizzes(quiz), attempts, 0))
	w, _ = doJSON(t, r, http.MethodGet, "/quizzes/"+quiz.ID.String()+"/attempts", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner status = %d, want 403", w.Code)
	}
}
