package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/model"
	"github.com/stemsi/paperquiz-backend/internal/response"
)

type attemptFixture struct {
	quiz     *model.Quiz
	attempt  *model.Attempt
	quizzes  *fakeQuizzes
	attempts *fakeAttempts
	scorer   *fakeScorer
}

func newAttemptFixture() *attemptFixture {
	quiz := &model.Quiz{ID: uuid.New(), OwnerID: "owner-1", Status: model.QuizStatusReady}
	a := &model.Attempt{
		ID:      uuid.New(),
		QuizID:  quiz.ID,
		UserID:  "student-1",
		Answers: map[int]attempt.Choice{1: attempt.ChoiceA, 2: attempt.ChoiceC},
	}
	return &attemptFixture{
		quiz:     quiz,
		attempt:  a,
		quizzes:  newFakeQuizzes(quiz),
		attempts: newFakeAttempts(a),
		scorer:   &fakeScorer{},
	}
}

func (f *attemptFixture) router(userID string) *gin.Engine {
	h := NewAttemptHandler(f.attempts, f.scorer, f.quizzes)
	r := gin.New()
	g := r.Group("", withUser(userID))
	g.GET("/quizzes/:quiz_id/attempt", h.LiveSnapshot)
	g.GET("/attempts/:attempt_id", h.GetAttempt)
	g.POST("/attempts/:attempt_id/grade", h.GradeAttempt)
	return r
}

func TestLiveSnapshot(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.live["student-1|"+f.quiz.ID.String()] = attempt.Snapshot{
		QuizID:               f.quiz.ID.String(),
		State:                attempt.StateInProgress,
		TimeRemainingSeconds: 90,
	}

	w, env := doJSON(t, f.router("student-1"), http.MethodGet, "/quizzes/"+f.quiz.ID.String()+"/attempt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap attempt.Snapshot
	if err := json.Unmarshal(env.Data["attempt"], &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != attempt.StateInProgress || snap.TimeRemainingSeconds != 90 {
		t.Errorf("snapshot = %+v", snap)
	}

	w, env = doJSON(t, f.router("student-2"), http.MethodGet, "/quizzes/"+f.quiz.ID.String()+"/attempt", nil)
	if w.Code != http.StatusNotFound || errCode(env) != response.ErrAttemptNotActive {
		t.Errorf("no live attempt: status = %d code = %s", w.Code, errCode(env))
	}
}

func TestGetAttemptVisibility(t *testing.T) {
	f := newAttemptFixture()
	path := "/attempts/" + f.attempt.ID.String()

	tests := []struct {
		user   string
		status int
	}{
		{"student-1", http.StatusOK},
		{"owner-1", http.StatusOK},
		{"student-2", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			w, _ := doJSON(t, f.router(tt.user), http.MethodGet, path, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestGetAttemptIncludesResultWhenKeyKnown(t *testing.T) {
	f := newAttemptFixture()
	path := "/attempts/" + f.attempt.ID.String()

	_, env := doJSON(t, f.router("student-1"), http.MethodGet, path, nil)
	var withoutKey model.AttemptDetail
	if err := json.Unmarshal(env.Data["attempt"], &withoutKey); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if withoutKey.Result != nil {
		t.Errorf("result = %+v, want none before a key exists", withoutKey.Result)
	}

	f.scorer.key = map[int]attempt.Choice{1: attempt.ChoiceA, 2: attempt.ChoiceB}
	_, env = doJSON(t, f.router("student-1"), http.MethodGet, path, nil)
	var withKey model.AttemptDetail
	if err := json.Unmarshal(env.Data["attempt"], &withKey); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if withKey.Result == nil || withKey.Result.Score != 1 || withKey.Result.Total != 2 {
		t.Errorf("result = %+v, want 1/2", withKey.Result)
	}
}

func TestGetAttemptNotFound(t *testing.T) {
	f := newAttemptFixture()

	w, env := doJSON(t, f.router("student-1"), http.MethodGet, "/attempts/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound || errCode(env) != response.ErrNotFound {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestGradeAttemptOwnerOnly(t *testing.T) {
	f := newAttemptFixture()
	f.scorer.key = map[int]attempt.Choice{1: attempt.ChoiceA}
	path := "/attempts/" + f.attempt.ID.String() + "/grade"

	w, _ := doJSON(t, f.router("student-1"), http.MethodPost, path, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("student status = %d, want 403", w.Code)
	}

	w, _ = doJSON(t, f.router("owner-1"), http.MethodPost, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner status = %d", w.Code)
	}
	if len(f.scorer.graded) != 1 || f.scorer.graded[0] != f.attempt.ID {
		t.Errorf("graded = %v", f.scorer.graded)
	}
}

func TestGradeAttemptWithoutKey(t *testing.T) {
	f := newAttemptFixture()

	w, env := doJSON(t, f.router("owner-1"), http.MethodPost, "/attempts/"+f.attempt.ID.String()+"/grade", nil)
	if w.Code != http.StatusConflict || errCode(env) != response.ErrNoAnswerKey {
		t.Fatalf("status = %d code = %s", w.Code, errCode(env))
	}
}

func TestRevoke(t *testing.T) {
	revoker := &fakeRevoker{}
	r := gin.New()
	r.POST("/auth/revoke", withUser("student-1"), NewAuthHandler(revoker).Revoke)

	w, env := doJSON(t, r, http.MethodPost, "/auth/revoke", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(revoker.users) != 1 || revoker.users[0] != "student-1" {
		t.Errorf("revoked = %v", revoker.users)
	}
	if string(env.Data["revoked_sessions"]) != "2" {
		t.Errorf("revoked_sessions = %s", env.Data["revoked_sessions"])
	}

	revoker.err = errors.New("redis down")
	w, env = doJSON(t, r, http.MethodPost, "/auth/revoke", nil)
	if w.Code != http.StatusInternalServerError || errCode(env) != response.ErrInternal {
		t.Errorf("failure: status = %d code = %s", w.Code, errCode(env))
	}
}
