package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/handler"
	"github.com/stemsi/paperquiz-backend/internal/service"
)

type rejectAll struct{}

func (rejectAll) ValidateToken(string) (*service.Claims, error) {
	return nil, errors.New("invalid")
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{GinMode: "test", RateLimitPerMinute: 10}
	handlers := &Handlers{
		Auth:    handler.NewAuthHandler(nil),
		Quiz:    handler.NewQuizHandler(nil, nil, 0),
		Attempt: handler.NewAttemptHandler(nil, nil, nil),
		WS:      handler.NewWSHandler(nil, 0, zerolog.Nop(), nil),
	}
	return SetupRouter(ctx, rejectAll{}, handlers, cfg, checks)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"up"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthDegraded(t *testing.T) {
	r := newTestRouter(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"degraded"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	r := newTestRouter(t, nil)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/quizzes"},
		{http.MethodPost, "/api/v1/auth/revoke"},
		{http.MethodGet, "/api/v1/attempts/" + "00000000-0000-0000-0000-000000000000"},
		{http.MethodGet, "/ws/v1/quizzes/00000000-0000-0000-0000-000000000000/attempt"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}
