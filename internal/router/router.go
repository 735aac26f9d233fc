package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/paperquiz-backend/internal/config"
	"github.com/stemsi/paperquiz-backend/internal/handler"
	"github.com/stemsi/paperquiz-backend/internal/middleware"
	"github.com/stemsi/paperquiz-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Quiz    *handler.QuizHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as the rate limiter sweep.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	checks map[string]HealthCheck,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)

	// Health check.
	router.GET("/health", healthHandler(checks))

	// ─── 1. Quiz Group (JWT) ───────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(auth))
	{
		api.POST("/auth/revoke", handlers.Auth.Revoke)

		api.POST("/quizzes", handlers.Quiz.CreateQuiz)
		api.GET("/quizzes", handlers.Quiz.ListQuizzes)
		api.GET("/quizzes/:quiz_id", handlers.Quiz.GetQuiz)
		api.PUT("/quizzes/:quiz_id/questions", limiter.Middleware(), handlers.Quiz.IngestQuestions)
		api.POST("/quizzes/:quiz_id/answer-key", limiter.Middleware(), handlers.Quiz.ApplyAnswerKey)
		api.GET("/quizzes/:quiz_id/attempts", handlers.Quiz.ListAttempts)
	}

	// ─── 2. Attempt Group (JWT) ────────────────────────────────────────
	attempts := api.Group("")
	attempts.Use(middleware.NoStore())
	{
		attempts.GET("/quizzes/:quiz_id/attempt", handlers.Attempt.LiveSnapshot)
		attempts.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		attempts.POST("/attempts/:attempt_id/grade", handlers.Attempt.GradeAttempt)
	}

	// ─── 3. WebSocket Group (token via query) ──────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireWSAuth(auth), limiter.Middleware())
	{
		wsGroup.GET("/quizzes/:quiz_id/attempt", handlers.WS.AttemptStream)
	}

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		response.Success(c, status, gin.H{"status": state, "dependencies": deps})
	}
}
