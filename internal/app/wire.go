package app

import (
	"log/slog"
	"strings"

	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/handler"
	"github.com/brightsteps/progression/internal/progress"
	"github.com/go-chi/chi/v5"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Engine  *progress.Engine
	Limiter *guard.RateLimiter
	Logger  *slog.Logger

	// Health probes. RemoteCheck and Mirror may be nil when the remote
	// mirror is disabled.
	LocalCheck  handler.Check
	RemoteCheck handler.Check
	Mirror      handler.MirrorStatus

	// Comma-separated list of allowed CORS origins.
	CORSAllowedOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	progressHandler := handler.NewProgressHandler(deps.Engine, deps.Limiter)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(strings.Split(deps.CORSAllowedOrigins, ",")...))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler(deps.LocalCheck, deps.RemoteCheck, deps.Mirror))

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/activities", progressHandler.SubmitActivity)
		r.Post("/bonus", progressHandler.GrantBonus)
		r.Get("/stats", progressHandler.GetStats)
		r.Post("/unlocks/drain", progressHandler.DrainUnlocks)
	})

	r.Get("/leaderboard", progressHandler.Leaderboard)

	return r
}
