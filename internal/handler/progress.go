package handler

import (
	"net/http"
	"strconv"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/progress"
	"github.com/go-chi/chi/v5"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// ProgressHandler serves the progression engine to the UI layer.
type ProgressHandler struct {
	engine  *progress.Engine
	limiter *guard.RateLimiter
}

// NewProgressHandler creates a ProgressHandler. A nil limiter disables
// submission rate limiting.
func NewProgressHandler(engine *progress.Engine, limiter *guard.RateLimiter) *ProgressHandler {
	return &ProgressHandler{engine: engine, limiter: limiter}
}

type statsResponse struct {
	domain.UserStats
	EffectiveStreak int    `json:"effective_streak"`
	Scope           string `json:"scope"`
}

type bonusRequest struct {
	Amount int64 `json:"amount"`
}

type unlocksResponse struct {
	UserID        string           `json:"user_id"`
	NewlyUnlocked []domain.BadgeID `json:"newly_unlocked"`
}

// SubmitActivity handles POST /users/{userID}/activities.
func (h *ProgressHandler) SubmitActivity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if h.limiter != nil {
		if res := h.limiter.Check(r.Context(), userID); !res.Allowed {
			RespondError(w, domain.ErrRateLimited(res.Reason))
			return
		}
	}

	var ev domain.ActivityEvent
	if err := DecodeJSON(r, &ev); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	res, err := h.engine.SubmitActivity(r.Context(), userID, ev)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// GrantBonus handles POST /users/{userID}/bonus.
func (h *ProgressHandler) GrantBonus(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	res, err := h.engine.GrantBonus(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// GetStats handles GET /users/{userID}/stats.
func (h *ProgressHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	stats, err := h.engine.GetStats(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, statsResponse{
		UserStats:       *stats,
		EffectiveStreak: h.engine.EffectiveStreak(*stats),
		Scope:           h.engine.ScopeForUser(userID),
	})
}

// DrainUnlocks handles POST /users/{userID}/unlocks/drain. Each unlock is
// returned by exactly one call.
func (h *ProgressHandler) DrainUnlocks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := domain.ValidateUserID(userID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, unlocksResponse{
		UserID:        userID,
		NewlyUnlocked: h.engine.GetNewlyUnlocked(userID),
	})
}

// Leaderboard handles GET /leaderboard?limit=&scope=.
func (h *ProgressHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(w, domain.ErrValidation("limit must be an integer"))
			return
		}
		limit = n
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	lb, err := h.engine.GetLeaderboard(r.Context(), limit, r.URL.Query().Get("scope"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, lb)
}
