package handler

import (
	"context"
	"net/http"

	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/mirror"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// MirrorStatus exposes remote mirror health.
type MirrorStatus interface {
	Enabled() bool
	Metrics() mirror.Metrics
	BreakerState() guard.CircuitState
}

// HealthHandler returns a health check endpoint. Only the local store is
// required: a failing remote degrades the report but the engine keeps serving.
func HealthHandler(local Check, remote Check, ms MirrorStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := local(r.Context()); err != nil {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		body := map[string]interface{}{"status": "healthy"}
		if remote != nil {
			if err := remote(r.Context()); err != nil {
				body["status"] = "degraded"
				body["remote_error"] = err.Error()
			}
		}
		if ms != nil && ms.Enabled() {
			body["mirror"] = map[string]interface{}{
				"metrics": ms.Metrics(),
				"breaker": ms.BreakerState().String(),
			}
		}
		RespondJSON(w, http.StatusOK, body)
	}
}
