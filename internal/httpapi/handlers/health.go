package handlers

import (
	"context"
	"net/http"
	"time"

	"comfybridge/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also probes the engine, the
// durable store and the queue.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": h.service,
		"busy":    len(h.busy) > 0,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"engine":  h.timedCheck(ctx, h.engine.Probe),
		"storage": h.checkStorage(),
	}
	if h.jobs != nil {
		checks["queue"] = h.timedCheck(ctx, h.jobs.Ping)
	}
	return checks
}

func (h *Handler) timedCheck(ctx context.Context, fn func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := fn(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkStorage() map[string]any {
	if h.sp == nil {
		return map[string]any{"status": "error", "error": "no storage provider"}
	}
	return map[string]any{"status": "ok", "provider": h.sp.Provider()}
}
