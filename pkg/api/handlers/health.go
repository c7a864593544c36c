package handlers

import (
	"net/http"

	"github.com/engramd/engramd/pkg/api/response"
	"github.com/engramd/engramd/pkg/memory"
	"github.com/engramd/engramd/pkg/pattern"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	service  *memory.Service
	durable  *memory.DurableStore
	detector *pattern.Detector
	version  string
}

// NewHealthHandler creates a new health handler. detector may be nil when
// pattern detection is disabled.
func NewHealthHandler(svc *memory.Service, durable *memory.DurableStore, d *pattern.Detector, version string) *HealthHandler {
	return &HealthHandler{
		service:  svc,
		durable:  durable,
		detector: d,
		version:  version,
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). The process stays
// ready while the durable tier is down because reads degrade to the
// cache, but a full write queue means saves would be rejected.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.service != nil
	response.JSON(w, statusFor(ready), map[string]bool{
		"ready": ready,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.service.CacheStats()

	status := map[string]any{
		"status":  "ok",
		"version": h.version,
		"durable": map[string]any{
			"healthy": h.durable.Healthy(),
		},
		"queue": map[string]any{
			"depth": h.service.QueueDepth(),
		},
		"cache": map[string]any{
			"hits":   hits,
			"misses": misses,
		},
	}
	if !h.durable.Healthy() {
		status["status"] = "degraded"
	}
	if h.detector != nil {
		patterns := h.detector.List(r.Context())
		autoApplying := 0
		for _, p := range patterns {
			if p.AutoApply {
				autoApplying++
			}
		}
		status["patterns"] = map[string]any{
			"total":         len(patterns),
			"auto_applying": autoApplying,
		}
	}

	response.JSON(w, http.StatusOK, status)
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
