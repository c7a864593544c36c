package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engramd/engramd/pkg/api/response"
	"github.com/engramd/engramd/pkg/embedding"
	"github.com/engramd/engramd/pkg/pattern"
)

// PatternMetrics records pattern activity. Satisfied by metrics.Manager.
type PatternMetrics interface {
	RecordPatternObservation()
}

// PatternHandler exposes the pattern detector over HTTP.
type PatternHandler struct {
	detector *pattern.Detector
	provider embedding.Provider
	logger   handlerLogger
	metrics  PatternMetrics
}

// NewPatternHandler creates a new pattern handler.
func NewPatternHandler(d *pattern.Detector, p embedding.Provider, log handlerLogger, m PatternMetrics) *PatternHandler {
	return &PatternHandler{
		detector: d,
		provider: p,
		logger:   log,
		metrics:  m,
	}
}

type observeRequest struct {
	// TriggerText is embedded server-side. Callers that already hold a
	// vector may pass TriggerEmbedding instead.
	TriggerText      string    `json:"trigger_text,omitempty"`
	TriggerEmbedding []float32 `json:"trigger_embedding,omitempty"`
	ActionSequence   []string  `json:"action_sequence"`
}

type patternView struct {
	ID               string   `json:"id"`
	State            string   `json:"state"`
	ActionSequence   []string `json:"action_sequence"`
	OccurrenceCount  int64    `json:"occurrence_count"`
	ApplicationCount int64    `json:"application_count"`
	SuccessRate      float64  `json:"success_rate"`
	AutoApply        bool     `json:"auto_apply"`
}

func viewOf(p *pattern.Pattern) patternView {
	return patternView{
		ID:               p.ID,
		State:            string(p.State),
		ActionSequence:   p.ActionSequence,
		OccurrenceCount:  p.OccurrenceCount,
		ApplicationCount: p.ApplicationCount,
		SuccessRate:      p.SuccessRate,
		AutoApply:        p.AutoApply,
	}
}

// Observe handles POST /api/v1/patterns/observe
func (h *PatternHandler) Observe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if len(req.ActionSequence) == 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "action_sequence is required", getRequestID(ctx))
		return
	}

	trigger := req.TriggerEmbedding
	if len(trigger) == 0 {
		if req.TriggerText == "" {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "trigger_text or trigger_embedding is required", getRequestID(ctx))
			return
		}
		vec, err := h.provider.Embed(ctx, req.TriggerText)
		if err != nil {
			h.logger.Error("Failed to embed pattern trigger", "error", err)
			response.HandleError(w, err, getRequestID(ctx))
			return
		}
		trigger = vec
	}

	p, err := h.detector.Observe(ctx, trigger, req.ActionSequence)
	if err != nil {
		h.logger.Error("Failed to record pattern observation", "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPatternObservation()
	}

	response.JSON(w, http.StatusOK, viewOf(p))
}

type applicationRequest struct {
	Success bool `json:"success"`
}

// RecordApplication handles POST /api/v1/patterns/{id}/applications
func (h *PatternHandler) RecordApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	p, err := h.detector.RecordApplication(ctx, id, req.Success)
	if err != nil {
		h.logger.Error("Failed to record pattern application", "pattern_id", id, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, viewOf(p))
}

// List handles GET /api/v1/patterns
func (h *PatternHandler) List(w http.ResponseWriter, r *http.Request) {
	patterns := h.detector.List(r.Context())
	views := make([]patternView, 0, len(patterns))
	for _, p := range patterns {
		views = append(views, viewOf(p))
	}
	response.JSON(w, http.StatusOK, map[string]any{"patterns": views})
}
