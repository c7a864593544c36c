package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/engramd/engramd/pkg/api/response"
	"github.com/engramd/engramd/pkg/contextual"
	"github.com/engramd/engramd/pkg/embedding"
	"github.com/engramd/engramd/pkg/memory"
	"github.com/engramd/engramd/pkg/pattern"
)

// ContextHandler combines retrieval, pattern matching, and prompt
// enrichment into a single call for upstream agents.
type ContextHandler struct {
	service  *memory.Service
	detector *pattern.Detector
	injector *contextual.Injector
	provider embedding.Provider
	logger   handlerLogger
}

// NewContextHandler creates a new context handler.
func NewContextHandler(svc *memory.Service, d *pattern.Detector, in *contextual.Injector, p embedding.Provider, log handlerLogger) *ContextHandler {
	return &ContextHandler{
		service:  svc,
		detector: d,
		injector: in,
		provider: p,
		logger:   log,
	}
}

type contextRequest struct {
	Prompt        string `json:"prompt"`
	OwnerID       string `json:"owner_id"`
	Kind          string `json:"kind,omitempty"`
	IncludeSystem *bool  `json:"include_system,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type contextResponse struct {
	Context      string `json:"context"`
	MemoriesUsed int    `json:"memories_used"`
	PatternID    string `json:"pattern_id,omitempty"`
	Degraded     bool   `json:"degraded"`
}

// Inject handles POST /api/v1/context
func (h *ContextHandler) Inject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	result, err := h.service.Search(ctx, memory.SearchRequest{
		QueryText:     req.Prompt,
		OwnerID:       req.OwnerID,
		IncludeSystem: req.IncludeSystem,
		Limit:         req.Limit,
	})
	if err != nil {
		h.logger.Error("Failed to retrieve context memories", "owner_id", req.OwnerID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	var matched *pattern.Pattern
	if h.detector != nil {
		if vec, err := h.provider.Embed(ctx, req.Prompt); err == nil {
			if p, ok := h.detector.Match(ctx, vec); ok {
				matched = p
			}
		} else {
			// Pattern matching is best effort; retrieval already succeeded.
			h.logger.Warn("Skipping pattern match", "error", err)
		}
	}

	memories := make([]*memory.Memory, 0, len(result.Memories))
	for _, sm := range result.Memories {
		memories = append(memories, sm.Memory)
	}

	enriched := h.injector.Inject(req.Prompt, memories, matched, contextual.ParseKind(req.Kind))

	resp := contextResponse{
		Context:      enriched,
		MemoriesUsed: len(memories),
		Degraded:     result.Degraded,
	}
	if matched != nil {
		resp.PatternID = matched.ID
	}

	response.JSON(w, http.StatusOK, resp)
}
