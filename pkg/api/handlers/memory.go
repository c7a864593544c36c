// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/engramd/engramd/pkg/api/middleware"
	"github.com/engramd/engramd/pkg/api/response"
	"github.com/engramd/engramd/pkg/memory"
)

type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SaveMetrics records save outcomes. Satisfied by metrics.Manager.
type SaveMetrics interface {
	RecordMemorySave(memType, status string, duration time.Duration)
	RecordMemorySearch(degraded bool, duration time.Duration)
}

// MemoryHandler handles memory save, search, and list endpoints.
type MemoryHandler struct {
	service *memory.Service
	logger  handlerLogger
	metrics SaveMetrics
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(svc *memory.Service, log handlerLogger, m SaveMetrics) *MemoryHandler {
	return &MemoryHandler{
		service: svc,
		logger:  log,
		metrics: m,
	}
}

type saveMemoryResponse struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	CreatedAt          time.Time `json:"created_at"`
	LowConfidence      bool      `json:"low_confidence,omitempty"`
	EmbeddingPending   bool      `json:"embedding_pending,omitempty"`
}

// Save handles POST /api/v1/memories
func (h *MemoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req memory.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	m, err := h.service.Save(ctx, req)
	if err != nil {
		h.logger.Error("Failed to save memory", "owner_id", req.OwnerID, "error", err)
		if h.metrics != nil {
			h.metrics.RecordMemorySave(string(req.Type), "error", time.Since(start))
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMemorySave(string(m.Type), "ok", time.Since(start))
	}

	response.JSON(w, http.StatusCreated, saveMemoryResponse{
		ID:                 m.ID,
		Type:               string(m.Type),
		EmbeddingDimension: len(m.Embedding),
		CreatedAt:          m.CreatedAt,
		LowConfidence:      m.LowConfidence,
		EmbeddingPending:   m.EmbeddingPending,
	})
}

// Search handles POST /api/v1/memories/search
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req memory.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	result, err := h.service.Search(ctx, req)
	if err != nil {
		h.logger.Error("Failed to search memories", "owner_id", req.OwnerID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMemorySearch(result.Degraded, time.Since(start))
	}
	if result.Degraded {
		h.logger.Warn("Search served from cache only", "owner_id", req.OwnerID)
	}

	response.JSON(w, http.StatusOK, result)
}

// List handles GET /api/v1/memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := memory.ListRequest{
		OwnerID: r.URL.Query().Get("owner_id"),
	}
	if v := r.URL.Query().Get("include_system"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "include_system must be a boolean", getRequestID(ctx))
			return
		}
		req.IncludeSystem = &include
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "limit must be a non-negative integer", getRequestID(ctx))
			return
		}
		req.Limit = limit
	}

	result, err := h.service.GetAll(ctx, req)
	if err != nil {
		h.logger.Error("Failed to list memories", "owner_id", req.OwnerID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
