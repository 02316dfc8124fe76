package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"opsbrain/application/services"
	"opsbrain/interfaces/http/rest/middleware"
	"opsbrain/pkg/common"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// KnowledgeHandler exposes chunk ingestion, retrieval, and graph operations
type KnowledgeHandler struct {
	retrieval *services.RetrievalService
	graph     *services.GraphService
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewKnowledgeHandler creates a new KnowledgeHandler
func NewKnowledgeHandler(retrieval *services.RetrievalService, graph *services.GraphService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		retrieval: retrieval,
		graph:     graph,
		validate:  validator.New(),
		logger:    logger,
	}
}

type ingestRequest struct {
	Content  string            `json:"content" validate:"required"`
	Metadata map[string]string `json:"metadata"`
	AgentID  string            `json:"agent_id"`
}

// Ingest handles POST /api/knowledge/chunks
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	chunkID, err := h.retrieval.Ingest(r.Context(), req.Content, req.Metadata, middleware.TenantID(r.Context()), req.AgentID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{"chunk_id": chunkID})
}

type retrieveRequest struct {
	Query   string            `json:"query" validate:"required"`
	AgentID string            `json:"agent_id"`
	Limit   int               `json:"limit" validate:"omitempty,min=1,max=50"`
	Filters map[string]string `json:"filters"`
}

// Retrieve handles POST /api/knowledge/retrieve
func (h *KnowledgeHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	results, err := h.retrieval.Retrieve(r.Context(), req.Query, middleware.TenantID(r.Context()), req.AgentID, req.Limit, req.Filters)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type linkRequest struct {
	SourceID     string            `json:"source_id" validate:"required"`
	TargetID     string            `json:"target_id" validate:"required"`
	RelationType string            `json:"relation_type"`
	Weight       float64           `json:"weight"`
	Metadata     map[string]string `json:"metadata"`
}

// Link handles POST /api/knowledge/links
func (h *KnowledgeHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	if err := h.graph.Link(r.Context(), req.SourceID, req.TargetID, req.RelationType, req.Weight, req.Metadata); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

// Related handles GET /api/knowledge/chunks/{chunkID}/related?depth=N
func (h *KnowledgeHandler) Related(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	related, err := h.graph.GetRelated(r.Context(), middleware.TenantID(r.Context()), chunkID, depth)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"related": related})
}

// Delete handles DELETE /api/knowledge/chunks/{chunkID}
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")
	if err := h.retrieval.Delete(r.Context(), middleware.TenantID(r.Context()), chunkID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
