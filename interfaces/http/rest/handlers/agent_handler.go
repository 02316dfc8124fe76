// Package handlers holds the REST handlers for the intelligence and
// automation surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"opsbrain/application/services"
	"opsbrain/interfaces/http/rest/middleware"
	"opsbrain/pkg/common"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AgentHandler exposes the gateway's call_agent entrypoint
type AgentHandler struct {
	gateway  *services.Gateway
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(gateway *services.Gateway, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		gateway:  gateway,
		validate: validator.New(),
		logger:   logger,
	}
}

type callAgentRequest struct {
	AgentType       string                 `json:"agent_type" validate:"required"`
	TaskDescription string                 `json:"task_description" validate:"required"`
	Payload         map[string]interface{} `json:"payload"`
	AgentID         string                 `json:"agent_id"`
	Priority        string                 `json:"priority" validate:"omitempty,oneof=low normal high"`
	UseRAG          bool                   `json:"use_rag"`
	AutoIngest      bool                   `json:"auto_ingest"`
}

// CallAgent handles POST /api/agents/call
func (h *AgentHandler) CallAgent(w http.ResponseWriter, r *http.Request) {
	var req callAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	result, err := h.gateway.CallAgent(r.Context(), services.AgentRequest{
		AgentType:       req.AgentType,
		TaskDescription: req.TaskDescription,
		Payload:         req.Payload,
		TenantID:        middleware.TenantID(r.Context()),
		AgentID:         req.AgentID,
		Priority:        req.Priority,
		UseRAG:          req.UseRAG,
		AutoIngest:      req.AutoIngest,
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
