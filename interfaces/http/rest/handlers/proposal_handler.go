package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"opsbrain/application/services"
	"opsbrain/domain/workflow"
	"opsbrain/interfaces/http/rest/middleware"
	"opsbrain/pkg/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProposalHandler exposes the proposal review surface
type ProposalHandler struct {
	proposals *services.ProposalService
	logger    *zap.Logger
}

// NewProposalHandler creates a new ProposalHandler
func NewProposalHandler(proposals *services.ProposalService, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{
		proposals: proposals,
		logger:    logger,
	}
}

// List handles GET /api/proposals?status=proposed
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := workflow.ProposalStatus(r.URL.Query().Get("status"))

	proposals, err := h.proposals.List(r.Context(), status)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"proposals": proposals})
}

// Get handles GET /api/proposals/{name}
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.proposals.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, proposal)
}

type reviewRequest struct {
	Note string `json:"note"`
}

// Approve handles POST /api/proposals/{name}/approve
func (h *ProposalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.proposals.Approve)
}

// Reject handles POST /api/proposals/{name}/reject
func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, h.proposals.Reject)
}

func (h *ProposalHandler) reviewAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, name, note string) (*workflow.Proposal, error)) {
	proposal, err := action(r.Context(), chi.URLParam(r, "name"), decodeNote(r))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, proposal)
}

// Deploy handles POST /api/proposals/{name}/deploy
func (h *ProposalHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	execution, err := h.proposals.Deploy(r.Context(), chi.URLParam(r, "name"), middleware.TenantID(r.Context()))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	if execution == nil {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
		return
	}
	common.RespondJSON(w, http.StatusOK, execution)
}

func decodeNote(r *http.Request) string {
	var req reviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req.Note
}
