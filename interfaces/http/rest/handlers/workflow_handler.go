package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"opsbrain/application/ports"
	"opsbrain/application/services"
	"opsbrain/domain/workflow"
	"opsbrain/interfaces/http/rest/middleware"
	"opsbrain/pkg/common"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultMetricsWindow = 24 * time.Hour

// WorkflowHandler exposes blueprint execution and monitoring
type WorkflowHandler struct {
	engine     *services.Engine
	monitor    *services.Monitor
	executions ports.ExecutionRepository
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(engine *services.Engine, monitor *services.Monitor, executions ports.ExecutionRepository, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		engine:     engine,
		monitor:    monitor,
		executions: executions,
		validate:   validator.New(),
		logger:     logger,
	}
}

type executeRequest struct {
	Blueprint workflow.Blueprint `json:"blueprint" validate:"required"`
}

// Execute handles POST /api/workflows/execute
func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	execution, err := h.engine.Execute(r.Context(), &req.Blueprint, middleware.TenantID(r.Context()))
	if err != nil {
		if execution != nil {
			// The run started but failed partway; surface the record
			common.RespondJSON(w, http.StatusOK, execution)
			return
		}
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, execution)
}

// GetExecution handles GET /api/executions/{executionID}
func (h *WorkflowHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	execution, err := h.executions.GetByID(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, execution)
}

// ListExecutions handles GET /api/workflows/{workflowID}/executions
func (h *WorkflowHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := h.executions.ListByWorkflow(r.Context(), chi.URLParam(r, "workflowID"), time.Now().UTC().Add(-metricsWindow(r)))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"executions": executions})
}

// GetMetrics handles GET /api/workflows/{workflowID}/metrics
func (h *WorkflowHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.monitor.WorkflowMetricsFor(r.Context(), chi.URLParam(r, "workflowID"), metricsWindow(r))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, metrics)
}

// AggregateMetrics handles GET /api/workflows/metrics
func (h *WorkflowHandler) AggregateMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.monitor.Aggregate(r.Context(), metricsWindow(r))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, metrics)
}

func metricsWindow(r *http.Request) time.Duration {
	if raw := r.URL.Query().Get("window"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultMetricsWindow
}
