package handlers

import (
	"encoding/json"
	"net/http"

	"opsbrain/application/ports"
	"opsbrain/application/services"
	"opsbrain/pkg/common"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ScheduleHandler exposes recurring trigger CRUD
type ScheduleHandler struct {
	schedules *services.ScheduleManager
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(schedules *services.ScheduleManager, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		validate:  validator.New(),
		logger:    logger,
	}
}

type createScheduleRequest struct {
	ScheduleID     string `json:"schedule_id" validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
	SnapshotType   string `json:"snapshot_type"`
	TimeRange      string `json:"time_range"`
	Timezone       string `json:"timezone"`
	Description    string `json:"description"`
}

// Create handles POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	err := h.schedules.Create(r.Context(), ports.ScheduleRecord{
		ID:             req.ScheduleID,
		CronExpression: req.CronExpression,
		SnapshotType:   req.SnapshotType,
		TimeRange:      req.TimeRange,
		Timezone:       req.Timezone,
		Description:    req.Description,
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{"schedule_id": req.ScheduleID})
}

// List handles GET /api/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.List(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"schedules": schedules})
}

// Get handles GET /api/schedules/{scheduleID}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.schedules.Get(r.Context(), chi.URLParam(r, "scheduleID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, schedule)
}

type pauseRequest struct {
	Note string `json:"note"`
}

// Pause handles POST /api/schedules/{scheduleID}/pause
func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.schedules.Pause(r.Context(), chi.URLParam(r, "scheduleID"), req.Note); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Resume handles POST /api/schedules/{scheduleID}/resume
func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.schedules.Resume(r.Context(), chi.URLParam(r, "scheduleID"), req.Note); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// Delete handles DELETE /api/schedules/{scheduleID}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.schedules.Delete(r.Context(), chi.URLParam(r, "scheduleID")); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Trigger handles POST /api/schedules/{scheduleID}/trigger
func (h *ScheduleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.schedules.TriggerNow(r.Context(), chi.URLParam(r, "scheduleID")); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}
