package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/service"
)

// ApplicationHandler serves candidate applications and their stage moves.
type ApplicationHandler struct {
	apps *service.ApplicationService
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(apps *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps}
}

type createApplicationRequest struct {
	CandidateID uuid.UUID `json:"candidate_id" validate:"required"`
}

type changeStageRequest struct {
	StageKey string `json:"stage_key" validate:"required,stagekey"`
	Notes    string `json:"notes" validate:"max=2000"`
	Reason   string `json:"reason" validate:"max=1000"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=1000"`
}

// CreateApplication handles POST /jobs/:id/applications.
func (h *ApplicationHandler) CreateApplication(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	jobID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req createApplicationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	app, err := h.apps.CreateApplication(c.Request().Context(), jobID, req.CandidateID, actor)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, app)
}

// ListApplications handles GET /jobs/:id/applications.
func (h *ApplicationHandler) ListApplications(c echo.Context) error {
	jobID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	apps, err := h.apps.ListApplications(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, apps)
}

// GetApplication handles GET /applications/:id.
func (h *ApplicationHandler) GetApplication(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	app, err := h.apps.GetApplication(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, app)
}

// ChangeStage handles POST /applications/:id/stage.
func (h *ApplicationHandler) ChangeStage(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req changeStageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	app, err := h.apps.ChangeApplicationStage(c.Request().Context(), service.ChangeStageInput{
		ApplicationID:  id,
		TargetStageKey: req.StageKey,
		Actor:          actor,
		Notes:          req.Notes,
		Reason:         req.Reason,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, app)
}

// NextStages handles GET /applications/:id/next-stages.
func (h *ApplicationHandler) NextStages(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stages, err := h.apps.GetAvailableNextStages(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stages)
}

// UpdateStatus handles POST /applications/:id/status.
func (h *ApplicationHandler) UpdateStatus(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	status, err := domain.ParseApplicationStatus(req.Status)
	if err != nil {
		return err
	}
	app, err := h.apps.UpdateApplicationStatus(c.Request().Context(), id, status, actor, req.Reason)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, app)
}
