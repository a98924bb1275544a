package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/service"
)

const maxTemplateBytes = 1 << 20

// PipelineHandler serves pipelines, stages and transitions.
type PipelineHandler struct {
	pipelines *service.PipelineService
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(pipelines *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{pipelines: pipelines}
}

type createPipelineRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	Name           string    `json:"name" validate:"required,max=255"`
	Description    *string   `json:"description" validate:"omitempty,max=2000"`
}

type updatePipelineRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Active      *bool   `json:"active"`
}

type organizationRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
}

type createStageRequest struct {
	Key      string `json:"key" validate:"required,max=100,stagekey"`
	Name     string `json:"name" validate:"required,max=255"`
	Type     string `json:"type" validate:"required,stagetype"`
	Order    int    `json:"order" validate:"min=0"`
	Terminal bool   `json:"terminal"`
}

type updateStageRequest struct {
	Key      *string `json:"key" validate:"omitempty,max=100,stagekey"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Type     *string `json:"type" validate:"omitempty,stagetype"`
	Terminal *bool   `json:"terminal"`
}

type reorderStagesRequest struct {
	StageIDs []uuid.UUID `json:"stage_ids" validate:"required,min=1"`
}

type createTransitionRequest struct {
	FromStageKey string   `json:"from_stage_key" validate:"required,stagekey"`
	ToStageKey   string   `json:"to_stage_key" validate:"required,stagekey"`
	ActionName   *string  `json:"action_name" validate:"omitempty,max=255"`
	AllowedRoles []string `json:"allowed_roles" validate:"dive,required"`
}

type updateTransitionRequest struct {
	ActionName   *string   `json:"action_name" validate:"omitempty,max=255"`
	AllowedRoles *[]string `json:"allowed_roles"`
}

// CreatePipeline handles POST /pipelines.
func (h *PipelineHandler) CreatePipeline(c echo.Context) error {
	var req createPipelineRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.pipelines.CreatePipeline(c.Request().Context(), service.CreatePipelineInput{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, p)
}

// ListPipelines handles GET /pipelines?organization_id=.
func (h *PipelineHandler) ListPipelines(c echo.Context) error {
	orgID, err := queryID(c, "organization_id")
	if err != nil {
		return err
	}
	list, err := h.pipelines.ListPipelines(c.Request().Context(), orgID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, list)
}

// GetPipeline handles GET /pipelines/:id, returning the whole graph.
func (h *PipelineHandler) GetPipeline(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.pipelines.GetPipelineDetail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, detail)
}

// UpdatePipeline handles PATCH /pipelines/:id.
func (h *PipelineHandler) UpdatePipeline(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updatePipelineRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.pipelines.UpdatePipeline(c.Request().Context(), id, service.UpdatePipelineInput{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, p)
}

// DeletePipeline handles DELETE /pipelines/:id.
func (h *PipelineHandler) DeletePipeline(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.pipelines.DeletePipeline(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ImportPipeline handles POST /pipelines/import?organization_id=, reading a
// YAML pipeline template from the request body.
func (h *PipelineHandler) ImportPipeline(c echo.Context) error {
	orgID, err := queryID(c, "organization_id")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxTemplateBytes))
	if err != nil {
		return fmt.Errorf("%w: read template: %v", domain.ErrInvalidInput, err)
	}
	tmpl, err := domain.ParsePipelineTemplate(data)
	if err != nil {
		return err
	}
	detail, err := h.pipelines.ImportTemplate(c.Request().Context(), orgID, tmpl)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, detail)
}

// CreateDefaultPipeline handles POST /pipelines/default.
func (h *PipelineHandler) CreateDefaultPipeline(c echo.Context) error {
	var req organizationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	detail, err := h.pipelines.CreateDefaultPipeline(c.Request().Context(), req.OrganizationID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, detail)
}

// ValidatePipeline handles GET /pipelines/:id/validation.
func (h *PipelineHandler) ValidatePipeline(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	report, err := h.pipelines.ValidatePipeline(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, report)
}

// CreateStage handles POST /pipelines/:id/stages.
func (h *PipelineHandler) CreateStage(c echo.Context) error {
	pipelineID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req createStageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	st, err := h.pipelines.CreateStage(c.Request().Context(), pipelineID, service.CreateStageInput{
		Key:      req.Key,
		Name:     req.Name,
		Type:     domain.StageType(req.Type),
		Order:    req.Order,
		Terminal: req.Terminal,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, st)
}

// ListStages handles GET /pipelines/:id/stages.
func (h *PipelineHandler) ListStages(c echo.Context) error {
	pipelineID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stages, err := h.pipelines.ListStages(c.Request().Context(), pipelineID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stages)
}

// ReorderStages handles PUT /pipelines/:id/stages/order.
func (h *PipelineHandler) ReorderStages(c echo.Context) error {
	pipelineID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reorderStagesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	stages, err := h.pipelines.ReorderStages(c.Request().Context(), pipelineID, req.StageIDs)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stages)
}

// GetStage handles GET /stages/:id.
func (h *PipelineHandler) GetStage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	st, err := h.pipelines.GetStage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, st)
}

// UpdateStage handles PATCH /stages/:id.
func (h *PipelineHandler) UpdateStage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateStageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in := service.UpdateStageInput{Key: req.Key, Name: req.Name, Terminal: req.Terminal}
	if req.Type != nil {
		t := domain.StageType(*req.Type)
		in.Type = &t
	}
	st, err := h.pipelines.UpdateStage(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, st)
}

// DeleteStage handles DELETE /stages/:id.
func (h *PipelineHandler) DeleteStage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.pipelines.DeleteStage(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateTransition handles POST /pipelines/:id/transitions.
func (h *PipelineHandler) CreateTransition(c echo.Context) error {
	pipelineID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req createTransitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t, err := h.pipelines.CreateTransition(c.Request().Context(), pipelineID, service.CreateTransitionInput{
		FromStageKey: req.FromStageKey,
		ToStageKey:   req.ToStageKey,
		ActionName:   req.ActionName,
		AllowedRoles: req.AllowedRoles,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, t)
}

// ListTransitions handles GET /pipelines/:id/transitions.
func (h *PipelineHandler) ListTransitions(c echo.Context) error {
	pipelineID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.pipelines.ListTransitions(c.Request().Context(), pipelineID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, list)
}

// GetTransition handles GET /transitions/:id.
func (h *PipelineHandler) GetTransition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.pipelines.GetTransition(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, t)
}

// UpdateTransition handles PATCH /transitions/:id.
func (h *PipelineHandler) UpdateTransition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateTransitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t, err := h.pipelines.UpdateTransition(c.Request().Context(), id, service.UpdateTransitionInput{
		ActionName:   req.ActionName,
		AllowedRoles: req.AllowedRoles,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, t)
}

// DeleteTransition handles DELETE /transitions/:id.
func (h *PipelineHandler) DeleteTransition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.pipelines.DeleteTransition(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: malformed request body", domain.ErrInvalidInput)
	}
	return c.Validate(req)
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

func queryID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.QueryParam(name))
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: name, Message: "query parameter must be a UUID"}
	}
	return id, nil
}
