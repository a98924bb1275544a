package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/service"
)

// JobHandler serves job postings and their lifecycle.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	OrganizationID  uuid.UUID  `json:"organization_id" validate:"required"`
	Title           string     `json:"title" validate:"required,max=255"`
	PipelineID      *uuid.UUID `json:"pipeline_id"`
	HireLimit       *int       `json:"hire_limit" validate:"omitempty,min=1"`
	MaxApplications *int       `json:"max_applications" validate:"omitempty,min=1"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

type assignPipelineRequest struct {
	PipelineID uuid.UUID `json:"pipeline_id" validate:"required"`
}

type transitionJobRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=1000"`
}

type jobTransitionsResponse struct {
	Status      domain.JobStatus   `json:"status"`
	Terminal    bool               `json:"terminal"`
	Transitions []domain.JobStatus `json:"transitions"`
}

// CreateJob handles POST /jobs.
func (h *JobHandler) CreateJob(c echo.Context) error {
	var req createJobRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	job, err := h.jobs.CreateJob(c.Request().Context(), service.CreateJobInput{
		OrganizationID:  req.OrganizationID,
		Title:           req.Title,
		PipelineID:      req.PipelineID,
		HireLimit:       req.HireLimit,
		MaxApplications: req.MaxApplications,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, job)
}

// ListJobs handles GET /jobs?organization_id=.
func (h *JobHandler) ListJobs(c echo.Context) error {
	orgID, err := queryID(c, "organization_id")
	if err != nil {
		return err
	}
	jobs, err := h.jobs.ListJobs(c.Request().Context(), orgID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, jobs)
}

// GetJob handles GET /jobs/:id.
func (h *JobHandler) GetJob(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	job, err := h.jobs.GetJob(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

// AssignPipeline handles PUT /jobs/:id/pipeline.
func (h *JobHandler) AssignPipeline(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req assignPipelineRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	job, err := h.jobs.AssignPipeline(c.Request().Context(), id, req.PipelineID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

// ListTransitions handles GET /jobs/:id/transitions.
func (h *JobHandler) ListTransitions(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	job, err := h.jobs.GetJob(c.Request().Context(), id)
	if err != nil {
		return err
	}
	state, err := h.jobs.CurrentState(*job)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, jobTransitionsResponse{
		Status:      job.Status,
		Terminal:    state.IsTerminal(),
		Transitions: state.AvailableTransitions(),
	})
}

// TransitionJob handles POST /jobs/:id/transitions.
func (h *JobHandler) TransitionJob(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req transitionJobRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	target, err := domain.ParseJobStatus(req.Status)
	if err != nil {
		return err
	}
	job, err := h.jobs.TransitionJob(c.Request().Context(), id, target, actor, req.Reason)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}
