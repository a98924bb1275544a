package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/lifecycle"
)

// JobService persists job postings and drives their lifecycle machine.
type JobService struct {
	jobs      JobStore
	pipelines PipelineStore
	tx        TxRunner
	events    EventPublisher
	machine   *lifecycle.Machine
	now       func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(jobs JobStore, pipelines PipelineStore, tx TxRunner, events EventPublisher) *JobService {
	return &JobService{
		jobs:      jobs,
		pipelines: pipelines,
		tx:        tx,
		events:    events,
		machine:   lifecycle.New(),
		now:       time.Now,
	}
}

// CreateJobInput holds the fields of a new job posting.
type CreateJobInput struct {
	OrganizationID  uuid.UUID
	Title           string
	PipelineID      *uuid.UUID
	HireLimit       *int
	MaxApplications *int
	ExpiresAt       *time.Time
}

// CreateJob creates a job in draft.
func (s *JobService) CreateJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	if in.Title == "" {
		return nil, &domain.ValidationError{Field: "title", Message: "is required"}
	}
	if in.HireLimit != nil && *in.HireLimit < 1 {
		return nil, &domain.ValidationError{Field: "hire_limit", Message: "must be at least 1"}
	}
	if in.MaxApplications != nil && *in.MaxApplications < 1 {
		return nil, &domain.ValidationError{Field: "max_applications", Message: "must be at least 1"}
	}
	var created *domain.Job
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if in.PipelineID != nil {
			if err := s.checkPipeline(ctx, in.OrganizationID, *in.PipelineID); err != nil {
				return err
			}
		}
		now := s.now()
		var err error
		created, err = s.jobs.CreateJob(ctx, domain.Job{
			ID:              uuid.New(),
			OrganizationID:  in.OrganizationID,
			Title:           in.Title,
			Status:          domain.JobStatusDraft,
			PipelineID:      in.PipelineID,
			HireLimit:       in.HireLimit,
			MaxApplications: in.MaxApplications,
			ExpiresAt:       in.ExpiresAt,
			StatusChangedAt: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetJob retrieves a job by ID.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.FindJobByID(ctx, id)
}

// ListJobs returns the jobs of an organization.
func (s *JobService) ListJobs(ctx context.Context, organizationID uuid.UUID) ([]domain.Job, error) {
	return s.jobs.ListJobs(ctx, organizationID)
}

// AssignPipeline attaches a pipeline to a job that has none yet.
func (s *JobService) AssignPipeline(ctx context.Context, jobID, pipelineID uuid.UUID) (*domain.Job, error) {
	var updated *domain.Job
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := s.jobs.FindJobByIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.PipelineID != nil {
			return fmt.Errorf("%w: job already uses pipeline %s", domain.ErrConflict, *job.PipelineID)
		}
		if err := s.checkPipeline(ctx, job.OrganizationID, pipelineID); err != nil {
			return err
		}
		job.PipelineID = &pipelineID
		job.UpdatedAt = s.now()
		updated, err = s.jobs.UpdateJob(ctx, *job)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *JobService) checkPipeline(ctx context.Context, orgID, pipelineID uuid.UUID) error {
	p, err := s.pipelines.FindPipelineByID(ctx, pipelineID)
	if err != nil {
		return err
	}
	if p.OrganizationID != orgID {
		return fmt.Errorf("%w: pipeline belongs to another organization", domain.ErrInvalidInput)
	}
	if !p.Active {
		return fmt.Errorf("%w: pipeline %q is inactive", domain.ErrInvalidInput, p.Name)
	}
	return nil
}

// CurrentState returns the lifecycle strategy of the job's status.
func (s *JobService) CurrentState(job domain.Job) (lifecycle.Strategy, error) {
	return s.machine.CurrentState(job)
}

// CanTransitionTo reports whether job may move to target.
func (s *JobService) CanTransitionTo(job domain.Job, target domain.JobStatus) bool {
	return s.machine.CanTransitionTo(job, target)
}

// AvailableTransitions lists the statuses a job may move to.
func (s *JobService) AvailableTransitions(ctx context.Context, jobID uuid.UUID) ([]domain.JobStatus, error) {
	job, err := s.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.machine.AvailableTransitions(*job), nil
}

// TransitionJob moves a job to target through the lifecycle machine and
// persists the result.
func (s *JobService) TransitionJob(ctx context.Context, jobID uuid.UUID, target domain.JobStatus, actor domain.Actor, reason string) (*domain.Job, error) {
	var (
		updated *domain.Job
		from    domain.JobStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := s.jobs.FindJobByIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		from = job.Status
		now := s.now()
		if err := s.machine.TransitionTo(job, target, lifecycle.Context{Actor: actor, Reason: reason, At: now}); err != nil {
			return err
		}
		job.UpdatedAt = now
		updated, err = s.jobs.UpdateJob(ctx, *job)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("job status changed", "job_id", jobID, "from", from, "to", target, "actor", actor.ID)
	publish(ctx, s.events, domain.Event{
		Type:      domain.EventJobStatusChanged,
		JobID:     jobID,
		OldStatus: string(from),
		NewStatus: string(target),
		Actor:     actor.ID,
		Reason:    reason,
		Timestamp: updated.StatusChangedAt,
	})
	return updated, nil
}

// ExpireDue moves every active job whose deadline has passed to expired.
// It returns the number of jobs expired.
func (s *JobService) ExpireDue(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListExpiredActiveJobs(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}
	expired := 0
	for _, job := range jobs {
		if _, err := s.TransitionJob(ctx, job.ID, domain.JobStatusExpired, domain.SystemActor(), "posting deadline passed"); err != nil {
			slog.Warn("expire job failed", "job_id", job.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}
