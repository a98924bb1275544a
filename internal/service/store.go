package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

// TxRunner runs fn inside one unit of work. Stores called with the context
// passed to fn participate in that unit of work.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PipelineStore defines pipeline graph persistence consumed by the services.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error)
	FindPipelineByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
	FindPipelineByName(ctx context.Context, organizationID uuid.UUID, name string) (*domain.Pipeline, error)
	ListPipelines(ctx context.Context, organizationID uuid.UUID) ([]domain.Pipeline, error)
	UpdatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error)
	DeletePipeline(ctx context.Context, id uuid.UUID) error
	LockPipeline(ctx context.Context, id uuid.UUID, mode domain.LockMode) error

	CreateStage(ctx context.Context, s domain.Stage) (*domain.Stage, error)
	FindStageByID(ctx context.Context, id uuid.UUID) (*domain.Stage, error)
	FindStageByKey(ctx context.Context, pipelineID uuid.UUID, key string) (*domain.Stage, error)
	ListStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error)
	UpdateStage(ctx context.Context, s domain.Stage) (*domain.Stage, error)
	ReorderStages(ctx context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) error
	DeleteStage(ctx context.Context, id uuid.UUID) error

	CreateTransition(ctx context.Context, t domain.Transition) (*domain.Transition, error)
	FindTransitionByID(ctx context.Context, id uuid.UUID) (*domain.Transition, error)
	FindTransition(ctx context.Context, pipelineID uuid.UUID, fromKey, toKey string) (*domain.Transition, error)
	ListTransitions(ctx context.Context, pipelineID uuid.UUID) ([]domain.Transition, error)
	CountTransitionsTouching(ctx context.Context, pipelineID uuid.UUID, key string) (int, error)
	UpdateTransition(ctx context.Context, t domain.Transition) (*domain.Transition, error)
	DeleteTransition(ctx context.Context, id uuid.UUID) error

	CountJobsUsingPipeline(ctx context.Context, pipelineID uuid.UUID) (int, error)
}

// JobStore defines job persistence consumed by the services.
type JobStore interface {
	CreateJob(ctx context.Context, j domain.Job) (*domain.Job, error)
	FindJobByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	// FindJobByIDForUpdate locks the job row until the surrounding unit of work ends.
	FindJobByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListJobs(ctx context.Context, organizationID uuid.UUID) ([]domain.Job, error)
	ListExpiredActiveJobs(ctx context.Context, now time.Time) ([]domain.Job, error)
	// UpdateJob persists j if its version still matches, bumping the version.
	UpdateJob(ctx context.Context, j domain.Job) (*domain.Job, error)
}

// ApplicationStore defines application persistence consumed by the services.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, a domain.Application) (*domain.Application, error)
	FindApplicationByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	// FindApplicationByIDForUpdate locks the application row until the surrounding unit of work ends.
	FindApplicationByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error)
	CountApplicationOutcomes(ctx context.Context, jobID uuid.UUID) (domain.ApplicationCounts, error)
	// UpdateApplication persists a if its version still matches, bumping the version.
	UpdateApplication(ctx context.Context, a domain.Application) (*domain.Application, error)
}

// EventPublisher fans committed changes out to other subsystems.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

func publish(ctx context.Context, events EventPublisher, event domain.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		slog.Warn("publish event failed", "type", event.Type, "job_id", event.JobID, "error", err)
	}
}
