package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

// ApplicationService keeps an application's pipeline stage, status and
// audit trail consistent.
type ApplicationService struct {
	apps      ApplicationStore
	jobs      JobStore
	pipelines PipelineStore
	tx        TxRunner
	events    EventPublisher
	trigger   *AutoTransitionTrigger
	now       func() time.Time
}

// NewApplicationService creates a new ApplicationService. trigger may be nil.
func NewApplicationService(apps ApplicationStore, jobs JobStore, pipelines PipelineStore, tx TxRunner, events EventPublisher, trigger *AutoTransitionTrigger) *ApplicationService {
	return &ApplicationService{
		apps:      apps,
		jobs:      jobs,
		pipelines: pipelines,
		tx:        tx,
		events:    events,
		trigger:   trigger,
		now:       time.Now,
	}
}

// ChangeStageInput describes a requested stage move.
type ChangeStageInput struct {
	ApplicationID  uuid.UUID
	TargetStageKey string
	Actor          domain.Actor
	Notes          string
	Reason         string
}

// CreateApplication registers a new application for an active job.
func (s *ApplicationService) CreateApplication(ctx context.Context, jobID, candidateID uuid.UUID, actor domain.Actor) (*domain.Application, error) {
	var created *domain.Application
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := s.jobs.FindJobByIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusActive {
			return fmt.Errorf("%w: job is %s and does not accept applications", domain.ErrInvalidInput, job.Status)
		}
		now := s.now()
		app := domain.Application{
			ID:               uuid.New(),
			JobID:            jobID,
			CandidateID:      candidateID,
			AppliedAt:        now,
			LastStatusChange: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}.WithStatus(domain.StatusHistoryEntry{
			Status:    domain.ApplicationStatusNew,
			ChangedAt: now,
			ChangedBy: actor.ID,
			Reason:    "application submitted",
		})
		app.Recompute(now)
		created, err = s.apps.CreateApplication(ctx, app)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.trigger != nil {
		if _, err := s.trigger.Evaluate(ctx, jobID); err != nil {
			slog.Warn("auto transition failed", "job_id", jobID, "error", err)
		}
	}
	return created, nil
}

// GetApplication retrieves an application with fresh day counters.
func (s *ApplicationService) GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	app, err := s.apps.FindApplicationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	app.Recompute(s.now())
	return app, nil
}

// ListApplications returns the applications of a job.
func (s *ApplicationService) ListApplications(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	if _, err := s.jobs.FindJobByID(ctx, jobID); err != nil {
		return nil, err
	}
	apps, err := s.apps.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range apps {
		apps[i].Recompute(now)
	}
	return apps, nil
}

// ChangeApplicationStage moves an application to another stage of its job's
// pipeline. The move must follow a transition from the current stage unless
// no current stage can be resolved. Status, stage pointer and both audit
// logs are written in one unit of work; the application row stays locked
// until it commits.
func (s *ApplicationService) ChangeApplicationStage(ctx context.Context, in ChangeStageInput) (*domain.Application, error) {
	var (
		updated   *domain.Application
		oldStatus domain.ApplicationStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		app, err := s.apps.FindApplicationByIDForUpdate(ctx, in.ApplicationID)
		if err != nil {
			return err
		}
		job, err := s.jobs.FindJobByID(ctx, app.JobID)
		if err != nil {
			return err
		}
		if job.PipelineID == nil {
			return fmt.Errorf("%w: job has no active hiring pipeline", domain.ErrInvalidInput)
		}
		if err := s.pipelines.LockPipeline(ctx, *job.PipelineID, domain.LockShared); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: job has no active hiring pipeline", domain.ErrInvalidInput)
			}
			return err
		}
		g, err := loadGraph(ctx, s.pipelines, *job.PipelineID)
		if err != nil {
			return err
		}

		target, ok := g.Stage(in.TargetStageKey)
		if !ok {
			return fmt.Errorf("%w: stage %q does not exist in the job's pipeline", domain.ErrInvalidInput, in.TargetStageKey)
		}

		var (
			previousKey string
			actionName  string
		)
		if current, ok := g.CurrentStage(*app); ok {
			t, ok := g.Transition(current.Key, target.Key)
			if !ok {
				return &domain.TransitionError{
					Entity:    "stage",
					From:      current.Key,
					To:        target.Key,
					Available: stageKeys(g.Next(current.Key)),
				}
			}
			if !t.Permits(in.Actor.Roles) {
				return fmt.Errorf("%w: transition %s -> %s requires one of roles %v", domain.ErrForbidden, current.Key, target.Key, []string(t.AllowedRoles))
			}
			previousKey = current.Key
			if t.ActionName != nil {
				actionName = *t.ActionName
			}
		}

		now := s.now()
		oldStatus = app.Status
		next := app.WithStatus(domain.StatusHistoryEntry{
			Status:    domain.StatusForStage(target),
			ChangedAt: now,
			ChangedBy: in.Actor.ID,
			Reason:    in.Notes,
			StageKey:  target.Key,
			StageName: target.Name,
		}).WithStage(domain.StageHistoryEntry{
			StageID:          target.ID,
			StageKey:         target.Key,
			StageName:        target.Name,
			ChangedAt:        now,
			ChangedBy:        in.Actor.ID,
			Reason:           firstNonEmpty(in.Reason, in.Notes),
			PreviousStageKey: previousKey,
			ActionName:       actionName,
		})
		next.UpdatedAt = now
		next.Recompute(now)

		updated, err = s.apps.UpdateApplication(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("application stage changed",
		"application_id", updated.ID,
		"stage", in.TargetStageKey,
		"from", oldStatus,
		"to", updated.Status,
		"actor", in.Actor.ID,
	)
	s.afterStatusChange(ctx, *updated, oldStatus, in.Actor, firstNonEmpty(in.Reason, in.Notes))
	return updated, nil
}

// UpdateApplicationStatus sets a status directly, without consulting the pipeline.
func (s *ApplicationService) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status domain.ApplicationStatus, actor domain.Actor, reason string) (*domain.Application, error) {
	var (
		updated   *domain.Application
		oldStatus domain.ApplicationStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		app, err := s.apps.FindApplicationByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		oldStatus = app.Status
		next := app.WithStatus(domain.StatusHistoryEntry{
			Status:    status,
			ChangedAt: now,
			ChangedBy: actor.ID,
			Reason:    reason,
		})
		next.UpdatedAt = now
		next.Recompute(now)
		updated, err = s.apps.UpdateApplication(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("application status changed", "application_id", id, "from", oldStatus, "to", status, "actor", actor.ID)
	s.afterStatusChange(ctx, *updated, oldStatus, actor, reason)
	return updated, nil
}

// GetAvailableNextStages lists the stages an application can move to next.
// Without a resolvable current stage, the pipeline's entry stages are returned.
func (s *ApplicationService) GetAvailableNextStages(ctx context.Context, applicationID uuid.UUID) ([]domain.Stage, error) {
	app, err := s.apps.FindApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.FindJobByID(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if job.PipelineID == nil {
		return nil, fmt.Errorf("%w: job has no active hiring pipeline", domain.ErrInvalidInput)
	}
	g, err := loadGraph(ctx, s.pipelines, *job.PipelineID)
	if err != nil {
		return nil, err
	}
	current, ok := g.CurrentStage(*app)
	if !ok {
		return g.EntryStages(), nil
	}
	return g.Next(current.Key), nil
}

func (s *ApplicationService) afterStatusChange(ctx context.Context, app domain.Application, oldStatus domain.ApplicationStatus, actor domain.Actor, reason string) {
	id := app.ID
	event := domain.Event{
		Type:          domain.EventApplicationStatusChanged,
		ApplicationID: &id,
		JobID:         app.JobID,
		OldStatus:     string(oldStatus),
		NewStatus:     string(app.Status),
		Actor:         actor.ID,
		Reason:        reason,
		Timestamp:     app.LastStatusChange,
	}
	if app.CurrentStageKey != nil && len(app.StatusHistory) > 0 && app.StatusHistory[len(app.StatusHistory)-1].StageKey != "" {
		event.Type = domain.EventApplicationStageChanged
		event.StageKey = *app.CurrentStageKey
	}
	publish(ctx, s.events, event)

	if s.trigger == nil || !app.Status.IsFinalOutcome() || oldStatus == app.Status {
		return
	}
	if target, err := s.trigger.Evaluate(ctx, app.JobID); err != nil {
		slog.Warn("auto transition failed", "job_id", app.JobID, "error", err)
	} else if target != "" {
		slog.Info("job auto transitioned", "job_id", app.JobID, "to", target)
	}
}

func stageKeys(stages []domain.Stage) []string {
	out := make([]string, len(stages))
	for i, st := range stages {
		out[i] = st.Key
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
