package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

const applicationColumns = `id, job_id, candidate_id, status, current_stage_key, current_stage_name,
	status_history, pipeline_stage_history, applied_at, last_status_change,
	days_since_applied, days_in_current_status, version, created_at, updated_at`

// ApplicationRepository handles application data access.
type ApplicationRepository struct {
	db *DB
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db *DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// CreateApplication inserts an application.
func (r *ApplicationRepository) CreateApplication(ctx context.Context, a domain.Application) (*domain.Application, error) {
	var out domain.Application
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO applications (id, job_id, candidate_id, status, current_stage_key, current_stage_name,
		                           status_history, pipeline_stage_history, applied_at, last_status_change,
		                           days_since_applied, days_in_current_status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		 RETURNING `+applicationColumns,
		a.ID, a.JobID, a.CandidateID, a.Status, a.CurrentStageKey, a.CurrentStageName,
		a.StatusHistory, a.PipelineStageHistory, a.AppliedAt, a.LastStatusChange,
		a.DaysSinceApplied, a.DaysInCurrentStatus, a.CreatedAt, a.UpdatedAt,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "create application for job %s", a.JobID)
	}
	return &out, nil
}

// FindApplicationByID retrieves an application by its ID.
func (r *ApplicationRepository) FindApplicationByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return r.findApplication(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
}

// FindApplicationByIDForUpdate retrieves and row-locks an application.
func (r *ApplicationRepository) FindApplicationByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return r.findApplication(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id)
}

func (r *ApplicationRepository) findApplication(ctx context.Context, query string, id uuid.UUID) (*domain.Application, error) {
	var a domain.Application
	if err := r.db.conn(ctx).GetContext(ctx, &a, query, id); err != nil {
		return nil, wrap(err, "find application %s", id)
	}
	return &a, nil
}

// ListApplicationsByJob returns a job's applications, oldest first.
func (r *ApplicationRepository) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	out := []domain.Application{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+applicationColumns+` FROM applications WHERE job_id = $1 ORDER BY applied_at`, jobID)
	if err != nil {
		return nil, wrap(err, "list applications for job %s", jobID)
	}
	return out, nil
}

// CountApplicationOutcomes aggregates a job's applications by outcome.
func (r *ApplicationRepository) CountApplicationOutcomes(ctx context.Context, jobID uuid.UUID) (domain.ApplicationCounts, error) {
	var c domain.ApplicationCounts
	err := r.db.conn(ctx).GetContext(ctx, &c,
		`SELECT COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE status = $2) AS hired,
		        COUNT(*) FILTER (WHERE status = $3) AS rejected,
		        COUNT(*) FILTER (WHERE status NOT IN ($2, $3, $4)) AS active
		 FROM applications WHERE job_id = $1`,
		jobID, domain.ApplicationStatusHired, domain.ApplicationStatusRejected, domain.ApplicationStatusWithdrawn)
	if err != nil {
		return domain.ApplicationCounts{}, wrap(err, "count applications for job %s", jobID)
	}
	return c, nil
}

// UpdateApplication writes an application if nobody changed it since it was read.
func (r *ApplicationRepository) UpdateApplication(ctx context.Context, a domain.Application) (*domain.Application, error) {
	var out domain.Application
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`UPDATE applications
		 SET status = $1, current_stage_key = $2, current_stage_name = $3,
		     status_history = $4, pipeline_stage_history = $5, last_status_change = $6,
		     days_since_applied = $7, days_in_current_status = $8,
		     updated_at = $9, version = version + 1
		 WHERE id = $10 AND version = $11
		 RETURNING `+applicationColumns,
		a.Status, a.CurrentStageKey, a.CurrentStageName,
		a.StatusHistory, a.PipelineStageHistory, a.LastStatusChange,
		a.DaysSinceApplied, a.DaysInCurrentStatus,
		a.UpdatedAt, a.ID, a.Version,
	).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update application %s: %w: modified concurrently", a.ID, domain.ErrConflict)
	}
	if err != nil {
		return nil, wrap(err, "update application %s", a.ID)
	}
	return &out, nil
}
