package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

const jobColumns = `id, organization_id, title, status, pipeline_id, hire_limit, max_applications,
	posted_date, closed_date, expires_at, status_changed_at, version, created_at, updated_at`

// JobRepository handles job data access.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob inserts a job.
func (r *JobRepository) CreateJob(ctx context.Context, j domain.Job) (*domain.Job, error) {
	var out domain.Job
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO jobs (id, organization_id, title, status, pipeline_id, hire_limit, max_applications,
		                   posted_date, closed_date, expires_at, status_changed_at, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
		 RETURNING `+jobColumns,
		j.ID, j.OrganizationID, j.Title, j.Status, j.PipelineID, j.HireLimit, j.MaxApplications,
		j.PostedDate, j.ClosedDate, j.ExpiresAt, j.StatusChangedAt, j.CreatedAt, j.UpdatedAt,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "create job %q", j.Title)
	}
	return &out, nil
}

// FindJobByID retrieves a job by its ID.
func (r *JobRepository) FindJobByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return r.findJob(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// FindJobByIDForUpdate retrieves and row-locks a job.
func (r *JobRepository) FindJobByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return r.findJob(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

func (r *JobRepository) findJob(ctx context.Context, query string, id uuid.UUID) (*domain.Job, error) {
	var j domain.Job
	if err := r.db.conn(ctx).GetContext(ctx, &j, query, id); err != nil {
		return nil, wrap(err, "find job %s", id)
	}
	return &j, nil
}

// ListJobs returns an organization's jobs, newest first.
func (r *JobRepository) ListJobs(ctx context.Context, organizationID uuid.UUID) ([]domain.Job, error) {
	out := []domain.Job{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+jobColumns+` FROM jobs WHERE organization_id = $1 ORDER BY created_at DESC`, organizationID)
	if err != nil {
		return nil, wrap(err, "list jobs")
	}
	return out, nil
}

// ListExpiredActiveJobs returns active jobs whose deadline is at or before now.
func (r *JobRepository) ListExpiredActiveJobs(ctx context.Context, now time.Time) ([]domain.Job, error) {
	out := []domain.Job{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		 ORDER BY expires_at`,
		domain.JobStatusActive, now)
	if err != nil {
		return nil, wrap(err, "list expired jobs")
	}
	return out, nil
}

// UpdateJob writes a job if nobody changed it since it was read.
func (r *JobRepository) UpdateJob(ctx context.Context, j domain.Job) (*domain.Job, error) {
	var out domain.Job
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`UPDATE jobs
		 SET title = $1, status = $2, pipeline_id = $3, hire_limit = $4, max_applications = $5,
		     posted_date = $6, closed_date = $7, expires_at = $8, status_changed_at = $9,
		     updated_at = $10, version = version + 1
		 WHERE id = $11 AND version = $12
		 RETURNING `+jobColumns,
		j.Title, j.Status, j.PipelineID, j.HireLimit, j.MaxApplications,
		j.PostedDate, j.ClosedDate, j.ExpiresAt, j.StatusChangedAt,
		j.UpdatedAt, j.ID, j.Version,
	).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update job %s: %w: modified concurrently", j.ID, domain.ErrConflict)
	}
	if err != nil {
		return nil, wrap(err, "update job %s", j.ID)
	}
	return &out, nil
}
