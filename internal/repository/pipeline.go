package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

const (
	pipelineColumns   = `id, organization_id, name, description, active, created_at, updated_at`
	stageColumns      = `id, pipeline_id, key, name, type, stage_order, terminal, created_at, updated_at`
	transitionColumns = `id, pipeline_id, from_stage_key, to_stage_key, action_name, allowed_roles, created_at, updated_at`
)

// PipelineRepository handles pipeline, stage and transition data access.
type PipelineRepository struct {
	db *DB
}

// NewPipelineRepository creates a new PipelineRepository.
func NewPipelineRepository(db *DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

// CreatePipeline inserts a pipeline.
func (r *PipelineRepository) CreatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	var out domain.Pipeline
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO pipelines (id, organization_id, name, description, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+pipelineColumns,
		p.ID, p.OrganizationID, p.Name, p.Description, p.Active, p.CreatedAt, p.UpdatedAt,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "create pipeline %q", p.Name)
	}
	return &out, nil
}

// FindPipelineByID retrieves a pipeline by its ID.
func (r *PipelineRepository) FindPipelineByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.db.conn(ctx).GetContext(ctx, &p,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "find pipeline %s", id)
	}
	return &p, nil
}

// FindPipelineByName retrieves a pipeline by organization and name.
func (r *PipelineRepository) FindPipelineByName(ctx context.Context, organizationID uuid.UUID, name string) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := r.db.conn(ctx).GetContext(ctx, &p,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE organization_id = $1 AND name = $2`, organizationID, name)
	if err != nil {
		return nil, wrap(err, "find pipeline %q", name)
	}
	return &p, nil
}

// ListPipelines returns an organization's pipelines ordered by name.
func (r *PipelineRepository) ListPipelines(ctx context.Context, organizationID uuid.UUID) ([]domain.Pipeline, error) {
	out := []domain.Pipeline{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE organization_id = $1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, wrap(err, "list pipelines")
	}
	return out, nil
}

// UpdatePipeline writes a pipeline's mutable fields.
func (r *PipelineRepository) UpdatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	var out domain.Pipeline
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`UPDATE pipelines SET name = $1, description = $2, active = $3, updated_at = $4
		 WHERE id = $5
		 RETURNING `+pipelineColumns,
		p.Name, p.Description, p.Active, p.UpdatedAt, p.ID,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "update pipeline %s", p.ID)
	}
	return &out, nil
}

// DeletePipeline removes a pipeline; stages and transitions cascade.
func (r *PipelineRepository) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	return requireRow(res, err, "delete pipeline %s", id)
}

// LockPipeline row-locks a pipeline for the rest of the transaction.
func (r *PipelineRepository) LockPipeline(ctx context.Context, id uuid.UUID, mode domain.LockMode) error {
	clause := "FOR SHARE"
	if mode == domain.LockExclusive {
		clause = "FOR UPDATE"
	}
	var locked uuid.UUID
	err := r.db.conn(ctx).GetContext(ctx, &locked, `SELECT id FROM pipelines WHERE id = $1 `+clause, id)
	if err != nil {
		return wrap(err, "lock pipeline %s", id)
	}
	return nil
}

// CreateStage inserts a stage.
func (r *PipelineRepository) CreateStage(ctx context.Context, s domain.Stage) (*domain.Stage, error) {
	var out domain.Stage
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO stages (id, pipeline_id, key, name, type, stage_order, terminal, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+stageColumns,
		s.ID, s.PipelineID, s.Key, s.Name, s.Type, s.Order, s.Terminal, s.CreatedAt, s.UpdatedAt,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "create stage %q", s.Key)
	}
	return &out, nil
}

// FindStageByID retrieves a stage by its ID.
func (r *PipelineRepository) FindStageByID(ctx context.Context, id uuid.UUID) (*domain.Stage, error) {
	var s domain.Stage
	err := r.db.conn(ctx).GetContext(ctx, &s, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "find stage %s", id)
	}
	return &s, nil
}

// FindStageByKey retrieves a stage by pipeline and key.
func (r *PipelineRepository) FindStageByKey(ctx context.Context, pipelineID uuid.UUID, key string) (*domain.Stage, error) {
	var s domain.Stage
	err := r.db.conn(ctx).GetContext(ctx, &s,
		`SELECT `+stageColumns+` FROM stages WHERE pipeline_id = $1 AND key = $2`, pipelineID, key)
	if err != nil {
		return nil, wrap(err, "find stage %q", key)
	}
	return &s, nil
}

// ListStages returns a pipeline's stages in order.
func (r *PipelineRepository) ListStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	out := []domain.Stage{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+stageColumns+` FROM stages WHERE pipeline_id = $1 ORDER BY stage_order`, pipelineID)
	if err != nil {
		return nil, wrap(err, "list stages")
	}
	return out, nil
}

// UpdateStage writes a stage's mutable fields.
func (r *PipelineRepository) UpdateStage(ctx context.Context, s domain.Stage) (*domain.Stage, error) {
	var out domain.Stage
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`UPDATE stages SET key = $1, name = $2, type = $3, terminal = $4, updated_at = $5
		 WHERE id = $6
		 RETURNING `+stageColumns,
		s.Key, s.Name, s.Type, s.Terminal, s.UpdatedAt, s.ID,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "update stage %s", s.ID)
	}
	return &out, nil
}

// ReorderStages assigns orders 1..n following stageIDs. Orders are first
// negated so the per-row updates never collide on the unique order index.
func (r *PipelineRepository) ReorderStages(ctx context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) error {
	q := r.db.conn(ctx)
	if _, err := q.ExecContext(ctx,
		`UPDATE stages SET stage_order = -stage_order WHERE pipeline_id = $1`, pipelineID); err != nil {
		return wrap(err, "reorder stages")
	}
	for i, id := range stageIDs {
		res, err := q.ExecContext(ctx,
			`UPDATE stages SET stage_order = $1, updated_at = NOW() WHERE id = $2 AND pipeline_id = $3`,
			i+1, id, pipelineID)
		if err := requireRow(res, err, "reorder stage %s", id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStage removes a stage.
func (r *PipelineRepository) DeleteStage(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM stages WHERE id = $1`, id)
	return requireRow(res, err, "delete stage %s", id)
}

// CreateTransition inserts a transition.
func (r *PipelineRepository) CreateTransition(ctx context.Context, t domain.Transition) (*domain.Transition, error) {
	var out domain.Transition
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO transitions (id, pipeline_id, from_stage_key, to_stage_key, action_name, allowed_roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+transitionColumns,
		t.ID, t.PipelineID, t.FromStageKey, t.ToStageKey, t.ActionName, t.AllowedRoles, t.CreatedAt, t.UpdatedAt,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "create transition %s -> %s", t.FromStageKey, t.ToStageKey)
	}
	return &out, nil
}

// FindTransitionByID retrieves a transition by its ID.
func (r *PipelineRepository) FindTransitionByID(ctx context.Context, id uuid.UUID) (*domain.Transition, error) {
	var t domain.Transition
	err := r.db.conn(ctx).GetContext(ctx, &t, `SELECT `+transitionColumns+` FROM transitions WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "find transition %s", id)
	}
	return &t, nil
}

// FindTransition retrieves the edge fromKey -> toKey of a pipeline.
func (r *PipelineRepository) FindTransition(ctx context.Context, pipelineID uuid.UUID, fromKey, toKey string) (*domain.Transition, error) {
	var t domain.Transition
	err := r.db.conn(ctx).GetContext(ctx, &t,
		`SELECT `+transitionColumns+` FROM transitions
		 WHERE pipeline_id = $1 AND from_stage_key = $2 AND to_stage_key = $3`,
		pipelineID, fromKey, toKey)
	if err != nil {
		return nil, wrap(err, "find transition %s -> %s", fromKey, toKey)
	}
	return &t, nil
}

// ListTransitions returns all transitions of a pipeline.
func (r *PipelineRepository) ListTransitions(ctx context.Context, pipelineID uuid.UUID) ([]domain.Transition, error) {
	out := []domain.Transition{}
	err := r.db.conn(ctx).SelectContext(ctx, &out,
		`SELECT `+transitionColumns+` FROM transitions WHERE pipeline_id = $1 ORDER BY from_stage_key, to_stage_key`, pipelineID)
	if err != nil {
		return nil, wrap(err, "list transitions")
	}
	return out, nil
}

// CountTransitionsTouching counts transitions with key at either end.
func (r *PipelineRepository) CountTransitionsTouching(ctx context.Context, pipelineID uuid.UUID, key string) (int, error) {
	var n int
	err := r.db.conn(ctx).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM transitions WHERE pipeline_id = $1 AND (from_stage_key = $2 OR to_stage_key = $2)`,
		pipelineID, key)
	if err != nil {
		return 0, wrap(err, "count transitions for %q", key)
	}
	return n, nil
}

// UpdateTransition writes a transition's label and roles.
func (r *PipelineRepository) UpdateTransition(ctx context.Context, t domain.Transition) (*domain.Transition, error) {
	var out domain.Transition
	err := r.db.conn(ctx).QueryRowxContext(ctx,
		`UPDATE transitions SET action_name = $1, allowed_roles = $2, updated_at = $3
		 WHERE id = $4
		 RETURNING `+transitionColumns,
		t.ActionName, t.AllowedRoles, t.UpdatedAt, t.ID,
	).StructScan(&out)
	if err != nil {
		return nil, wrap(err, "update transition %s", t.ID)
	}
	return &out, nil
}

// DeleteTransition removes a transition.
func (r *PipelineRepository) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM transitions WHERE id = $1`, id)
	return requireRow(res, err, "delete transition %s", id)
}

// CountJobsUsingPipeline counts the jobs attached to a pipeline.
func (r *PipelineRepository) CountJobsUsingPipeline(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	var n int
	if err := r.db.conn(ctx).GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs WHERE pipeline_id = $1`, pipelineID); err != nil {
		return 0, fmt.Errorf("count jobs for pipeline %s: %w", pipelineID, err)
	}
	return n, nil
}
