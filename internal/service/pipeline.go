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

// PipelineService manages pipeline graphs: pipelines, their stages and the
// transitions between stages.
type PipelineService struct {
	store PipelineStore
	tx    TxRunner
	now   func() time.Time
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(store PipelineStore, tx TxRunner) *PipelineService {
	return &PipelineService{store: store, tx: tx, now: time.Now}
}

// CreatePipelineInput holds the fields of a new pipeline.
type CreatePipelineInput struct {
	OrganizationID uuid.UUID
	Name           string
	Description    *string
}

// UpdatePipelineInput holds optional pipeline changes.
type UpdatePipelineInput struct {
	Name        *string
	Description *string
	Active      *bool
}

// CreateStageInput holds the fields of a new stage. A zero Order appends the
// stage after the current last one.
type CreateStageInput struct {
	Key      string
	Name     string
	Type     domain.StageType
	Order    int
	Terminal bool
}

// UpdateStageInput holds optional stage changes.
type UpdateStageInput struct {
	Key      *string
	Name     *string
	Type     *domain.StageType
	Terminal *bool
}

// CreateTransitionInput holds the fields of a new transition.
type CreateTransitionInput struct {
	FromStageKey string
	ToStageKey   string
	ActionName   *string
	AllowedRoles []string
}

// UpdateTransitionInput holds optional transition changes.
type UpdateTransitionInput struct {
	ActionName   *string
	AllowedRoles *[]string
}

// PipelineDetail is a pipeline together with its graph.
type PipelineDetail struct {
	domain.Pipeline
	Stages      []domain.Stage      `json:"stages"`
	Transitions []domain.Transition `json:"transitions"`
}

// CreatePipeline creates an active pipeline. Names are unique per organization.
func (s *PipelineService) CreatePipeline(ctx context.Context, in CreatePipelineInput) (*domain.Pipeline, error) {
	var created *domain.Pipeline
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.createPipeline(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline created", "pipeline_id", created.ID, "organization_id", created.OrganizationID)
	return created, nil
}

func (s *PipelineService) createPipeline(ctx context.Context, in CreatePipelineInput) (*domain.Pipeline, error) {
	if in.Name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if err := s.ensureNameFree(ctx, in.OrganizationID, in.Name, uuid.Nil); err != nil {
		return nil, err
	}
	now := s.now()
	return s.store.CreatePipeline(ctx, domain.Pipeline{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		Description:    in.Description,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (s *PipelineService) ensureNameFree(ctx context.Context, orgID uuid.UUID, name string, self uuid.UUID) error {
	existing, err := s.store.FindPipelineByName(ctx, orgID, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return fmt.Errorf("%w: pipeline %q already exists in organization", domain.ErrConflict, name)
	}
	return nil
}

// GetPipeline retrieves a pipeline by ID.
func (s *PipelineService) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	return s.store.FindPipelineByID(ctx, id)
}

// GetPipelineDetail retrieves a pipeline with its stages and transitions.
func (s *PipelineService) GetPipelineDetail(ctx context.Context, id uuid.UUID) (*PipelineDetail, error) {
	p, err := s.store.FindPipelineByID(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.LoadGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PipelineDetail{Pipeline: *p, Stages: g.Stages, Transitions: g.Transitions}, nil
}

// ListPipelines returns the pipelines of an organization.
func (s *PipelineService) ListPipelines(ctx context.Context, organizationID uuid.UUID) ([]domain.Pipeline, error) {
	return s.store.ListPipelines(ctx, organizationID)
}

// UpdatePipeline renames, re-describes or (de)activates a pipeline.
func (s *PipelineService) UpdatePipeline(ctx context.Context, id uuid.UUID, in UpdatePipelineInput) (*domain.Pipeline, error) {
	var updated *domain.Pipeline
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPipeline(ctx, id, domain.LockExclusive); err != nil {
			return err
		}
		p, err := s.store.FindPipelineByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil && *in.Name != p.Name {
			if *in.Name == "" {
				return &domain.ValidationError{Field: "name", Message: "must not be empty"}
			}
			if err := s.ensureNameFree(ctx, p.OrganizationID, *in.Name, p.ID); err != nil {
				return err
			}
			p.Name = *in.Name
		}
		if in.Description != nil {
			p.Description = in.Description
		}
		if in.Active != nil {
			p.Active = *in.Active
		}
		p.UpdatedAt = s.now()
		updated, err = s.store.UpdatePipeline(ctx, *p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePipeline removes a pipeline with its stages and transitions. A
// pipeline still attached to a job cannot be deleted.
func (s *PipelineService) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPipeline(ctx, id, domain.LockExclusive); err != nil {
			return err
		}
		n, err := s.store.CountJobsUsingPipeline(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: pipeline is used by %d job(s)", domain.ErrConflict, n)
		}
		return s.store.DeletePipeline(ctx, id)
	})
}

// CreateStage adds a stage to a pipeline. Keys are unique within the pipeline.
func (s *PipelineService) CreateStage(ctx context.Context, pipelineID uuid.UUID, in CreateStageInput) (*domain.Stage, error) {
	var created *domain.Stage
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPipeline(ctx, pipelineID, domain.LockExclusive); err != nil {
			return err
		}
		var err error
		created, err = s.createStage(ctx, pipelineID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PipelineService) createStage(ctx context.Context, pipelineID uuid.UUID, in CreateStageInput) (*domain.Stage, error) {
	if in.Key == "" || in.Name == "" {
		return nil, &domain.ValidationError{Field: "key", Message: "key and name are required"}
	}
	if !domain.ValidStageKey(in.Key) {
		return nil, &domain.ValidationError{Field: "key", Message: fmt.Sprintf("invalid stage key %q", in.Key)}
	}
	if !in.Type.Valid() {
		return nil, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown stage type %q", in.Type)}
	}
	if in.Order < 0 {
		return nil, &domain.ValidationError{Field: "order", Message: "must be positive"}
	}
	if _, err := s.store.FindStageByKey(ctx, pipelineID, in.Key); err == nil {
		return nil, fmt.Errorf("%w: stage key %q already exists in pipeline", domain.ErrConflict, in.Key)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	order := in.Order
	if order == 0 {
		stages, err := s.store.ListStages(ctx, pipelineID)
		if err != nil {
			return nil, err
		}
		order = 1
		for _, st := range stages {
			if st.Order >= order {
				order = st.Order + 1
			}
		}
	}
	now := s.now()
	return s.store.CreateStage(ctx, domain.Stage{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		Key:        in.Key,
		Name:       in.Name,
		Type:       in.Type,
		Order:      order,
		Terminal:   in.Terminal,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// GetStage retrieves a stage by ID.
func (s *PipelineService) GetStage(ctx context.Context, id uuid.UUID) (*domain.Stage, error) {
	return s.store.FindStageByID(ctx, id)
}

// ListStages returns the stages of a pipeline in order.
func (s *PipelineService) ListStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	if _, err := s.store.FindPipelineByID(ctx, pipelineID); err != nil {
		return nil, err
	}
	return s.store.ListStages(ctx, pipelineID)
}

// UpdateStage changes a stage's display fields. A key can only be renamed
// while no transition refers to it.
func (s *PipelineService) UpdateStage(ctx context.Context, id uuid.UUID, in UpdateStageInput) (*domain.Stage, error) {
	var updated *domain.Stage
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		st, err := s.store.FindStageByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.LockPipeline(ctx, st.PipelineID, domain.LockExclusive); err != nil {
			return err
		}
		if in.Key != nil && *in.Key != st.Key {
			if !domain.ValidStageKey(*in.Key) {
				return &domain.ValidationError{Field: "key", Message: fmt.Sprintf("invalid stage key %q", *in.Key)}
			}
			n, err := s.store.CountTransitionsTouching(ctx, st.PipelineID, st.Key)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: stage %q is referenced by %d transition(s) and cannot be renamed", domain.ErrInvalidInput, st.Key, n)
			}
			if _, err := s.store.FindStageByKey(ctx, st.PipelineID, *in.Key); err == nil {
				return fmt.Errorf("%w: stage key %q already exists in pipeline", domain.ErrConflict, *in.Key)
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			st.Key = *in.Key
		}
		if in.Name != nil {
			st.Name = *in.Name
		}
		if in.Type != nil {
			if !in.Type.Valid() {
				return &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown stage type %q", *in.Type)}
			}
			st.Type = *in.Type
		}
		if in.Terminal != nil {
			st.Terminal = *in.Terminal
		}
		st.UpdatedAt = s.now()
		updated, err = s.store.UpdateStage(ctx, *st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteStage removes a stage no transition refers to.
func (s *PipelineService) DeleteStage(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		st, err := s.store.FindStageByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.LockPipeline(ctx, st.PipelineID, domain.LockExclusive); err != nil {
			return err
		}
		n, err := s.store.CountTransitionsTouching(ctx, st.PipelineID, st.Key)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: stage %q is used by %d transition(s); delete them first", domain.ErrInvalidInput, st.Key, n)
		}
		return s.store.DeleteStage(ctx, id)
	})
}

// ReorderStages assigns orders 1..n following stageIDs, which must name
// exactly the pipeline's current stages.
func (s *PipelineService) ReorderStages(ctx context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) ([]domain.Stage, error) {
	var reordered []domain.Stage
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPipeline(ctx, pipelineID, domain.LockExclusive); err != nil {
			return err
		}
		stages, err := s.store.ListStages(ctx, pipelineID)
		if err != nil {
			return err
		}
		if err := sameStageSet(stages, stageIDs); err != nil {
			return err
		}
		if err := s.store.ReorderStages(ctx, pipelineID, stageIDs); err != nil {
			return err
		}
		reordered, err = s.store.ListStages(ctx, pipelineID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

func sameStageSet(stages []domain.Stage, ids []uuid.UUID) error {
	if len(ids) != len(stages) {
		return fmt.Errorf("%w: expected %d stage ids, got %d", domain.ErrInvalidInput, len(stages), len(ids))
	}
	existing := make(map[uuid.UUID]bool, len(stages))
	for _, st := range stages {
		existing[st.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !existing[id] {
			return fmt.Errorf("%w: stage %s does not belong to pipeline", domain.ErrInvalidInput, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: stage %s listed twice", domain.ErrInvalidInput, id)
		}
		seen[id] = true
	}
	return nil
}

// CreateTransition adds an edge between two existing stages of a pipeline.
func (s *PipelineService) CreateTransition(ctx context.Context, pipelineID uuid.UUID, in CreateTransitionInput) (*domain.Transition, error) {
	var created *domain.Transition
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPipeline(ctx, pipelineID, domain.LockExclusive); err != nil {
			return err
		}
		var err error
		created, err = s.createTransition(ctx, pipelineID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PipelineService) createTransition(ctx context.Context, pipelineID uuid.UUID, in CreateTransitionInput) (*domain.Transition, error) {
	for _, key := range []string{in.FromStageKey, in.ToStageKey} {
		if _, err := s.store.FindStageByKey(ctx, pipelineID, key); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: stage %q does not exist in pipeline", domain.ErrInvalidInput, key)
			}
			return nil, err
		}
	}
	if _, err := s.store.FindTransition(ctx, pipelineID, in.FromStageKey, in.ToStageKey); err == nil {
		return nil, fmt.Errorf("%w: transition %s -> %s already exists", domain.ErrConflict, in.FromStageKey, in.ToStageKey)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := s.now()
	return s.store.CreateTransition(ctx, domain.Transition{
		ID:           uuid.New(),
		PipelineID:   pipelineID,
		FromStageKey: in.FromStageKey,
		ToStageKey:   in.ToStageKey,
		ActionName:   in.ActionName,
		AllowedRoles: in.AllowedRoles,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// GetTransition retrieves a transition by ID.
func (s *PipelineService) GetTransition(ctx context.Context, id uuid.UUID) (*domain.Transition, error) {
	return s.store.FindTransitionByID(ctx, id)
}

// ListTransitions returns the transitions of a pipeline.
func (s *PipelineService) ListTransitions(ctx context.Context, pipelineID uuid.UUID) ([]domain.Transition, error) {
	if _, err := s.store.FindPipelineByID(ctx, pipelineID); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, pipelineID)
}

// UpdateTransition changes a transition's label or role restriction.
func (s *PipelineService) UpdateTransition(ctx context.Context, id uuid.UUID, in UpdateTransitionInput) (*domain.Transition, error) {
	var updated *domain.Transition
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.store.FindTransitionByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.LockPipeline(ctx, t.PipelineID, domain.LockExclusive); err != nil {
			return err
		}
		if in.ActionName != nil {
			t.ActionName = in.ActionName
		}
		if in.AllowedRoles != nil {
			t.AllowedRoles = *in.AllowedRoles
		}
		t.UpdatedAt = s.now()
		updated, err = s.store.UpdateTransition(ctx, *t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransition removes a transition.
func (s *PipelineService) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.store.FindTransitionByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.LockPipeline(ctx, t.PipelineID, domain.LockExclusive); err != nil {
			return err
		}
		return s.store.DeleteTransition(ctx, id)
	})
}

// LoadGraph reads a pipeline's stages and transitions into an indexed graph.
func (s *PipelineService) LoadGraph(ctx context.Context, pipelineID uuid.UUID) (*domain.Graph, error) {
	return loadGraph(ctx, s.store, pipelineID)
}

func loadGraph(ctx context.Context, store PipelineStore, pipelineID uuid.UUID) (*domain.Graph, error) {
	stages, err := store.ListStages(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	transitions, err := store.ListTransitions(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	return domain.NewGraph(stages, transitions), nil
}

// ValidatePipeline reports structural problems of a pipeline.
func (s *PipelineService) ValidatePipeline(ctx context.Context, pipelineID uuid.UUID) (domain.ValidationReport, error) {
	if _, err := s.store.FindPipelineByID(ctx, pipelineID); err != nil {
		return domain.ValidationReport{}, err
	}
	g, err := s.LoadGraph(ctx, pipelineID)
	if err != nil {
		return domain.ValidationReport{}, err
	}
	return g.Validate(), nil
}

// ImportTemplate creates a pipeline with all stages and transitions of tmpl
// in one unit of work.
func (s *PipelineService) ImportTemplate(ctx context.Context, organizationID uuid.UUID, tmpl *domain.PipelineTemplate) (*PipelineDetail, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	detail := &PipelineDetail{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var desc *string
		if tmpl.Description != "" {
			d := tmpl.Description
			desc = &d
		}
		p, err := s.createPipeline(ctx, CreatePipelineInput{OrganizationID: organizationID, Name: tmpl.Name, Description: desc})
		if err != nil {
			return err
		}
		detail.Pipeline = *p
		for i, st := range tmpl.Stages {
			created, err := s.createStage(ctx, p.ID, CreateStageInput{
				Key: st.Key, Name: st.Name, Type: st.Type, Order: i + 1, Terminal: st.Terminal,
			})
			if err != nil {
				return err
			}
			detail.Stages = append(detail.Stages, *created)
		}
		for _, tr := range tmpl.Transitions {
			in := CreateTransitionInput{FromStageKey: tr.From, ToStageKey: tr.To, AllowedRoles: tr.Roles}
			if tr.Action != "" {
				action := tr.Action
				in.ActionName = &action
			}
			created, err := s.createTransition(ctx, p.ID, in)
			if err != nil {
				return err
			}
			detail.Transitions = append(detail.Transitions, *created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline imported", "pipeline_id", detail.ID, "stages", len(detail.Stages), "transitions", len(detail.Transitions))
	return detail, nil
}

// CreateDefaultPipeline creates the built-in pipeline for an organization.
func (s *PipelineService) CreateDefaultPipeline(ctx context.Context, organizationID uuid.UUID) (*PipelineDetail, error) {
	return s.ImportTemplate(ctx, organizationID, domain.DefaultPipelineTemplate())
}
