package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/repository/memory"
)

func TestPipelineService_CreatePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "Sales"})
	require.NoError(t, err)
	assert.True(t, p.Active)

	_, err = f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "Sales"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: uuid.New(), Name: "Sales"})
	assert.NoError(t, err, "names are scoped to the organization")

	_, err = f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipelineService_UpdatePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "A"})
	require.NoError(t, err)
	_, err = f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "B"})
	require.NoError(t, err)

	taken := "B"
	_, err = f.pipelines.UpdatePipeline(ctx, a.ID, UpdatePipelineInput{Name: &taken})
	assert.ErrorIs(t, err, domain.ErrConflict)

	name, inactive := "A2", false
	updated, err := f.pipelines.UpdatePipeline(ctx, a.ID, UpdatePipelineInput{Name: &name, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.Name)
	assert.False(t, updated.Active)

	_, err = f.pipelines.UpdatePipeline(ctx, uuid.New(), UpdatePipelineInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipelineService_CreateStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)

	stages, err := f.pipelines.ListStages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"applied": 1, "screen": 2, "offer": 3}, stageOrders(stages))

	tests := []struct {
		name     string
		pipeline uuid.UUID
		in       CreateStageInput
		wantErr  error
	}{
		{
			name:     "duplicate key",
			pipeline: id,
			in:       CreateStageInput{Key: "screen", Name: "Again", Type: domain.StageTypeScreening},
			wantErr:  domain.ErrConflict,
		},
		{
			name:     "unknown type",
			pipeline: id,
			in:       CreateStageInput{Key: "x", Name: "X", Type: "phone"},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "missing name",
			pipeline: id,
			in:       CreateStageInput{Key: "x", Type: domain.StageTypeCustom},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "key with dash",
			pipeline: id,
			in:       CreateStageInput{Key: "Tech-Screen", Name: "Tech screen", Type: domain.StageTypeInterview},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "key too long",
			pipeline: id,
			in:       CreateStageInput{Key: strings.Repeat("k", domain.MaxStageKeyLength+1), Name: "Long", Type: domain.StageTypeCustom},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "unknown pipeline",
			pipeline: uuid.New(),
			in:       CreateStageInput{Key: "x", Name: "X", Type: domain.StageTypeCustom},
			wantErr:  domain.ErrNotFound,
		},
		{
			name:     "order already taken",
			pipeline: id,
			in:       CreateStageInput{Key: "x", Name: "X", Type: domain.StageTypeCustom, Order: 2},
			wantErr:  domain.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipelines.CreateStage(ctx, tt.pipeline, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	after, err := f.pipelines.ListStages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, after, 3)
}

func TestPipelineService_DeleteStageInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)
	screen, err := f.store.FindStageByKey(ctx, id, "screen")
	require.NoError(t, err)

	err = f.pipelines.DeleteStage(ctx, screen.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	stages, err := f.pipelines.ListStages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stages, 3)

	hold, err := f.pipelines.CreateStage(ctx, id, CreateStageInput{Key: "hold", Name: "Hold", Type: domain.StageTypeOnHold})
	require.NoError(t, err)
	require.NoError(t, f.pipelines.DeleteStage(ctx, hold.ID))

	_, err = f.pipelines.GetStage(ctx, hold.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipelineService_ReorderStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)
	stages, err := f.pipelines.ListStages(ctx, id)
	require.NoError(t, err)
	before := stageOrders(stages)

	t.Run("partial set rejected", func(t *testing.T) {
		_, err := f.pipelines.ReorderStages(ctx, id, []uuid.UUID{stages[0].ID, stages[1].ID})
		require.ErrorIs(t, err, domain.ErrInvalidInput)

		after, err := f.pipelines.ListStages(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, stageOrders(after))
	})

	t.Run("duplicates rejected", func(t *testing.T) {
		_, err := f.pipelines.ReorderStages(ctx, id, []uuid.UUID{stages[0].ID, stages[0].ID, stages[1].ID})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("foreign stage rejected", func(t *testing.T) {
		_, err := f.pipelines.ReorderStages(ctx, id, []uuid.UUID{stages[0].ID, stages[1].ID, uuid.New()})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("full permutation", func(t *testing.T) {
		reordered, err := f.pipelines.ReorderStages(ctx, id, []uuid.UUID{stages[2].ID, stages[0].ID, stages[1].ID})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"offer": 1, "applied": 2, "screen": 3}, stageOrders(reordered))
	})
}

func TestPipelineService_UpdateStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)
	screen, err := f.store.FindStageByKey(ctx, id, "screen")
	require.NoError(t, err)

	renamed := "phone_screen"
	_, err = f.pipelines.UpdateStage(ctx, screen.ID, UpdateStageInput{Key: &renamed})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "referenced keys cannot be renamed")

	name := "Phone Screen"
	typ := domain.StageTypeInterview
	updated, err := f.pipelines.UpdateStage(ctx, screen.ID, UpdateStageInput{Name: &name, Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, "screen", updated.Key)
	assert.Equal(t, "Phone Screen", updated.Name)
	assert.Equal(t, domain.StageTypeInterview, updated.Type)

	hold, err := f.pipelines.CreateStage(ctx, id, CreateStageInput{Key: "hold", Name: "Hold", Type: domain.StageTypeOnHold})
	require.NoError(t, err)
	free := "parked"
	updated, err = f.pipelines.UpdateStage(ctx, hold.ID, UpdateStageInput{Key: &free})
	require.NoError(t, err)
	assert.Equal(t, "parked", updated.Key)

	taken := "offer"
	_, err = f.pipelines.UpdateStage(ctx, hold.ID, UpdateStageInput{Key: &taken})
	assert.ErrorIs(t, err, domain.ErrConflict)

	malformed := "On-Hold"
	_, err = f.pipelines.UpdateStage(ctx, hold.ID, UpdateStageInput{Key: &malformed})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipelineService_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)

	_, err := f.pipelines.CreateTransition(ctx, id, CreateTransitionInput{FromStageKey: "applied", ToStageKey: "screen"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.pipelines.CreateTransition(ctx, id, CreateTransitionInput{FromStageKey: "applied", ToStageKey: "ghost"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	action := "Fast track"
	tr, err := f.pipelines.CreateTransition(ctx, id, CreateTransitionInput{
		FromStageKey: "applied",
		ToStageKey:   "offer",
		ActionName:   &action,
		AllowedRoles: []string{"admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, []string(tr.AllowedRoles))

	roles := []string{}
	updated, err := f.pipelines.UpdateTransition(ctx, tr.ID, UpdateTransitionInput{AllowedRoles: &roles})
	require.NoError(t, err)
	assert.Empty(t, updated.AllowedRoles)
	assert.Equal(t, "Fast track", *updated.ActionName)

	list, err := f.pipelines.ListTransitions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, f.pipelines.DeleteTransition(ctx, tr.ID))
	_, err = f.pipelines.GetTransition(ctx, tr.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipelineService_ValidatePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)

	report, err := f.pipelines.ValidatePipeline(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)

	_, err = f.pipelines.CreateStage(ctx, id, CreateStageInput{Key: "limbo", Name: "Limbo", Type: domain.StageTypeOnHold})
	require.NoError(t, err)
	_, err = f.pipelines.CreateStage(ctx, id, CreateStageInput{Key: "side", Name: "Side", Type: domain.StageTypeCustom})
	require.NoError(t, err)
	_, err = f.pipelines.CreateTransition(ctx, id, CreateTransitionInput{FromStageKey: "side", ToStageKey: "offer"})
	require.NoError(t, err)

	report, err = f.pipelines.ValidatePipeline(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, []string{
		"stage limbo is not connected to any transition",
		"stage limbo is unreachable from the entry stage",
		"stage side is unreachable from the entry stage",
	}, report.Warnings)

	_, err = f.pipelines.ValidatePipeline(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipelineService_CreateDefaultPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.pipelines.CreateDefaultPipeline(ctx, f.org)
	require.NoError(t, err)
	assert.Equal(t, "Standard hiring", detail.Name)
	assert.Len(t, detail.Stages, 8)
	assert.Len(t, detail.Transitions, 12)

	report, err := f.pipelines.ValidatePipeline(ctx, detail.ID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)

	_, err = f.pipelines.CreateDefaultPipeline(ctx, f.org)
	assert.ErrorIs(t, err, domain.ErrConflict)

	list, err := f.pipelines.ListPipelines(ctx, f.org)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type failingTransitionStore struct {
	*memory.Store
}

func (failingTransitionStore) CreateTransition(context.Context, domain.Transition) (*domain.Transition, error) {
	return nil, errors.New("disk full")
}

func TestPipelineService_ImportTemplateIsAtomic(t *testing.T) {
	store := memory.New()
	svc := NewPipelineService(failingTransitionStore{store}, store)
	org := uuid.New()
	ctx := context.Background()

	_, err := svc.ImportTemplate(ctx, org, domain.DefaultPipelineTemplate())
	require.Error(t, err)

	list, err := store.ListPipelines(ctx, org)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPipelineService_DeletePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.scenarioPipeline(t)
	f.activeJob(t, CreateJobInput{PipelineID: &id})

	err := f.pipelines.DeletePipeline(ctx, id)
	assert.ErrorIs(t, err, domain.ErrConflict)

	spare, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "Spare"})
	require.NoError(t, err)
	_, err = f.pipelines.CreateStage(ctx, spare.ID, CreateStageInput{Key: "a", Name: "A", Type: domain.StageTypeCustom})
	require.NoError(t, err)

	require.NoError(t, f.pipelines.DeletePipeline(ctx, spare.ID))
	_, err = f.pipelines.GetPipeline(ctx, spare.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stages, err := f.store.ListStages(ctx, spare.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)
}
