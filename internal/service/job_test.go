package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/hiring/internal/domain"
)

func TestJobService_CreateJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	zero := 0

	job, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "SRE"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, job.Status)
	assert.Nil(t, job.PostedDate)
	assert.Equal(t, int64(1), job.Version)

	_, err = f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "SRE", HireLimit: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	missing := uuid.New()
	_, err = f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "SRE", PipelineID: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobService_AssignPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pipelineID := f.scenarioPipeline(t)

	job, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "SRE"})
	require.NoError(t, err)

	assigned, err := f.jobs.AssignPipeline(ctx, job.ID, pipelineID)
	require.NoError(t, err)
	require.NotNil(t, assigned.PipelineID)
	assert.Equal(t, pipelineID, *assigned.PipelineID)
	assert.Equal(t, int64(2), assigned.Version)

	_, err = f.jobs.AssignPipeline(ctx, job.ID, pipelineID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	t.Run("other organization", func(t *testing.T) {
		foreign, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: uuid.New(), Name: "Theirs"})
		require.NoError(t, err)
		other, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "Ops"})
		require.NoError(t, err)
		_, err = f.jobs.AssignPipeline(ctx, other.ID, foreign.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("inactive pipeline", func(t *testing.T) {
		p, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "Old"})
		require.NoError(t, err)
		off := false
		_, err = f.pipelines.UpdatePipeline(ctx, p.ID, UpdatePipelineInput{Active: &off})
		require.NoError(t, err)
		other, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "Ops"})
		require.NoError(t, err)
		_, err = f.jobs.AssignPipeline(ctx, other.ID, p.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestJobService_TransitionJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "SRE"})
	require.NoError(t, err)

	_, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusActive, admin, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "pending_approval")

	unchanged, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, unchanged.Status)
	assert.Empty(t, f.events.ofType(domain.EventJobStatusChanged))

	_, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusPendingApproval, admin, "ready")
	require.NoError(t, err)
	f.tick(time.Hour)
	active, err := f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusActive, admin, "approved")
	require.NoError(t, err)
	assert.Equal(t, f.clock, *active.PostedDate)
	assert.Equal(t, f.clock, active.StatusChangedAt)

	events := f.events.ofType(domain.EventJobStatusChanged)
	require.Len(t, events, 2)
	assert.Equal(t, "pending_approval", events[1].OldStatus)
	assert.Equal(t, "active", events[1].NewStatus)
	assert.Equal(t, admin.ID, events[1].Actor)

	available, err := f.jobs.AvailableTransitions(ctx, job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.JobStatus{
		domain.JobStatusPaused, domain.JobStatusClosed, domain.JobStatusExpired, domain.JobStatusCancelled,
	}, available)

	_, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusCancelled, admin, "budget cut")
	require.NoError(t, err)
	_, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusActive, admin, "")
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestJobService_ExpireDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.clock.Add(-time.Minute)
	future := f.clock.Add(24 * time.Hour)

	overdue := f.activeJob(t, CreateJobInput{Title: "Overdue", ExpiresAt: &past})
	open := f.activeJob(t, CreateJobInput{Title: "Open", ExpiresAt: &future})
	forever := f.activeJob(t, CreateJobInput{Title: "Forever"})

	n, err := f.jobs.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.jobs.GetJob(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusExpired, got.Status)
	require.NotNil(t, got.ClosedDate)

	for _, id := range []uuid.UUID{open.ID, forever.ID} {
		got, err := f.jobs.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusActive, got.Status)
	}

	n, err = f.jobs.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecide(t *testing.T) {
	one, three := 1, 3

	tests := []struct {
		name   string
		job    domain.Job
		counts domain.ApplicationCounts
		want   domain.JobStatus
	}{
		{name: "no limits", job: domain.Job{}, counts: domain.ApplicationCounts{Total: 50, Hired: 5}},
		{name: "quota reached", job: domain.Job{HireLimit: &one}, counts: domain.ApplicationCounts{Total: 2, Hired: 1}, want: domain.JobStatusClosed},
		{name: "quota not reached", job: domain.Job{HireLimit: &three}, counts: domain.ApplicationCounts{Total: 2, Hired: 1}},
		{name: "at application limit", job: domain.Job{MaxApplications: &three}, counts: domain.ApplicationCounts{Total: 3}},
		{name: "over application limit", job: domain.Job{MaxApplications: &three}, counts: domain.ApplicationCounts{Total: 4}, want: domain.JobStatusPaused},
		{
			name:   "quota wins over volume",
			job:    domain.Job{HireLimit: &one, MaxApplications: &three},
			counts: domain.ApplicationCounts{Total: 9, Hired: 1},
			want:   domain.JobStatusClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.job, tt.counts))
		})
	}
}

func TestAutoTransitionTrigger_SkipsDisallowedMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limit := 1
	job, err := f.jobs.CreateJob(ctx, CreateJobInput{OrganizationID: f.org, Title: "Draft", HireLimit: &limit})
	require.NoError(t, err)

	// draft cannot be closed, so even a met quota leaves the job alone.
	app := domain.Application{ID: uuid.New(), JobID: job.ID, Status: domain.ApplicationStatusHired}
	_, err = f.store.CreateApplication(ctx, app)
	require.NoError(t, err)

	trigger := NewAutoTransitionTrigger(f.store, f.jobs)
	target, err := trigger.Evaluate(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, target)

	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, got.Status)
}
