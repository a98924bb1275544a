package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	pipelines *PipelineService
	jobs      *JobService
	apps      *ApplicationService
	events    *recordingPublisher
	clock     time.Time
	org       uuid.UUID
}

var (
	recruiter = domain.Actor{ID: "recruiter-1", Roles: []string{"recruiter"}}
	admin     = domain.Actor{ID: "admin-1", Roles: []string{"admin"}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		events: &recordingPublisher{},
		clock:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		org:    uuid.New(),
	}
	now := func() time.Time { return f.clock }

	f.pipelines = NewPipelineService(f.store, f.store)
	f.pipelines.now = now
	f.jobs = NewJobService(f.store, f.store, f.store, f.events)
	f.jobs.now = now
	trigger := NewAutoTransitionTrigger(f.store, f.jobs)
	f.apps = NewApplicationService(f.store, f.store, f.store, f.store, f.events, trigger)
	f.apps.now = now
	return f
}

func (f *fixture) tick(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// scenarioPipeline builds applied(1) -> screen(2) -> offer(3).
func (f *fixture) scenarioPipeline(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	p, err := f.pipelines.CreatePipeline(ctx, CreatePipelineInput{OrganizationID: f.org, Name: "Engineering"})
	require.NoError(t, err)

	for _, in := range []CreateStageInput{
		{Key: "applied", Name: "Applied", Type: domain.StageTypeCustom},
		{Key: "screen", Name: "Screen", Type: domain.StageTypeScreening},
		{Key: "offer", Name: "Offer", Type: domain.StageTypeOffer},
	} {
		_, err := f.pipelines.CreateStage(ctx, p.ID, in)
		require.NoError(t, err)
	}
	for _, in := range []CreateTransitionInput{
		{FromStageKey: "applied", ToStageKey: "screen"},
		{FromStageKey: "screen", ToStageKey: "offer"},
	} {
		_, err := f.pipelines.CreateTransition(ctx, p.ID, in)
		require.NoError(t, err)
	}
	return p.ID
}

func (f *fixture) activeJob(t *testing.T, in CreateJobInput) *domain.Job {
	t.Helper()
	ctx := context.Background()
	in.OrganizationID = f.org
	if in.Title == "" {
		in.Title = "Backend Engineer"
	}
	job, err := f.jobs.CreateJob(ctx, in)
	require.NoError(t, err)
	_, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusPendingApproval, admin, "")
	require.NoError(t, err)
	job, err = f.jobs.TransitionJob(ctx, job.ID, domain.JobStatusActive, admin, "approved")
	require.NoError(t, err)
	return job
}

func (f *fixture) apply(t *testing.T, jobID uuid.UUID) *domain.Application {
	t.Helper()
	app, err := f.apps.CreateApplication(context.Background(), jobID, uuid.New(), recruiter)
	require.NoError(t, err)
	return app
}

func stageOrders(stages []domain.Stage) map[string]int {
	out := make(map[string]int, len(stages))
	for _, s := range stages {
		out[s.Key] = s.Order
	}
	return out
}
