package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

// AutoTransitionTrigger closes or pauses a job once its application counts
// cross the job's configured limits.
type AutoTransitionTrigger struct {
	apps ApplicationStore
	jobs *JobService
}

// NewAutoTransitionTrigger creates a new AutoTransitionTrigger.
func NewAutoTransitionTrigger(apps ApplicationStore, jobs *JobService) *AutoTransitionTrigger {
	return &AutoTransitionTrigger{apps: apps, jobs: jobs}
}

// Decide returns the status the job should move to given counts, or "" to
// leave it alone.
func Decide(job domain.Job, counts domain.ApplicationCounts) domain.JobStatus {
	if job.HireLimit != nil && counts.Hired >= *job.HireLimit {
		return domain.JobStatusClosed
	}
	if job.MaxApplications != nil && counts.Total > *job.MaxApplications {
		return domain.JobStatusPaused
	}
	return ""
}

// Evaluate recomputes the job's application counts and requests the
// resulting transition when the lifecycle machine allows it. It returns the
// status requested, or "" when the job was left unchanged.
func (t *AutoTransitionTrigger) Evaluate(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, error) {
	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	counts, err := t.apps.CountApplicationOutcomes(ctx, jobID)
	if err != nil {
		return "", err
	}
	target := Decide(*job, counts)
	if target == "" || target == job.Status || !t.jobs.CanTransitionTo(*job, target) {
		return "", nil
	}
	reason := "hire quota reached"
	if target == domain.JobStatusPaused {
		reason = "application limit exceeded"
	}
	if _, err := t.jobs.TransitionJob(ctx, jobID, target, domain.SystemActor(), reason); err != nil {
		return "", err
	}
	return target, nil
}
