package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

// CreateJob stores a job at version 1.
func (s *Store) CreateJob(_ context.Context, j domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return nil, conflict("job %s already exists", j.ID)
	}
	j.Version = 1
	s.jobs[j.ID] = j
	return &j, nil
}

// FindJobByID retrieves a job.
func (s *Store) FindJobByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("find job %s", id)
	}
	return &j, nil
}

// FindJobByIDForUpdate retrieves a job. Units of work are already serialized.
func (s *Store) FindJobByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.FindJobByID(ctx, id)
}

// ListJobs returns an organization's jobs, newest first.
func (s *Store) ListJobs(_ context.Context, organizationID uuid.UUID) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Job{}
	for _, j := range s.jobs {
		if j.OrganizationID == organizationID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// ListExpiredActiveJobs returns active jobs whose deadline is at or before now.
func (s *Store) ListExpiredActiveJobs(_ context.Context, now time.Time) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Job{}
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusActive && j.ExpiresAt != nil && !j.ExpiresAt.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExpiresAt.Before(*out[k].ExpiresAt) })
	return out, nil
}

// UpdateJob overwrites a job whose version still matches.
func (s *Store) UpdateJob(_ context.Context, j domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[j.ID]
	if !ok {
		return nil, notFound("update job %s", j.ID)
	}
	if existing.Version != j.Version {
		return nil, fmt.Errorf("update job %s: %w: modified concurrently", j.ID, domain.ErrConflict)
	}
	j.Version++
	s.jobs[j.ID] = j
	return &j, nil
}

// CreateApplication stores an application at version 1.
func (s *Store) CreateApplication(_ context.Context, a domain.Application) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[a.JobID]; !ok {
		return nil, fmt.Errorf("%w: job %s does not exist", domain.ErrInvalidInput, a.JobID)
	}
	a = a.Clone()
	a.Version = 1
	s.apps[a.ID] = a
	out := a.Clone()
	return &out, nil
}

// FindApplicationByID retrieves an application.
func (s *Store) FindApplicationByID(_ context.Context, id uuid.UUID) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, notFound("find application %s", id)
	}
	out := a.Clone()
	return &out, nil
}

// FindApplicationByIDForUpdate retrieves an application. Units of work are already serialized.
func (s *Store) FindApplicationByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return s.FindApplicationByID(ctx, id)
}

// ListApplicationsByJob returns a job's applications, oldest first.
func (s *Store) ListApplicationsByJob(_ context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Application{}
	for _, a := range s.apps {
		if a.JobID == jobID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].AppliedAt.Before(out[k].AppliedAt) })
	return out, nil
}

// CountApplicationOutcomes aggregates a job's applications by outcome.
func (s *Store) CountApplicationOutcomes(_ context.Context, jobID uuid.UUID) (domain.ApplicationCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c domain.ApplicationCounts
	for _, a := range s.apps {
		if a.JobID != jobID {
			continue
		}
		c.Total++
		switch a.Status {
		case domain.ApplicationStatusHired:
			c.Hired++
		case domain.ApplicationStatusRejected:
			c.Rejected++
		case domain.ApplicationStatusWithdrawn:
		default:
			c.Active++
		}
	}
	return c, nil
}

// UpdateApplication overwrites an application whose version still matches.
func (s *Store) UpdateApplication(_ context.Context, a domain.Application) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apps[a.ID]
	if !ok {
		return nil, notFound("update application %s", a.ID)
	}
	if existing.Version != a.Version {
		return nil, fmt.Errorf("update application %s: %w: modified concurrently", a.ID, domain.ErrConflict)
	}
	a = a.Clone()
	a.Version++
	s.apps[a.ID] = a
	out := a.Clone()
	return &out, nil
}
