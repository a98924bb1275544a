package lifecycle

import (
	"time"

	"github.com/sumire/hiring/internal/domain"
)

// Context carries the details of one job transition into the state hooks.
type Context struct {
	From   domain.JobStatus
	Actor  domain.Actor
	Reason string
	At     time.Time
}

// Strategy is the behaviour attached to one job status.
type Strategy interface {
	Status() domain.JobStatus
	CanTransitionTo(target domain.JobStatus) bool
	AvailableTransitions() []domain.JobStatus
	IsTerminal() bool
	OnExit(job *domain.Job, tc Context) error
	OnTransition(job *domain.Job, target domain.JobStatus, tc Context) error
	OnEnter(job *domain.Job, tc Context) error
}

type hook func(job *domain.Job, tc Context) error

// state is an immutable Strategy built from a transition list and optional hooks.
type state struct {
	status  domain.JobStatus
	targets []domain.JobStatus
	enter   hook
	exit    hook
}

func (s state) Status() domain.JobStatus { return s.status }

func (s state) CanTransitionTo(target domain.JobStatus) bool {
	for _, t := range s.targets {
		if t == target {
			return true
		}
	}
	return false
}

func (s state) AvailableTransitions() []domain.JobStatus {
	return append([]domain.JobStatus(nil), s.targets...)
}

func (s state) IsTerminal() bool { return len(s.targets) == 0 }

func (s state) OnExit(job *domain.Job, tc Context) error {
	if s.exit == nil {
		return nil
	}
	return s.exit(job, tc)
}

func (s state) OnTransition(job *domain.Job, target domain.JobStatus, tc Context) error {
	job.Status = target
	job.StatusChangedAt = tc.At
	return nil
}

func (s state) OnEnter(job *domain.Job, tc Context) error {
	if s.enter == nil {
		return nil
	}
	return s.enter(job, tc)
}

func setPosted(job *domain.Job, tc Context) error {
	switch tc.From {
	case domain.JobStatusPendingApproval, domain.JobStatusClosed, domain.JobStatusExpired, domain.JobStatusArchived:
		at := tc.At
		job.PostedDate = &at
	}
	return nil
}

func setClosed(job *domain.Job, tc Context) error {
	at := tc.At
	job.ClosedDate = &at
	return nil
}

func clearClosed(job *domain.Job, _ Context) error {
	job.ClosedDate = nil
	return nil
}

func clearDates(job *domain.Job, _ Context) error {
	job.PostedDate = nil
	job.ClosedDate = nil
	return nil
}

func refuseExit(job *domain.Job, _ Context) error {
	return &domain.TransitionError{Entity: "job", From: string(job.Status), To: "", Terminal: true}
}

func defaultStrategies() map[domain.JobStatus]Strategy {
	states := []state{
		{
			status:  domain.JobStatusDraft,
			targets: []domain.JobStatus{domain.JobStatusPendingApproval, domain.JobStatusCancelled},
			enter:   clearDates,
		},
		{
			status:  domain.JobStatusPendingApproval,
			targets: []domain.JobStatus{domain.JobStatusActive, domain.JobStatusDraft, domain.JobStatusCancelled},
		},
		{
			status:  domain.JobStatusActive,
			targets: []domain.JobStatus{domain.JobStatusPaused, domain.JobStatusClosed, domain.JobStatusExpired, domain.JobStatusCancelled},
			enter:   setPosted,
		},
		{
			status:  domain.JobStatusPaused,
			targets: []domain.JobStatus{domain.JobStatusActive, domain.JobStatusClosed, domain.JobStatusCancelled},
		},
		{
			status:  domain.JobStatusClosed,
			targets: []domain.JobStatus{domain.JobStatusActive, domain.JobStatusArchived},
			enter:   setClosed,
			exit:    clearClosed,
		},
		{
			status:  domain.JobStatusExpired,
			targets: []domain.JobStatus{domain.JobStatusActive, domain.JobStatusArchived},
			enter:   setClosed,
			exit:    clearClosed,
		},
		{
			status: domain.JobStatusCancelled,
			enter:  setClosed,
			exit:   refuseExit,
		},
		{
			status:  domain.JobStatusArchived,
			targets: []domain.JobStatus{domain.JobStatusActive},
		},
	}
	out := make(map[domain.JobStatus]Strategy, len(states))
	for _, s := range states {
		out[s.status] = s
	}
	return out
}
