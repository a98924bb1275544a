// Package lifecycle implements the job posting state machine.
//
// Allowed moves:
//
//	draft            -> pending_approval, cancelled
//	pending_approval -> active, draft, cancelled
//	active           -> paused, closed, expired, cancelled
//	paused           -> active, closed, cancelled
//	closed           -> active, archived
//	expired          -> active, archived
//	archived         -> active
//
// cancelled is terminal.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/sumire/hiring/internal/domain"
)

// Machine dispatches job transitions to the strategy of each status.
type Machine struct {
	strategies map[domain.JobStatus]Strategy
	now        func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source used when a Context carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New returns a Machine with the standard job strategies.
func New(opts ...Option) *Machine {
	m := &Machine{strategies: defaultStrategies(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strategy returns the strategy registered for status.
func (m *Machine) Strategy(status domain.JobStatus) (Strategy, bool) {
	s, ok := m.strategies[status]
	return s, ok
}

// CurrentState returns the strategy for the job's current status.
func (m *Machine) CurrentState(job domain.Job) (Strategy, error) {
	s, ok := m.strategies[job.Status]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy for job status %q", domain.ErrInvalidTransition, job.Status)
	}
	return s, nil
}

// CanTransitionTo reports whether job may move to target.
func (m *Machine) CanTransitionTo(job domain.Job, target domain.JobStatus) bool {
	cur, err := m.CurrentState(job)
	if err != nil {
		return false
	}
	if _, ok := m.strategies[target]; !ok {
		return false
	}
	return cur.CanTransitionTo(target)
}

// AvailableTransitions lists the statuses job may move to.
func (m *Machine) AvailableTransitions(job domain.Job) []domain.JobStatus {
	cur, err := m.CurrentState(job)
	if err != nil {
		return nil
	}
	return cur.AvailableTransitions()
}

// TransitionTo moves job to target, running the exit hook of the current
// state, then the transition and enter hooks of the target. job is only
// modified when every hook succeeds.
func (m *Machine) TransitionTo(job *domain.Job, target domain.JobStatus, tc Context) error {
	cur, err := m.CurrentState(*job)
	if err != nil {
		return err
	}
	next, ok := m.strategies[target]
	if !ok {
		return fmt.Errorf("%w: no strategy for job status %q", domain.ErrInvalidTransition, target)
	}
	if cur.IsTerminal() {
		return &domain.TransitionError{Entity: "job", From: string(job.Status), To: string(target), Terminal: true}
	}
	if !cur.CanTransitionTo(target) {
		return &domain.TransitionError{
			Entity:    "job",
			From:      string(job.Status),
			To:        string(target),
			Available: statusStrings(cur.AvailableTransitions()),
		}
	}

	tc.From = job.Status
	if tc.At.IsZero() {
		tc.At = m.now()
	}

	updated := *job
	if err := cur.OnExit(&updated, tc); err != nil {
		return err
	}
	if err := next.OnTransition(&updated, target, tc); err != nil {
		return err
	}
	if err := next.OnEnter(&updated, tc); err != nil {
		return err
	}
	*job = updated
	return nil
}

func statusStrings(in []domain.JobStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
