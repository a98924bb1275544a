// Package scheduler runs the periodic job posting expiry sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSpec is the sweep schedule used when none is configured.
const DefaultSpec = "@every 5m"

// Expirer moves overdue job postings to expired.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Scheduler wraps robfig/cron and owns the expiry sweep.
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	spec    string
}

// New creates a Scheduler running the sweep on spec.
func New(expirer Expirer, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		cron:    cron.New(),
		expirer: expirer,
		spec:    spec,
	}
}

// Start registers the sweep and starts the scheduler. The sweep also runs
// once immediately so postings that expired while the service was down are
// closed without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	slog.Info("scheduler started", "spec", s.spec)

	go s.Sweep(ctx)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// Sweep expires every overdue posting once.
func (s *Scheduler) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("expiry sweep complete", "expired", n)
	}
}
