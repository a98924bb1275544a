// Package memory is an in-process implementation of the service stores.
//
// Units of work are serialized by a single lock and rolled back by restoring
// a snapshot taken when they began. Reads outside a unit of work may observe
// uncommitted writes.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/hiring/internal/domain"
)

type txKey struct{}

// Store keeps pipelines, jobs and applications in maps.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	pipelines   map[uuid.UUID]domain.Pipeline
	stages      map[uuid.UUID]domain.Stage
	transitions map[uuid.UUID]domain.Transition
	jobs        map[uuid.UUID]domain.Job
	apps        map[uuid.UUID]domain.Application
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		pipelines:   make(map[uuid.UUID]domain.Pipeline),
		stages:      make(map[uuid.UUID]domain.Stage),
		transitions: make(map[uuid.UUID]domain.Transition),
		jobs:        make(map[uuid.UUID]domain.Job),
		apps:        make(map[uuid.UUID]domain.Application),
	}
}

type snapshot struct {
	pipelines   map[uuid.UUID]domain.Pipeline
	stages      map[uuid.UUID]domain.Stage
	transitions map[uuid.UUID]domain.Transition
	jobs        map[uuid.UUID]domain.Job
	apps        map[uuid.UUID]domain.Application
}

// WithinTx runs fn as one unit of work, undoing its writes if it fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := snapshot{
		pipelines:   maps.Clone(s.pipelines),
		stages:      maps.Clone(s.stages),
		transitions: maps.Clone(s.transitions),
		jobs:        maps.Clone(s.jobs),
		apps:        maps.Clone(s.apps),
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.pipelines, s.stages, s.transitions = snap.pipelines, snap.stages, snap.transitions
		s.jobs, s.apps = snap.jobs, snap.apps
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrConflict, fmt.Sprintf(format, args...))
}

// CreatePipeline stores a pipeline.
func (s *Store) CreatePipeline(_ context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pipelines {
		if existing.OrganizationID == p.OrganizationID && existing.Name == p.Name {
			return nil, conflict("pipeline %q already exists", p.Name)
		}
	}
	s.pipelines[p.ID] = p
	return &p, nil
}

// FindPipelineByID retrieves a pipeline.
func (s *Store) FindPipelineByID(_ context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nil, notFound("find pipeline %s", id)
	}
	return &p, nil
}

// FindPipelineByName retrieves a pipeline by organization and name.
func (s *Store) FindPipelineByName(_ context.Context, organizationID uuid.UUID, name string) (*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pipelines {
		if p.OrganizationID == organizationID && p.Name == name {
			return &p, nil
		}
	}
	return nil, notFound("find pipeline %q", name)
}

// ListPipelines returns an organization's pipelines ordered by name.
func (s *Store) ListPipelines(_ context.Context, organizationID uuid.UUID) ([]domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Pipeline{}
	for _, p := range s.pipelines {
		if p.OrganizationID == organizationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdatePipeline overwrites a pipeline.
func (s *Store) UpdatePipeline(_ context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[p.ID]; !ok {
		return nil, notFound("update pipeline %s", p.ID)
	}
	for _, existing := range s.pipelines {
		if existing.ID != p.ID && existing.OrganizationID == p.OrganizationID && existing.Name == p.Name {
			return nil, conflict("pipeline %q already exists", p.Name)
		}
	}
	s.pipelines[p.ID] = p
	return &p, nil
}

// DeletePipeline removes a pipeline with its stages and transitions.
func (s *Store) DeletePipeline(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[id]; !ok {
		return notFound("delete pipeline %s", id)
	}
	delete(s.pipelines, id)
	for sid, st := range s.stages {
		if st.PipelineID == id {
			delete(s.stages, sid)
		}
	}
	for tid, t := range s.transitions {
		if t.PipelineID == id {
			delete(s.transitions, tid)
		}
	}
	return nil
}

// LockPipeline checks the pipeline exists. Units of work are already serialized.
func (s *Store) LockPipeline(ctx context.Context, id uuid.UUID, _ domain.LockMode) error {
	_, err := s.FindPipelineByID(ctx, id)
	return err
}

// CreateStage stores a stage, enforcing unique keys and orders per pipeline.
func (s *Store) CreateStage(_ context.Context, st domain.Stage) (*domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[st.PipelineID]; !ok {
		return nil, fmt.Errorf("%w: pipeline %s does not exist", domain.ErrInvalidInput, st.PipelineID)
	}
	if err := s.checkStageUnique(st); err != nil {
		return nil, err
	}
	s.stages[st.ID] = st
	return &st, nil
}

func (s *Store) checkStageUnique(st domain.Stage) error {
	for _, existing := range s.stages {
		if existing.PipelineID != st.PipelineID || existing.ID == st.ID {
			continue
		}
		if existing.Key == st.Key {
			return conflict("stage key %q already exists", st.Key)
		}
		if existing.Order == st.Order {
			return conflict("stage order %d already taken", st.Order)
		}
	}
	return nil
}

// FindStageByID retrieves a stage.
func (s *Store) FindStageByID(_ context.Context, id uuid.UUID) (*domain.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stages[id]
	if !ok {
		return nil, notFound("find stage %s", id)
	}
	return &st, nil
}

// FindStageByKey retrieves a stage by pipeline and key.
func (s *Store) FindStageByKey(_ context.Context, pipelineID uuid.UUID, key string) (*domain.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.stages {
		if st.PipelineID == pipelineID && st.Key == key {
			return &st, nil
		}
	}
	return nil, notFound("find stage %q", key)
}

// ListStages returns a pipeline's stages in order.
func (s *Store) ListStages(_ context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Stage{}
	for _, st := range s.stages {
		if st.PipelineID == pipelineID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// UpdateStage overwrites a stage.
func (s *Store) UpdateStage(_ context.Context, st domain.Stage) (*domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stages[st.ID]; !ok {
		return nil, notFound("update stage %s", st.ID)
	}
	if err := s.checkStageUnique(st); err != nil {
		return nil, err
	}
	s.stages[st.ID] = st
	return &st, nil
}

// ReorderStages assigns orders 1..n following stageIDs.
func (s *Store) ReorderStages(_ context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range stageIDs {
		if st, ok := s.stages[id]; !ok || st.PipelineID != pipelineID {
			return notFound("reorder stage %s", id)
		}
	}
	now := time.Now()
	for i, id := range stageIDs {
		st := s.stages[id]
		st.Order = i + 1
		st.UpdatedAt = now
		s.stages[id] = st
	}
	return nil
}

// DeleteStage removes a stage.
func (s *Store) DeleteStage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stages[id]; !ok {
		return notFound("delete stage %s", id)
	}
	delete(s.stages, id)
	return nil
}

func cloneTransition(t domain.Transition) domain.Transition {
	t.AllowedRoles = append([]string(nil), t.AllowedRoles...)
	return t
}

// CreateTransition stores a transition, enforcing one edge per stage pair.
func (s *Store) CreateTransition(_ context.Context, t domain.Transition) (*domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[t.PipelineID]; !ok {
		return nil, fmt.Errorf("%w: pipeline %s does not exist", domain.ErrInvalidInput, t.PipelineID)
	}
	for _, existing := range s.transitions {
		if existing.PipelineID == t.PipelineID && existing.FromStageKey == t.FromStageKey && existing.ToStageKey == t.ToStageKey {
			return nil, conflict("transition %s -> %s already exists", t.FromStageKey, t.ToStageKey)
		}
	}
	t = cloneTransition(t)
	s.transitions[t.ID] = t
	out := cloneTransition(t)
	return &out, nil
}

// FindTransitionByID retrieves a transition.
func (s *Store) FindTransitionByID(_ context.Context, id uuid.UUID) (*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transitions[id]
	if !ok {
		return nil, notFound("find transition %s", id)
	}
	out := cloneTransition(t)
	return &out, nil
}

// FindTransition retrieves the edge fromKey -> toKey of a pipeline.
func (s *Store) FindTransition(_ context.Context, pipelineID uuid.UUID, fromKey, toKey string) (*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transitions {
		if t.PipelineID == pipelineID && t.FromStageKey == fromKey && t.ToStageKey == toKey {
			out := cloneTransition(t)
			return &out, nil
		}
	}
	return nil, notFound("find transition %s -> %s", fromKey, toKey)
}

func (s *Store) listTransitions(match func(domain.Transition) bool) []domain.Transition {
	out := []domain.Transition{}
	for _, t := range s.transitions {
		if match(t) {
			out = append(out, cloneTransition(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromStageKey != out[j].FromStageKey {
			return out[i].FromStageKey < out[j].FromStageKey
		}
		return out[i].ToStageKey < out[j].ToStageKey
	})
	return out
}

// ListTransitions returns all transitions of a pipeline.
func (s *Store) ListTransitions(_ context.Context, pipelineID uuid.UUID) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransitions(func(t domain.Transition) bool { return t.PipelineID == pipelineID }), nil
}

// CountTransitionsTouching counts transitions with key at either end.
func (s *Store) CountTransitionsTouching(_ context.Context, pipelineID uuid.UUID, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.transitions {
		if t.PipelineID == pipelineID && t.Touches(key) {
			n++
		}
	}
	return n, nil
}

// UpdateTransition overwrites a transition.
func (s *Store) UpdateTransition(_ context.Context, t domain.Transition) (*domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transitions[t.ID]; !ok {
		return nil, notFound("update transition %s", t.ID)
	}
	t = cloneTransition(t)
	s.transitions[t.ID] = t
	out := cloneTransition(t)
	return &out, nil
}

// DeleteTransition removes a transition.
func (s *Store) DeleteTransition(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transitions[id]; !ok {
		return notFound("delete transition %s", id)
	}
	delete(s.transitions, id)
	return nil
}

// CountJobsUsingPipeline counts the jobs attached to a pipeline.
func (s *Store) CountJobsUsingPipeline(_ context.Context, pipelineID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if j.PipelineID != nil && *j.PipelineID == pipelineID {
			n++
		}
	}
	return n, nil
}
