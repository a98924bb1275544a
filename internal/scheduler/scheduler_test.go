package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireDue(context.Context) (int, error) {
	e.calls.Add(1)
	return 1, e.err
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	exp := &countingExpirer{}
	s := New(exp, "@every 1h")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(&countingExpirer{}, "not a schedule")
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_DefaultSpec(t *testing.T) {
	s := New(&countingExpirer{}, "")
	assert.Equal(t, DefaultSpec, s.spec)
}

func TestScheduler_Sweep(t *testing.T) {
	t.Run("runs the expirer", func(t *testing.T) {
		exp := &countingExpirer{err: errors.New("db down")}
		New(exp, "").Sweep(context.Background())
		assert.Equal(t, int32(1), exp.calls.Load())
	})

	t.Run("skips when cancelled", func(t *testing.T) {
		exp := &countingExpirer{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		New(exp, "").Sweep(ctx)
		assert.Equal(t, int32(0), exp.calls.Load())
	})
}
