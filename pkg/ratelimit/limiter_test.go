package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBudget(clock *fakeClock, slept *[]time.Duration) *Budget {
	return NewBudget(15, time.Hour, 5*time.Minute,
		WithClock(clock.Now),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		}),
	)
}

func TestBudgetSixteenthAttemptBlocks(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	b := newTestBudget(clock, &slept)

	for i := 0; i < 15; i++ {
		require.NoError(t, b.Acquire(context.Background()))
		clock.Advance(time.Minute)
	}
	assert.Empty(t, slept, "first 15 attempts must not pause")

	require.NoError(t, b.Acquire(context.Background()))
	assert.Equal(t, []time.Duration{5 * time.Minute}, slept)
	assert.Equal(t, 16, b.State().RequestCount)
}

func TestBudgetWindowExpiryResets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	b := newTestBudget(clock, &slept)

	for i := 0; i < 15; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	clock.Advance(time.Hour)

	require.NoError(t, b.Acquire(context.Background()))
	assert.Empty(t, slept)
	assert.Equal(t, 1, b.State().RequestCount)
	assert.Equal(t, clock.Now(), b.State().WindowStart)
}

func TestBudgetCounterNotResetByPause(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	b := newTestBudget(clock, &slept)

	for i := 0; i < 17; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	assert.Len(t, slept, 2, "every attempt over the ceiling pauses until the window rolls")
}

func TestBudgetCooldownCancellable(t *testing.T) {
	b := NewBudget(1, time.Hour, time.Hour)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := b.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBudgetPauseHook(t *testing.T) {
	var calls int
	b := NewBudget(1, time.Hour, time.Millisecond, WithPauseHook(func(count int, d time.Duration) {
		calls++
		assert.Equal(t, 2, count)
	}))
	require.NoError(t, b.Acquire(context.Background()))
	require.NoError(t, b.Acquire(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestPacer(t *testing.T) {
	p := NewPacer(1000, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.Wait(ctx))

	var _ Limiter = p
}
