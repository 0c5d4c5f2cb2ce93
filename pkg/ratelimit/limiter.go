package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until the caller may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// State is the rolling request accounting of one scheduler.
type State struct {
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
}

// Budget enforces a fixed ceiling of requests per window. When the ceiling
// is exceeded the caller is held for a cooldown rather than rejected.
// Every Acquire counts, whether the request later succeeds or not.
type Budget struct {
	ceiling  int
	window   time.Duration
	cooldown time.Duration

	mu    sync.Mutex
	state State

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onPause func(count int, d time.Duration)
}

// BudgetOption customises a Budget
type BudgetOption func(*Budget)

// WithClock replaces the time source
func WithClock(now func() time.Time) BudgetOption {
	return func(b *Budget) { b.now = now }
}

// WithSleep replaces the cooldown wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) BudgetOption {
	return func(b *Budget) { b.sleep = sleep }
}

// WithPauseHook is called each time a cooldown starts
func WithPauseHook(fn func(count int, d time.Duration)) BudgetOption {
	return func(b *Budget) { b.onPause = fn }
}

// NewBudget creates a budget allowing ceiling requests per window
func NewBudget(ceiling int, window, cooldown time.Duration, opts ...BudgetOption) *Budget {
	b := &Budget{
		ceiling:  ceiling,
		window:   window,
		cooldown: cooldown,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.WindowStart = b.now()
	return b
}

// Acquire records one request attempt, pausing for the cooldown when the
// count within the current window exceeds the ceiling.
func (b *Budget) Acquire(ctx context.Context) error {
	b.mu.Lock()
	now := b.now()
	if now.Sub(b.state.WindowStart) >= b.window {
		b.state.RequestCount = 0
		b.state.WindowStart = now
	}
	b.state.RequestCount++
	over := b.state.RequestCount > b.ceiling
	count := b.state.RequestCount
	b.mu.Unlock()

	if !over {
		return nil
	}
	if b.onPause != nil {
		b.onPause(count, b.cooldown)
	}
	return b.sleep(ctx, b.cooldown)
}

// State returns a copy of the current accounting
func (b *Budget) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer spaces calls evenly using a token bucket
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows rps calls per second with the given burst
func NewPacer(rps float64, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next call is allowed
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
