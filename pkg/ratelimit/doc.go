// Package ratelimit paces outbound requests.
//
// Two limiters are provided:
//
// Budget:
//   - Fixed ceiling of requests per window (15 per hour by default)
//   - Every attempt counts, successful or not
//   - Exceeding the ceiling holds the caller for a cooldown, then starts a
//     fresh window; nothing is rejected
//   - The counter resets only when the window expires
//
// Pacer:
//   - Token bucket on golang.org/x/time/rate
//   - Used for the story feed, which is polled far more often than pages
//
// Usage:
//
//	budget := ratelimit.NewBudget(15, time.Hour, 5*time.Minute)
//	if err := budget.Acquire(ctx); err != nil {
//	    return err // ctx cancelled during the cooldown
//	}
//
//	pacer := ratelimit.NewPacer(0.2, 1)
//	if err := pacer.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
