// Package retry provides backoff, jitter and retry helpers for profile
// fetches and feed probes.
//
// Features:
//   - Exponential and constant backoff strategies
//   - Jittered and Uniform draw the randomised poll and request delays
//   - Wait sleeps while honouring context cancellation
//   - Retry predicates keyed on pkg/errors types
//
// Basic usage:
//
//	body, err := retry.DoWithResult(func() ([]byte, error) {
//		return fetcher.Fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		RetryIf:     retry.DefaultRetryIf,
//		Context:     ctx,
//	})
//
// Error Type Handling:
//
// DefaultRetryIf retries transport failures and throttling. Not-found,
// unexpected statuses, parse failures and context errors are returned at
// once.
package retry
