package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/retry"
)

// maxBodySize caps how much of a page is read into memory.
const maxBodySize = 16 << 20

// Fetcher is the contract the poll loops depend on.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Scheduler issues paced, budgeted outbound fetches. One Scheduler owns one
// rate budget; monitors for different usernames get their own.
type Scheduler struct {
	httpClient *http.Client
	headers    HeaderProvider
	budget     *ratelimit.Budget
	minDelay   time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     logger.Logger
}

// Option customises a Scheduler
type Option func(*Scheduler)

// WithHeaders replaces the header strategy
func WithHeaders(h HeaderProvider) Option {
	return func(s *Scheduler) { s.headers = h }
}

// WithHTTPClient replaces the HTTP client. Its Timeout should stay set.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scheduler) { s.httpClient = c }
}

// WithBudget replaces the rate budget
func WithBudget(b *ratelimit.Budget) Option {
	return func(s *Scheduler) { s.budget = b }
}

// WithSleep replaces the pre-request delay wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler from configuration
func New(cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers:    NewRandomHeaders(),
		minDelay:   cfg.MinDelay,
		maxDelay:   cfg.MaxDelay,
		sleep:      retry.Wait,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.budget == nil {
		log := s.logger
		s.budget = ratelimit.NewBudget(cfg.HourlyCeiling, cfg.Window, cfg.Cooldown,
			ratelimit.WithPauseHook(func(count int, d time.Duration) {
				metrics.IncCooldown("budget")
				logger.LogRateLimit(log.WithField("requests_in_window", count), "hourly budget exceeded", d)
			}))
	}
	return s
}

// Budget exposes the rate accounting for status reporting
func (s *Scheduler) Budget() *ratelimit.Budget {
	return s.budget
}

// Fetch performs a page navigation request
func (s *Scheduler) Fetch(ctx context.Context, url string) ([]byte, error) {
	return s.Do(ctx, url, nil)
}

// Do performs a GET with the randomized identity plus extra headers. It
// consults the budget, waits a random pre-request delay and maps the
// response status to a typed error. It never retries.
func (s *Scheduler) Do(ctx context.Context, url string, extra http.Header) ([]byte, error) {
	if err := s.budget.Acquire(ctx); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, retry.Uniform(s.minDelay, s.maxDelay)); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Internal("failed to create request: %v", err)
	}
	for k, v := range s.headers.Headers() {
		req.Header[k] = v
	}
	for k, v := range extra {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.ObserveFetch("transport", start)
		logger.LogFetch(s.logger, url, 0, time.Since(start), err)
		return nil, errs.Transport(err)
	}
	defer resp.Body.Close()

	if err := s.checkResponseStatus(resp); err != nil {
		metrics.ObserveFetch(string(errs.TypeOf(err)), start)
		logger.LogFetch(s.logger, url, resp.StatusCode, time.Since(start), nil)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.ObserveFetch("transport", start)
		return nil, errs.Transport(fmt.Errorf("failed to read response body: %w", err))
	}

	metrics.ObserveFetch("ok", start)
	logger.LogFetch(s.logger, url, resp.StatusCode, time.Since(start), nil)
	return body, nil
}

// checkResponseStatus maps the HTTP status to the fetch error taxonomy
func (s *Scheduler) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return errs.RateLimited()
	case http.StatusNotFound:
		return errs.NotFoundOrPrivate()
	default:
		return errs.Unexpected(resp.StatusCode)
	}
}
