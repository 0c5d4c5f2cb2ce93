package monitor

import (
	"context"
	"fmt"
	"time"

	"igmonitor/pkg/config"
	"igmonitor/pkg/detect"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/events"
	"igmonitor/pkg/extract"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/retry"
	"igmonitor/pkg/scheduler"
)

// PollConfig holds the timing of a basic-mode loop
type PollConfig struct {
	Interval        time.Duration
	Jitter          time.Duration
	MinInterval     time.Duration
	RecoveryDelay   time.Duration
	ThrottleBackoff time.Duration
	Checks          detect.Checks
}

// PollConfigFrom derives loop timing from the application config
func PollConfigFrom(cfg *config.Config) PollConfig {
	return PollConfig{
		Interval:        cfg.Monitor.Interval,
		Jitter:          cfg.Scheduler.IntervalJitter,
		MinInterval:     cfg.Scheduler.MinInterval,
		RecoveryDelay:   cfg.Scheduler.RecoveryDelay,
		ThrottleBackoff: cfg.Scheduler.ThrottleBackoff,
		Checks: detect.Checks{
			Bio:     cfg.Monitor.CheckBio,
			Posts:   cfg.Monitor.CheckPosts,
			Profile: true,
		},
	}
}

// PollLoop watches one username until its context is cancelled. It owns its
// detector; nothing else reads or writes it.
type PollLoop struct {
	username  string
	url       string
	cfg       PollConfig
	fetcher   scheduler.Fetcher
	extractor *extract.Extractor
	detector  *detect.Detector
	sink      events.Sink
	logger    logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	delay     func() time.Duration
	now       func() time.Time
}

// PollOption customises a PollLoop
type PollOption func(*PollLoop)

// WithSleep replaces the interruptible wait between cycles
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PollOption {
	return func(p *PollLoop) { p.sleep = sleep }
}

// WithDelay replaces the jittered interval draw
func WithDelay(delay func() time.Duration) PollOption {
	return func(p *PollLoop) { p.delay = delay }
}

// WithClock replaces the time source for event timestamps
func WithClock(now func() time.Time) PollOption {
	return func(p *PollLoop) { p.now = now }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) PollOption {
	return func(p *PollLoop) { p.logger = l }
}

// WithProfileURL overrides the page fetched each cycle
func WithProfileURL(url string) PollOption {
	return func(p *PollLoop) { p.url = url }
}

// NewPollLoop creates a loop for username
func NewPollLoop(username string, fetcher scheduler.Fetcher, sink events.Sink, cfg PollConfig, opts ...PollOption) *PollLoop {
	p := &PollLoop{
		username: username,
		url:      scheduler.ProfileURL(username),
		cfg:      cfg,
		fetcher:  fetcher,
		sink:     sink,
		sleep:    retry.Wait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.GetLogger()
	}
	p.logger = p.logger.WithField("username", username)
	if p.delay == nil {
		p.delay = func() time.Duration {
			return retry.Jittered(p.cfg.Interval, p.cfg.Jitter, p.cfg.MinInterval)
		}
	}
	p.extractor = extract.New(extract.WithUsername(username), extract.WithLogger(p.logger))
	p.detector = detect.New(username, cfg.Checks, detect.WithClock(func() time.Time { return p.now() }))
	return p
}

// Username returns the monitored handle
func (p *PollLoop) Username() string { return p.username }

// Run seeds a baseline, then polls until ctx is cancelled. Cycle failures
// never end the loop; it returns nil on cancellation.
func (p *PollLoop) Run(ctx context.Context) error {
	logger.LogComponentStart(p.logger, "poll_loop", map[string]interface{}{
		"interval": p.cfg.Interval.String(),
		"url":      p.url,
	})
	defer logger.LogComponentStop(p.logger, "poll_loop", "cancelled")

	if err := p.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.logger.WithError(err).Warn("Initial check failed, polling without a baseline")
		if p.backoff(ctx, err) != nil {
			return nil
		}
	}

	for {
		delay := p.delay()
		p.logger.InfoWithFields("Next check scheduled", map[string]interface{}{"in": delay.Round(time.Second).String()})
		if err := p.sleep(ctx, delay); err != nil {
			return nil
		}

		err := p.cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.complete(ctx, err)
		if err != nil && p.backoff(ctx, err) != nil {
			return nil
		}
	}
}

// initialize performs the first fetch. It only stores a baseline.
func (p *PollLoop) initialize(ctx context.Context) (err error) {
	defer recoverInternal(&err)

	snap, err := p.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	p.seed(snap)
	return nil
}

func (p *PollLoop) seed(snap models.ProfileSnapshot) {
	p.detector.Baseline(snap)
	p.logger.InfoWithFields("Baseline established", map[string]interface{}{
		"full_name": snap.FullName,
		"posts":     snap.PostsCount,
		"followers": snap.FollowersCount,
		"private":   snap.IsPrivate,
	})
}

// cycle runs fetch, extract, diff and emit once. After a failed initial
// check the first successful cycle only seeds the baseline.
func (p *PollLoop) cycle(ctx context.Context) (err error) {
	defer recoverInternal(&err)

	snap, err := p.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	if !p.detector.HasBaseline() {
		p.seed(snap)
		return nil
	}
	for ev := range p.detector.Observe(snap) {
		emit(ctx, p.sink, p.logger, ev)
	}
	return nil
}

func (p *PollLoop) fetchSnapshot(ctx context.Context) (models.ProfileSnapshot, error) {
	body, err := p.fetcher.Fetch(ctx, p.url)
	if err != nil {
		return models.ProfileSnapshot{}, err
	}
	snap, ok := p.extractor.Extract(string(body))
	if !ok {
		return models.ProfileSnapshot{}, errs.ParseExhausted()
	}
	return snap, nil
}

// complete closes a cycle with a check_complete event.
func (p *PollLoop) complete(ctx context.Context, err error) {
	metrics.IncCycle(err == nil)
	if err != nil {
		p.logger.WithError(err).WithField("error_type", string(errs.TypeOf(err))).Warn("Check failed")
	}
	emit(ctx, p.sink, p.logger, events.NewCheckCompleted(p.username, p.now(), err))
}

// backoff applies the extra wait some failures require. It returns an error
// only when ctx is cancelled during the wait.
func (p *PollLoop) backoff(ctx context.Context, err error) error {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeRateLimited:
		metrics.IncCooldown("throttled")
		logger.LogRateLimit(p.logger, "upstream returned 429", p.cfg.ThrottleBackoff)
		return p.sleep(ctx, p.cfg.ThrottleBackoff)
	case errs.ErrorTypeInternal:
		p.logger.WithError(err).WarnWithFields("Recovering from internal error", map[string]interface{}{
			"wait": p.cfg.RecoveryDelay.String(),
		})
		return p.sleep(ctx, p.cfg.RecoveryDelay)
	default:
		return nil
	}
}

// recoverInternal turns a panic into an internal error.
func recoverInternal(err *error) {
	if r := recover(); r != nil {
		*err = errs.Internal("recovered panic: %v", r)
	}
}

// emit writes ev to sink and logs its summary. Sink failures are logged and
// otherwise ignored.
func emit(ctx context.Context, sink events.Sink, log logger.Logger, ev events.Event) {
	h := ev.Header()
	metrics.IncEvent(string(h.Type))
	if h.Type != events.TypeCheckComplete {
		logger.LogChange(log, string(h.Type), ev.Summary())
	}
	if err := sink.Emit(ctx, ev); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Failed to emit %s event", h.Type))
	}
}
