package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/events"
	"igmonitor/pkg/extract"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/retry"
	"igmonitor/pkg/scheduler"
)

// ExtendedConfig bounds an advanced-mode run
type ExtendedConfig struct {
	Duration        time.Duration
	ProbeInterval   time.Duration
	DownloadStories bool
}

// ExtendedConfigFrom derives the run bounds from the application config
func ExtendedConfigFrom(cfg *config.Config) ExtendedConfig {
	return ExtendedConfig{
		Duration:        cfg.Advanced.Duration,
		ProbeInterval:   cfg.Advanced.ProbeInterval,
		DownloadStories: cfg.Advanced.DownloadStories,
	}
}

// Summary describes a finished advanced run
type Summary struct {
	Access         models.AccessLevel
	TasksCompleted int
	StoriesSaved   int
	LiveDetected   bool
	Probes         int
	Duration       time.Duration
}

// ExtendedPollLoop probes stories and live status of one profile for a
// fixed wall-clock duration.
type ExtendedPollLoop struct {
	username  string
	url       string
	cfg       ExtendedConfig
	fetcher   scheduler.Fetcher
	extractor *extract.Extractor
	prober    Prober
	stories   StoryStore
	cleaner   Cleaner
	sink      events.Sink
	logger    logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// ExtendedOption customises an ExtendedPollLoop
type ExtendedOption func(*ExtendedPollLoop)

// WithProber sets the story/live data source
func WithProber(p Prober) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.prober = p }
}

// WithStoryStore sets where new stories are recorded
func WithStoryStore(s StoryStore) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.stories = s }
}

// WithCleaner runs c once the loop ends
func WithCleaner(c Cleaner) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.cleaner = c }
}

// WithExtendedSleep replaces the wait between probe ticks
func WithExtendedSleep(sleep func(ctx context.Context, d time.Duration) error) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.sleep = sleep }
}

// WithExtendedClock replaces the time source
func WithExtendedClock(now func() time.Time) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.now = now }
}

// WithExtendedLogger sets the logger
func WithExtendedLogger(log logger.Logger) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.logger = log }
}

// WithAccessURL overrides the page used for the access probe
func WithAccessURL(url string) ExtendedOption {
	return func(l *ExtendedPollLoop) { l.url = url }
}

// NewExtendedPollLoop creates an advanced-mode loop. Without WithProber it
// uses UnimplementedProber.
func NewExtendedPollLoop(username string, fetcher scheduler.Fetcher, sink events.Sink, cfg ExtendedConfig, opts ...ExtendedOption) *ExtendedPollLoop {
	l := &ExtendedPollLoop{
		username: username,
		url:      scheduler.ProfileURL(username),
		cfg:      cfg,
		fetcher:  fetcher,
		prober:   UnimplementedProber{},
		stories:  DiscardStore{},
		sink:     sink,
		sleep:    retry.Wait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.GetLogger()
	}
	l.logger = l.logger.WithField("username", username)
	l.extractor = extract.New(extract.WithUsername(username), extract.WithLogger(l.logger))
	return l
}

// Run performs the access probe, then probes every ProbeInterval until the
// deadline. Reaching the deadline is success. Cancellation of ctx returns
// ctx.Err() without the summary event.
func (l *ExtendedPollLoop) Run(ctx context.Context) (summary Summary, err error) {
	start := l.now()
	deadline := start.Add(l.cfg.Duration)
	runCtx, cancel := context.WithTimeout(ctx, l.cfg.Duration)
	defer cancel()

	logger.LogComponentStart(l.logger, "extended_loop", map[string]interface{}{
		"duration":       l.cfg.Duration.String(),
		"probe_interval": l.cfg.ProbeInterval.String(),
	})
	defer func() {
		l.cleanup(ctx)
		if err != nil {
			logger.LogComponentStop(l.logger, "extended_loop", err.Error())
		} else {
			logger.LogComponentStop(l.logger, "extended_loop", "deadline reached")
		}
	}()

	level, snap, err := ProbeAccess(runCtx, l.fetcher, l.extractor, l.url)
	if err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		metrics.IncProbe("access", "error")
		return summary, fmt.Errorf("access probe failed: %w", err)
	}
	summary.Access = level
	metrics.IncProbe("access", string(level))
	if level != models.AccessPublic {
		l.logger.WithField("access", string(level)).Error("Target profile cannot be monitored")
		return summary, fmt.Errorf("%w: %s", ErrAccessDenied, level)
	}
	l.logger.Info("Target profile is public, starting probes")

	target := Target{Username: l.username, UserID: snap.UserID}
	state := probeState{seen: map[string]bool{}}
	if _, stub := l.prober.(UnimplementedProber); !stub && target.UserID == "" {
		l.logger.Warn("Profile page carried no user id, story and live probes are disabled")
		l.prober = UnimplementedProber{}
		state.reportedStub = true
	}

	for l.now().Before(deadline) {
		if err := l.probeOnce(runCtx, target, &state, &summary); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			if runCtx.Err() == nil {
				return summary, err
			}
			break
		}

		wait := min(l.cfg.ProbeInterval, deadline.Sub(l.now()))
		if wait <= 0 {
			break
		}
		l.logger.DebugWithFields("Advanced run in progress", map[string]interface{}{
			"remaining": deadline.Sub(l.now()).Round(time.Second).String(),
		})
		if err := l.sleep(runCtx, wait); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			break
		}
	}

	summary.Duration = l.now().Sub(start)
	emit(ctx, l.sink, l.logger, events.NewDownloadComplete(l.username, l.now(), summary.TasksCompleted, summary.Duration))
	return summary, nil
}

type probeState struct {
	seen         map[string]bool
	live         bool
	reportedStub bool
}

// probeOnce runs one story+live probe. Only failures that make further
// probing pointless are returned.
func (l *ExtendedPollLoop) probeOnce(ctx context.Context, target Target, state *probeState, summary *Summary) error {
	summary.Probes++
	result, err := l.prober.Probe(ctx, target)
	switch {
	case errors.Is(err, ErrNotImplemented):
		if !state.reportedStub {
			l.logger.Warn(err.Error())
			state.reportedStub = true
		}
		metrics.IncProbe("feed", "unimplemented")
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sessionRejected(err) {
			return fmt.Errorf("story feed rejected the session: %w", err)
		}
		l.logger.WithError(err).Warn("Probe failed")
		return nil
	}

	if l.cfg.DownloadStories {
		saved := 0
		for _, story := range result.Stories {
			if state.seen[story.ID] {
				continue
			}
			state.seen[story.ID] = true
			path, err := l.stories.Save(ctx, l.username, story)
			if err != nil {
				l.logger.WithError(err).WithField("story_id", story.ID).Warn("Failed to record story")
				continue
			}
			saved++
			emit(ctx, l.sink, l.logger, events.NewStoryDownloaded(l.username, l.now(), story, path))
		}
		if saved > 0 {
			summary.StoriesSaved += saved
			summary.TasksCompleted++
		}
		if len(result.Stories) == 0 {
			l.logger.Debug("No stories available")
		}
	}

	switch {
	case result.Live != nil && !state.live:
		state.live = true
		summary.LiveDetected = true
		summary.TasksCompleted++
		emit(ctx, l.sink, l.logger, events.NewLiveDetected(l.username, l.now(), *result.Live))
	case result.Live == nil && state.live:
		state.live = false
		l.logger.Info("Live broadcast ended")
	}
	return nil
}

// sessionRejected reports a 401 or 403 from the feed.
func sessionRejected(err error) bool {
	var typed *errs.Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == http.StatusUnauthorized || typed.Code == http.StatusForbidden
}

func (l *ExtendedPollLoop) cleanup(ctx context.Context) {
	if l.cleaner == nil {
		return
	}
	// the parent ctx may already be cancelled on interrupt
	n, err := l.cleaner.Clean(context.WithoutCancel(ctx))
	if err != nil {
		l.logger.WithError(err).Warn("Cleanup failed")
		return
	}
	if n > 0 {
		l.logger.InfoWithFields("Removed stale files", map[string]interface{}{"count": n})
	}
}
