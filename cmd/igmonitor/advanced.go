package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	"igmonitor/pkg/events"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/scheduler"
	"igmonitor/pkg/session"
)

var (
	// Advanced mode flags
	sessionFile     string
	duration        int
	downloadStories string
)

var advancedCmd = &cobra.Command{
	Use:   "advanced",
	Short: "Probe stories and live status of one profile for a fixed duration",
	Long: `Validate a credential file, confirm the profile is public, then probe
its stories and live status until --duration elapses.

A session_error event is emitted and the command exits 1 when the credential
file is missing or malformed. Reaching the deadline or an interrupt exits 0.`,
	Example: `  igmonitor advanced --username natgeo --session-file ./session.json --duration 900`,
	RunE:    runAdvanced,
}

func init() {
	rootCmd.AddCommand(advancedCmd)

	advancedCmd.Flags().StringSliceVarP(&usernames, "username", "u", nil, "profile to monitor")
	advancedCmd.Flags().StringVar(&sessionFile, "session-file", "", "credential JSON file (required)")
	advancedCmd.Flags().IntVar(&duration, "duration", 600, "seconds to run")
	advancedCmd.Flags().StringVar(&downloadStories, "download-stories", "true", "record new stories (true/false)")
	advancedCmd.Flags().StringVar(&outputDir, "output-dir", "./downloads", "output directory")
}

func runAdvanced(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Monitor.Usernames) != 1 {
		return errors.New("advanced mode monitors exactly one --username")
	}
	if cfg.Advanced.SessionFile == "" {
		return errors.New("--session-file is required in advanced mode")
	}
	username := cfg.Monitor.Usernames[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, "Mode2", cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	cred, err := validateSession(ctx, a, username)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Monitor.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	loop := buildExtendedLoop(a, cfg, username, cred)
	served := a.serve(ctx)
	summary, err := loop.Run(ctx)
	stop()
	<-served

	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.log.Info("Interrupted, stopping")
			return nil
		}
		return err
	}

	a.log.InfoWithFields("Advanced run finished", map[string]interface{}{
		"tasks_completed": summary.TasksCompleted,
		"stories_saved":   summary.StoriesSaved,
		"live_detected":   summary.LiveDetected,
		"probes":          summary.Probes,
		"duration":        summary.Duration.Round(time.Second).String(),
	})
	return nil
}

// validateSession emits session_error on failure and one session_warning
// per soft problem.
func validateSession(ctx context.Context, a *app, username string) (*session.Credential, error) {
	cred, warnings, err := session.Validate(a.cfg.Advanced.SessionFile)
	if err != nil {
		a.log.WithError(err).Error("Credential file rejected")
		ev := events.NewSessionError(username, time.Now(), string(session.ReasonOf(err)), err.Error())
		if emitErr := a.sink.Emit(ctx, ev); emitErr != nil {
			a.log.WithError(emitErr).Warn("Failed to emit event")
		}
		return nil, err
	}

	for _, w := range warnings {
		a.log.Warn(w.Message)
		ev := events.NewSessionWarning(username, time.Now(), w.Message, w.Age.Hours()/24)
		if emitErr := a.sink.Emit(ctx, ev); emitErr != nil {
			a.log.WithError(emitErr).Warn("Failed to emit event")
		}
	}
	a.log.WithField("account", cred.Username).Info("Credential file accepted")
	return cred, nil
}

// buildExtendedLoop wires the prober, story store and cleaner. The feed
// prober gets its own scheduler, with a ceiling sized to the probe interval,
// so story polling never spends the page budget.
func buildExtendedLoop(a *app, cfg *config.Config, username string, cred *session.Credential) *monitor.ExtendedPollLoop {
	log := a.log.WithField("username", username)
	pages := scheduler.New(cfg.Scheduler, scheduler.WithLogger(log))
	a.tracker.WatchBudget(username, pages.Budget())

	opts := []monitor.ExtendedOption{
		monitor.WithExtendedLogger(a.log),
		monitor.WithAccessURL(scheduler.ProfileURLAt(cfg.Scheduler.BaseURL, username)),
		monitor.WithCleaner(&monitor.AgeCleaner{Dir: cfg.Monitor.OutputDir, MaxAge: cfg.Advanced.CleanupAge}),
	}
	if cfg.Advanced.DownloadStories {
		opts = append(opts, monitor.WithStoryStore(&monitor.ManifestStore{Dir: cfg.Monitor.OutputDir}))
	}
	if cfg.Advanced.UseFeedProbe && cred.HasSession() {
		feedCfg := scheduler.ForInterval(cfg.Scheduler, cfg.Advanced.ProbeInterval)
		feed := scheduler.New(feedCfg, scheduler.WithLogger(log.WithField("component", "feed")))
		opts = append(opts, monitor.WithProber(monitor.NewFeedProber(feed, cred, cfg.Advanced.StoryRPS,
			monitor.WithFeedBaseURL(cfg.Advanced.FeedBaseURL),
			monitor.WithFeedLogger(log))))
	} else {
		log.Info("No session cookie in credential file, story and live probes are disabled")
	}

	return monitor.NewExtendedPollLoop(username, pages, a.sink, monitor.ExtendedConfigFrom(cfg), opts...)
}
