package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igmonitor/internal/fleet"
	"igmonitor/pkg/config"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/scheduler"
)

var (
	// Flags shared by both modes
	usernames []string
	outputDir string

	// Basic mode flags
	interval   int
	checkBio   string
	checkPosts string
)

var basicCmd = &cobra.Command{
	Use:   "basic",
	Short: "Poll public profiles and report changes",
	Long: `Poll every --username at a jittered interval and emit bio_change,
new_post, profile_change and check_complete events on stdout.

Each username gets its own request budget; only the event stream is shared.
Runs until interrupted.`,
	Example: `  # Watch one profile every 10 minutes
  igmonitor basic --username natgeo

  # Watch two profiles, ignore bio edits, serve status on :9090
  igmonitor basic --username natgeo --username nasa --check-bio false --status-addr :9090`,
	RunE: runBasic,
}

func init() {
	rootCmd.AddCommand(basicCmd)

	basicCmd.Flags().StringSliceVarP(&usernames, "username", "u", nil, "profile to monitor (repeatable)")
	basicCmd.Flags().IntVar(&interval, "interval", 600, "seconds between checks")
	basicCmd.Flags().StringVar(&checkBio, "check-bio", "true", "report bio changes (true/false)")
	basicCmd.Flags().StringVar(&checkPosts, "check-posts", "true", "report new posts (true/false)")
	basicCmd.Flags().StringVar(&outputDir, "output-dir", "./downloads", "output directory")
}

// loadConfig merges the config file, environment and explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]interface{})
	persistentFlags(cmd, flags)

	changed := cmd.Flags().Changed
	if changed("username") {
		flags["username"] = usernames
	}
	if changed("output-dir") {
		flags["output-dir"] = outputDir
	}
	if changed("interval") {
		flags["interval"] = interval
	}
	if changed("check-bio") {
		flags["check-bio"] = checkBio
	}
	if changed("check-posts") {
		flags["check-posts"] = checkPosts
	}
	if changed("session-file") {
		flags["session-file"] = sessionFile
	}
	if changed("duration") {
		flags["duration"] = duration
	}
	if changed("download-stories") {
		flags["download-stories"] = downloadStories
	}

	return config.Load(configFile, flags)
}

func runBasic(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, "Mode1", cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	if err := os.MkdirAll(cfg.Monitor.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := buildFleet(a, cfg)
	served := a.serve(ctx)
	results := f.Run(ctx)
	interrupted := ctx.Err() != nil
	stop()
	<-served

	if err := fleet.FirstError(results); err != nil && !interrupted {
		return err
	}
	a.log.Info("Monitoring stopped")
	return nil
}

// buildFleet gives every username its own scheduler, so budgets and
// cooldowns never cross between profiles.
func buildFleet(a *app, cfg *config.Config) *fleet.Fleet {
	pollCfg := monitor.PollConfigFrom(cfg)
	f := fleet.New(a.log)
	for _, username := range cfg.Monitor.Usernames {
		log := a.log.WithField("username", username)
		sched := scheduler.New(cfg.Scheduler, scheduler.WithLogger(log))
		a.tracker.WatchBudget(username, sched.Budget())
		f.Add(monitor.NewPollLoop(username, sched, a.sink, pollCfg,
			monitor.WithLogger(a.log),
			monitor.WithProfileURL(scheduler.ProfileURLAt(cfg.Scheduler.BaseURL, username))))
	}
	return f
}
