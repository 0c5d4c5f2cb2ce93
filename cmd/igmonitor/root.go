package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	"igmonitor/pkg/events"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/status"
	"igmonitor/pkg/storage"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	statusAddr string
	statusFile string
	historyDB  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igmonitor",
	Short: "Watch public profiles and report changes as JSON lines",
	Long: `igmonitor polls public profile pages and emits an event on stdout for
every observed change: bio edits, new posts, name, verification and privacy
changes.

Modes:
  basic     poll one or more profiles at a fixed interval
  advanced  validate a credential file, then probe stories and live status
            of one profile for a bounded duration

Events go to stdout, logs go to stderr.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./igmonitor.yaml or $HOME/.igmonitor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&statusAddr, "status-addr", "", "serve /health, /status, /metrics, /events and /events/counts on this address")
	rootCmd.PersistentFlags().StringVar(&statusFile, "status-file", "", "persist per-user status to this JSON file")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "journal every event to this SQLite database")

	rootCmd.SetVersionTemplate(`igmonitor {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// persistentFlags collects the global flags the user actually set
func persistentFlags(cmd *cobra.Command, flags map[string]interface{}) {
	changed := cmd.Flags().Changed
	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	if changed("log-file") {
		flags["log-file"] = logFile
	}
	if changed("status-addr") {
		flags["status-addr"] = statusAddr
	}
	if changed("status-file") {
		flags["status-file"] = statusFile
	}
	if changed("history-db") {
		flags["history-db"] = historyDB
	}
}

// app holds what both modes share: the logger, the event fan-out and the
// optional status and history surfaces.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	sink    events.Sink
	tracker *status.Tracker
	journal *storage.Journal
	server  *status.Server
}

func newApp(ctx context.Context, cfg *config.Config, mode string, out io.Writer) (*app, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialise logger: %w", err)
	}
	log := logger.GetLogger().WithField(logger.ModeField, mode)
	log.WithField("version", version).Info("igmonitor starting")

	a := &app{cfg: cfg, log: log}

	trackerOpts := []status.Option{status.WithLogger(log)}
	if cfg.Status.File != "" {
		trackerOpts = append(trackerOpts, status.WithFile(cfg.Status.File))
	}
	a.tracker = status.NewTracker(trackerOpts...)

	sinks := events.Multi{events.NewJSONLines(out), a.tracker}
	var history status.History
	if cfg.History.DBPath != "" {
		journal, err := storage.Open(ctx, cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open event history: %w", err)
		}
		a.journal = journal
		history = journal
		sinks = append(sinks, journal)
	}
	a.sink = sinks

	if cfg.Status.Addr != "" {
		a.server = status.NewServer(cfg.Status.Addr, a.tracker, history, log)
	}
	return a, nil
}

// serve runs the status server until ctx ends. The returned channel is
// closed once it has stopped.
func (a *app) serve(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if a.server == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		if err := a.server.Run(ctx); err != nil {
			a.log.WithError(err).Error("Status server failed")
		}
	}()
	return done
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close event history")
		}
	}
}
