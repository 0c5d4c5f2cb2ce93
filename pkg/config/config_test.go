package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 600*time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.Monitor.CheckBio)
	assert.True(t, cfg.Monitor.CheckPosts)
	assert.Equal(t, "./downloads", cfg.Monitor.OutputDir)

	assert.Equal(t, 600*time.Second, cfg.Advanced.Duration)
	assert.Equal(t, 30*time.Second, cfg.Advanced.ProbeInterval)

	assert.Equal(t, 15, cfg.Scheduler.HourlyCeiling)
	assert.Equal(t, time.Hour, cfg.Scheduler.Window)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Cooldown)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.ThrottleBackoff)
	assert.Equal(t, 300*time.Second, cfg.Scheduler.RecoveryDelay)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Status.Addr)
	assert.Empty(t, cfg.History.DBPath)
}

func TestParseToggle(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{" True ", true},
		{"false", false},
		{"yes", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseToggle(tt.in))
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGMONITOR_USERNAMES", "alice, bob,,")
	t.Setenv("IGMONITOR_INTERVAL", "900")
	t.Setenv("IGMONITOR_DURATION", "2m")
	t.Setenv("IGMONITOR_CHECK_BIO", "False")
	t.Setenv("IGMONITOR_DOWNLOAD_STORIES", "FALSE")
	t.Setenv("IGMONITOR_SESSION_FILE", "/tmp/session.json")
	t.Setenv("IGMONITOR_LOG_LEVEL", "debug")
	t.Setenv("IGMONITOR_HISTORY_DB", "/tmp/history.db")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, []string{"alice", "bob"}, cfg.Monitor.Usernames)
	assert.Equal(t, 900*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Advanced.Duration)
	assert.False(t, cfg.Monitor.CheckBio)
	assert.True(t, cfg.Monitor.CheckPosts)
	assert.False(t, cfg.Advanced.DownloadStories)
	assert.Equal(t, "/tmp/session.json", cfg.Advanced.SessionFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/history.db", cfg.History.DBPath)
}

func TestLoadFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("IGMONITOR_INTERVAL", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IGMONITOR_INTERVAL")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
monitor:
  usernames: [natgeo]
  interval: 5m
  check_posts: false
scheduler:
  hourly_ceiling: 10
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, []string{"natgeo"}, cfg.Monitor.Usernames)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.False(t, cfg.Monitor.CheckPosts)
	assert.True(t, cfg.Monitor.CheckBio)
	assert.Equal(t, 10, cfg.Scheduler.HourlyCeiling)
	assert.Equal(t, time.Hour, cfg.Scheduler.Window)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no username", func(c *Config) { c.Monitor.Usernames = nil }, "at least one username"},
		{"bad username", func(c *Config) { c.Monitor.Usernames = []string{"no spaces"} }, "invalid username"},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }, "interval must be positive"},
		{"inverted delays", func(c *Config) { c.Scheduler.MaxDelay = time.Second }, "delay range"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Monitor.Usernames = []string{"alice"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"username":         []string{"alice", "bob"},
		"interval":         120,
		"check-bio":        "FALSE",
		"download-stories": "false",
		"session-file":     "s.json",
		"duration":         60,
		"status-addr":      ":9100",
	})

	assert.Equal(t, []string{"alice", "bob"}, cfg.Monitor.Usernames)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.Interval)
	assert.False(t, cfg.Monitor.CheckBio)
	assert.True(t, cfg.Monitor.CheckPosts)
	assert.False(t, cfg.Advanced.DownloadStories)
	assert.Equal(t, "s.json", cfg.Advanced.SessionFile)
	assert.Equal(t, time.Minute, cfg.Advanced.Duration)
	assert.Equal(t, ":9100", cfg.Status.Addr)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Monitor.Usernames = []string{"alice"}
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Monitor, loaded.Monitor)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  usernames: [fromfile]\n  interval: 5m\n"), 0644))
	t.Setenv("IGMONITOR_INTERVAL", "700")

	cfg, err := Load(path, map[string]interface{}{"username": []string{"fromflag"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fromflag"}, cfg.Monitor.Usernames)
	assert.Equal(t, 700*time.Second, cfg.Monitor.Interval)
}
