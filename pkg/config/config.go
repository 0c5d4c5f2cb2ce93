package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "IGMONITOR_"

// Config holds all configuration options for the profile monitor
type Config struct {
	// Basic-mode polling
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Session-gated extended polling
	Advanced AdvancedConfig `yaml:"advanced" json:"advanced"`

	// Outbound request budget and pacing
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Status endpoint and snapshot file
	Status StatusConfig `yaml:"status" json:"status"`

	// Event journal
	History HistoryConfig `yaml:"history" json:"history"`
}

// MonitorConfig holds basic-mode settings
type MonitorConfig struct {
	Usernames  []string      `yaml:"usernames" json:"usernames"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
	CheckBio   bool          `yaml:"check_bio" json:"check_bio"`
	CheckPosts bool          `yaml:"check_posts" json:"check_posts"`
	OutputDir  string        `yaml:"output_dir" json:"output_dir"`
}

// AdvancedConfig holds advanced-mode settings
type AdvancedConfig struct {
	SessionFile     string        `yaml:"session_file" json:"session_file"`
	Duration        time.Duration `yaml:"duration" json:"duration"`
	DownloadStories bool          `yaml:"download_stories" json:"download_stories"`
	ProbeInterval   time.Duration `yaml:"probe_interval" json:"probe_interval"`
	StoryRPS        float64       `yaml:"story_rps" json:"story_rps"`
	UseFeedProbe    bool          `yaml:"use_feed_probe" json:"use_feed_probe"`
	FeedBaseURL     string        `yaml:"feed_base_url,omitempty" json:"feed_base_url,omitempty"`
	CleanupAge      time.Duration `yaml:"cleanup_age" json:"cleanup_age"`
}

// SchedulerConfig holds the request budget. HourlyCeiling requests are
// allowed per Window before a Cooldown pause.
type SchedulerConfig struct {
	HourlyCeiling   int           `yaml:"hourly_ceiling" json:"hourly_ceiling"`
	Window          time.Duration `yaml:"window" json:"window"`
	Cooldown        time.Duration `yaml:"cooldown" json:"cooldown"`
	MinDelay        time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	ThrottleBackoff time.Duration `yaml:"throttle_backoff" json:"throttle_backoff"`
	RecoveryDelay   time.Duration `yaml:"recovery_delay" json:"recovery_delay"`
	IntervalJitter  time.Duration `yaml:"interval_jitter" json:"interval_jitter"`
	MinInterval     time.Duration `yaml:"min_interval" json:"min_interval"`
	// BaseURL overrides the profile page origin; empty means the public site
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// StatusConfig controls the HTTP status panel. An empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	File string `yaml:"file" json:"file"`
}

// HistoryConfig controls the SQLite event journal. An empty DBPath disables it.
type HistoryConfig struct {
	DBPath string `yaml:"db_path" json:"db_path"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:   600 * time.Second,
			CheckBio:   true,
			CheckPosts: true,
			OutputDir:  "./downloads",
		},
		Advanced: AdvancedConfig{
			Duration:        600 * time.Second,
			DownloadStories: true,
			ProbeInterval:   30 * time.Second,
			StoryRPS:        0.2,
			UseFeedProbe:    true,
			CleanupAge:      time.Hour,
		},
		Scheduler: SchedulerConfig{
			HourlyCeiling:   15,
			Window:          time.Hour,
			Cooldown:        5 * time.Minute,
			MinDelay:        2 * time.Second,
			MaxDelay:        5 * time.Second,
			Timeout:         30 * time.Second,
			ThrottleBackoff: 15 * time.Minute,
			RecoveryDelay:   300 * time.Second,
			IntervalJitter:  120 * time.Second,
			MinInterval:     60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ParseToggle interprets the string toggles accepted on the command line.
// Only a case-insensitive "true" enables the option.
func ParseToggle(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// parseSeconds accepts either a bare number of seconds or a Go duration.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(envPrefix + "USERNAMES"); v != "" {
		c.Monitor.Usernames = splitList(v)
	}
	if v := os.Getenv(envPrefix + "INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sINTERVAL: %w", envPrefix, err))
		} else {
			c.Monitor.Interval = d
		}
	}
	if v := os.Getenv(envPrefix + "CHECK_BIO"); v != "" {
		c.Monitor.CheckBio = ParseToggle(v)
	}
	if v := os.Getenv(envPrefix + "CHECK_POSTS"); v != "" {
		c.Monitor.CheckPosts = ParseToggle(v)
	}
	if v := os.Getenv(envPrefix + "OUTPUT_DIR"); v != "" {
		c.Monitor.OutputDir = v
	}

	if v := os.Getenv(envPrefix + "SESSION_FILE"); v != "" {
		c.Advanced.SessionFile = v
	}
	if v := os.Getenv(envPrefix + "DURATION"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDURATION: %w", envPrefix, err))
		} else {
			c.Advanced.Duration = d
		}
	}
	if v := os.Getenv(envPrefix + "DOWNLOAD_STORIES"); v != "" {
		c.Advanced.DownloadStories = ParseToggle(v)
	}

	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv(envPrefix + "STATUS_ADDR"); v != "" {
		c.Status.Addr = v
	}
	if v := os.Getenv(envPrefix + "STATUS_FILE"); v != "" {
		c.Status.File = v
	}
	if v := os.Getenv(envPrefix + "HISTORY_DB"); v != "" {
		c.History.DBPath = v
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igmonitor.yaml",
		".igmonitor.yml",
		filepath.Join(home, ".config", "igmonitor", "config.yaml"),
		filepath.Join(home, ".config", "igmonitor", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Monitor.Usernames) == 0 {
		errs = append(errs, errors.New("at least one username is required"))
	}
	for _, u := range c.Monitor.Usernames {
		if !IsValidUsername(u) {
			errs = append(errs, fmt.Errorf("invalid username %q", u))
		}
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}

	if c.Advanced.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if c.Advanced.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe interval must be positive"))
	}
	if c.Advanced.StoryRPS <= 0 {
		errs = append(errs, errors.New("story rps must be positive"))
	}

	s := c.Scheduler
	if s.HourlyCeiling <= 0 {
		errs = append(errs, errors.New("hourly ceiling must be positive"))
	}
	if s.Window <= 0 {
		errs = append(errs, errors.New("rate window must be positive"))
	}
	if s.MinDelay < 0 || s.MaxDelay < s.MinDelay {
		errs = append(errs, errors.New("request delay range is invalid"))
	}
	if s.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// IsValidUsername reports whether s looks like a profile handle: 1-30 chars
// of letters, digits, '.' and '_'.
func IsValidUsername(s string) bool {
	if len(s) == 0 || len(s) > 30 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
		default:
			return false
		}
	}
	return true
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map override; cobra callers add a key when the
// flag was explicitly changed.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if usernames, ok := flags["username"].([]string); ok && len(usernames) > 0 {
		c.Monitor.Usernames = usernames
	}
	if interval, ok := flags["interval"].(int); ok && interval > 0 {
		c.Monitor.Interval = time.Duration(interval) * time.Second
	}
	if v, ok := flags["check-bio"].(string); ok && v != "" {
		c.Monitor.CheckBio = ParseToggle(v)
	}
	if v, ok := flags["check-posts"].(string); ok && v != "" {
		c.Monitor.CheckPosts = ParseToggle(v)
	}
	if outputDir, ok := flags["output-dir"].(string); ok && outputDir != "" {
		c.Monitor.OutputDir = outputDir
	}
	if sessionFile, ok := flags["session-file"].(string); ok && sessionFile != "" {
		c.Advanced.SessionFile = sessionFile
	}
	if duration, ok := flags["duration"].(int); ok && duration > 0 {
		c.Advanced.Duration = time.Duration(duration) * time.Second
	}
	if v, ok := flags["download-stories"].(string); ok && v != "" {
		c.Advanced.DownloadStories = ParseToggle(v)
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
	if addr, ok := flags["status-addr"].(string); ok && addr != "" {
		c.Status.Addr = addr
	}
	if file, ok := flags["status-file"].(string); ok && file != "" {
		c.Status.File = file
	}
	if db, ok := flags["history-db"].(string); ok && db != "" {
		c.History.DBPath = db
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igmonitor.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
