package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "monitor.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	log.WithField(ModeField, "Mode1").WithField("username", "natgeo").Info("Monitoring started")

	line := strings.TrimSpace(buf.String())
	assert.Regexp(t, regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[Mode1\] Monitoring started`), line)
	assert.Contains(t, line, "username=natgeo")
	assert.NotContains(t, line, "mode=")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "info", File: path}, &buf)
	require.NoError(t, err)

	log.WithField(ModeField, "Mode2").InfoWithFields("probe", map[string]interface{}{"count": 3})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"Mode2"`)
	assert.Contains(t, string(data), `"count":3`)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	_ = parent.WithField("child", true)
	parent.Info("plain")
	assert.NotContains(t, buf.String(), "child")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	log.WithError(errors.New("boom")).Error("cycle failed")
	assert.Contains(t, buf.String(), "error=boom")
	assert.Same(t, log, log.WithError(nil))
}

func TestTestLoggerCapturesDerivedFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("username", "alice").WithError(errors.New("x"))
	child.WarnWithFields("fetch failed", map[string]interface{}{"status": 429})

	msgs := tl.GetMessagesByLevel("WARN")
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Fields["username"])
	assert.Equal(t, 429, msgs[0].Fields["status"])
	assert.EqualError(t, msgs[0].Error, "x")
	assert.True(t, tl.HasMessageContaining("fetch"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "日本...", Truncate("日本語テキスト", 2))
}
