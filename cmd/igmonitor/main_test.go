package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/config"
	"igmonitor/pkg/session"
	"igmonitor/pkg/status"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// jsonLines decodes every line of out that holds a JSON object
func jsonLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "igmonitor "+version)
}

func TestAdvancedRequiresSessionFile(t *testing.T) {
	_, err := execute(t, "advanced", "--username", "natgeo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--session-file")
}

func TestBasicRejectsInvalidUsername(t *testing.T) {
	_, err := execute(t, "basic", "--username", "not a handle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username")
}

func TestAdvancedRejectsEmptyCredentialWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "igmonitor.yaml")
	cfgBody := fmt.Sprintf("scheduler:\n  base_url: %s\nadvanced:\n  feed_base_url: %s\n", srv.URL, srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgBody), 0o644))
	sessionPath := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(sessionPath, []byte(`{}`), 0o600))
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "advanced",
		"--config", cfgPath,
		"--username", "natgeo",
		"--session-file", sessionPath,
		"--output-dir", outDir)
	require.Error(t, err)
	assert.Equal(t, session.ReasonMissingField, session.ReasonOf(err))

	var sessionErrors []map[string]any
	for _, line := range jsonLines(t, out) {
		if line["type"] == "session_error" {
			sessionErrors = append(sessionErrors, line)
		}
	}
	require.Len(t, sessionErrors, 1)
	assert.Equal(t, "missing_field", sessionErrors[0]["error_kind"])
	assert.Equal(t, "natgeo", sessionErrors[0]["username"])

	assert.Zero(t, hits.Load())
	assert.NoDirExists(t, outDir)
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "igmonitor.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	var cfg config.Config
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, config.DefaultConfig().Monitor.Interval, cfg.Monitor.Interval)
	assert.Equal(t, config.DefaultConfig().Advanced.ProbeInterval, cfg.Advanced.ProbeInterval)
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "igmonitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  interval: 5m\n"), 0o644))

	_, err := execute(t, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "monitor:\n  interval: 5m\n", string(body))
}

func TestStatusPrintsPersistedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr := status.NewTracker(status.WithFile(path), status.WithClock(func() time.Time { return at }))
	tr.Register("natgeo")
	require.NoError(t, tr.Save())

	out, err := execute(t, "status", "--status-file", path)
	require.NoError(t, err)

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "natgeo", snap.Users[0].Username)
}

func TestStatusWithoutSnapshot(t *testing.T) {
	_, err := execute(t, "status", "--status-file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no status recorded")

	_, err = execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--status-file")
}
