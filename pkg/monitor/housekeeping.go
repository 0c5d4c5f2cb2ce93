package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"igmonitor/pkg/models"
)

// StoryStore receives each newly seen story item and returns where it was
// recorded, if anywhere.
type StoryStore interface {
	Save(ctx context.Context, username string, item models.StoryItem) (string, error)
}

// DiscardStore records nothing
type DiscardStore struct{}

func (DiscardStore) Save(ctx context.Context, username string, item models.StoryItem) (string, error) {
	return "", nil
}

// ManifestStore appends story metadata as JSON lines to
// <dir>/<username>_stories.jsonl. It never downloads media.
type ManifestStore struct {
	Dir string
	mu  sync.Mutex
}

func (m *ManifestStore) Save(ctx context.Context, username string, item models.StoryItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(m.Dir, username+manifestSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open story manifest: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(item); err != nil {
		return "", fmt.Errorf("failed to write story manifest: %w", err)
	}
	return path, nil
}

// Cleaner removes stale files after an advanced run
type Cleaner interface {
	Clean(ctx context.Context) (int, error)
}

// DefaultCleanupAge keeps files from the last hour
const DefaultCleanupAge = time.Hour

// DefaultCleanupPattern matches the manifests ManifestStore writes
const DefaultCleanupPattern = "*" + manifestSuffix

const manifestSuffix = "_stories.jsonl"

// AgeCleaner deletes regular files in Dir matching Pattern and older than
// MaxAge. Files that do not match are never touched, so Dir may be shared
// with unrelated content. It does not descend into subdirectories.
type AgeCleaner struct {
	Dir     string
	Pattern string
	MaxAge  time.Duration
	Now     func() time.Time
}

func (c *AgeCleaner) Clean(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", c.Dir, err)
	}

	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCleanupAge
	}
	pattern := c.Pattern
	if pattern == "" {
		pattern = DefaultCleanupPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid cleanup pattern %q: %w", pattern, err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	cutoff := now().Add(-maxAge)

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.Dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
