package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"igmonitor/pkg/events"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
)

// UserStatus is the observed health of one monitored username
type UserStatus struct {
	Username    string           `json:"username"`
	Checks      int              `json:"checks"`
	Failures    int              `json:"failures"`
	LastCheck   *time.Time       `json:"last_check,omitempty"`
	LastSuccess *time.Time       `json:"last_success,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	Events      map[string]int   `json:"events"`
	Budget      *ratelimit.State `json:"budget,omitempty"`
}

// Snapshot is the persisted and served form of the tracker
type Snapshot struct {
	StartedAt time.Time    `json:"started_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Users     []UserStatus `json:"users"`
}

// Tracker derives per-user status from the event stream. It is an
// events.Sink and is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	path    string
	started time.Time
	updated time.Time
	users   map[string]*UserStatus
	budgets map[string]*ratelimit.Budget
	now     func() time.Time
	logger  logger.Logger
}

// Option customises a Tracker
type Option func(*Tracker)

// WithFile persists the snapshot to path after every event
func WithFile(path string) Option {
	return func(t *Tracker) { t.path = path }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		users:   map[string]*UserStatus{},
		budgets: map[string]*ratelimit.Budget{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.GetLogger()
	}
	t.started = t.now()
	t.updated = t.started
	return t
}

// Register adds username before its first event so it shows up at once
func (t *Tracker) Register(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.user(username)
}

// WatchBudget reports b's accounting alongside username's status
func (t *Tracker) WatchBudget(username string, b *ratelimit.Budget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.user(username)
	t.budgets[username] = b
}

func (t *Tracker) user(username string) *UserStatus {
	u, ok := t.users[username]
	if !ok {
		u = &UserStatus{Username: username, Events: map[string]int{}}
		t.users[username] = u
	}
	return u
}

// Emit records e. Persisting is best effort; a failed save is logged.
func (t *Tracker) Emit(ctx context.Context, e events.Event) error {
	h := e.Header()

	t.mu.Lock()
	u := t.user(h.Username)
	u.Events[string(h.Type)]++
	if check, ok := e.(*events.CheckCompleted); ok {
		at := h.Timestamp
		u.Checks++
		u.LastCheck = &at
		if check.Success {
			u.LastSuccess = &at
			u.LastError = ""
		} else {
			u.Failures++
			u.LastError = check.Error
		}
	}
	t.updated = t.now()
	t.mu.Unlock()

	if t.path != "" {
		if err := t.Save(); err != nil {
			t.logger.WithError(err).Warn("Failed to persist status")
		}
	}
	return nil
}

// Snapshot returns a copy of the current status, users sorted by name
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{StartedAt: t.started, UpdatedAt: t.updated, Users: make([]UserStatus, 0, len(t.users))}
	for name, u := range t.users {
		cp := *u
		cp.Events = make(map[string]int, len(u.Events))
		for k, v := range u.Events {
			cp.Events[k] = v
		}
		if b, ok := t.budgets[name]; ok {
			state := b.State()
			cp.Budget = &state
		}
		snap.Users = append(snap.Users, cp)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Username < snap.Users[j].Username })
	return snap
}

// Save writes the snapshot to the tracker's file atomically
func (t *Tracker) Save() error {
	if t.path == "" {
		return nil
	}
	snap := t.Snapshot()

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}

	tempFile, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary status file: %w", err)
	}
	tempPath := tempFile.Name()

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode status: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync status file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close status file: %w", err)
	}

	if err := os.Rename(tempPath, t.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save. A missing file yields nil.
func Load(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open status file: %w", err)
	}
	defer file.Close()

	var snap Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &snap, nil
}
