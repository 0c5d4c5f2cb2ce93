package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"igmonitor/pkg/events"
)

// MaxRecent caps how many records Recent returns
const MaxRecent = 500

// Record is one journaled event
type Record struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Username  string          `json:"username"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Journal appends events to a SQLite database
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path and runs migrations
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one writer; fleets share the journal
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	username   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_username_id ON events (username, id DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Emit appends e to the journal
func (j *Journal) Emit(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	h := e.Header()
	query := `INSERT INTO events (type, username, created_at, payload) VALUES (?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, string(h.Type), h.Username, h.Timestamp.UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
		return fmt.Errorf("failed to journal %s event: %w", h.Type, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty username
// matches every user.
func (j *Journal) Recent(ctx context.Context, username string, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	query := `SELECT id, type, username, created_at, payload FROM events`
	args := []any{}
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r         Record
			createdAt string
			payload   string
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Username, &createdAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		r.Payload = json.RawMessage(payload)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return records, nil
}

// CountByType returns how many events of each type were journaled for
// username, or for everyone when username is empty.
func (j *Journal) CountByType(ctx context.Context, username string) (map[string]int, error) {
	query := `SELECT type, COUNT(*) FROM events`
	args := []any{}
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` GROUP BY type`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
