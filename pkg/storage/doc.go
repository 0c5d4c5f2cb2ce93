// Package storage keeps a durable history of emitted events.
//
// Journal is an events.Sink backed by SQLite (modernc.org/sqlite, no cgo).
// Every event is appended as one row holding its type, username, timestamp
// and the full JSON record, so the history can be browsed after the
// consuming process has moved on. It is only a journal: monitors never read
// it back to seed change detection, and a restart still re-baselines.
//
// Usage:
//
//	journal, err := storage.Open(ctx, "igmonitor.db")
//	if err != nil {
//	    return err
//	}
//	defer journal.Close()
//
//	sink := events.Multi{events.NewJSONLines(os.Stdout), journal}
package storage
