package storage

import (
	"context"
	"errors"
	"time"

	"dejabot/internal/history"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": snapshot + journal files
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the dedup engine.
//
// AppendOccurrence is write-through: it is called synchronously after
// every in-memory append, which bounds crash loss to one in-flight
// event. EvictBefore mirrors the daily in-memory eviction. Load never
// fails on absent or corrupt state; it returns an empty table instead
// so a damaged file degrades to a fresh start, not a crashed process.
type Store interface {
	AppendOccurrence(ctx context.Context, key string, at time.Time) error
	EvictBefore(ctx context.Context, boundary time.Time) error
	Load(ctx context.Context) (history.Table, error)
	Close() error
}
