package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dejabot/internal/history"
	logx "dejabot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS occurrences (
	key     TEXT    NOT NULL,
	seen_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_occurrences_key ON occurrences(key);
CREATE INDEX IF NOT EXISTS idx_occurrences_seen_at ON occurrences(seen_at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendOccurrence(ctx context.Context, key string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO occurrences(key, seen_at) VALUES(?, ?)`,
		key, at.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) EvictBefore(ctx context.Context, boundary time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM occurrences WHERE seen_at < ?`, boundary.UnixMilli())
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (history.Table, error) {
	if s == nil || s.db == nil {
		return history.Table{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, seen_at FROM occurrences ORDER BY seen_at`)
	if err != nil {
		// Unreadable state degrades to a fresh start.
		s.log.Warn("history load failed; starting fresh", logx.Any("err", err))
		return history.Table{}, nil
	}
	defer rows.Close()

	out := history.Table{}
	for rows.Next() {
		var key string
		var ms int64
		if err := rows.Scan(&key, &ms); err != nil {
			s.log.Warn("history row unreadable; skipping", logx.Any("err", err))
			continue
		}
		out[key] = append(out[key], time.UnixMilli(ms))
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("history load incomplete", logx.Any("err", err))
	}
	return out, nil
}
