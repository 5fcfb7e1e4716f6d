package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dejabot/internal/history"
	logx "dejabot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.history.snapshot.json (full table, written atomically)
//   - <prefix>.history.journal.jsonl (append-only, one line per event)
//
// Appends go to the journal only; the journal is folded into the
// snapshot at eviction time and every compactEvery writes. The
// snapshot is replaced via tmp-file + rename so a kill mid-save never
// leaves a torn file.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	table        map[string][]int64 // unix milli

	journalWrites int
}

const compactEvery = 1000

type occurrenceRecord struct {
	Key string `json:"key"`
	At  int64  `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".history.snapshot.json"
	journalPath := prefix + ".history.journal.jsonl"

	table := map[string][]int64{}
	if err := loadSnapshot(snapPath, table); err != nil && !os.IsNotExist(err) {
		// Corrupt snapshot: fresh start, keep running.
		log.Warn("history snapshot unreadable; starting fresh", logx.Any("err", err), logx.String("path", snapPath))
		table = map[string][]int64{}
	}
	if err := replayJournal(journalPath, table); err != nil && !os.IsNotExist(err) {
		log.Warn("history journal replay incomplete", logx.Any("err", err), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		table:        table,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) AppendOccurrence(ctx context.Context, key string, at time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := at.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	s.table[key] = append(s.table[key], ms)

	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(occurrenceRecord{Key: key, At: ms}); err != nil {
		return err
	}
	s.journalWrites++
	if s.journalWrites%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) EvictBefore(ctx context.Context, boundary time.Time) error {
	_ = ctx
	cut := boundary.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	for key, list := range s.table {
		live := list[:0]
		for _, ms := range list {
			if ms >= cut {
				live = append(live, ms)
			}
		}
		if len(live) == 0 {
			delete(s.table, key)
			continue
		}
		s.table[key] = live
	}
	return s.compactLocked()
}

func (s *fileStore) Load(ctx context.Context) (history.Table, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(history.Table, len(s.table))
	for key, list := range s.table {
		ts := make([]time.Time, 0, len(list))
		for _, ms := range list {
			ts = append(ts, time.UnixMilli(ms))
		}
		out[key] = ts
	}
	return out, nil
}

// compactLocked writes the snapshot atomically and truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.table); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string][]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string][]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string][]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r occurrenceRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// Torn tail line (crash mid-append); skip and move on.
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = append(out[r.Key], r.At)
	}
	return sc.Err()
}
