package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "dejabot/pkg/logx"
)

func openTestFileStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

	st := openTestFileStore(t, dir)
	if err := st.AppendOccurrence(ctx, "hi", a); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendOccurrence(ctx, "hi", b); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendOccurrence(ctx, "good morning", a); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st = openTestFileStore(t, dir)
	defer st.Close()
	table, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 keys after reload, got %d", len(table))
	}
	hi := table["hi"]
	if len(hi) != 2 || !hi[0].Equal(a) || !hi[1].Equal(b) {
		t.Fatalf("unexpected hi occurrences: %v", hi)
	}
}

func TestFileEvictCompactsAndSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	boundary := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	st := openTestFileStore(t, dir)
	_ = st.AppendOccurrence(ctx, "hi", boundary.Add(-2*time.Hour))
	_ = st.AppendOccurrence(ctx, "ok", boundary.Add(3*time.Hour))
	if err := st.EvictBefore(ctx, boundary); err != nil {
		t.Fatalf("evict: %v", err)
	}
	_ = st.Close()

	st = openTestFileStore(t, dir)
	defer st.Close()
	table, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := table["hi"]; ok {
		t.Fatalf("evicted key survived reload: %v", table)
	}
	if got := table["ok"]; len(got) != 1 {
		t.Fatalf("expected ok to survive eviction, got %v", table)
	}
}

func TestFileCorruptSnapshotIsFreshStart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	snap := filepath.Join(dir, "store.history.snapshot.json")
	if err := os.WriteFile(snap, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt snapshot: %v", err)
	}

	st := openTestFileStore(t, dir)
	defer st.Close()
	table, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table from corrupt snapshot, got %v", table)
	}
}

func TestFileJournalSkipsTornTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	journal := filepath.Join(dir, "store.history.journal.jsonl")
	lines := `{"key":"hi","at":1704873600000}` + "\n" + `{"key":"hi","at":17048` // torn mid-write
	if err := os.WriteFile(journal, []byte(lines), 0o600); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	st := openTestFileStore(t, dir)
	defer st.Close()
	table, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := table["hi"]; len(got) != 1 {
		t.Fatalf("expected one replayed occurrence, got %v", table)
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: expected (nil, nil), got (%v, %v)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
