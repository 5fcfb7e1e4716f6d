// Package dedup detects same-day repeats of short messages.
//
// The engine is the single writer for the history table and the
// seen-event filter: every mutation funnels through one mutex, so a
// concurrent rollover timer and the event loop never interleave
// against the same state.
package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"dejabot/internal/dayclock"
	"dejabot/internal/eventbus"
	"dejabot/internal/history"
	"dejabot/internal/seen"
	"dejabot/internal/storage"
	logx "dejabot/pkg/logx"
)

type Engine struct {
	log   logx.Logger
	clock *dayclock.Clock
	store storage.Store // nil when persistence is disabled
	bus   eventbus.Bus  // nil tolerated

	mu           sync.Mutex
	cfg          Config
	hist         *history.Store
	seen         *seen.Filter
	lastBoundary time.Time

	// now is swapped in tests to pin the day boundary.
	now func() time.Time
}

// New builds the engine and restores persisted history, immediately
// evicting anything from before today so yesterday's state never leaks
// into the new day.
func New(ctx context.Context, cfg Config, clock *dayclock.Clock, store storage.Store, bus eventbus.Bus, log logx.Logger) (*Engine, error) {
	e := newEngine(cfg, clock, store, bus, log)
	if err := e.restore(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(cfg Config, clock *dayclock.Clock, store storage.Store, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		log:   log,
		clock: clock,
		store: store,
		bus:   bus,
		cfg:   cfg,
		hist:  history.New(),
		seen:  seen.New(cfg.SeenLimit),
		now:   clock.Now,
	}
}

// restore sets today's boundary and loads durable history, evicting
// anything stale right away.
func (e *Engine) restore(ctx context.Context) error {
	e.lastBoundary = e.clock.StartOfDay(e.now())

	if e.store == nil {
		return nil
	}
	table, err := e.store.Load(ctx)
	if err != nil {
		// Load contract says corrupt state degrades to empty, so an
		// error here is an I/O problem worth surfacing.
		return err
	}
	e.hist.Replace(table)
	restored := e.hist.Len()
	removed, kept := e.hist.Evict(e.lastBoundary)
	if err := e.store.EvictBefore(ctx, e.lastBoundary); err != nil {
		e.log.Warn("startup eviction persist failed", logx.Err(err))
	}
	e.log.Info("history restored",
		logx.Int("keys", restored),
		logx.Int("stale_removed", removed),
		logx.Int("kept", kept),
		logx.Time("boundary", e.lastBoundary))
	return nil
}

// Apply updates tunables at runtime. A changed seen-filter ceiling
// rebuilds the filter; losing its entries is harmless because the
// filter is invalidated daily anyway.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.SeenLimit != e.cfg.SeenLimit {
		e.seen = seen.New(cfg.SeenLimit)
	}
	e.cfg = cfg
}

// Process runs one event through the state machine:
// rollover check, seen filter, shape check, history lookup+append,
// duplicate reply.
func (e *Engine) Process(ctx context.Context, ev Event) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked(ctx, e.now())

	if ev.ID == "" {
		return Result{Rejected: true}
	}
	if !e.seen.Add(ev.ID) {
		e.log.Debug("event already processed", logx.String("event_id", ev.ID))
		return Result{Rejected: true}
	}

	key, words := history.Normalize(ev.Text)
	if words == 0 || words > e.cfg.MaxWords {
		return Result{Rejected: true}
	}

	prior := e.hist.Lookup(key)
	e.hist.Append(key, ev.ObservedAt)
	if e.store != nil {
		if err := e.store.AppendOccurrence(ctx, key, ev.ObservedAt); err != nil {
			// In-memory state stays authoritative; the durable copy
			// lags until the next successful write.
			e.log.Warn("history persist failed", logx.Err(err), logx.String("key", key))
		}
	}

	if len(prior) == 0 {
		return Result{}
	}

	text := strings.Join(strings.Fields(ev.Text), " ")
	reply := formatReply(text, prior, e.clock.Location(), e.cfg.ReplyOrder, e.cfg.TimeLabel)
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeDuplicate,
			Data: eventbus.DuplicatePayload{
				Key:         key,
				Text:        text,
				Occurrences: len(prior),
				ObservedAt:  ev.ObservedAt,
			},
		})
	}
	return Result{Duplicate: true, Text: text, Reply: reply}
}

// CheckRollover evicts yesterday's state if a new day has begun. The
// rollover service calls this on a timer so a quiet chat still rolls
// over promptly at midnight.
func (e *Engine) CheckRollover(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(ctx, e.now())
}

func (e *Engine) rolloverLocked(ctx context.Context, now time.Time) {
	today := e.clock.StartOfDay(now)
	if !today.After(e.lastBoundary) {
		return
	}
	removed, kept := e.hist.Evict(today)
	if e.store != nil {
		if err := e.store.EvictBefore(ctx, today); err != nil {
			e.log.Warn("eviction persist failed", logx.Err(err))
		}
	}
	e.seen.Clear()
	e.lastBoundary = today
	e.log.Info("day rollover",
		logx.Time("boundary", today),
		logx.Int("keys_removed", removed),
		logx.Int("keys_kept", kept))
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRollover,
			Data: eventbus.RolloverPayload{Boundary: today, KeysRemoved: removed, KeysKept: kept},
		})
	}
}

// Counts reports tracked keys and seen ids, for status logging.
func (e *Engine) Counts() (keys, seenIDs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.Len(), e.seen.Len()
}
