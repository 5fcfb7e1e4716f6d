package dedup

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dejabot/internal/dayclock"
	"dejabot/internal/eventbus"
	"dejabot/internal/storage"
	logx "dejabot/pkg/logx"
)

var testZone = time.FixedZone("X", 2*60*60)

// testEngine pins the engine's clock to now before restore so the
// fabricated 2024 dates below are "today" from the engine's view.
func testEngine(t *testing.T, cfg Config, store storage.Store, now time.Time) *Engine {
	t.Helper()
	e := newEngine(cfg, dayclock.In(testZone), store, nil, logx.Nop())
	e.now = func() time.Time { return now }
	if err := e.restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	return e
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, 1, day, hour, min, 0, 0, testZone)
}

func TestFirstObservationIsSilent(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	res := e.Process(context.Background(), Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	if res.Duplicate || res.Rejected {
		t.Fatalf("first observation should be a silent no-action, got %+v", res)
	}
	if keys, _ := e.Counts(); keys != 1 {
		t.Fatalf("expected one tracked key, got %d", keys)
	}
}

func TestRepeatListsPriorTimes(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	ctx := context.Background()
	e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	res := e.Process(ctx, Event{ID: "E2", Text: "hi", ObservedAt: at(10, 9, 30)})
	if !res.Duplicate {
		t.Fatalf("expected duplicate, got %+v", res)
	}
	if !strings.Contains(res.Reply, "08:00") {
		t.Fatalf("reply should list the first occurrence time, got %q", res.Reply)
	}
	if strings.Contains(res.Reply, "09:30") {
		t.Fatalf("reply must not include the triggering observation, got %q", res.Reply)
	}

	res = e.Process(ctx, Event{ID: "E3", Text: "hi", ObservedAt: at(10, 11, 0)})
	if !res.Duplicate {
		t.Fatalf("expected duplicate on third occurrence")
	}
	if !strings.Contains(res.Reply, "08:00, 09:30") {
		t.Fatalf("expected both prior times ascending, got %q", res.Reply)
	}
}

func TestCaseAndWhitespaceFold(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	ctx := context.Background()
	e.Process(ctx, Event{ID: "E1", Text: "Good  Morning", ObservedAt: at(10, 8, 0)})
	res := e.Process(ctx, Event{ID: "E2", Text: "  good morning ", ObservedAt: at(10, 9, 0)})
	if !res.Duplicate {
		t.Fatalf("normalized variants should collide, got %+v", res)
	}
}

func TestLongTextNeverTracked(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	ctx := context.Background()
	long := "this is four words"
	for i, id := range []string{"E1", "E2"} {
		res := e.Process(ctx, Event{ID: id, Text: long, ObservedAt: at(10, 8+i, 0)})
		if !res.Rejected || res.Duplicate {
			t.Fatalf("long text should always be rejected, got %+v", res)
		}
	}
	if keys, _ := e.Counts(); keys != 0 {
		t.Fatalf("long text must not create history entries, got %d keys", keys)
	}
}

func TestEmptyTextRejected(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	res := e.Process(context.Background(), Event{ID: "E1", Text: "   \t ", ObservedAt: at(10, 8, 0)})
	if !res.Rejected {
		t.Fatalf("empty-after-trim text should be rejected, got %+v", res)
	}
}

func TestRedeliveredEventProcessedOnce(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 10, 0))
	ctx := context.Background()

	first := e.Process(ctx, Event{ID: "E1", Text: "ok", ObservedAt: at(10, 8, 0)})
	if first.Duplicate || first.Rejected {
		t.Fatalf("first delivery should append silently, got %+v", first)
	}
	redelivered := e.Process(ctx, Event{ID: "E1", Text: "ok", ObservedAt: at(10, 8, 0)})
	if !redelivered.Rejected {
		t.Fatalf("redelivery of E1 should be rejected, got %+v", redelivered)
	}

	res := e.Process(ctx, Event{ID: "E2", Text: "ok", ObservedAt: at(10, 8, 1)})
	if !res.Duplicate {
		t.Fatalf("E2 should find exactly one prior occurrence, got %+v", res)
	}
	if strings.Count(res.Reply, ":") != 1 {
		t.Fatalf("redelivery leaked a second append into the reply: %q", res.Reply)
	}
}

func TestRolloverForgetsYesterday(t *testing.T) {
	now := at(10, 10, 0)
	e := testEngine(t, Config{}, nil, now)
	e.now = func() time.Time { return now }
	ctx := context.Background()

	e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	res := e.Process(ctx, Event{ID: "E2", Text: "hi", ObservedAt: at(10, 9, 30)})
	if !res.Duplicate {
		t.Fatalf("same-day repeat should reply")
	}

	// Midnight passes.
	now = at(11, 8, 5)
	res = e.Process(ctx, Event{ID: "E3", Text: "hi", ObservedAt: at(11, 8, 5)})
	if res.Duplicate || res.Rejected {
		t.Fatalf("first occurrence of the new day should be silent, got %+v", res)
	}
	if keys, _ := e.Counts(); keys != 1 {
		t.Fatalf("expected only the new day's entry, got %d keys", keys)
	}

	// The seen filter resets with the day, so yesterday's ids are fair game.
	res = e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(11, 9, 0)})
	if !res.Duplicate {
		t.Fatalf("yesterday's event id must not block today's processing, got %+v", res)
	}
}

func TestRolloverPublishesAndIsIdempotent(t *testing.T) {
	now := at(10, 10, 0)
	bus := eventbus.New()
	e := newEngine(Config{}, dayclock.In(testZone), nil, bus, logx.Nop())
	e.now = func() time.Time { return now }
	if err := e.restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	ch, unsub := bus.Subscribe(4)
	defer unsub()

	e.Process(context.Background(), Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})

	now = at(11, 0, 1)
	e.CheckRollover(context.Background())
	e.CheckRollover(context.Background())

	var rollovers int
	for {
		select {
		case ev := <-ch:
			if ev.Type == eventbus.TypeRollover {
				rollovers++
				p := ev.Data.(eventbus.RolloverPayload)
				if p.KeysRemoved != 1 || p.KeysKept != 0 {
					t.Fatalf("unexpected rollover payload: %+v", p)
				}
			}
			continue
		default:
		}
		break
	}
	if rollovers != 1 {
		t.Fatalf("expected exactly one rollover event, got %d", rollovers)
	}
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfgStore := storage.Config{Driver: "file", Path: filepath.Join(dir, "store")}

	st, err := storage.Open(cfgStore, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	e := testEngine(t, Config{}, st, at(10, 10, 0))
	e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Restart: new store, new engine, same files. The engine-level
	// seen filter is gone, so only persisted history carries over.
	st, err = storage.Open(cfgStore, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	e = testEngine(t, Config{}, st, at(10, 10, 30))
	res := e.Process(ctx, Event{ID: "E9", Text: "hi", ObservedAt: at(10, 9, 30)})
	if !res.Duplicate {
		t.Fatalf("restored history should flag the repeat, got %+v", res)
	}
	if !strings.Contains(res.Reply, "08:00") {
		t.Fatalf("reply should list the pre-restart time, got %q", res.Reply)
	}
}

func TestStartupEvictsStalePersistedState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfgStore := storage.Config{Driver: "file", Path: filepath.Join(dir, "store")}

	st, err := storage.Open(cfgStore, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	e := testEngine(t, Config{}, st, at(10, 10, 0))
	e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	_ = st.Close()

	// Next-day restart: yesterday's entries must not survive New().
	st, err = storage.Open(cfgStore, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	e2 := testEngine(t, Config{}, st, at(11, 7, 0))

	res := e2.Process(ctx, Event{ID: "E2", Text: "hi", ObservedAt: at(11, 8, 5)})
	if res.Duplicate {
		t.Fatalf("yesterday's persisted entry leaked into the new day: %+v", res)
	}
}

func TestApplyReplyOptions(t *testing.T) {
	e := testEngine(t, Config{}, nil, at(10, 12, 0))
	ctx := context.Background()
	e.Process(ctx, Event{ID: "E1", Text: "hi", ObservedAt: at(10, 8, 0)})
	e.Process(ctx, Event{ID: "E2", Text: "hi", ObservedAt: at(10, 9, 30)})

	e.Apply(Config{ReplyOrder: OrderDesc, TimeLabel: "ILT"})
	res := e.Process(ctx, Event{ID: "E3", Text: "hi", ObservedAt: at(10, 11, 0)})
	if !res.Duplicate {
		t.Fatalf("expected duplicate")
	}
	if !strings.Contains(res.Reply, "09:30, 08:00") {
		t.Fatalf("expected descending times, got %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "ILT") {
		t.Fatalf("expected time label in reply, got %q", res.Reply)
	}
}
