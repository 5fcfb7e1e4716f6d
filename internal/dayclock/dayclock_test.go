package dayclock

import (
	"testing"
	"time"
)

func TestLoadRejectsBadZone(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty zone")
	}
	if _, err := Load("Not/AZone"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestStartOfDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := In(loc)

	at := time.Date(2024, 1, 10, 8, 0, 0, 0, loc)
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, loc)
	if got := c.StartOfDay(at); !got.Equal(want) {
		t.Fatalf("StartOfDay = %v, want %v", got, want)
	}

	// An instant expressed in another zone must still anchor to the
	// configured zone's calendar date. 23:30 UTC on Jan 9 is already
	// Jan 10 in Jerusalem (UTC+2).
	utc := time.Date(2024, 1, 9, 23, 30, 0, 0, time.UTC)
	if got := c.StartOfDay(utc); !got.Equal(want) {
		t.Fatalf("StartOfDay(utc) = %v, want %v", got, want)
	}
}

func TestStartOfDayAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := In(loc)

	// Israel springs forward on 2024-03-29 (02:00 -> 03:00).
	// Midnight must stay wall-clock midnight, not boundary+24h.
	before := time.Date(2024, 3, 29, 1, 30, 0, 0, loc)
	after := time.Date(2024, 3, 29, 23, 0, 0, 0, loc)
	b1 := c.StartOfDay(before)
	b2 := c.StartOfDay(after)
	if !b1.Equal(b2) {
		t.Fatalf("same-date instants got different boundaries: %v vs %v", b1, b2)
	}
	if h, m, s := b1.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("boundary is not wall-clock midnight: %v", b1)
	}

	next := c.StartOfDay(b1.AddDate(0, 0, 1))
	if d := next.Sub(b1); d == 24*time.Hour {
		t.Fatalf("expected a shortened DST day, got exactly 24h")
	}
}

func TestSameDay(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	c := In(loc)

	a := time.Date(2024, 1, 10, 0, 0, 0, 0, loc)
	b := time.Date(2024, 1, 10, 23, 59, 59, 0, loc)
	if !c.SameDay(a, b) {
		t.Fatalf("expected same day")
	}
	if c.SameDay(a, b.Add(time.Second)) {
		t.Fatalf("expected different days across midnight")
	}
}
