package dedup

import (
	"testing"
	"time"
)

func TestFormatTimesSortsUnorderedInput(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	// Admission order is arrival order, which may not be chronological.
	times := []time.Time{
		time.Date(2024, 1, 10, 9, 30, 0, 0, loc),
		time.Date(2024, 1, 10, 8, 0, 0, 0, loc),
	}

	if got := formatTimes(times, loc, OrderAsc, ""); got != "08:00, 09:30" {
		t.Fatalf("asc = %q", got)
	}
	if got := formatTimes(times, loc, OrderDesc, ""); got != "09:30, 08:00" {
		t.Fatalf("desc = %q", got)
	}
	// Input must not be reordered in place.
	if !times[0].After(times[1]) {
		t.Fatalf("formatTimes mutated its input")
	}
}

func TestFormatTimesZoneLocal(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	utc := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC) // 08:00 in X
	if got := formatTimes([]time.Time{utc}, loc, OrderAsc, ""); got != "08:00" {
		t.Fatalf("expected zone-local rendering, got %q", got)
	}
}

func TestFormatTimesLabel(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	times := []time.Time{time.Date(2024, 1, 10, 8, 0, 0, 0, loc)}
	if got := formatTimes(times, loc, OrderAsc, " ILT "); got != "08:00 ILT" {
		t.Fatalf("label = %q", got)
	}
}

func TestFormatReplyNamesOriginalText(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	times := []time.Time{time.Date(2024, 1, 10, 8, 0, 0, 0, loc)}
	got := formatReply("Good Morning", times, loc, OrderAsc, "")
	want := `🔁 "Good Morning" was already sent today at 08:00`
	if got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}
