// Package dayclock computes day boundaries in a fixed timezone.
//
// The tracking window is "today" anchored to local midnight in the
// configured zone, not a rolling 24h offset, so DST transitions in
// that zone shorten or lengthen a day rather than shifting it.
package dayclock

import (
	"fmt"
	"strings"
	"time"
)

// Clock anchors day boundaries to wall-clock midnight in one zone.
// The zero value is unusable; construct with Load or In.
type Clock struct {
	loc *time.Location
}

// Load resolves a zone by IANA name (e.g. "Asia/Jerusalem").
// Zone validation happens here, once, at startup.
func Load(name string) (*Clock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("dayclock: timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("dayclock: load timezone %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// In wraps an already-resolved location. Used by tests.
func In(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// Location returns the configured zone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant expressed in the configured zone.
func (c *Clock) Now() time.Time { return time.Now().In(c.loc) }

// StartOfDay returns 00:00:00 of the calendar date that t falls on,
// evaluated in the configured zone. Pure; no side effects.
func (c *Clock) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// SameDay reports whether a and b fall on the same calendar date
// in the configured zone.
func (c *Clock) SameDay(a, b time.Time) bool {
	return c.StartOfDay(a).Equal(c.StartOfDay(b))
}
