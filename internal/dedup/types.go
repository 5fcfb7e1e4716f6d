package dedup

import "time"

// Event is one observed chat message, as delivered by the transport.
// ID must be stable across redeliveries of the same underlying message.
type Event struct {
	ID         string
	Text       string
	ObservedAt time.Time
}

// Result is the engine's verdict for one event.
type Result struct {
	// Duplicate is true when the text was already seen today; Reply
	// then carries the formatted response for the sink.
	Duplicate bool
	// Rejected is true when the event was dropped before reaching the
	// history table (already-seen id, empty text, too many words).
	Rejected bool

	Text  string
	Reply string
}

// Config tunes the engine.
//
// Zero values fall back to defaults in Apply: MaxWords 3, SeenLimit
// 2048, ReplyOrder "asc".
type Config struct {
	// MaxWords bounds which messages are tracked. Longer text is
	// assumed non-repetitive and ignored.
	MaxWords int
	// SeenLimit caps the seen-event id filter between rollovers.
	SeenLimit int
	// ReplyOrder is "asc" or "desc" (chronological order of the
	// times listed in a reply).
	ReplyOrder string
	// TimeLabel is an optional suffix after the time list (e.g. "ILT").
	TimeLabel string
}

const (
	defaultMaxWords  = 3
	defaultSeenLimit = 2048

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

func (c Config) withDefaults() Config {
	if c.MaxWords <= 0 {
		c.MaxWords = defaultMaxWords
	}
	if c.SeenLimit <= 0 {
		c.SeenLimit = defaultSeenLimit
	}
	if c.ReplyOrder != OrderDesc {
		c.ReplyOrder = OrderAsc
	}
	return c
}
