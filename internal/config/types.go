package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Dedup    DedupConfig    `json:"dedup"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Group is the chat id of the single watched group. Messages from
	// any other chat are ignored.
	Group int64 `json:"group"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// ReplyRatePerSec throttles outgoing duplicate replies.
	ReplyRatePerSec int `json:"reply_rate_per_sec,omitempty"`
	// ReplyToOriginal threads the reply onto the repeating message.
	ReplyToOriginal bool `json:"reply_to_original,omitempty"`
}

// DedupConfig controls the duplicate-detection window and replies.
//
// All durations are Go duration strings (e.g. "30s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - timezone: "Asia/Jerusalem"
//   - max_words: 3
//   - seen_limit: 2048
//   - check_interval: "1m"
//   - reply_order: "asc"
type DedupConfig struct {
	// Timezone anchors the tracking day to local midnight in this
	// IANA zone, never the process-local zone.
	Timezone string `json:"timezone,omitempty"`
	MaxWords int    `json:"max_words,omitempty"`
	// SeenLimit caps the processed-event-id filter between rollovers.
	SeenLimit int `json:"seen_limit,omitempty"`
	// CheckInterval is the rollover safety-net cadence.
	CheckInterval string `json:"check_interval,omitempty"`
	// ReplyOrder is "asc" or "desc" for the times listed in a reply.
	ReplyOrder string `json:"reply_order,omitempty"`
	// TimeLabel is an optional zone label appended to the time list.
	TimeLabel string `json:"time_label,omitempty"`
}

// StorageConfig controls the history persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dejabot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

const (
	DefaultTimezone = "Asia/Jerusalem"
)
