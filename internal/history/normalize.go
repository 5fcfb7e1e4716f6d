package history

import "strings"

// Normalize turns raw message text into a history key: trimmed,
// internal whitespace collapsed to single spaces, case-folded.
// It also reports the word count so the caller can bound which
// messages are tracked. Empty-after-trim text yields ("", 0).
func Normalize(text string) (key string, words int) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", 0
	}
	return strings.ToLower(strings.Join(fields, " ")), len(fields)
}
