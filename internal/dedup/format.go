package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// formatTimes renders prior occurrence instants as zone-local HH:MM,
// sorted per order, joined with ", ". Admission order is not
// guaranteed chronological (events may arrive out of order), so the
// sort happens here, at format time.
func formatTimes(times []time.Time, loc *time.Location, order, label string) string {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool {
		if order == OrderDesc {
			return sorted[j].Before(sorted[i])
		}
		return sorted[i].Before(sorted[j])
	})

	parts := make([]string, 0, len(sorted))
	for _, t := range sorted {
		parts = append(parts, t.In(loc).Format("15:04"))
	}
	out := strings.Join(parts, ", ")
	if label = strings.TrimSpace(label); label != "" {
		out += " " + label
	}
	return out
}

// formatReply interpolates the original text and its prior times into
// the reply template. Pure; no I/O.
func formatReply(text string, prior []time.Time, loc *time.Location, order, label string) string {
	return fmt.Sprintf("🔁 %q was already sent today at %s", text, formatTimes(prior, loc, order, label))
}
