package kpi

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"machine_monitor/internal/intervals"
	"machine_monitor/internal/models"
)

// DowntimeBuckets groups downtime intervals by normalized reason within [from, to].
// Callers pass downtime-tagged intervals only.
func DowntimeBuckets(log []models.ActivityInterval, from, to, now time.Time) []models.DowntimeBucket {
	index := make(map[string]int)
	var buckets []models.DowntimeBucket
	var total float64

	for _, iv := range intervals.Dedup(log) {
		s, ok := intervals.Clamp(iv, from, to, now)
		if !ok {
			continue
		}
		reason := NormalizeReason(iv.Reason, iv.Status)
		i, seen := index[reason]
		if !seen {
			i = len(buckets)
			index[reason] = i
			buckets = append(buckets, models.DowntimeBucket{Reason: reason, Color: iv.Color})
		}
		d := s.Duration().Seconds()
		buckets[i].DurationSeconds += d
		total += d
	}

	for i := range buckets {
		if total > 0 {
			buckets[i].Percentage = round2(100 * buckets[i].DurationSeconds / total)
		}
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].DurationSeconds != buckets[j].DurationSeconds {
			return buckets[i].DurationSeconds > buckets[j].DurationSeconds
		}
		return buckets[i].Reason < buckets[j].Reason
	})
	return buckets
}

// NormalizeReason turns "material_shortage" into "Material Shortage".
// An empty reason falls back to the status label.
func NormalizeReason(reason, status string) string {
	words := strings.FieldsFunc(reason, func(r rune) bool {
		return r == '_' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		if status == "" {
			return models.StatusUnknown
		}
		return status
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}
