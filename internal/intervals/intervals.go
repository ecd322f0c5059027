// Package intervals reconciles raw activity rows for reporting: exact-duplicate
// removal, clamping to a reporting window and merging of overlapping spans.
// Everything here is pure; callers pass "now" explicitly.
package intervals

import (
	"encoding/binary"
	"sort"
	"time"

	"machine_monitor/internal/models"

	"github.com/zeebo/xxh3"
)

// Span is a half-open time range [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) Duration() time.Duration {
	if !s.End.After(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Dedup collapses closed intervals that agree on start, end, status, job, machine,
// customer and source, keeping the lowest ID. Open intervals pass through.
// Survivors keep their input order.
func Dedup(in []models.ActivityInterval) []models.ActivityInterval {
	if len(in) < 2 {
		return append([]models.ActivityInterval(nil), in...)
	}

	// fingerprint -> indexes of group representatives sharing it
	groups := make(map[uint64][]int, len(in))
	keep := make([]bool, len(in))

	for i, iv := range in {
		if iv.IsOpen() {
			keep[i] = true
			continue
		}
		h := fingerprint(iv)
		found := false
		for gi, rep := range groups[h] {
			if !sameTuple(in[rep], iv) {
				continue
			}
			found = true
			if iv.ID < in[rep].ID {
				keep[rep] = false
				keep[i] = true
				groups[h][gi] = i
			}
			break
		}
		if !found {
			groups[h] = append(groups[h], i)
			keep[i] = true
		}
	}

	out := make([]models.ActivityInterval, 0, len(in))
	for i, iv := range in {
		if keep[i] {
			out = append(out, iv)
		}
	}
	return out
}

func fingerprint(iv models.ActivityInterval) uint64 {
	buf := make([]byte, 0, 128)
	buf = binary.BigEndian.AppendUint64(buf, uint64(iv.Start.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(iv.End.UnixNano()))
	for _, s := range []string{iv.Status, iv.JobID, iv.MachineID, iv.CustomerID, iv.Source} {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return xxh3.Hash(buf)
}

func sameTuple(a, b models.ActivityInterval) bool {
	return a.Start.Equal(b.Start) &&
		a.End.Equal(*b.End) &&
		a.Status == b.Status &&
		a.JobID == b.JobID &&
		a.MachineID == b.MachineID &&
		a.CustomerID == b.CustomerID &&
		a.Source == b.Source
}

// Clamp trims iv to [from, to]. Open intervals end at now. ok is false when
// nothing of iv is left inside the window.
func Clamp(iv models.ActivityInterval, from, to, now time.Time) (Span, bool) {
	start := iv.Start
	if from.After(start) {
		start = from
	}
	end := iv.EndOr(now)
	if to.Before(end) {
		end = to
	}
	if !end.After(start) {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

// ClampAll clamps every interval and drops the empty ones.
func ClampAll(in []models.ActivityInterval, from, to, now time.Time) []Span {
	out := make([]Span, 0, len(in))
	for _, iv := range in {
		if s, ok := Clamp(iv, from, to, now); ok {
			out = append(out, s)
		}
	}
	return out
}

// Merge sorts spans by start and coalesces touching or overlapping ones.
func Merge(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		cur := &out[len(out)-1]
		if !s.Start.After(cur.End) {
			if s.End.After(cur.End) {
				cur.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// Total sums span durations without merging.
func Total(spans []Span) time.Duration {
	var d time.Duration
	for _, s := range spans {
		d += s.Duration()
	}
	return d
}

// Window returns the deduplicated intervals of in that fall into [from, to],
// with Start and End clamped to the window. Intervals still open at now stay open
// unless the window ends first.
func Window(in []models.ActivityInterval, from, to, now time.Time) []models.ActivityInterval {
	out := make([]models.ActivityInterval, 0, len(in))
	for _, iv := range Dedup(in) {
		s, ok := Clamp(iv, from, to, now)
		if !ok {
			continue
		}
		clamped := iv
		clamped.Start = s.Start
		if !iv.IsOpen() || s.End.Before(now) {
			end := s.End
			clamped.End = &end
		}
		out = append(out, clamped)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Intersect returns the overlap of two merged, sorted span lists.
func Intersect(a, b []Span) []Span {
	var out []Span
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if end.After(start) {
			out = append(out, Span{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}
