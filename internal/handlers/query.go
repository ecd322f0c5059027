package handlers

import (
	"fmt"
	"strings"
	"time"

	"machine_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// parseRange reads optional ?from and ?to. A date-only 'to' covers that whole day.
// On failure the returned string is the user-facing message.
func parseRange(c *gin.Context) (service.TimeRange, string) {
	var (
		r   service.TimeRange
		err error
	)
	if qs := c.Query("from"); qs != "" {
		r.From, err = parseQueryTime(qs)
		if err != nil {
			return r, errFromInvalid
		}
	}
	if qs := c.Query("to"); qs != "" {
		r.To, err = parseQueryTime(qs)
		if err != nil {
			return r, errToInvalid
		}
		if isDateOnly(qs) {
			r.To = r.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		return r, "'from' must be <= 'to'"
	}
	return r, ""
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2024-01-06T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
