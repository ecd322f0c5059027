package kpi

import (
	"time"

	"machine_monitor/internal/intervals"
	"machine_monitor/internal/models"
)

// UtilizationResult is running time over a period. Percent is capped at 100.
type UtilizationResult struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	PeriodSeconds  float64   `json:"period_seconds"`
	RunningSeconds float64   `json:"running_seconds"`
	Percent        float64   `json:"percent"`
}

// Utilization is the share of [from, to] covered by running intervals, regardless of job.
func Utilization(log []models.ActivityInterval, isRunning func(string) bool, from, to, now time.Time) UtilizationResult {
	running := runningSpans(log, isRunning, from, to, now)
	return utilizationOf(running, from, to)
}

// UtilizationForCompletedJobs counts running time only inside the planned windows
// of completed jobs. The denominator is still the whole period.
func UtilizationForCompletedJobs(log []models.ActivityInterval, jobs []models.MachineJob, isRunning func(string) bool, from, to, now time.Time) UtilizationResult {
	var windows []intervals.Span
	for _, j := range jobs {
		if j.Status != models.JobCompleted {
			continue
		}
		w := models.ActivityInterval{Start: j.PlannedStart, End: &j.PlannedEnd}
		if s, ok := intervals.Clamp(w, from, to, now); ok {
			windows = append(windows, s)
		}
	}

	running := runningSpans(log, isRunning, from, to, now)
	return utilizationOf(intervals.Intersect(running, intervals.Merge(windows)), from, to)
}

func runningSpans(log []models.ActivityInterval, isRunning func(string) bool, from, to, now time.Time) []intervals.Span {
	var spans []intervals.Span
	for _, iv := range log {
		if !isRunning(iv.Status) {
			continue
		}
		if s, ok := intervals.Clamp(iv, from, to, now); ok {
			spans = append(spans, s)
		}
	}
	return intervals.Merge(spans)
}

func utilizationOf(spans []intervals.Span, from, to time.Time) UtilizationResult {
	res := UtilizationResult{From: from, To: to}
	period := to.Sub(from).Seconds()
	if period <= 0 {
		return res
	}
	res.PeriodSeconds = period
	res.RunningSeconds = intervals.Total(spans).Seconds()

	pct := res.RunningSeconds / period * 100
	if pct > 100 {
		pct = 100
	}
	res.Percent = round2(pct)
	return res
}
