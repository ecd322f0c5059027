// Package kpi derives availability, performance, quality, OEE, utilization and
// downtime breakdown from reconciled activity intervals and job windows.
package kpi

import (
	"math"
	"time"

	"machine_monitor/internal/intervals"
	"machine_monitor/internal/models"

	"gonum.org/v1/gonum/stat"
)

// JobMetrics are the OEE factors of one job. Ratios are in [0,1]; OEE is a percentage.
type JobMetrics struct {
	JobID            string  `json:"job_id"`
	PlannedSeconds   float64 `json:"planned_seconds"`
	DowntimeSeconds  float64 `json:"downtime_seconds"`
	OperatingSeconds float64 `json:"operating_seconds"`
	Availability     float64 `json:"availability"`
	Performance      float64 `json:"performance"`
	Quality          float64 `json:"quality"`
	OEE              float64 `json:"oee"`
}

// Summary is the planned-time-weighted aggregate of several jobs.
type Summary struct {
	Jobs           int          `json:"jobs"`
	PlannedSeconds float64      `json:"planned_seconds"`
	Availability   float64      `json:"availability"`
	Performance    float64      `json:"performance"`
	Quality        float64      `json:"quality"`
	OEE            float64      `json:"oee"`
	PerJob         []JobMetrics `json:"per_job,omitempty"`
}

// JobOEE computes the metrics of one job. job.Downtime must hold only downtime-tagged
// intervals; they are deduplicated, clamped to the planned window and merged so
// overlapping rows are counted once. A degenerate window yields zero metrics.
func JobOEE(job models.MachineJob, now time.Time) JobMetrics {
	m := JobMetrics{JobID: job.ID}

	planned := job.PlannedEnd.Sub(job.PlannedStart).Seconds()
	if planned <= 0 {
		return m
	}
	m.PlannedSeconds = planned

	spans := intervals.ClampAll(intervals.Dedup(job.Downtime), job.PlannedStart, job.PlannedEnd, now)
	m.DowntimeSeconds = intervals.Total(intervals.Merge(spans)).Seconds()
	m.OperatingSeconds = math.Max(planned-m.DowntimeSeconds, 0)

	m.Availability = clamp01(m.OperatingSeconds / planned)

	tct := job.Metrics.TargetCycleTime
	good, bad := job.Quantities.Good, job.Quantities.Bad
	if m.OperatingSeconds > 0 && tct > 0 {
		m.Performance = clamp01(tct * good / m.OperatingSeconds)
	}
	if good+bad > 0 {
		m.Quality = clamp01(good / (good + bad))
	}

	m.OEE = oeePercent(m.Availability, m.Performance, m.Quality)
	return m
}

// Aggregate weights each ratio by planned seconds before multiplying them.
// Jobs with a degenerate window carry no weight.
func Aggregate(jobs []JobMetrics) Summary {
	s := Summary{Jobs: len(jobs), PerJob: jobs}

	var a, p, q, w []float64
	for _, j := range jobs {
		if j.PlannedSeconds <= 0 {
			continue
		}
		a = append(a, j.Availability)
		p = append(p, j.Performance)
		q = append(q, j.Quality)
		w = append(w, j.PlannedSeconds)
		s.PlannedSeconds += j.PlannedSeconds
	}
	if s.PlannedSeconds <= 0 {
		return s
	}

	s.Availability = stat.Mean(a, w)
	s.Performance = stat.Mean(p, w)
	s.Quality = stat.Mean(q, w)
	s.OEE = oeePercent(s.Availability, s.Performance, s.Quality)
	return s
}

func oeePercent(a, p, q float64) float64 {
	return round2(a * p * q * 100)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
