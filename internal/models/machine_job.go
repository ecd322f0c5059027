package models

import "time"

// Job statuses as written by the scheduling system.
const (
	JobScheduled = "scheduled"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
)

type Machine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CustomerID string `json:"customer_id"`
}

// Quantities are piece counts reported against a job.
type Quantities struct {
	Required  float64 `json:"required"`
	Completed float64 `json:"completed"`
	Good      float64 `json:"good"`
	Bad       float64 `json:"bad"`
}

// JobMetrics holds scheduling targets for a job.
type JobMetrics struct {
	TargetCycleTime float64 `json:"target_cycle_time"` // seconds per piece
}

// MachineJob is a scheduling window on one machine. Owned by scheduling, read-only here.
type MachineJob struct {
	ID           string     `json:"id"`
	MachineID    string     `json:"machine_id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	PlannedStart time.Time  `json:"planned_start"`
	PlannedEnd   time.Time  `json:"planned_end"`
	Quantities   Quantities `json:"quantities"`
	Metrics      JobMetrics `json:"metrics"`

	// Downtime is the downtime-tagged subset of the machine log overlapping the planned window.
	Downtime []ActivityInterval `json:"downtime,omitempty"`
}

// DowntimeBucket is a query-time aggregate of downtime per reason.
type DowntimeBucket struct {
	Reason          string  `json:"reason"`
	Color           string  `json:"color"`
	DurationSeconds float64 `json:"duration_seconds"`
	Percentage      float64 `json:"percentage"`
}
