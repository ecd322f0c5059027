package models

import "time"

// Canonical status labels shared by every machine.
const (
	StatusRunning = "Running"
	StatusIdle    = "Idle"
	StatusDown    = "Down"
	StatusOffline = "Offline"
	StatusUnknown = "Unknown"
)

// ActivityInterval is one row of the machine log.
type ActivityInterval struct {
	ID             string     `json:"id"`
	MachineID      string     `json:"machine_id"`
	CustomerID     string     `json:"customer_id"`
	JobID          string     `json:"job_id,omitempty"`
	Status         string     `json:"status"`
	Color          string     `json:"color"`
	Reason         string     `json:"reason,omitempty"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"` // nil while the interval is open
	LastUpdateTime time.Time  `json:"last_update_time"`
	Source         string     `json:"source"`
}

// IsOpen reports whether the interval is the machine's current state.
func (a ActivityInterval) IsOpen() bool {
	return a.End == nil
}

// EndOr returns End, or fallback for open intervals.
func (a ActivityInterval) EndOr(fallback time.Time) time.Time {
	if a.End == nil {
		return fallback
	}
	return *a.End
}

// Closure closes one open interval at End.
type Closure struct {
	IntervalID string
	End        time.Time
}

// Transition is a single atomic write: closures, at most one new interval,
// and the outbox events describing them.
type Transition struct {
	MachineID string
	Closes    []Closure
	Open      *ActivityInterval
	Events    []OutboxEvent
}

// Empty reports whether the transition writes nothing.
func (t Transition) Empty() bool {
	return len(t.Closes) == 0 && t.Open == nil
}
