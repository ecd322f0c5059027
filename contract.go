package machine_monitor

import "time"

// Event types published for interval transitions.
const (
	EventIntervalOpened = "interval.opened"
	EventIntervalClosed = "interval.closed"
)

// Signal is a single machine-state observation delivered by an ingress collaborator.
// Either Bits (bitmask encoding) or Type (named encoding) identifies the state.
type Signal struct {
	Machine   string    `json:"machine"`          // machine name or id
	Bits      *uint32   `json:"bits,omitempty"`   // raw bitmask from the controller
	Type      string    `json:"type,omitempty"`   // e.g. "running", "idle", "fault"
	Reason    string    `json:"reason,omitempty"` // downtime reason, e.g. "material_shortage"
	JobID     string    `json:"job_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // e.g. "mqtt:line-3", "webhook:plc-gw"
}

// IntervalEvent is the outbound notification for an opened or closed interval.
// Delivery is at-least-once; consumers dedupe on EventID.
type IntervalEvent struct {
	EventID    string     `json:"event_id"`
	Type       string     `json:"type"` // interval.opened | interval.closed
	IntervalID string     `json:"interval_id"`
	MachineID  string     `json:"machine_id"`
	CustomerID string     `json:"customer_id"`
	JobID      string     `json:"job_id,omitempty"`
	Status     string     `json:"status"`
	Color      string     `json:"color"`
	Reason     string     `json:"reason,omitempty"`
	Start      time.Time  `json:"start"`
	End        *time.Time `json:"end,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
