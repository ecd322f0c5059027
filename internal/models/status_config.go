package models

import "time"

// StatusMapping maps one raw encoding to a (status, color) pair.
// Mask matches when every bit of Mask is set in the signal; Type matches named encodings.
type StatusMapping struct {
	Mask   uint32 `json:"mask,omitempty" mapstructure:"mask"`
	Type   string `json:"type,omitempty" mapstructure:"type"`
	Status string `json:"status" mapstructure:"status"`
	Color  string `json:"color" mapstructure:"color"`
}

// StatusConfig is the per-machine lookup table. Mappings are evaluated in order.
type StatusConfig struct {
	MachineID string          `json:"machine_id"`
	Mappings  []StatusMapping `json:"mappings"`
}

// OutboxEvent is a pending outbound notification stored with the transition that produced it.
type OutboxEvent struct {
	ID          int64      `json:"id"`
	EventID     string     `json:"event_id"`
	MachineID   string     `json:"machine_id"`
	Type        string     `json:"type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
