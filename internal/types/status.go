package types

import "time"

// SlotState classifies one minute of an agent's activity timeline.
type SlotState string

const (
	SlotActive   SlotState = "active"
	SlotInactive SlotState = "inactive"
)

// StatusSnapshot is the per-agent view composed at read time. It has no
// identity beyond the query that produced it and is never persisted.
type StatusSnapshot struct {
	UUID           string      `json:"uuid"`
	ObjectName     string      `json:"object_name"`
	LastHeartbeat  time.Time   `json:"last_heartbeat"`
	TotalPings24h  int         `json:"total_pings_24h"`
	MinuteTimeline []SlotState `json:"minute_timeline"`
	UptimePercent  float64     `json:"uptime_percent"`
	Active         bool        `json:"active"`
}
