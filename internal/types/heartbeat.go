package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire and document field names shared by the emitter, consumer and store.
const (
	FieldUUID       = "uuid"
	FieldTimestamp  = "timestamp"
	FieldObjectName = "object_name"
	FieldReceivedAt = "received_at"
)

// SentinelObjectName is the display name assigned to an agent the first
// time it is seen, before a real name has been provisioned.
const SentinelObjectName = "Unknown Object"

// TimestampLayout is the ISO-8601 layout this system's own producers
// use. The fractional part is fixed-width so that, for timestamps in
// this layout, lexicographic order equals chronological order even
// within one second.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Heartbeat is a single parsed heartbeat message. The broker payload is
// schemaless beyond uuid and timestamp; any additional fields the emitter
// chose to include are carried through in Extra and persisted verbatim.
type Heartbeat struct {
	UUID       string
	Timestamp  string
	ObjectName string
	Extra      map[string]any
}

// ParseHeartbeat decodes a raw queue message body. A payload without a
// non-empty uuid is a permanent failure and must never be persisted.
func ParseHeartbeat(body []byte) (*Heartbeat, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	hb := &Heartbeat{Extra: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case FieldUUID:
			if s, ok := v.(string); ok {
				hb.UUID = s
			}
		case FieldTimestamp:
			if s, ok := v.(string); ok {
				hb.Timestamp = s
			}
		case FieldObjectName:
			if s, ok := v.(string); ok {
				hb.ObjectName = s
			}
		default:
			hb.Extra[k] = v
		}
	}

	if hb.UUID == "" {
		return nil, ErrMissingUUID
	}
	return hb, nil
}

// Document returns the event document to persist: every incoming field
// plus the server-side receipt time. Timestamps stay ISO-8601 UTC strings
// so the store remains schemaless and duplicates append as-is.
func (hb *Heartbeat) Document(receivedAt time.Time) map[string]any {
	doc := make(map[string]any, len(hb.Extra)+4)
	for k, v := range hb.Extra {
		doc[k] = v
	}
	doc[FieldUUID] = hb.UUID
	doc[FieldTimestamp] = hb.Timestamp
	if hb.ObjectName != "" {
		doc[FieldObjectName] = hb.ObjectName
	}
	doc[FieldReceivedAt] = receivedAt.UTC().Format(TimestampLayout)
	return doc
}

// AgentRecord is a registry entry mapping an identifier to its display
// metadata. Exactly one record exists per identifier ever observed.
type AgentRecord struct {
	UUID       string `bson:"uuid" json:"uuid"`
	ObjectName string `bson:"object_name" json:"object_name"`
}

// AgentActivity is the read model produced by the store for one
// identifier over the trailing 24h window. Timestamps are the raw stored
// strings, sorted ascending by the query; parsing happens at read time so
// one bad value degrades one agent instead of failing the whole query.
type AgentActivity struct {
	UUID          string   `bson:"_id"`
	ObjectName    string   `bson:"object_name"`
	Timestamps    []string `bson:"timestamps"`
	LastHeartbeat string   `bson:"last_heartbeat"`
	TotalPings    int      `bson:"total_pings"`
}
