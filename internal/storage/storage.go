// Package storage defines the registry and event store contract used by
// the ingestion worker and the dashboard.
package storage

import (
	"context"
	"time"

	"detak/internal/types"
)

// Store is the persistence abstraction: an append-only heartbeat log plus
// a side registry of known agents. Implementations must keep registry
// creation atomic per identifier so concurrent first-sight of the same
// agent never produces duplicate records.
type Store interface {
	// UpsertAgentSighting registers the agent if unseen, assigning the
	// sentinel display name, and overwrites the display name when a
	// non-empty hint is supplied (last write wins).
	UpsertAgentSighting(ctx context.Context, uuid, nameHint string) error

	// AppendEvent durably appends one heartbeat document to the log.
	// No dedup: duplicate broker deliveries append duplicate events.
	AppendEvent(ctx context.Context, doc map[string]any) error

	// RecentActivity returns per-agent activity for events with
	// timestamps at or after since, timestamps sorted ascending.
	RecentActivity(ctx context.Context, since time.Time) ([]types.AgentActivity, error)

	// RenameAgent sets the display name directly, bypassing the event
	// path (provisioning boundary).
	RenameAgent(ctx context.Context, uuid, name string) error

	// Agents lists all registry records.
	Agents(ctx context.Context) ([]types.AgentRecord, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying client.
	Close(ctx context.Context) error
}
