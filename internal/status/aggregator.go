// Package status derives per-agent status snapshots from the raw
// heartbeat log. It is a pure read-time computation: safe to run
// concurrently with ingestion and across simultaneous viewers.
package status

import (
	"math"
	"sort"
	"time"

	"detak/internal/types"
)

const (
	// TimelineWindow is the trailing window covered by the minute timeline.
	TimelineWindow = time.Hour

	// UptimeWindow is the trailing window for ping counts and uptime.
	UptimeWindow = 24 * time.Hour

	// ActiveThreshold is the maximum age of the last heartbeat for an
	// agent to count as active right now.
	ActiveThreshold = 120 * time.Second

	// TimelineSlots caps the timeline at one slot per minute of the hour.
	TimelineSlots = 60

	minutesPerDay = 24 * 60
)

// BuildSnapshots converts the store's per-agent activity into snapshots,
// ordered with active agents first. The order of the input is preserved
// within each group. A single agent with unparseable timestamps degrades
// to inactive; it never aborts the whole computation.
func BuildSnapshots(now time.Time, activity []types.AgentActivity) []types.StatusSnapshot {
	snapshots := make([]types.StatusSnapshot, 0, len(activity))
	for _, act := range activity {
		snapshots = append(snapshots, buildSnapshot(now, act))
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Active && !snapshots[j].Active
	})

	return snapshots
}

// buildSnapshot computes one agent's snapshot from its activity over the
// trailing 24h window.
func buildSnapshot(now time.Time, act types.AgentActivity) types.StatusSnapshot {
	now = now.UTC()

	snap := types.StatusSnapshot{
		UUID:          act.UUID,
		ObjectName:    act.ObjectName,
		TotalPings24h: act.TotalPings,
		UptimePercent: roundPercent(float64(act.TotalPings) / minutesPerDay * 100),
	}

	// Raw ping count and uptime come straight from the window count so
	// sub-minute emitters surface as uptime above 100% instead of being
	// clamped. The timeline below stays bounded regardless of ping rate.

	stamps := parseTimestamps(act.Timestamps)
	snap.MinuteTimeline = minuteTimeline(now, stamps)

	last, err := parseTimestamp(act.LastHeartbeat)
	if err != nil {
		// Unparseable log entry: degrade this agent to inactive.
		return snap
	}
	snap.LastHeartbeat = last
	snap.Active = now.Sub(last) < ActiveThreshold

	return snap
}

// minuteTimeline reconstructs a dense per-minute activity sequence from a
// sparse timestamp stream. A cursor walks the trailing hour in one-minute
// steps: minutes without a heartbeat emit inactive, a minute with one or
// more heartbeats emits a single active slot. The result holds at most
// TimelineSlots entries, oldest first.
func minuteTimeline(now time.Time, stamps []time.Time) []types.SlotState {
	cursor := now.Add(-TimelineWindow)
	slots := make([]types.SlotState, 0, TimelineSlots+1)

	for _, ts := range stamps {
		if ts.Before(cursor) {
			// Outside the window, or in a minute already emitted.
			continue
		}
		if ts.After(now) {
			break
		}
		for !cursor.Add(time.Minute).After(ts) {
			slots = append(slots, types.SlotInactive)
			cursor = cursor.Add(time.Minute)
		}
		slots = append(slots, types.SlotActive)
		cursor = cursor.Add(time.Minute)
	}

	for cursor.Before(now) {
		slots = append(slots, types.SlotInactive)
		cursor = cursor.Add(time.Minute)
	}

	if len(slots) > TimelineSlots {
		slots = slots[len(slots)-TimelineSlots:]
	}
	return slots
}

// parseTimestamps parses and sorts the stored timestamp strings.
// Unparseable entries are dropped; deliveries may have been persisted out
// of origin order, so ordering is re-established here.
func parseTimestamps(raw []string) []time.Time {
	stamps := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		ts, err := parseTimestamp(s)
		if err != nil {
			continue
		}
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps
}

// parseTimestamp parses one stored ISO-8601 timestamp into a UTC instant.
func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// roundPercent rounds to two decimals.
func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
