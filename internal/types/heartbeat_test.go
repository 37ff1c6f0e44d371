package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseHeartbeat checks payload decoding and the uuid invariant
func TestParseHeartbeat(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantErr error
		check   func(*testing.T, *Heartbeat)
	}{
		{
			name: "minimal payload",
			body: `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z"}`,
			check: func(t *testing.T, hb *Heartbeat) {
				assert.Equal(t, "agent-1", hb.UUID)
				assert.Equal(t, "2026-03-14T12:00:00Z", hb.Timestamp)
				assert.Empty(t, hb.ObjectName)
				assert.Empty(t, hb.Extra)
			},
		},
		{
			name: "extra fields preserved",
			body: `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z","object_name":"Pump A","site":"plant-7","rack":3}`,
			check: func(t *testing.T, hb *Heartbeat) {
				assert.Equal(t, "Pump A", hb.ObjectName)
				assert.Equal(t, "plant-7", hb.Extra["site"])
				assert.Equal(t, float64(3), hb.Extra["rack"])
			},
		},
		{
			name:    "not json",
			body:    `ping`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "missing uuid",
			body:    `{"timestamp":"2026-03-14T12:00:00Z"}`,
			wantErr: ErrMissingUUID,
		},
		{
			name:    "empty uuid",
			body:    `{"uuid":"","timestamp":"2026-03-14T12:00:00Z"}`,
			wantErr: ErrMissingUUID,
		},
		{
			name:    "non-string uuid",
			body:    `{"uuid":42,"timestamp":"2026-03-14T12:00:00Z"}`,
			wantErr: ErrMissingUUID,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hb, err := ParseHeartbeat([]byte(tc.body))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.True(t, IsPermanent(err))
				return
			}
			require.NoError(t, err)
			tc.check(t, hb)
		})
	}
}

// TestHeartbeatDocument checks the persisted event shape
func TestHeartbeatDocument(t *testing.T) {
	hb := &Heartbeat{
		UUID:      "agent-1",
		Timestamp: "2026-03-14T12:00:00Z",
		Extra:     map[string]any{"site": "plant-7"},
	}

	receivedAt := time.Date(2026, 3, 14, 12, 0, 1, 500000000, time.UTC)
	doc := hb.Document(receivedAt)

	assert.Equal(t, "agent-1", doc[FieldUUID])
	assert.Equal(t, "2026-03-14T12:00:00Z", doc[FieldTimestamp])
	assert.Equal(t, "plant-7", doc["site"])
	assert.Equal(t, "2026-03-14T12:00:01.500000000Z", doc[FieldReceivedAt])

	_, hasName := doc[FieldObjectName]
	assert.False(t, hasName, "empty object_name is not persisted")
}

// TestTimestampLayoutOrdering checks that string order equals time
// order for the fixed-width layout, including within one second
func TestTimestampLayoutOrdering(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	instants := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 2*time.Nanosecond),
		base.Add(time.Minute),
	}

	for i := 1; i < len(instants); i++ {
		prev := instants[i-1].Format(TimestampLayout)
		next := instants[i].Format(TimestampLayout)
		assert.Less(t, prev, next)
	}

	// The layout stays parseable by the aggregator's reader.
	parsed, err := time.Parse(time.RFC3339Nano, base.Add(500*time.Millisecond).Format(TimestampLayout))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base.Add(500*time.Millisecond)))
}
