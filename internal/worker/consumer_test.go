package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"detak/internal/config"
	"detak/internal/storage"
	"detak/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeAcknowledger records how a delivery was settled
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

// fakeStore implements storage.Store in memory
type fakeStore struct {
	upsertErr error
	appendErr error

	sightings []string
	hints     []string
	docs      []map[string]any
}

var _ storage.Store = (*fakeStore)(nil)

func (f *fakeStore) UpsertAgentSighting(ctx context.Context, uuid, nameHint string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.sightings = append(f.sightings, uuid)
	f.hints = append(f.hints, nameHint)
	return nil
}

func (f *fakeStore) AppendEvent(ctx context.Context, doc map[string]any) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeStore) RecentActivity(ctx context.Context, since time.Time) ([]types.AgentActivity, error) {
	return nil, nil
}

func (f *fakeStore) RenameAgent(ctx context.Context, uuid, name string) error {
	return nil
}

func (f *fakeStore) Agents(ctx context.Context) ([]types.AgentRecord, error) {
	return nil, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Close(ctx context.Context) error { return nil }

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(body),
	}
}

// TestHandleDeliveryAckDiscipline checks the settle decision for every
// failure class
func TestHandleDeliveryAckDiscipline(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		store       *fakeStore
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantStored  int
	}{
		{
			name:       "valid payload is acked",
			body:       `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z"}`,
			store:      &fakeStore{},
			wantAck:    true,
			wantStored: 1,
		},
		{
			name:     "malformed body is dead-lettered",
			body:     `{not json`,
			store:    &fakeStore{},
			wantNack: true,
		},
		{
			name:     "missing uuid is dead-lettered",
			body:     `{"timestamp":"2026-03-14T12:00:00Z"}`,
			store:    &fakeStore{},
			wantNack: true,
		},
		{
			name:     "empty uuid is dead-lettered",
			body:     `{"uuid":"","timestamp":"2026-03-14T12:00:00Z"}`,
			store:    &fakeStore{},
			wantNack: true,
		},
		{
			name:        "registry failure is requeued",
			body:        `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z"}`,
			store:       &fakeStore{upsertErr: errors.New("store unreachable")},
			wantNack:    true,
			wantRequeue: true,
		},
		{
			name:        "event log failure is requeued",
			body:        `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z"}`,
			store:       &fakeStore{appendErr: errors.New("store unreachable")},
			wantNack:    true,
			wantRequeue: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			c := NewConsumer(config.RabbitMQConfig{Queue: "heartbeats"}, tc.store, zaptest.NewLogger(t))

			c.handleDelivery(context.Background(), delivery(ack, tc.body))

			assert.Equal(t, tc.wantAck, ack.acked)
			assert.Equal(t, tc.wantNack, ack.nacked)
			assert.Equal(t, tc.wantRequeue, ack.requeue)
			assert.Len(t, tc.store.docs, tc.wantStored)
		})
	}
}

// TestHandleDeliveryStampsReceiptTime checks the persisted document
func TestHandleDeliveryStampsReceiptTime(t *testing.T) {
	store := &fakeStore{}
	ack := &fakeAcknowledger{}
	c := NewConsumer(config.RabbitMQConfig{Queue: "heartbeats"}, store, zaptest.NewLogger(t))

	before := time.Now().UTC()
	c.handleDelivery(context.Background(),
		delivery(ack, `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z","object_name":"Pump A","site":"plant-7"}`))
	after := time.Now().UTC()

	require.True(t, ack.acked)
	require.Len(t, store.docs, 1)
	doc := store.docs[0]

	assert.Equal(t, "agent-1", doc[types.FieldUUID])
	assert.Equal(t, "2026-03-14T12:00:00Z", doc[types.FieldTimestamp])
	assert.Equal(t, "Pump A", doc[types.FieldObjectName])
	assert.Equal(t, "plant-7", doc["site"], "extra fields are persisted verbatim")

	receivedAt, err := time.Parse(time.RFC3339Nano, doc[types.FieldReceivedAt].(string))
	require.NoError(t, err)
	assert.False(t, receivedAt.Before(before))
	assert.False(t, receivedAt.After(after))
}

// TestHandleDeliveryDisplayNameHint checks that the registry sees the
// payload's display name hint
func TestHandleDeliveryDisplayNameHint(t *testing.T) {
	store := &fakeStore{}
	c := NewConsumer(config.RabbitMQConfig{Queue: "heartbeats"}, store, zaptest.NewLogger(t))

	c.handleDelivery(context.Background(),
		delivery(&fakeAcknowledger{}, `{"uuid":"agent-1","timestamp":"2026-03-14T12:00:00Z"}`))
	c.handleDelivery(context.Background(),
		delivery(&fakeAcknowledger{}, `{"uuid":"agent-1","timestamp":"2026-03-14T12:01:00Z","object_name":"Pump A"}`))

	require.Equal(t, []string{"agent-1", "agent-1"}, store.sightings)
	assert.Equal(t, []string{"", "Pump A"}, store.hints)
}
