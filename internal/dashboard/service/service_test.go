package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"detak/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStore returns canned activity
type fakeStore struct {
	activity []types.AgentActivity
	err      error

	renamed map[string]string
	since   time.Time
	queries int
}

func (f *fakeStore) UpsertAgentSighting(ctx context.Context, uuid, nameHint string) error {
	return nil
}

func (f *fakeStore) AppendEvent(ctx context.Context, doc map[string]any) error {
	return nil
}

func (f *fakeStore) RecentActivity(ctx context.Context, since time.Time) ([]types.AgentActivity, error) {
	f.since = since
	f.queries++
	return f.activity, f.err
}

func (f *fakeStore) RenameAgent(ctx context.Context, uuid, name string) error {
	if f.renamed == nil {
		f.renamed = make(map[string]string)
	}
	f.renamed[uuid] = name
	return nil
}

func (f *fakeStore) Agents(ctx context.Context) ([]types.AgentRecord, error) {
	return []types.AgentRecord{{UUID: "agent-1", ObjectName: "Pump A"}}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.err }

func (f *fakeStore) Close(ctx context.Context) error { return nil }

// fakeCache is an in-memory Cache
type fakeCache struct {
	entries map[string][]byte
	ttl     time.Duration
	getErr  error
}

var _ Cache = (*fakeCache)(nil)

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	raw, ok := f.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return raw, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.entries[key] = value
	f.ttl = ttl
	return nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) Close() error { return nil }

// TestStatusQueriesTrailingDay checks the query window and the snapshot
// conversion
func TestStatusQueriesTrailingDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		activity: []types.AgentActivity{
			{
				UUID:          "agent-1",
				ObjectName:    "Pump A",
				Timestamps:    []string{now.Add(-time.Minute).Format(time.RFC3339Nano)},
				LastHeartbeat: now.Add(-time.Minute).Format(time.RFC3339Nano),
				TotalPings:    1,
			},
		},
	}

	svc := New(store, nil, 10*time.Second, zaptest.NewLogger(t))
	svc.now = func() time.Time { return now }

	snaps, err := svc.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), store.since)
	require.Len(t, snaps, 1)
	assert.Equal(t, "agent-1", snaps[0].UUID)
	assert.Equal(t, "Pump A", snaps[0].ObjectName)
	assert.True(t, snaps[0].Active)
}

// TestStatusCacheFillAndHit checks that a miss fills the cache and
// later queries within the TTL are answered from it
func TestStatusCacheFillAndHit(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		activity: []types.AgentActivity{
			{
				UUID:          "agent-1",
				ObjectName:    "Pump A",
				Timestamps:    []string{now.Add(-time.Minute).Format(time.RFC3339Nano)},
				LastHeartbeat: now.Add(-time.Minute).Format(time.RFC3339Nano),
				TotalPings:    1,
			},
		},
	}
	cache := newFakeCache()

	svc := New(store, cache, 10*time.Second, zaptest.NewLogger(t))
	svc.now = func() time.Time { return now }

	first, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries)
	assert.Contains(t, cache.entries, cacheKey)
	assert.Equal(t, 10*time.Second, cache.ttl)

	// Mutating the store has no effect while the entry lives
	store.activity = nil

	second, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries, "cached queries must not reach the store")
	assert.Equal(t, first, second)
}

// TestStatusCorruptCacheFallsBack checks that an undecodable entry is
// recomputed from the store and overwritten
func TestStatusCorruptCacheFallsBack(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	cache.entries[cacheKey] = []byte("{not json")

	svc := New(store, cache, 10*time.Second, zaptest.NewLogger(t))

	_, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries)
	assert.JSONEq(t, "[]", string(cache.entries[cacheKey]))
}

// TestStatusCacheReadErrorFallsBack checks that an unreachable cache
// degrades to a plain store query
func TestStatusCacheReadErrorFallsBack(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	cache.getErr = errors.New("cache unreachable")

	svc := New(store, cache, 10*time.Second, zaptest.NewLogger(t))

	_, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries)
}

// TestRenameAgentInvalidatesCache checks that a rename drops the
// snapshot entry so the next query sees the new name
func TestRenameAgentInvalidatesCache(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	cache.entries[cacheKey] = []byte("[]")

	svc := New(store, cache, 10*time.Second, zaptest.NewLogger(t))

	require.NoError(t, svc.RenameAgent(context.Background(), "agent-1", "Reactor Door"))
	assert.NotContains(t, cache.entries, cacheKey)
}

// TestStatusPropagatesStoreError checks that a failing store fails the
// query instead of returning stale data
func TestStatusPropagatesStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("store unreachable")}
	svc := New(store, nil, 10*time.Second, zaptest.NewLogger(t))

	_, err := svc.Status(context.Background())
	assert.Error(t, err)
}

// TestRenameAgent checks the provisioning path
func TestRenameAgent(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, nil, 10*time.Second, zaptest.NewLogger(t))

	require.NoError(t, svc.RenameAgent(context.Background(), "agent-1", "Reactor Door"))
	assert.Equal(t, "Reactor Door", store.renamed["agent-1"])

	assert.Error(t, svc.RenameAgent(context.Background(), "agent-1", ""),
		"empty names are rejected")
}
