// Package service composes the dashboard's read path: store query,
// status aggregation and an optional short-lived snapshot cache.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"detak/internal/config"
	"detak/internal/metrics"
	"detak/internal/status"
	"detak/internal/storage"
	"detak/internal/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKey = "detak:status:v1"

// ErrCacheMiss is returned by a Cache for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores marshalled snapshot payloads with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// Service answers status queries for the presentation layer.
type Service struct {
	store  storage.Store
	cache  Cache // nil disables caching
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new dashboard service.
func New(store storage.Store, cache Cache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// redisCache implements Cache on a Redis client.
type redisCache struct {
	rc *redis.Client
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.rc.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return raw, err
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rc.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Del(ctx context.Context, key string) error {
	return c.rc.Del(ctx, key).Err()
}

func (c *redisCache) Close() error {
	return c.rc.Close()
}

// NewCache creates the Redis-backed snapshot cache. An empty address
// disables the cache.
func NewCache(cfg config.RedisConfig) (Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return &redisCache{rc: rc}, nil
}

// Status returns the snapshot sequence for every agent observed in the
// trailing 24h window, active agents first. Snapshots are recomputed per
// query; the cache only smooths bursts of simultaneous viewers.
func (s *Service) Status(ctx context.Context) ([]types.StatusSnapshot, error) {
	if snaps, ok := s.fromCache(ctx); ok {
		metrics.StatusQueries.WithLabelValues("hit").Inc()
		return snaps, nil
	}
	metrics.StatusQueries.WithLabelValues("miss").Inc()

	now := s.now()
	activity, err := s.store.RecentActivity(ctx, now.Add(-status.UptimeWindow))
	if err != nil {
		return nil, err
	}

	snaps := status.BuildSnapshots(now, activity)
	s.toCache(ctx, snaps)
	return snaps, nil
}

// Agents lists the registry.
func (s *Service) Agents(ctx context.Context) ([]types.AgentRecord, error) {
	return s.store.Agents(ctx)
}

// RenameAgent sets an agent's display name through the provisioning
// path. Last write wins, regardless of names carried by the event path.
func (s *Service) RenameAgent(ctx context.Context, uuid, name string) error {
	if name == "" {
		return errors.New("object_name is required")
	}
	if err := s.store.RenameAgent(ctx, uuid, name); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// Health reports store connectivity.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) fromCache(ctx context.Context) ([]types.StatusSnapshot, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("Status cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var snaps []types.StatusSnapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		// A corrupt entry falls back to recomputation and is
		// overwritten by the fresh result.
		s.logger.Warn("Status cache decode failed", zap.Error(err))
		return nil, false
	}
	return snaps, true
}

func (s *Service) toCache(ctx context.Context, snaps []types.StatusSnapshot) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(snaps)
	if err != nil {
		s.logger.Warn("Status cache encode failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.ttl); err != nil {
		s.logger.Warn("Status cache write failed", zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey); err != nil {
		s.logger.Warn("Status cache invalidation failed", zap.Error(err))
	}
}
