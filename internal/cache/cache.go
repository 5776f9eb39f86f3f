package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a new cache based on configuration.
// "memory" returns an LRU cache. "redis" returns a Redis cache, or a
// TwoPhaseCache wrapping LRU + Redis when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func policyKey(policyID string) string {
	return "policy:" + policyID
}

func encodePolicy(p *domain.PolicyRecord) ([]byte, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("policy id is required")
	}
	return json.Marshal(p)
}

func decodePolicy(data []byte) (*domain.PolicyRecord, error) {
	var p domain.PolicyRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached policy: %w", err)
	}
	return &p, nil
}

// invalidationChannel carries "<node> <key>" for every L2 write so other
// nodes drop their L1 copy instead of serving it until LocalTTL runs out.
const invalidationChannel = "kestrel:invalidate"

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every node
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration

	node   string
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis and starts
// listening for invalidations from other nodes.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	c := newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.pubsub = remote.client.Subscribe(ctx, invalidationChannel)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		c.pubsub.Close()
		remote.Close()
		return nil, fmt.Errorf("subscribe to cache invalidations: %w", err)
	}
	c.done = make(chan struct{})
	go c.listen()

	return c, nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
		node:   uuid.New().String(),
	}
}

// listen evicts L1 entries written by other nodes until the subscription closes.
func (c *TwoPhaseCache) listen() {
	defer close(c.done)
	for msg := range c.pubsub.Channel() {
		node, key, ok := strings.Cut(msg.Payload, " ")
		if !ok || node == c.node {
			continue
		}
		_ = c.local.Delete(context.Background(), key)
		slog.Debug("cache entry invalidated by peer", "key", key, "peer", node)
	}
}

// invalidate tells other nodes that key changed in L2.
func (c *TwoPhaseCache) invalidate(ctx context.Context, key string) {
	if err := c.remote.client.Publish(ctx, invalidationChannel, c.node+" "+key).Err(); err != nil {
		slog.Warn("failed to publish cache invalidation", "key", key, "error", err)
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

// GetPolicy retrieves a cached policy record from L1, then L2.
func (c *TwoPhaseCache) GetPolicy(ctx context.Context, policyID string) (*domain.PolicyRecord, error) {
	data, err := c.Get(ctx, policyKey(policyID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodePolicy(data)
}

// SetPolicy caches a policy record in both L1 and L2.
func (c *TwoPhaseCache) SetPolicy(ctx context.Context, policy *domain.PolicyRecord, ttl time.Duration) error {
	data, err := encodePolicy(policy)
	if err != nil {
		return err
	}
	return c.Set(ctx, policyKey(policy.ID), data, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close stops the invalidation listener and closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	if c.pubsub != nil {
		_ = c.pubsub.Close()
		<-c.done
	}
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
