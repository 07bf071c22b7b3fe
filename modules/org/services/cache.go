package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/orgadmin/modules/org/domain/events"
	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/pkg/composables"
)

// TreeCache holds the flat node list behind GetTree, ListFlat and Stats.
// Failures are treated as misses; the repository stays the source of truth.
type TreeCache interface {
	Get(ctx context.Context) ([]orgtree.Node, bool)
	Set(ctx context.Context, nodes []orgtree.Node)
	Invalidate(ctx context.Context)
}

type NoopTreeCache struct{}

func (NoopTreeCache) Get(context.Context) ([]orgtree.Node, bool) { return nil, false }
func (NoopTreeCache) Set(context.Context, []orgtree.Node)        {}
func (NoopTreeCache) Invalidate(context.Context)                 {}

type MemoryTreeCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	nodes   []orgtree.Node
	expires time.Time
	valid   bool
}

// NewMemoryTreeCache keeps one snapshot in process. ttl <= 0 never expires.
func NewMemoryTreeCache(ttl time.Duration) *MemoryTreeCache {
	return &MemoryTreeCache{ttl: ttl, now: time.Now}
}

func (c *MemoryTreeCache) Get(context.Context) ([]orgtree.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hit := c.valid && (c.ttl <= 0 || c.now().Before(c.expires))
	recordCacheRequest("memory", hit)
	if !hit {
		return nil, false
	}
	return slices.Clone(c.nodes), true
}

func (c *MemoryTreeCache) Set(_ context.Context, nodes []orgtree.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = slices.Clone(nodes)
	c.expires = c.now().Add(c.ttl)
	c.valid = true
}

func (c *MemoryTreeCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nil
	c.valid = false
}

const DefaultTreeCacheKey = "orgadmin:org:tree:v1"

// RedisTreeCache shares the snapshot across server replicas as one JSON value.
type RedisTreeCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisTreeCache(client redis.Cmdable, key string, ttl time.Duration) *RedisTreeCache {
	if key == "" {
		key = DefaultTreeCacheKey
	}
	return &RedisTreeCache{client: client, key: key, ttl: ttl}
}

func (c *RedisTreeCache) Get(ctx context.Context) ([]orgtree.Node, bool) {
	b, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			composables.UseLogger(ctx).WithError(err).Warn("org tree cache read failed")
		}
		recordCacheRequest("redis", false)
		return nil, false
	}
	var nodes []orgtree.Node
	if err := json.Unmarshal(b, &nodes); err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("org tree cache entry is corrupt")
		recordCacheRequest("redis", false)
		return nil, false
	}
	recordCacheRequest("redis", true)
	return nodes, true
}

func (c *RedisTreeCache) Set(ctx context.Context, nodes []orgtree.Node) {
	b, err := json.Marshal(nodes)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("org tree cache encode failed")
		return
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key, b, ttl).Err(); err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("org tree cache write failed")
	}
}

func (c *RedisTreeCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("org tree cache invalidation failed")
	}
}

// InvalidateOnChange returns an event bus handler that drops the cached tree
// after every write.
func InvalidateOnChange(cache TreeCache) func(ctx context.Context, ev events.TreeChange) {
	return func(ctx context.Context, ev events.TreeChange) {
		cache.Invalidate(ctx)
		recordCacheInvalidate(ev.Changed().ChangeType)
	}
}
