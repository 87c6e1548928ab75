package rbac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL bounds how long a cached custom role is trusted.
const DefaultCacheTTL = 5 * time.Minute

// RoleCache caches custom role permission sets keyed by (org, role).
// Implementations expire entries after their TTL; expired entries are
// never returned.
type RoleCache interface {
	Get(ctx context.Context, orgID, roleID string) (Set, bool)
	Set(ctx context.Context, orgID, roleID string, perms Set)
	Purge(ctx context.Context)
}

func cacheKey(orgID, roleID string) string {
	return orgID + "/" + roleID
}

// MemoryRoleCache is a process-wide TTL cache backed by an expirable LRU.
// The library's reaper goroutine evicts expired entries independently of
// lookups, bounding memory between reads.
type MemoryRoleCache struct {
	cache *lru.LRU[string, Set]
}

// NewMemoryRoleCache creates an in-process role cache
func NewMemoryRoleCache(size int, ttl time.Duration) *MemoryRoleCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryRoleCache{
		cache: lru.NewLRU[string, Set](size, nil, ttl),
	}
}

func (c *MemoryRoleCache) Get(ctx context.Context, orgID, roleID string) (Set, bool) {
	return c.cache.Get(cacheKey(orgID, roleID))
}

func (c *MemoryRoleCache) Set(ctx context.Context, orgID, roleID string, perms Set) {
	c.cache.Add(cacheKey(orgID, roleID), perms)
}

func (c *MemoryRoleCache) Purge(ctx context.Context) {
	c.cache.Purge()
}

// Len returns the number of live entries
func (c *MemoryRoleCache) Len() int {
	return c.cache.Len()
}

// RedisRoleCache is a shared role cache for horizontally scaled deployments.
// Redis expires entries server-side via the key TTL.
type RedisRoleCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisRoleCache creates a Redis-backed role cache
func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisRoleCache{
		client: client,
		ttl:    ttl,
		prefix: "linkdeck:roles:",
	}
}

func (c *RedisRoleCache) Get(ctx context.Context, orgID, roleID string) (Set, bool) {
	data, err := c.client.Get(ctx, c.prefix+cacheKey(orgID, roleID)).Bytes()
	if err != nil {
		// Treat any Redis failure as a miss; the resolver falls back to
		// role storage.
		return nil, false
	}

	var perms []string
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil, false
	}
	return NewSetFromStrings(perms), true
}

func (c *RedisRoleCache) Set(ctx context.Context, orgID, roleID string, perms Set) {
	data, err := json.Marshal(perms.Strings())
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+cacheKey(orgID, roleID), data, c.ttl)
}

func (c *RedisRoleCache) Purge(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
