package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ResolvePrefix is the key prefix for cached resolve entries
	ResolvePrefix = "url:resolve:"
	// DefaultTTL is the default TTL for cached entries (24 hours)
	DefaultTTL = 24 * time.Hour
)

// Entry is a cached resolve result. Only records whose access gate cannot
// change between requests (active, no password, no expiry, no click cap)
// are cache-eligible; the ID is kept so the click still lands in the
// store on the fast path.
type Entry struct {
	ID      uint   `json:"id"`
	LongURL string `json:"long_url"`
}

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client, used by tests.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves the cached entry for an identifier, or nil on a miss.
func (r *RedisCache) Get(ctx context.Context, identifier string) (*Entry, error) {
	val, err := r.client.Get(ctx, ResolvePrefix+identifier).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from Redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &entry, nil
}

// Set stores the entry for an identifier with the default TTL
func (r *RedisCache) Set(ctx context.Context, identifier string, entry Entry) error {
	return r.SetWithTTL(ctx, identifier, entry, DefaultTTL)
}

// SetWithTTL stores the entry for an identifier with a custom TTL
func (r *RedisCache) SetWithTTL(ctx context.Context, identifier string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, ResolvePrefix+identifier, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

// Delete removes one or more identifiers from the cache. Called on every
// mutation or deletion so a stale gate decision is never served.
func (r *RedisCache) Delete(ctx context.Context, identifiers ...string) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = ResolvePrefix + id
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client
func (r *RedisCache) GetClient() *redis.Client {
	return r.client
}
