package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the go-redis client used by [Redis].
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// DefaultPrefix namespaces every key written by [Redis].
const DefaultPrefix = "oratio:"

// Redis is a [Store] backed by Redis. Redis enforces the TTL given to Set;
// the TTL given to Get is not rechecked.
type Redis struct {
	client RedisClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis connects to the Redis server at addr and verifies the connection
// with a PING.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis %q: %w", addr, err)
	}
	slog.Info("redis cache connected", "addr", addr, "db", db)
	return NewRedisFromClient(client, DefaultPrefix), nil
}

// NewRedisFromClient wraps an existing client. Useful for tests and for
// sharing a pool.
func NewRedisFromClient(client RedisClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get implements [Store].
func (r *Redis) Get(ctx context.Context, key string, _ time.Duration) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements [Store].
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// HealthCheck verifies Redis connectivity.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
