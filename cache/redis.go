package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/finrank/core"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces finrank keys in a shared redis.
const DefaultRedisPrefix = "finrank:search:"

// Redis is a result cache shared between processes. Errors talking to
// redis are logged and treated as misses so search never fails because
// of the cache.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis creates a cache on top of client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-cache"),
	}
}

// DialRedis connects to addr and verifies the server answers PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]*core.Result, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "err", err)
		}
		return nil, false
	}

	var results []*core.Result
	if err := json.Unmarshal(data, &results); err != nil {
		r.logger.Warn("discarding corrupt cache entry", "key", key, "err", err)
		return nil, false
	}
	return results, true
}

func (r *Redis) Set(ctx context.Context, key string, results []*core.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		r.logger.Warn("cache encode failed", "err", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", "err", err)
	}
}

// Invalidate deletes every key under the cache prefix.
func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}
