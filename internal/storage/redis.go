package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sdgchat:"

// RedisKV stores sdgchat's durable keys in Redis, so several clients on
// different machines can share one profile collection.
type RedisKV struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

var _ KV = (*RedisKV)(nil)

// OpenRedis connects to the Redis instance at url (redis://...) and verifies
// the connection with a PING.
func OpenRedis(ctx context.Context, url string) (*RedisKV, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisKV{client: client, ctx: ctx, prefix: defaultRedisPrefix}, nil
}

// Close closes the Redis connection.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

func (r *RedisKV) Get(key string) (string, error) {
	v, err := r.client.Get(r.ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisKV) Set(key, value string) error {
	if err := r.client.Set(r.ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(key string) error {
	if err := r.client.Del(r.ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Keys scans for keys under prefix. Redis returns them unordered.
func (r *RedisKV) Keys(prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(r.ctx, 0, r.prefix+prefix+"*", 100).Iterator()
	for iter.Next(r.ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}
	return keys, nil
}
