package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisEnvelope wraps a payload with its timestamps so age stats survive
// the round-trip.
type redisEnvelope struct {
	Payload   []byte `json:"payload"`
	StoredAt  int64  `json:"stored_at"`  // unix nano
	ExpiresAt int64  `json:"expires_at"` // unix nano
}

// RedisStore persists cache entries in Redis, leaning on native key TTLs
// for expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[INFO] redis cache store connected: %s", addr)
	return &RedisStore{client: client, prefix: "sharpefeed:cache:"}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (StoredEntry, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredEntry{}, ErrNotFound
	}
	if err != nil {
		return StoredEntry{}, fmt.Errorf("redis get: %w", err)
	}
	var env redisEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		// broken envelope surfaces as an expired entry so the cache self-heals
		return StoredEntry{Payload: b}, nil
	}
	return StoredEntry{
		Payload:   env.Payload,
		StoredAt:  time.Unix(0, env.StoredAt),
		ExpiresAt: time.Unix(0, env.ExpiresAt),
	}, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, entry StoredEntry) error {
	env := redisEnvelope{
		Payload:   entry.Payload,
		StoredAt:  entry.StoredAt.UnixNano(),
		ExpiresAt: entry.ExpiresAt.UnixNano(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing worth keeping
	}
	return r.client.Set(ctx, r.prefix+key, b, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Purge is a no-op: Redis expires keys natively.
func (r *RedisStore) Purge(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (r *RedisStore) OldestAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var oldest time.Duration
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		b, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var env redisEnvelope
		if err := json.Unmarshal(b, &env); err != nil {
			continue
		}
		if age := now.Sub(time.Unix(0, env.StoredAt)); age > oldest {
			oldest = age
		}
	}
	return oldest, iter.Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
