package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "vegindex:session:"

// RedisStore keeps sessions in Redis; idle sessions expire through key TTLs
type RedisStore struct {
	client  *redis.Client
	maxIdle time.Duration
}

// NewRedisStore wraps client; every Save pushes the TTL back to maxIdle
func NewRedisStore(client *redis.Client, maxIdle time.Duration) *RedisStore {
	return &RedisStore{client: client, maxIdle: maxIdle}
}

// NewRedisStoreFromURL connects to a redis:// URL
func NewRedisStoreFromURL(ctx context.Context, url string, maxIdle time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedisStore(client, maxIdle), nil
}

func (r *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Save implements Store
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.LastAccess = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.maxIdle).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// Sweep deletes idle sessions whose key carries no TTL, e.g. ones written
// by a store configured without one
func (r *RedisStore) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		if ttl > 0 {
			continue
		}
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return removed, err
		}
		var s Session
		idle := maxIdle + 1
		if json.Unmarshal(data, &s) == nil {
			idle = time.Since(s.LastAccess)
		}
		if idle <= maxIdle {
			if err := r.client.Expire(ctx, key, maxIdle-idle).Err(); err != nil {
				return removed, err
			}
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

// Close releases the connection pool
func (r *RedisStore) Close() error {
	return r.client.Close()
}
