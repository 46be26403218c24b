package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	tagKeyPrefix = "tag::"
	// Tag sets outlive their members a little so invalidation still finds
	// keys whose values expired moments earlier.
	tagTTLMargin = time.Minute
)

// RedisStore is the shared cache.Store implementation. Values are msgpack
// encoded; tag membership lives in Redis sets so invalidation works across
// processes.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key and tag set, letting several
// applications share one Redis deployment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore wraps an existing Redis client. The store never owns the
// client's lifecycle.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the decoded value for key.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var value any
	if err := msgpack.Unmarshal(raw, &value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set encodes and stores value, registering key with every tag set.
func (s *RedisStore) Set(ctx context.Context, key string, value any, entry Entry) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyPrefix+key, raw, entry.TTL)
	for _, tag := range entry.Tags {
		tagKey := s.tagKey(tag)
		pipe.SAdd(ctx, tagKey, s.keyPrefix+key)
		if entry.TTL > 0 {
			pipe.Expire(ctx, tagKey, entry.TTL+tagTTLMargin)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetOrSet returns the cached value or fills the miss from produce.
func (s *RedisStore) GetOrSet(ctx context.Context, key string, produce func(ctx context.Context) (any, error), entry Entry) (any, error) {
	if value, ok, err := s.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	value, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Set(ctx, key, value, entry); err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes one entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

// InvalidateTags drops every member of each tag set, then the sets.
func (s *RedisStore) InvalidateTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		tagKey := s.tagKey(tag)
		members, err := s.client.SMembers(ctx, tagKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(members) > 0 {
			if err := s.client.Del(ctx, members...).Err(); err != nil {
				return err
			}
		}
		if err := s.client.Del(ctx, tagKey).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) tagKey(tag string) string {
	return s.keyPrefix + tagKeyPrefix + tag
}
