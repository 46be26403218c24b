// Package cacheinfra holds the concrete cache store adapters behind the
// cache.Store port: an in-process sturdyc-backed store and a Redis-backed
// store for shared deployments.
package cacheinfra

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// Entry carries per-entry storage options. The cache package aliases this
// type as cache.Entry.
type Entry struct {
	TTL  time.Duration
	Tags []string
}

// Config holds the configuration for the in-process cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0.
	NumShards int

	// RecordTTL bounds how long a cached persistence record may live.
	RecordTTL time.Duration

	// CountTTL bounds cached counts. Counts churn faster than entities, so
	// this should be shorter than RecordTTL.
	CountTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict when
	// the cache reaches capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		RecordTTL:          5 * time.Minute,
		CountTTL:           30 * time.Second,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.RecordTTL <= 0 {
		return &ConfigError{Field: "RecordTTL", Message: "must be greater than 0"}
	}
	if c.CountTTL <= 0 {
		return &ConfigError{Field: "CountTTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// record wraps a stored value with its per-entry deadline. sturdyc's TTL is
// client-wide, so entries with a tighter TTL carry their own deadline and
// are dropped on read once it passes.
type record struct {
	value    any
	deadline time.Time
}

// SturdycStore is the in-process cache.Store implementation. Tag membership
// is tracked in a concurrent index so InvalidateTags can drop every key a
// tag covers without scanning the cache.
type SturdycStore struct {
	client *sturdyc.Client[record]
	tags   *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// NewSturdycStore creates the in-process store. The sturdyc client is sized
// from the config; RecordTTL doubles as the client-wide upper bound.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[record](
		cfg.Capacity,
		cfg.NumShards,
		cfg.RecordTTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &SturdycStore{
		client: client,
		tags:   xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}, nil
}

// Get returns the stored value for key, treating a passed per-entry deadline
// as a miss.
func (s *SturdycStore) Get(ctx context.Context, key string) (any, bool, error) {
	rec, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !rec.deadline.IsZero() && time.Now().After(rec.deadline) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return rec.value, true, nil
}

// Set stores value under key and registers it with every tag in the entry.
func (s *SturdycStore) Set(ctx context.Context, key string, value any, entry Entry) error {
	rec := record{value: value}
	if entry.TTL > 0 {
		rec.deadline = time.Now().Add(entry.TTL)
	}
	s.client.Set(key, rec)
	s.index(key, entry.Tags)
	return nil
}

// GetOrSet returns the cached value or fills the miss from produce.
func (s *SturdycStore) GetOrSet(ctx context.Context, key string, produce func(ctx context.Context) (any, error), entry Entry) (any, error) {
	if value, ok, _ := s.Get(ctx, key); ok {
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

// Delete removes one entry. Tag index references to the key become stale but
// harmless: invalidating a tag that points at an absent key is a no-op.
func (s *SturdycStore) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// InvalidateTags drops every entry registered under any of the tags.
func (s *SturdycStore) InvalidateTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		keys, ok := s.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		keys.Range(func(key string, _ struct{}) bool {
			s.client.Delete(key)
			return true
		})
	}
	return nil
}

func (s *SturdycStore) index(key string, tags []string) {
	for _, tag := range tags {
		members, _ := s.tags.LoadOrStore(tag, xsync.NewMapOf[string, struct{}]())
		members.Store(key, struct{}{})
	}
}
