package cache

import (
	"context"

	"github.com/goliatone/go-repository-core/internal/cacheinfra"
)

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// Entry carries per-entry storage options: how long the value may live and
// which tags group it for bulk invalidation. Aliased from cacheinfra so the
// adapters there satisfy Store without importing this package.
type Entry = cacheinfra.Entry

// ProduceFn is the function signature Store expects when filling a miss from
// the source of truth.
type ProduceFn[T any] func(ctx context.Context) (T, error)

// Store is the cache store port. Implementations live in internal/cacheinfra;
// the decorator treats every Store failure as an optimization miss, never as
// a correctness problem.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, entry Entry) error
	GetOrSet(ctx context.Context, key string, produce func(ctx context.Context) (any, error), entry Entry) (any, error)
	Delete(ctx context.Context, key string) error
	InvalidateTags(ctx context.Context, tags []string) error
}

// GetOrSet is a type-safe wrapper around Store.GetOrSet.
func GetOrSet[T any](ctx context.Context, store Store, key string, produce ProduceFn[T], entry Entry) (T, error) {
	result, err := store.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return produce(ctx)
	}, entry)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{Key: key}
	}
	return typed, nil
}

// TypeMismatchError reports a cached value whose dynamic type no longer
// matches what the caller expects, e.g. after a deploy changed the cached
// shape.
type TypeMismatchError struct {
	Key string
}

func (e *TypeMismatchError) Error() string {
	return "cache: stored value type mismatch for key " + e.Key
}
