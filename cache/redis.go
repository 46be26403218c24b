package cache

import (
	"github.com/goliatone/go-repository-core/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// NewRedisStore wraps an existing Redis client in a Store for deployments
// that share the cache across processes. keyPrefix namespaces keys and tag
// sets so several applications can share one Redis; pass "" for none. The
// store never owns the client's lifecycle.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) Store {
	if keyPrefix != "" {
		return cacheinfra.NewRedisStore(client, cacheinfra.WithKeyPrefix(keyPrefix))
	}
	return cacheinfra.NewRedisStore(client)
}
