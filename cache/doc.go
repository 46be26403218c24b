// Package cache defines the cache store port and key serialization used by
// the repository cache decorator.
//
// # Overview
//
// Two contracts live here:
//
//   - Store: get/set with per-entry TTL and tags, get-or-populate, and
//     tag-based bulk invalidation
//   - KeySerializer: builds stable cache keys from method names and arguments
//
// Store implementations live in internal/cacheinfra: an in-process adapter
// built on sturdyc (the default) and a Redis adapter for deployments that
// share a cache across processes. Construct the default via NewStore:
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//
// # Tags
//
// A tag groups entries that must be invalidated together: all rows of one
// table, one entity id, or a table's cached counts. Writers invalidate by
// tag instead of enumerating keys, which keeps invalidation correct even
// when readers have registered keys the writer never saw.
//
// # Failure policy
//
// Every Store method returns an error rather than panicking, and callers in
// repositorycache treat any such error as a cache miss: the database path
// always remains available. The cache is an optimization, never a dependency
// whose failure can break correctness.
//
// # See Also
//
// For the decorator that drives these contracts, see package repositorycache.
package cache
