// Package repositorycache decorates a repository with tag-based caching.
//
// # Overview
//
// CachedRepository wraps any repository that exposes its entity definition and
// keeps the same contract, so callers swap it in without code changes:
//
//	base, _ := repository.New(pool, def)
//	store, _ := cache.NewStore(cache.DefaultConfig())
//	repo, _ := repositorycache.New[User](base, store)
//
//	user, found := repo.FindOneByID(ctx, id) // cached
//	repo.Update(ctx, user)                   // writes through, then invalidates
//
// # What is cached
//
// Single-entity lookups are cached read-through: the persistence record is
// stored under a deterministic key and mapped back to the domain type on a
// hit. Counts are available in a cached variant, CountCached, keyed by a
// fingerprint of the filter and bounded by a shorter TTL. List queries are
// never cached.
//
// # Invalidation
//
// Every entry carries tags: one for its table, one for its entity, one for
// the table's counts. Writes delegate to the base repository first and
// invalidate the affected tags only after the write succeeded, so a failed
// write never disturbs the cache and a successful one never leaves a stale
// entity behind.
//
// # Transactions
//
// Operations carrying an open transaction in their context bypass the cache
// in both directions: uncommitted state is neither served from nor stored
// into it.
//
// # Failure policy
//
// The cache is strictly an optimization. Any store failure is logged at warn
// and the call falls through to the base repository; no cache outage can make
// a read fail or a write incorrect.
package repositorycache
