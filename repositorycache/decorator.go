package repositorycache

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-repository-core/cache"
	"github.com/goliatone/go-repository-core/repository"
)

const (
	defaultRecordTTL       = 5 * time.Minute
	defaultCountTTL        = 30 * time.Second
	defaultWarmupBatchSize = 25
)

// Base is what the decorator needs from the repository it wraps: the full
// persistence contract plus access to the table/mapper binding.
type Base[T any] interface {
	repository.Repository[T]
	Definition() repository.Definition[T]
}

// CachedRepository decorates a Repository with read-through caching for
// single-entity lookups and cached counts. Every cache failure degrades to
// the database path; the cache can make reads faster but never wrong, and
// never unavailable.
type CachedRepository[T any] struct {
	base        Base[T]
	store       cache.Store
	keys        cache.KeySerializer
	logger      repository.Logger
	recordTTL   time.Duration
	countTTL    time.Duration
	warmupBatch int
}

// Interface assertion to ensure the decorator remains a drop-in Repository.
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// Option configures a CachedRepository.
type Option[T any] func(*CachedRepository[T])

// WithKeySerializer overrides the key serializer.
func WithKeySerializer[T any](ks cache.KeySerializer) Option[T] {
	return func(c *CachedRepository[T]) { c.keys = ks }
}

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger[T any](l repository.Logger) Option[T] {
	return func(c *CachedRepository[T]) { c.logger = l }
}

// WithRecordTTL bounds how long a cached entity record may live.
func WithRecordTTL[T any](ttl time.Duration) Option[T] {
	return func(c *CachedRepository[T]) { c.recordTTL = ttl }
}

// WithCountTTL bounds cached counts. Counts churn faster than entities, so
// this defaults much shorter than the record TTL.
func WithCountTTL[T any](ttl time.Duration) Option[T] {
	return func(c *CachedRepository[T]) { c.countTTL = ttl }
}

// WithWarmupBatchSize sets how many identifiers WarmupCache loads per batch.
func WithWarmupBatchSize[T any](n int) Option[T] {
	return func(c *CachedRepository[T]) {
		if n > 0 {
			c.warmupBatch = n
		}
	}
}

// New wraps base with the caching decorator.
func New[T any](base Base[T], store cache.Store, opts ...Option[T]) (*CachedRepository[T], error) {
	if base == nil {
		return nil, fmt.Errorf("repositorycache: base repository is required")
	}
	if store == nil {
		return nil, fmt.Errorf("repositorycache: cache store is required")
	}

	c := &CachedRepository[T]{
		base:        base,
		store:       store,
		keys:        cache.NewDefaultKeySerializer(),
		logger:      nopLogger{},
		recordTTL:   defaultRecordTTL,
		countTTL:    defaultCountTTL,
		warmupBatch: defaultWarmupBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FindOneByID serves the lookup from cache when possible. Calls made inside a
// transaction bypass the cache entirely so uncommitted state is neither read
// from nor written into it.
func (c *CachedRepository[T]) FindOneByID(ctx context.Context, id any) (T, bool) {
	if _, inTx := repository.TxFrom(ctx); inTx {
		return c.base.FindOneByID(ctx, id)
	}

	var zero T
	key := c.entityKey(id)

	if value, ok, err := c.store.Get(ctx, key); err != nil {
		c.warnCache(ctx, "cache read failed", key, err)
	} else if ok {
		if agg, ok := c.decodeRecord(value); ok {
			return agg, true
		}
		// Cached shape no longer maps; drop it and reload from the source.
		if err := c.store.Delete(ctx, key); err != nil {
			c.warnCache(ctx, "cache delete failed", key, err)
		}
	}

	agg, found := c.base.FindOneByID(ctx, id)
	if !found {
		return zero, false
	}
	c.cacheAggregate(ctx, key, id, agg)
	return agg, true
}

// FindAll delegates. List results are unbounded and churn with every write,
// so they are not cached.
func (c *CachedRepository[T]) FindAll(ctx context.Context, opts ...repository.SelectOption) []T {
	return c.base.FindAll(ctx, opts...)
}

// FindAllPaginated delegates.
func (c *CachedRepository[T]) FindAllPaginated(ctx context.Context, p repository.Pagination, opts ...repository.SelectOption) repository.Page[T] {
	return c.base.FindAllPaginated(ctx, p, opts...)
}

// Insert writes through and invalidates the affected entities and counts.
// Invalidation happens strictly after the write succeeded; a failed write
// leaves the cache untouched.
func (c *CachedRepository[T]) Insert(ctx context.Context, aggregates ...T) error {
	if err := c.base.Insert(ctx, aggregates...); err != nil {
		return err
	}
	c.invalidateAggregates(ctx, aggregates...)
	return nil
}

// Update writes through and invalidates on success.
func (c *CachedRepository[T]) Update(ctx context.Context, aggregate T) error {
	if err := c.base.Update(ctx, aggregate); err != nil {
		return err
	}
	c.invalidateAggregates(ctx, aggregate)
	return nil
}

// Upsert writes through and invalidates on success.
func (c *CachedRepository[T]) Upsert(ctx context.Context, aggregate T) error {
	if err := c.base.Upsert(ctx, aggregate); err != nil {
		return err
	}
	c.invalidateAggregates(ctx, aggregate)
	return nil
}

// Delete removes the row and invalidates only when a row actually went away.
func (c *CachedRepository[T]) Delete(ctx context.Context, aggregate T) (bool, error) {
	removed, err := c.base.Delete(ctx, aggregate)
	if err != nil {
		return removed, err
	}
	if removed {
		c.invalidateAggregates(ctx, aggregate)
	}
	return removed, nil
}

// DeleteByID removes one row by identifier and invalidates on removal.
func (c *CachedRepository[T]) DeleteByID(ctx context.Context, id any) (bool, error) {
	removed, err := c.base.DeleteByID(ctx, id)
	if err != nil {
		return removed, err
	}
	if removed {
		c.invalidate(ctx, EntityTag(c.table(), id), CountTag(c.table()))
	}
	return removed, nil
}

// Exists delegates. The probe is a single indexed lookup and caching it
// would only add an invalidation surface.
func (c *CachedRepository[T]) Exists(ctx context.Context, id any) bool {
	return c.base.Exists(ctx, id)
}

// Count delegates to the source of truth. Use CountCached for the bounded
// staleness variant.
func (c *CachedRepository[T]) Count(ctx context.Context, opts ...repository.SelectOption) int {
	return c.base.Count(ctx, opts...)
}

// CountCached returns the count for the filter, served from cache within the
// count TTL. The filter is fingerprinted so equivalent option lists share one
// entry.
func (c *CachedRepository[T]) CountCached(ctx context.Context, opts ...repository.SelectOption) int {
	if _, inTx := repository.TxFrom(ctx); inTx {
		return c.base.Count(ctx, opts...)
	}

	digest := xxhash.Sum64String(repository.Fingerprint(opts...))
	key := c.keys.SerializeKey("count", c.table(), fmt.Sprintf("%016x", digest))

	if value, ok, err := c.store.Get(ctx, key); err != nil {
		c.warnCache(ctx, "cache read failed", key, err)
	} else if ok {
		if n, ok := toInt(value); ok {
			return n
		}
	}

	count := c.base.Count(ctx, opts...)
	entry := cache.Entry{
		TTL:  c.countTTL,
		Tags: c.entryTags(ctx, TableTag(c.table()), CountTag(c.table())),
	}
	if err := c.store.Set(ctx, key, count, entry); err != nil {
		c.warnCache(ctx, "cache write failed", key, err)
	}
	return count
}

// Transaction delegates; every repository call made inside fn carries the
// transaction in its context and therefore bypasses the cache.
func (c *CachedRepository[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...repository.TxOption) error {
	return c.base.Transaction(ctx, fn, opts...)
}

// WarmupCache pre-populates entity entries for the given identifiers, loading
// them in fixed-size batches. Identifiers that fail to load are skipped; the
// return value is the number of entries actually cached.
func (c *CachedRepository[T]) WarmupCache(ctx context.Context, ids []any) int {
	warmed := 0
	for start := 0; start < len(ids); start += c.warmupBatch {
		end := start + c.warmupBatch
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				return warmed
			}
			agg, found := c.base.FindOneByID(ctx, id)
			if !found {
				continue
			}
			if c.cacheAggregate(ctx, c.entityKey(id), id, agg) {
				warmed++
			}
		}
	}
	return warmed
}

// InvalidateAll drops every cached entry for this repository's table.
func (c *CachedRepository[T]) InvalidateAll(ctx context.Context) {
	c.invalidate(ctx, TableTag(c.table()), CountTag(c.table()))
}

func (c *CachedRepository[T]) table() string {
	return c.base.Definition().Table
}

func (c *CachedRepository[T]) entityKey(id any) string {
	return c.keys.SerializeKey("find_one_by_id", c.table(), id)
}

// decodeRecord maps a cached persistence record back to the domain type. The
// shared store hands records back as plain maps after decoding.
func (c *CachedRepository[T]) decodeRecord(value any) (T, bool) {
	var zero T
	var rec repository.Record
	switch v := value.(type) {
	case repository.Record:
		rec = v
	case map[string]any:
		rec = repository.Record(v)
	default:
		return zero, false
	}
	agg, err := c.base.Definition().Mapper.ToDomain(rec)
	if err != nil {
		return zero, false
	}
	return agg, true
}

// cacheAggregate stores the aggregate's persistence record under key and
// reports whether it was cached.
func (c *CachedRepository[T]) cacheAggregate(ctx context.Context, key string, id any, aggregate T) bool {
	rec, err := c.base.Definition().Mapper.ToPersistence(aggregate)
	if err != nil {
		c.warnCache(ctx, "cache map failed", key, err)
		return false
	}
	entry := cache.Entry{
		TTL:  c.recordTTL,
		Tags: c.entryTags(ctx, TableTag(c.table()), EntityTag(c.table(), id)),
	}
	if err := c.store.Set(ctx, key, rec, entry); err != nil {
		c.warnCache(ctx, "cache write failed", key, err)
		return false
	}
	return true
}

// invalidateAggregates derives each aggregate's entity tag and invalidates it
// along with the count tag. An aggregate whose identifier cannot be derived
// widens the invalidation to the whole table rather than leaving a stale
// entry behind.
func (c *CachedRepository[T]) invalidateAggregates(ctx context.Context, aggregates ...T) {
	tags := []string{CountTag(c.table())}
	for _, agg := range aggregates {
		id, ok := c.idOf(agg)
		if !ok {
			tags = append(tags, TableTag(c.table()))
			continue
		}
		tags = append(tags, EntityTag(c.table(), id))
	}
	c.invalidate(ctx, tags...)
}

func (c *CachedRepository[T]) idOf(aggregate T) (any, bool) {
	rec, err := c.base.Definition().Mapper.ToPersistence(aggregate)
	if err != nil {
		return nil, false
	}
	id, ok := rec[c.base.Definition().IDColumn]
	if !ok || id == nil {
		id, ok = rec["id"]
	}
	return id, ok && id != nil
}

func (c *CachedRepository[T]) invalidate(ctx context.Context, tags ...string) {
	deduped := dedupeStrings(tags)
	if len(deduped) == 0 {
		return
	}
	if err := c.store.InvalidateTags(ctx, deduped); err != nil {
		c.logger.Warn("cache invalidation failed",
			"table", c.table(),
			"tags", deduped,
			"error", err.Error(),
		)
	}
}

// entryTags merges the decorator's own tags with any the caller attached via
// WithCacheTags.
func (c *CachedRepository[T]) entryTags(ctx context.Context, tags ...string) []string {
	return dedupeStrings(append(tags, cacheTagsFromContext(ctx)...))
}

func (c *CachedRepository[T]) warnCache(ctx context.Context, msg, key string, err error) {
	c.logger.Warn(msg,
		"table", c.table(),
		"key", key,
		"correlation_id", repository.CorrelationID(ctx),
		"error", err.Error(),
	)
}

// toInt normalizes the numeric kinds a shared store may hand back after
// decoding.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
