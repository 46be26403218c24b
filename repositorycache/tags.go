package repositorycache

import (
	"context"
	"fmt"
)

// Tag namespaces. A tag groups cache entries that go stale together: every
// row of a table, one entity id, or the table's cached counts.
const (
	tablePrefix  = "tbl"
	entityPrefix = "ent"
	countPrefix  = "cnt"
)

// TableTag labels every cached entry for a table, for bulk invalidation.
func TableTag(table string) string {
	return tablePrefix + "::" + toSnake(table)
}

// EntityTag labels the cached entries holding one entity's record.
func EntityTag(table string, id any) string {
	return fmt.Sprintf("%s::%s::%v", entityPrefix, toSnake(table), id)
}

// CountTag labels the cached counts for a table, which every write
// invalidates regardless of which entity it touched.
func CountTag(table string) string {
	return countPrefix + "::" + toSnake(table)
}

type cacheTagsContextKey struct{}

// WithCacheTags attaches additional cache tags to the context. Reads served
// through the decorator register their entries under these tags too, so a
// caller can group entries across tables and invalidate them as one unit.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
