package repository

import (
	"fmt"
	"strings"
)

// OrderDirection constrains ORDER BY directions to the two valid keywords so
// direction strings are never interpolated from caller input verbatim.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

func (d OrderDirection) normalize() OrderDirection {
	if strings.EqualFold(string(d), string(OrderDesc)) {
		return OrderDesc
	}
	return OrderAsc
}

// selectQuery accumulates the optional pieces of a SELECT or COUNT statement.
type selectQuery struct {
	where     string
	whereArgs []any
	orderBy   string
	orderDir  OrderDirection
	limit     int
	offset    int
	hasLimit  bool
}

// SelectOption customizes read queries. Fragments and column names must come
// from the entity module, never from end-user request data.
type SelectOption func(*selectQuery)

// WithWhere appends a parameterized filter fragment. Use ? placeholders; the
// builder renumbers them into the statement's positional parameters.
func WithWhere(fragment string, args ...any) SelectOption {
	return func(q *selectQuery) {
		q.where = fragment
		q.whereArgs = args
	}
}

// WithOrderBy sets the sort column and direction.
func WithOrderBy(column string, dir OrderDirection) SelectOption {
	return func(q *selectQuery) {
		q.orderBy = column
		q.orderDir = dir.normalize()
	}
}

func withLimitOffset(limit, offset int) SelectOption {
	return func(q *selectQuery) {
		q.limit = limit
		q.offset = offset
		q.hasLimit = true
	}
}

func applySelectOptions(opts []SelectOption) selectQuery {
	var q selectQuery
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Fingerprint renders the applied options into a canonical string. The cache
// layer hashes it to key cacheable counts; it is not SQL.
func Fingerprint(opts ...SelectOption) string {
	q := applySelectOptions(opts)
	return fmt.Sprintf("w=%s|a=%v|o=%s %s", q.where, q.whereArgs, q.orderBy, q.orderDir.normalize())
}

// Pagination bounds a paginated read.
type Pagination struct {
	Limit  int
	Offset int
	Page   int
}

// Page is the result of a paginated read. Count comes from a separate COUNT
// query and may lag Data under concurrent writes; that race is accepted and
// bounded, not a bug.
type Page[T any] struct {
	Data  []T
	Count int
	Limit int
	Page  int
}
