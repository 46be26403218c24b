package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-core/dberr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the entity-agnostic persistence contract. Read operations
// never propagate failures: they log and return an empty or negative result.
// Write operations classify, log, and return their failures, because a
// silently failed write would corrupt caller assumptions about durability.
type Repository[T any] interface {
	FindOneByID(ctx context.Context, id any) (T, bool)
	FindAll(ctx context.Context, opts ...SelectOption) []T
	FindAllPaginated(ctx context.Context, p Pagination, opts ...SelectOption) Page[T]
	Insert(ctx context.Context, aggregates ...T) error
	Update(ctx context.Context, aggregate T) error
	Upsert(ctx context.Context, aggregate T) error
	Delete(ctx context.Context, aggregate T) (bool, error)
	DeleteByID(ctx context.Context, id any) (bool, error)
	Exists(ctx context.Context, id any) bool
	Count(ctx context.Context, opts ...SelectOption) int
	Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error
}

// Interface assertion to ensure SQLRepository implements Repository[T].
var _ Repository[any] = (*SQLRepository[any])(nil)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// SQLRepository is the SQL-backed Repository implementation, bound to one
// table, schema, and mapper for its lifetime.
type SQLRepository[T any] struct {
	pool       Pool
	def        Definition[T]
	logger     Logger
	classifier *dberr.Classifier
	publish    EventPublisher
	slowAfter  time.Duration
}

// Option configures an SQLRepository.
type Option[T any] func(*SQLRepository[T])

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger[T any](l Logger) Option[T] {
	return func(r *SQLRepository[T]) { r.logger = l }
}

// WithClassifier sets the error classifier. Defaults to a non-production
// classifier without a security logger.
func WithClassifier[T any](c *dberr.Classifier) Option[T] {
	return func(r *SQLRepository[T]) { r.classifier = c }
}

// WithEventPublisher sets the hook that flushes queued domain events after a
// successful write.
func WithEventPublisher[T any](p EventPublisher) Option[T] {
	return func(r *SQLRepository[T]) { r.publish = p }
}

// WithSlowQueryThreshold overrides the duration after which a round-trip is
// additionally logged as a warning.
func WithSlowQueryThreshold[T any](d time.Duration) Option[T] {
	return func(r *SQLRepository[T]) { r.slowAfter = d }
}

// New builds a repository from a pool handle and an entity definition.
func New[T any](pool Pool, def Definition[T], opts ...Option[T]) (*SQLRepository[T], error) {
	if pool == nil {
		return nil, fmt.Errorf("repository: pool is required")
	}
	if err := def.validate(); err != nil {
		return nil, err
	}

	r := &SQLRepository[T]{
		pool:      pool,
		def:       def,
		logger:    nopLogger{},
		slowAfter: defaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.classifier == nil {
		r.classifier = dberr.New(dberr.WithLogger(r.logger))
	}
	return r, nil
}

// Definition exposes the table/schema/mapper binding, primarily for the
// cache decorator.
func (r *SQLRepository[T]) Definition() Definition[T] {
	return r.def
}

// FindOneByID returns the aggregate for id. Absent rows and internal lookup
// failures both come back as (zero, false); the distinction is erased at this
// boundary on purpose and surfaces only in the logs.
func (r *SQLRepository[T]) FindOneByID(ctx context.Context, id any) (T, bool) {
	var zero T
	if err := r.def.Schema.ValidateID(id); err != nil {
		r.logger.Warn("invalid identifier", r.fields(ctx, "find_one_by_id")...)
		return zero, false
	}

	stmt := BuildSelectByID(r.def.Table, r.def.idColumn(), id)
	records, err := r.queryRecords(ctx, "find_one_by_id", stmt)
	if err != nil {
		r.swallowRead(ctx, "find_one_by_id", err)
		return zero, false
	}
	if len(records) == 0 {
		return zero, false
	}

	agg, err := r.def.Mapper.ToDomain(records[0])
	if err != nil {
		r.swallowRead(ctx, "find_one_by_id", err)
		return zero, false
	}
	return agg, true
}

// FindAll returns every matching aggregate. Failures yield an empty list.
func (r *SQLRepository[T]) FindAll(ctx context.Context, opts ...SelectOption) []T {
	stmt := BuildSelect(r.def.Table, opts...)
	records, err := r.queryRecords(ctx, "find_all", stmt)
	if err != nil {
		r.swallowRead(ctx, "find_all", err)
		return []T{}
	}
	return r.mapRecords(ctx, "find_all", records)
}

// FindAllPaginated runs a COUNT and a bounded SELECT against the same filter.
// The two queries do not share a snapshot, so Count may disagree with Data
// under concurrent writes; that window is accepted and bounded.
func (r *SQLRepository[T]) FindAllPaginated(ctx context.Context, p Pagination, opts ...SelectOption) Page[T] {
	count := r.Count(ctx, opts...)

	bounded := append(append([]SelectOption{}, opts...), withLimitOffset(p.Limit, p.Offset))
	stmt := BuildSelect(r.def.Table, bounded...)
	records, err := r.queryRecords(ctx, "find_all_paginated", stmt)
	if err != nil {
		r.swallowRead(ctx, "find_all_paginated", err)
		return Page[T]{Data: []T{}, Count: count, Limit: p.Limit, Page: p.Page}
	}

	return Page[T]{
		Data:  r.mapRecords(ctx, "find_all_paginated", records),
		Count: count,
		Limit: p.Limit,
		Page:  p.Page,
	}
}

// Insert validates and batches every aggregate into one multi-row statement.
// An empty batch is a no-op. Queued domain events are published only after
// the write succeeded.
func (r *SQLRepository[T]) Insert(ctx context.Context, aggregates ...T) error {
	if len(aggregates) == 0 {
		return nil
	}

	records := make([]Record, len(aggregates))
	for i, agg := range aggregates {
		rec, err := r.recordFor(agg, false)
		if err != nil {
			return err
		}
		records[i] = rec
	}

	stmt, err := BuildInsert(r.def.Table, records)
	if err != nil {
		return err
	}
	if _, err := r.execWrite(ctx, "insert", stmt); err != nil {
		return err
	}
	r.publishEvents(ctx, aggregates...)
	return nil
}

// Update writes every defined non-identifier column. Updating a row that does
// not exist is an error, not an upsert.
func (r *SQLRepository[T]) Update(ctx context.Context, aggregate T) error {
	rec, err := r.recordFor(aggregate, true)
	if err != nil {
		return err
	}
	id, ok := rec[r.def.idColumn()]
	if !ok {
		return fmt.Errorf("%w: record is missing column %q", ErrValidation, r.def.idColumn())
	}

	stmt, err := BuildUpdate(r.def.Table, r.def.idColumn(), rec, id)
	if err != nil {
		return err
	}
	tag, err := r.execWrite(ctx, "update", stmt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.failWrite(ctx, "update", pgx.ErrNoRows)
	}
	r.publishEvents(ctx, aggregate)
	return nil
}

// Upsert inserts or replaces by identifier and publishes events either way.
func (r *SQLRepository[T]) Upsert(ctx context.Context, aggregate T) error {
	rec, err := r.recordFor(aggregate, false)
	if err != nil {
		return err
	}
	stmt, err := BuildUpsert(r.def.Table, r.def.idColumn(), rec)
	if err != nil {
		return err
	}
	if _, err := r.execWrite(ctx, "upsert", stmt); err != nil {
		return err
	}
	r.publishEvents(ctx, aggregate)
	return nil
}

// Delete removes the aggregate's row and reports whether one was removed.
// Only validation failures propagate; deletion events are published only when
// a row actually went away.
func (r *SQLRepository[T]) Delete(ctx context.Context, aggregate T) (bool, error) {
	if v, ok := any(aggregate).(Validator); ok {
		if err := v.Validate(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	rec, err := r.def.Mapper.ToPersistence(aggregate)
	if err != nil {
		return false, fmt.Errorf("%w: map aggregate: %v", ErrValidation, err)
	}
	id, ok := rec[r.def.idColumn()]
	if !ok {
		return false, fmt.Errorf("%w: record is missing column %q", ErrValidation, r.def.idColumn())
	}

	removed, err := r.DeleteByID(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		r.publishEvents(ctx, aggregate)
	}
	return removed, nil
}

// DeleteByID removes one row by identifier. Driver failures are logged and
// reported as "nothing removed"; only identifier validation propagates.
func (r *SQLRepository[T]) DeleteByID(ctx context.Context, id any) (bool, error) {
	if err := r.def.Schema.ValidateID(id); err != nil {
		return false, err
	}

	stmt := BuildDelete(r.def.Table, r.def.idColumn(), id)
	start := time.Now()
	tag, err := r.querier(ctx).Exec(ctx, stmt.SQL, stmt.Args...)
	r.observe(ctx, "delete", start)
	if err != nil {
		r.swallowRead(ctx, "delete", err)
		return false, nil
	}
	return tag.RowsAffected() > 0, nil
}

// Exists probes for one identifier, returning false on any failure.
func (r *SQLRepository[T]) Exists(ctx context.Context, id any) bool {
	if err := r.def.Schema.ValidateID(id); err != nil {
		r.logger.Warn("invalid identifier", r.fields(ctx, "exists")...)
		return false
	}

	stmt := BuildExists(r.def.Table, r.def.idColumn(), id)
	start := time.Now()
	var exists bool
	err := r.querier(ctx).QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&exists)
	r.observe(ctx, "exists", start)
	if err != nil {
		r.swallowRead(ctx, "exists", err)
		return false
	}
	return exists
}

// Count returns the number of matching rows, or zero on any failure.
func (r *SQLRepository[T]) Count(ctx context.Context, opts ...SelectOption) int {
	stmt := BuildCount(r.def.Table, opts...)
	start := time.Now()
	var count int64
	err := r.querier(ctx).QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&count)
	r.observe(ctx, "count", start)
	if err != nil {
		r.swallowRead(ctx, "count", err)
		return 0
	}
	return int(count)
}

// recordFor validates the aggregate's business invariants, maps it, and
// validates the resulting record before any SQL is built.
func (r *SQLRepository[T]) recordFor(aggregate T, partial bool) (Record, error) {
	if v, ok := any(aggregate).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	rec, err := r.def.Mapper.ToPersistence(aggregate)
	if err != nil {
		return nil, fmt.Errorf("%w: map aggregate: %v", ErrValidation, err)
	}
	if partial {
		err = r.def.Schema.ValidatePartial(rec)
	} else {
		err = r.def.Schema.Validate(rec)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLRepository[T]) execWrite(ctx context.Context, op string, stmt Statement) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := r.querier(ctx).Exec(ctx, stmt.SQL, stmt.Args...)
	r.observe(ctx, op, start)
	if err != nil {
		return tag, r.failWrite(ctx, op, err)
	}
	return tag, nil
}

func (r *SQLRepository[T]) queryRecords(ctx context.Context, op string, stmt Statement) ([]Record, error) {
	start := time.Now()
	rows, err := r.querier(ctx).Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.observe(ctx, op, start)
	return records, nil
}

func (r *SQLRepository[T]) mapRecords(ctx context.Context, op string, records []Record) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		agg, err := r.def.Mapper.ToDomain(rec)
		if err != nil {
			r.swallowRead(ctx, op, err)
			return []T{}
		}
		out = append(out, agg)
	}
	return out
}

func (r *SQLRepository[T]) publishEvents(ctx context.Context, aggregates ...T) {
	if r.publish == nil {
		return
	}
	for _, agg := range aggregates {
		carrier, ok := any(agg).(EventCarrier)
		if !ok {
			continue
		}
		if events := carrier.PullEvents(); len(events) > 0 {
			r.publish(ctx, events)
		}
	}
}

// failWrite classifies, logs, and returns a write failure.
func (r *SQLRepository[T]) failWrite(ctx context.Context, op string, err error) error {
	cl := r.classifier.Classify(op, err)
	r.logClassified(ctx, cl)
	return cl
}

// swallowRead classifies and logs a read failure without propagating it.
func (r *SQLRepository[T]) swallowRead(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	cl := r.classifier.Classify(op, err)
	if cl.Category == dberr.CategoryNotFound {
		r.logger.Debug("row not found", r.fields(ctx, op)...)
		return
	}
	r.logClassified(ctx, cl)
}

func (r *SQLRepository[T]) logClassified(ctx context.Context, cl *dberr.Classified) {
	fields := append(r.fields(ctx, cl.Op), "category", string(cl.Category))
	if !r.classifier.Production() && cl.Cause != nil {
		fields = append(fields, "cause", dberr.SanitizeMessage(cl.Cause.Error()))
	}
	if cl.LogLevel() == "warn" {
		r.logger.Warn(cl.Message, fields...)
		return
	}
	r.logger.Error(cl.Message, fields...)
}

// observe emits the per-round-trip log line and the slow-query warning.
func (r *SQLRepository[T]) observe(ctx context.Context, op string, start time.Time) {
	elapsed := time.Since(start)
	fields := append(r.fields(ctx, op), "duration_ms", elapsed.Milliseconds())
	if elapsed >= r.slowAfter {
		r.logger.Warn("slow query", fields...)
	}
	r.logger.Debug("database operation", fields...)
}

func (r *SQLRepository[T]) fields(ctx context.Context, op string) []any {
	return []any{"op", op, "table", r.def.Table, "correlation_id", CorrelationID(ctx)}
}

func scanRecord(rows pgx.Rows) (Record, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	rec := make(Record, len(fields))
	for i, fd := range fields {
		if i < len(values) {
			rec[fd.Name] = values[i]
		}
	}
	return rec, nil
}
