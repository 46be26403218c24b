package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of statement execution shared by the pool and an open
// transaction. Repositories run every statement through it, so a call made
// inside Transaction transparently reuses the transaction's connection.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the shared connection pool handle. *pgxpool.Pool satisfies it.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txContextKey struct{}
type correlationContextKey struct{}

// WithTx publishes an open transaction into the context so nested repository
// calls share its connection instead of claiming a second one from the pool.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFrom returns the ambient transaction, if one is active.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// WithCorrelationID attaches a correlation identifier for the unit of work.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationContextKey{}, id)
}

// CorrelationID returns the ambient correlation identifier, generating a
// fresh one when the context carries none so logging never fails.
func CorrelationID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(correlationContextKey{}).(string); ok && id != "" {
			return id
		}
	}
	return uuid.NewString()
}

type txConfig struct {
	isoLevel pgx.TxIsoLevel
	timeout  time.Duration
}

// TxOption customizes an outermost Transaction call. Options are ignored on
// nested calls, which join the enclosing transaction.
type TxOption func(*txConfig)

// WithIsolationLevel sets the transaction isolation level, e.g.
// pgx.Serializable or pgx.RepeatableRead.
func WithIsolationLevel(level pgx.TxIsoLevel) TxOption {
	return func(c *txConfig) { c.isoLevel = level }
}

// WithStatementTimeout aborts any statement in the transaction that runs
// longer than d. The abort surfaces as a classified error and rolls the
// transaction back.
func WithStatementTimeout(d time.Duration) TxOption {
	return func(c *txConfig) { c.timeout = d }
}

// Transaction runs fn inside a database transaction. The open transaction is
// published into fn's context, so nested repository calls reuse the same
// connection; a nested Transaction call opens a savepoint rather than a
// second top-level transaction. Commit happens on normal return, rollback on
// error or panic, and the context slot never outlives the call on any path.
func (r *SQLRepository[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	if outer, ok := TxFrom(ctx); ok {
		return r.savepoint(ctx, outer, fn)
	}

	var cfg txConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if id, ok := ctx.Value(correlationContextKey{}).(string); !ok || id == "" {
		ctx = WithCorrelationID(ctx, uuid.NewString())
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: cfg.isoLevel})
	if err != nil {
		return r.failWrite(ctx, "transaction.begin", err)
	}
	// Rollback after a successful commit is a no-op; the deferred call keeps
	// the connection from leaking on error and panic paths alike.
	defer func() { _ = tx.Rollback(ctx) }()

	if cfg.timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", cfg.timeout.Milliseconds())); err != nil {
			return r.failWrite(ctx, "transaction.timeout", err)
		}
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return r.failWrite(ctx, "transaction.commit", err)
	}
	return nil
}

// savepoint nests fn inside the enclosing transaction. pgx implements
// Tx.Begin on an open transaction as SAVEPOINT / RELEASE.
func (r *SQLRepository[T]) savepoint(ctx context.Context, outer pgx.Tx, fn func(ctx context.Context) error) error {
	inner, err := outer.Begin(ctx)
	if err != nil {
		return r.failWrite(ctx, "transaction.savepoint", err)
	}
	defer func() { _ = inner.Rollback(ctx) }()

	if err := fn(WithTx(ctx, inner)); err != nil {
		return err
	}
	if err := inner.Commit(ctx); err != nil {
		return r.failWrite(ctx, "transaction.release", err)
	}
	return nil
}

// querier resolves the execution handle for the current unit of work: the
// ambient transaction when one is active, the shared pool otherwise.
func (r *SQLRepository[T]) querier(ctx context.Context) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return r.pool
}
