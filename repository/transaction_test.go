package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx implements pgx.Tx by embedding the interface and overriding what the
// transaction paths touch. Begin returns a nested fakeTx, mirroring pgx's
// savepoint behavior.
type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
	execSQL   []string
	commitErr error
	beginErr  error
	nested    *fakeTx
}

func (tx *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	if tx.beginErr != nil {
		return nil, tx.beginErr
	}
	if tx.nested == nil {
		tx.nested = &fakeTx{}
	}
	return tx.nested, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.commits++
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.rollbacks++
	return nil
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.execSQL = append(tx.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	var sawTx bool
	err := repo.Transaction(context.Background(), func(ctx context.Context) error {
		_, sawTx = TxFrom(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if !sawTx {
		t.Error("fn context did not carry the open transaction")
	}
	if pool.tx.commits != 1 {
		t.Errorf("commits = %d, want 1", pool.tx.commits)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	wantErr := errors.New("business rule violated")
	err := repo.Transaction(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want the fn error unchanged", err)
	}
	if pool.tx.commits != 0 {
		t.Errorf("commits = %d, want 0", pool.tx.commits)
	}
	if pool.tx.rollbacks == 0 {
		t.Error("expected a rollback")
	}
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = repo.Transaction(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	}()

	if pool.tx.commits != 0 {
		t.Errorf("commits = %d, want 0", pool.tx.commits)
	}
	if pool.tx.rollbacks == 0 {
		t.Error("expected a rollback after the panic")
	}
}

func TestTransactionContextDoesNotLeak(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	ctx := context.Background()
	if err := repo.Transaction(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if _, ok := TxFrom(ctx); ok {
		t.Error("outer context must not carry the finished transaction")
	}
}

func TestNestedTransactionUsesSavepoint(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	err := repo.Transaction(context.Background(), func(outer context.Context) error {
		return repo.Transaction(outer, func(inner context.Context) error {
			tx, ok := TxFrom(inner)
			if !ok {
				t.Error("nested fn context did not carry a transaction")
			}
			if tx == pool.tx {
				t.Error("nested call must run on the savepoint, not the outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if pool.tx.nested == nil || pool.tx.nested.commits != 1 {
		t.Error("savepoint was not released")
	}
	if pool.tx.commits != 1 {
		t.Errorf("outer commits = %d, want 1", pool.tx.commits)
	}
}

func TestNestedTransactionErrorRollsBackSavepointOnly(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	wantErr := errors.New("inner failure")
	err := repo.Transaction(context.Background(), func(outer context.Context) error {
		if inner := repo.Transaction(outer, func(context.Context) error { return wantErr }); !errors.Is(inner, wantErr) {
			t.Errorf("nested error = %v, want %v", inner, wantErr)
		}
		// The enclosing transaction continues after the savepoint failed.
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if pool.tx.nested.commits != 0 {
		t.Error("failed savepoint must not be released")
	}
	if pool.tx.commits != 1 {
		t.Errorf("outer commits = %d, want 1", pool.tx.commits)
	}
}

func TestTransactionBeginFailureClassified(t *testing.T) {
	pool := &fakePool{beginErr: errors.New("pool exhausted")}
	repo := newTestRepo(t, pool)

	err := repo.Transaction(context.Background(), func(context.Context) error {
		t.Error("fn must not run when begin fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected begin failure to propagate")
	}
}

func TestTransactionCommitFailurePropagates(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	repo := newTestRepo(t, pool)

	err := repo.Transaction(context.Background(), func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected commit failure to propagate")
	}
}

func TestTransactionStatementTimeout(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	err := repo.Transaction(context.Background(), func(context.Context) error { return nil },
		WithStatementTimeout(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if len(pool.tx.execSQL) != 1 || !strings.Contains(pool.tx.execSQL[0], "statement_timeout = 1500") {
		t.Errorf("exec SQL = %v, want SET LOCAL statement_timeout = 1500", pool.tx.execSQL)
	}
}

func TestTransactionQuerierRoutesThroughAmbientTx(t *testing.T) {
	pool := &fakePool{}
	repo := newTestRepo(t, pool)

	err := repo.Transaction(context.Background(), func(ctx context.Context) error {
		if repo.querier(ctx) == Querier(pool) {
			t.Error("querier must resolve to the ambient transaction inside fn")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction returned error: %v", err)
	}
	if repo.querier(context.Background()) != Querier(pool) {
		t.Error("querier must resolve to the pool outside a transaction")
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-123")
	if got := CorrelationID(ctx); got != "req-123" {
		t.Errorf("CorrelationID = %q, want req-123", got)
	}
	if CorrelationID(context.Background()) == "" {
		t.Error("CorrelationID must generate a fallback identifier")
	}
}
