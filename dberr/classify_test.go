package dberr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// captureLogger records warn calls for asserting the security side channel.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(msg string, kv ...any) {}
func (l *captureLogger) Info(msg string, kv ...any)  {}
func (l *captureLogger) Error(msg string, kv ...any) {}

func (l *captureLogger) Warn(msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestClassifyNilError(t *testing.T) {
	if got := New().Classify("insert", nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"no rows sentinel", pgx.ErrNoRows, CategoryNotFound},
		{"wrapped no rows", fmt.Errorf("lookup: %w", pgx.ErrNoRows), CategoryNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, CategoryConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, CategoryIntegrity},
		{"not null", &pgconn.PgError{Code: "23502"}, CategoryIntegrity},
		{"bad text representation", &pgconn.PgError{Code: "22P02"}, CategoryIntegrity},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, CategoryGeneric},
		{"context canceled", context.Canceled, CategoryGeneric},
		{"deadline exceeded", context.DeadlineExceeded, CategoryGeneric},
		{"duplicate key text", errors.New(`duplicate key value violates unique constraint "users_pkey"`), CategoryConflict},
		{"already exists text", errors.New("relation already exists"), CategoryConflict},
		{"no rows text", errors.New("no rows in result set"), CategoryNotFound},
		{"plain failure", errors.New("connection refused"), CategoryGeneric},
	}

	c := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify("op", tc.err)
			if got.Category != tc.want {
				t.Errorf("category = %s, want %s", got.Category, tc.want)
			}
		})
	}
}

func TestClassifiedAnswersSentinels(t *testing.T) {
	c := New()

	conflict := c.Classify("insert", &pgconn.PgError{Code: "23505"})
	if !errors.Is(conflict, ErrConflict) {
		t.Error("conflict must satisfy errors.Is(ErrConflict)")
	}
	if errors.Is(conflict, ErrNotFound) {
		t.Error("conflict must not satisfy ErrNotFound")
	}

	missing := c.Classify("find", pgx.ErrNoRows)
	if !errors.Is(missing, ErrNotFound) {
		t.Error("not-found must satisfy errors.Is(ErrNotFound)")
	}
	if !IsNotFound(missing) || IsConflict(missing) {
		t.Error("helper predicates disagree with the category")
	}
}

func TestClassifiedUnwrapKeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "23505", Message: "dup"}
	cl := New().Classify("insert", cause)

	var pgErr *pgconn.PgError
	if !errors.As(cl, &pgErr) {
		t.Fatal("errors.As must reach the wrapped PgError")
	}
	if pgErr.Code != "23505" {
		t.Errorf("code = %s", pgErr.Code)
	}
}

func TestClassifyProductionMessages(t *testing.T) {
	c := New(WithProduction(true))

	cases := []struct {
		err  error
		want string
	}{
		{&pgconn.PgError{Code: "23505", Message: `duplicate key in relation "users"`}, "resource already exists"},
		{pgx.ErrNoRows, "entity not found"},
		{&pgconn.PgError{Code: "23503", Message: `fk violation on table "orders"`}, "data integrity violation"},
		{errors.New(`connect to postgres://app:hunter2@db:5432 failed`), "internal database error"},
	}
	for _, tc := range cases {
		if got := c.Classify("op", tc.err).Error(); got != tc.want {
			t.Errorf("message = %q, want %q", got, tc.want)
		}
	}
}

func TestClassifyDevelopmentMessageIsSanitized(t *testing.T) {
	c := New()
	cl := c.Classify("insert", errors.New(`duplicate key violates constraint "users_email_key" password=hunter2`))

	msg := cl.Error()
	if strings.Contains(msg, "users_email_key") {
		t.Errorf("message leaked the constraint name: %q", msg)
	}
	if strings.Contains(msg, "hunter2") {
		t.Errorf("message leaked the credential: %q", msg)
	}
}

func TestClassifySecuritySideChannel(t *testing.T) {
	logger := &captureLogger{}
	c := New(WithLogger(logger))

	cl := c.Classify("find_all", errors.New(`syntax error near "UNION SELECT * FROM pg_catalog.pg_tables"`))
	if cl.Signature == "" {
		t.Fatal("expected an attack signature match")
	}
	if cl.Category != CategoryGeneric {
		t.Errorf("signature match must not change the category, got %s", cl.Category)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want exactly one alert", logger.warns)
	}
}

func TestClassifyNoSideChannelForCleanErrors(t *testing.T) {
	logger := &captureLogger{}
	c := New(WithLogger(logger))

	if cl := c.Classify("insert", errors.New("connection refused")); cl.Signature != "" {
		t.Errorf("unexpected signature %q", cl.Signature)
	}
	if len(logger.warns) != 0 {
		t.Errorf("unexpected alerts: %v", logger.warns)
	}
}

func TestLogLevel(t *testing.T) {
	cases := []struct {
		cat  Category
		want string
	}{
		{CategoryConflict, "warn"},
		{CategoryNotFound, "warn"},
		{CategoryIntegrity, "error"},
		{CategoryGeneric, "error"},
	}
	for _, tc := range cases {
		cl := &Classified{Category: tc.cat}
		if got := cl.LogLevel(); got != tc.want {
			t.Errorf("LogLevel(%s) = %s, want %s", tc.cat, got, tc.want)
		}
	}
}
