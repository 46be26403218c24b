// Package dberr classifies raw driver errors into a fixed taxonomy and
// produces log-safe representations of them. Every database failure in this
// module passes through here before it is logged, returned, or swallowed.
package dberr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Category is the functional classification of a driver error.
type Category string

const (
	CategoryGeneric   Category = "generic"
	CategoryConflict  Category = "unique_constraint_violation"
	CategoryNotFound  Category = "entity_not_found"
	CategoryIntegrity Category = "data_integrity"
)

// Sentinels callers test with errors.Is. Classified errors answer for them
// based on their category.
var (
	ErrConflict  = errors.New("unique constraint violation")
	ErrNotFound  = errors.New("entity not found")
	ErrIntegrity = errors.New("data integrity violation")
)

// Classified wraps a raw driver error with its category and a sanitized
// message. Error() never exposes the raw driver text; the cause is retained
// for structured logging outside production.
type Classified struct {
	Category  Category
	Op        string
	Message   string
	Cause     error
	Signature string
}

func (e *Classified) Error() string {
	return e.Message
}

func (e *Classified) Unwrap() error {
	return e.Cause
}

func (e *Classified) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Category == CategoryConflict
	case ErrNotFound:
		return e.Category == CategoryNotFound
	case ErrIntegrity:
		return e.Category == CategoryIntegrity
	}
	return false
}

// Logger is the minimal structured logger the classifier needs for its
// security side channel.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Classifier maps driver errors to categories. With Production set it
// suppresses raw driver detail entirely; otherwise messages are sanitized
// and kept.
type Classifier struct {
	production bool
	logger     Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithProduction toggles the stricter production redaction mode.
func WithProduction(on bool) Option {
	return func(c *Classifier) { c.production = on }
}

// WithLogger sets the logger used for security side-channel alerts.
func WithLogger(l Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a Classifier with the given options applied.
func New(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Production reports whether the classifier runs in production mode.
func (c *Classifier) Production() bool {
	return c.production
}

// Classify maps a raw driver error into the taxonomy. The security scan over
// the raw text runs regardless of category and only raises a side-channel
// alert; it never changes the classification.
func (c *Classifier) Classify(op string, err error) *Classified {
	if err == nil {
		return nil
	}

	out := &Classified{
		Category: categorize(err),
		Op:       op,
		Cause:    err,
	}
	out.Message = c.message(out.Category, err)

	if sig := matchSignature(err.Error()); sig != "" {
		out.Signature = sig
		if c.logger != nil {
			c.logger.Warn("attack signature detected in database error",
				"op", op, "signature", sig, "category", string(out.Category))
		}
	}
	return out
}

// LogLevel names the level a classified error should be logged at. Conflicts
// and absent rows are expected outcomes; everything else is an error.
func (e *Classified) LogLevel() string {
	switch e.Category {
	case CategoryConflict, CategoryNotFound:
		return "warn"
	default:
		return "error"
	}
}

func categorize(err error) Category {
	if errors.Is(err, pgx.ErrNoRows) {
		return CategoryNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "23505":
			return CategoryConflict
		case strings.HasPrefix(code, "23"), strings.HasPrefix(code, "22"):
			return CategoryIntegrity
		default:
			return CategoryGeneric
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryGeneric
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return CategoryConflict
	case strings.Contains(msg, "no rows in result set"):
		return CategoryNotFound
	default:
		return CategoryGeneric
	}
}

func (c *Classifier) message(cat Category, err error) string {
	if c.production {
		switch cat {
		case CategoryConflict:
			return "resource already exists"
		case CategoryNotFound:
			return "entity not found"
		case CategoryIntegrity:
			return "data integrity violation"
		default:
			return "internal database error"
		}
	}
	return SanitizeMessage(err.Error())
}

// IsConflict reports whether err classifies as a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err classifies as a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
