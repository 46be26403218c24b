package repository

import (
	"context"
	"fmt"
	"sort"
)

// Record is the flat, column-by-column representation of an aggregate.
// A key that is present with a nil value maps to SQL NULL; a key that is
// absent is treated as undefined and is never written.
type Record map[string]any

// Columns returns the defined column names in sorted order so statement
// generation stays deterministic across runs.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for name := range r {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Mapper translates between a domain aggregate and its persistence record.
// Each entity module supplies one; the repository never inspects aggregate
// internals itself.
type Mapper[T any] interface {
	ToPersistence(aggregate T) (Record, error)
	ToDomain(record Record) (T, error)
}

// Event is a single pending domain event drained from an aggregate.
type Event struct {
	Name    string
	Payload any
}

// EventCarrier is implemented by aggregates that queue domain events.
// PullEvents returns the queued events and clears the queue.
type EventCarrier interface {
	PullEvents() []Event
}

// Validator is implemented by aggregates that enforce business invariants
// beyond what the record schema can express.
type Validator interface {
	Validate() error
}

// EventPublisher flushes drained events to whatever bus the embedding
// application uses. The repository invokes it only after a write succeeded.
type EventPublisher func(ctx context.Context, events []Event)

// Definition binds a repository to exactly one table, record schema, and
// mapper for its lifetime. Table and column names must be compile-time
// constants owned by the entity module, never request data.
type Definition[T any] struct {
	Table    string
	IDColumn string
	Schema   *Schema
	Mapper   Mapper[T]
}

func (d Definition[T]) idColumn() string {
	if d.IDColumn == "" {
		return "id"
	}
	return d.IDColumn
}

func (d Definition[T]) validate() error {
	if d.Table == "" {
		return fmt.Errorf("repository: definition requires a table name")
	}
	if d.Mapper == nil {
		return fmt.Errorf("repository: definition requires a mapper")
	}
	return nil
}
