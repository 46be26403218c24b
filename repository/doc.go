// Package repository is the generic transactional data-access core: one code
// path through which many independent entity types persist to a relational
// store.
//
// # Overview
//
// A repository is bound to exactly one table, record schema, and mapper for
// its lifetime. The entity module supplies the binding as a Definition:
//
//	def := repository.Definition[User]{
//		Table:  "users",
//		Schema: repository.NewSchema().
//			Field("id", validation.Required).
//			Field("email", validation.Required, is.Email),
//		Mapper: userMapper{},
//	}
//	repo, err := repository.New(pool, def)
//
// Reads return empty or negative results on failure instead of errors; write
// failures are classified by the dberr package and returned, with uniqueness
// violations answering errors.Is(err, dberr.ErrConflict) and updates of
// missing rows answering errors.Is(err, dberr.ErrNotFound).
//
// # Transactions
//
// Transaction publishes the open transaction into the context it hands to
// the closure, so every nested repository call reuses the same connection:
//
//	err := repo.Transaction(ctx, func(ctx context.Context) error {
//		if err := repo.Insert(ctx, user); err != nil {
//			return err
//		}
//		return other.Insert(ctx, profile) // same connection, same snapshot
//	}, repository.WithIsolationLevel(pgx.Serializable))
//
// A nested Transaction call inside the closure opens a savepoint rather than
// a second top-level transaction. The context slot is scoped to the call and
// cannot leak a connection on any exit path.
//
// # Domain events
//
// Aggregates that implement EventCarrier have their queued events drained and
// handed to the configured EventPublisher strictly after a write succeeds.
//
// # See Also
//
// Package repositorycache decorates a Repository with a cache-aside layer;
// package dberr owns error classification and log sanitization.
package repository
