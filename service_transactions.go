package datagate

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// withTransaction runs fn inside a database transaction with automatic
// commit/rollback. An enclosing *dbkit.Tx gets a savepoint. Handles that
// are neither a DBKit nor a Tx run fn directly.
func withTransaction(ctx context.Context, db dbkit.IDB, fn func(db dbkit.IDB) error) error {
	switch d := db.(type) {
	case *dbkit.Tx:
		return d.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	case *dbkit.DBKit:
		return d.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	default:
		return fn(db)
	}
}

// withReadOnlyTransaction runs fn inside a read-only transaction so that
// multi-query loads see one consistent snapshot. Nested calls reuse the
// enclosing transaction.
func withReadOnlyTransaction(ctx context.Context, db dbkit.IDB, fn func(db dbkit.IDB) error) error {
	if d, ok := db.(*dbkit.DBKit); ok {
		return d.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	}
	return fn(db)
}

// Transaction executes fn within a database transaction. If fn returns an
// error, the transaction is rolled back. Otherwise, it's committed.
//
// Example:
//
//	err := service.Transaction(ctx, func(db dbkit.IDB) error {
//	    _, err := db.NewInsert().Model(&invoice).Exec(ctx)
//	    return err
//	})
func (s *Service) Transaction(ctx context.Context, fn func(db dbkit.IDB) error) error {
	return withTransaction(ctx, s.db, fn)
}

// ReadOnlyTransaction executes fn within a read-only database transaction.
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(db dbkit.IDB) error) error {
	return withReadOnlyTransaction(ctx, s.db, fn)
}
