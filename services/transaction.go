package services

import (
	"context"

	"github.com/upb/yapi/repositories"
)

// WithTransaction executes a function within a database transaction.
// fn receives the transaction context so repositories join the transaction.
// Automatically commits on success, rolls back on error.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithTransactionResult executes a function within a database transaction and returns a result.
// A ctx that already carries a transaction joins it instead of starting another.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var result T
	err := txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		var err error
		result, err = fn(ctx, tx)
		return err
	})
	return result, err
}
