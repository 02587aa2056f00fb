package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// transactionContextKey is the context key for storing transactions
type transactionContextKey struct{}

// TransactionManager implements the TransactionManager interface
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		logger: logger,
	}
}

// Begin starts a new transaction
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}

	tm.logger.Debug("transaction started")

	tx := &Transaction{
		tx:     sqlTx,
		logger: tm.logger,
	}
	tx.ctx = context.WithValue(ctx, transactionContextKey{}, tx)
	return tx, nil
}

// InTransaction executes a function within a transaction.
// Nested calls reuse the transaction already carried by ctx. A panic in fn
// rolls the transaction back and is re-raised.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if tx, ok := GetTransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Transaction implements the Transaction interface
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Context returns the context carrying this transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// GetTransactionFromContext retrieves a transaction from the context if available
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(repositories.Transaction)
	return tx, ok
}

// Executor is an interface that can execute queries (both *sql.DB and *sql.Tx)
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool otherwise
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := GetTransactionFromContext(ctx); ok {
		if sqlTx, ok := tx.(*Transaction); ok {
			return sqlTx.tx
		}
	}
	return db.DB
}
