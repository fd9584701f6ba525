package database

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Transaction wraps a GORM transaction with commit/rollback semantics.
type Transaction struct {
	tx       *gorm.DB
	finished bool
}

// TxOption configures a transaction started by NewTransaction.
// The last option wins.
type TxOption func(Database) *sql.TxOptions

// Serializable asks for the strongest isolation the backend offers.
func Serializable() TxOption {
	return Database.SerializableOptions
}

// NewTransaction starts a new database transaction.
func NewTransaction(ctx context.Context, db Database, options ...TxOption) (Transaction, error) {
	var opts *sql.TxOptions
	for _, option := range options {
		opts = option(db)
	}

	var tx *gorm.DB
	if opts != nil {
		tx = db.Session(ctx).Begin(opts)
	} else {
		tx = db.Session(ctx).Begin()
	}
	if tx.Error != nil {
		return Transaction{}, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return Transaction{tx: tx}, nil
}

// Session returns the transaction session for executing queries.
func (t Transaction) Session() *gorm.DB {
	return t.tx
}

// Commit commits the transaction. Committing twice is a no-op.
func (t *Transaction) Commit() error {
	if t.finished {
		return nil
	}
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.finished = true
	return nil
}

// Rollback rolls back the transaction if not already finished.
func (t *Transaction) Rollback() error {
	if t.finished {
		return nil
	}
	if err := t.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	t.finished = true
	return nil
}

// WithTransaction executes fn within a transaction, committing on success or
// rolling back on error.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error, options ...TxOption) error {
	txn, err := NewTransaction(ctx, db, options...)
	if err != nil {
		return err
	}

	defer func() {
		if !txn.finished {
			_ = txn.Rollback()
		}
	}()

	if err := fn(txn.Session()); err != nil {
		return err
	}

	return txn.Commit()
}
