package repositories

import (
	"context"
	"fmt"
)

// ledgerLockKey is the advisory lock key every mutating transaction
// takes before touching ledger state. One key for the whole ledger
// serializes writers.
const ledgerLockKey = 7741528

// TxRunner executes a function inside a single serialized transaction.
// The ledger's mutations all go through it, so two concurrent writers
// never interleave and a failure rolls back every statement.
type TxRunner interface {
	RunSerialized(ctx context.Context, fn func(db Database) error) error
}

type txRunner struct {
	db TxBeginner
}

func NewTxRunner(db TxBeginner) TxRunner {
	return &txRunner{db: db}
}

func (r *txRunner) RunSerialized(ctx context.Context, fn func(db Database) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
