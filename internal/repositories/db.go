package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Repositories run against it so a service can point them at the pool
// for plain reads or at its own transaction for mutations.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions; satisfied by *pgxpool.Pool and by
// pgxmock pools in tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrInsufficientFunds is returned by WalletRepository.Debit when the
// payer's balance cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")
