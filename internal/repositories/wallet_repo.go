package repositories

import (
	"context"
	"errors"
	"time"

	"clearbill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type WalletRepository interface {
	WithTx(db Database) WalletRepository

	Ensure(ctx context.Context, userID uuid.UUID, now time.Time) error
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error
	Debit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error
}

type walletRepo struct {
	db Database
}

func NewWalletRepo(db Database) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) WithTx(db Database) WalletRepository {
	return &walletRepo{db: db}
}

// Ensure creates a zero-balance wallet for the user if none exists.
func (r *walletRepo) Ensure(ctx context.Context, userID uuid.UUID, now time.Time) error {
	query := `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userID, now)
	return err
}

func (r *walletRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&wallet.UserID, &wallet.Balance, &wallet.CreatedAt, &wallet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *walletRepo) Credit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error {
	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3
	`
	tag, err := r.db.Exec(ctx, query, amount, now, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Debit subtracts amount from the user's balance. The balance guard is
// part of the statement, so an uncovered debit affects zero rows and
// surfaces as ErrInsufficientFunds.
func (r *walletRepo) Debit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) error {
	query := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = $2
		WHERE user_id = $3 AND balance >= $1
	`
	tag, err := r.db.Exec(ctx, query, amount, now, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
