package services

import (
	"context"
	"fmt"

	"clearbill/internal/models"
	"clearbill/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// WalletServiceInterface is the deposit/balance surface of the value
// rail. Settlement itself runs inside the invoice service transaction.
type WalletServiceInterface interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type walletService struct {
	tx         repositories.TxRunner
	walletRepo repositories.WalletRepository
	clock      clockwork.Clock
}

func NewWalletService(tx repositories.TxRunner, walletRepo repositories.WalletRepository, clock clockwork.Clock) WalletServiceInterface {
	return &walletService{tx: tx, walletRepo: walletRepo, clock: clock}
}

func (s *walletService) Deposit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.clock.Now()
	err := s.tx.RunSerialized(ctx, func(db repositories.Database) error {
		wallets := s.walletRepo.WithTx(db)
		if err := wallets.Ensure(ctx, userID, now); err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}
		return wallets.Credit(ctx, userID, amount, now)
	})
	if err != nil {
		return nil, err
	}

	return s.walletRepo.Get(ctx, userID)
}

func (s *walletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.walletRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		// An account with no wallet row reads as zero balance.
		return &models.Wallet{UserID: userID}, nil
	}
	return wallet, nil
}
