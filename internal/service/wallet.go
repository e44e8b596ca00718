package service

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"

	"go.uber.org/zap"
)

// WalletService is the token wallet ledger as seen by payment flows.
type WalletService interface {
	FindForContext(ctx context.Context, userID string, organizationID *string) (*model.TokenWallet, error)
	// AwardForPayment credits amount tokens to the transaction's target
	// wallet. The grant is keyed by the transaction id, so repeated calls
	// credit at most once.
	AwardForPayment(ctx context.Context, txn *model.PaymentTransaction, amount int64, notes string) (*model.TokenWalletTransaction, error)
}

type walletServiceImpl struct {
	log     *zap.Logger
	wallets repository.WalletRepository
}

func NewWalletService(log *zap.Logger, wallets repository.WalletRepository) WalletService {
	return &walletServiceImpl{
		log:     log,
		wallets: wallets,
	}
}

func (s *walletServiceImpl) FindForContext(ctx context.Context, userID string, organizationID *string) (*model.TokenWallet, error) {
	return s.wallets.FindForContext(ctx, userID, organizationID)
}

func (s *walletServiceImpl) AwardForPayment(ctx context.Context, txn *model.PaymentTransaction, amount int64, notes string) (*model.TokenWalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrValidation.New("token award must be positive, got %d", amount)
	}
	if txn.TargetWalletID == "" {
		return nil, ErrValidation.New("payment transaction %s has no target wallet", txn.ID)
	}

	entry, created, err := s.wallets.Grant(ctx, repository.Grant{
		WalletID:          txn.TargetWalletID,
		Type:              model.WalletTxTypeCreditPurchase,
		Amount:            amount,
		RelatedEntityID:   txn.ID,
		RelatedEntityType: model.RelatedEntityPaymentTransaction,
		RecordedByUserID:  txn.UserID,
		Notes:             notes,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		s.log.Info("token grant already recorded",
			zap.String("transaction_id", txn.ID),
			zap.String("wallet_tx_id", entry.ID),
		)
		return entry, nil
	}

	s.log.Info("tokens granted",
		zap.String("transaction_id", txn.ID),
		zap.String("wallet_id", txn.TargetWalletID),
		zap.Int64("amount", amount),
		zap.Int64("balance_after", entry.BalanceAfter),
	)
	return entry, nil
}
