package repository_test

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/testutil"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func pendingTransaction(id string, gatewayTxID *string) *model.PaymentTransaction {
	return &model.PaymentTransaction{
		ID:                   id,
		UserID:               "user-1",
		TargetWalletID:       "wallet-1",
		PaymentGatewayID:     model.GatewayStripe,
		GatewayTransactionID: gatewayTxID,
		PurchaseMode:         model.PurchaseModeOneTime,
		AmountRequested:      decimal.RequireFromString("9.99"),
		Currency:             "usd",
		TokensToAward:        500,
		Status:               model.PaymentStatusPending,
		Metadata:             datatypes.JSONMap{"itemId": "price_pro"},
	}
}

func TestPaymentTransactionTransition(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentTransactionRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, pendingTransaction("T1", nil)))

	moved, err := repo.Transition(ctx, "T1", model.PaymentStatusCompleted, map[string]interface{}{
		"gateway_transaction_id": "cs_1",
	})
	require.NoError(t, err)
	require.True(t, moved)

	// forward only: a completed transaction never fails or expires
	moved, err = repo.Transition(ctx, "T1", model.PaymentStatusFailed, nil)
	require.NoError(t, err)
	require.False(t, moved)

	moved, err = repo.Transition(ctx, "T1", model.PaymentStatusCompleted, nil)
	require.NoError(t, err)
	require.False(t, moved)

	moved, err = repo.Transition(ctx, "T1", model.PaymentStatusTokenAwardFailed, nil)
	require.NoError(t, err)
	require.True(t, moved)

	txn, err := repo.FindByID(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusTokenAwardFailed, txn.Status)
	require.Equal(t, "cs_1", *txn.GatewayTransactionID)
	require.True(t, decimal.RequireFromString("9.99").Equal(txn.AmountRequested))

	byGateway, err := repo.FindByGatewayTransactionID(ctx, model.GatewayStripe, "cs_1")
	require.NoError(t, err)
	require.Equal(t, "T1", byGateway.ID)
}

func TestPaymentTransactionTransitionUnknownRow(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentTransactionRepository(testutil.NewDB(t))

	moved, err := repo.Transition(ctx, "missing", model.PaymentStatusCompleted, nil)
	require.NoError(t, err)
	require.False(t, moved)

	_, err = repo.FindByID(ctx, "missing")
	require.True(t, repository.ErrNotFound.Has(err))
}

func TestPaymentTransactionCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentTransactionRepository(testutil.NewDB(t))

	invoiceID := "in_1"
	stored, created, err := repo.CreateIfAbsent(ctx, pendingTransaction("R1", &invoiceID))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "R1", stored.ID)

	stored, created, err = repo.CreateIfAbsent(ctx, pendingTransaction("R2", &invoiceID))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "R1", stored.ID)

	_, err = repo.FindByID(ctx, "R2")
	require.True(t, repository.ErrNotFound.Has(err))
}

func TestPaymentTransactionAttachGatewayTransactionID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentTransactionRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, pendingTransaction("T1", nil)))

	attached, err := repo.AttachGatewayTransactionID(ctx, "T1", "cs_1")
	require.NoError(t, err)
	require.True(t, attached)

	attached, err = repo.AttachGatewayTransactionID(ctx, "T1", "cs_2")
	require.NoError(t, err)
	require.False(t, attached)

	txn, err := repo.FindByID(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, "cs_1", *txn.GatewayTransactionID)
}
