package repository_test

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/testutil"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func grantFor(walletID, txnID string, amount int64) repository.Grant {
	return repository.Grant{
		WalletID:          walletID,
		Type:              model.WalletTxTypeCreditPurchase,
		Amount:            amount,
		RelatedEntityID:   txnID,
		RelatedEntityType: model.RelatedEntityPaymentTransaction,
		RecordedByUserID:  "user-1",
		Notes:             "test grant",
	}
}

func TestWalletGrantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWalletRepository(testutil.NewDB(t))

	userID := "user-1"
	wallet := &model.TokenWallet{UserID: &userID, Balance: 100}
	require.NoError(t, repo.Create(ctx, wallet))
	require.NotEmpty(t, wallet.WalletID)
	require.Equal(t, model.WalletCurrencyAIToken, wallet.Currency)

	entry, created, err := repo.Grant(ctx, grantFor(wallet.WalletID, "T1", 500))
	require.NoError(t, err)
	require.True(t, created)
	require.EqualValues(t, 600, entry.BalanceAfter)

	again, created, err := repo.Grant(ctx, grantFor(wallet.WalletID, "T1", 500))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, entry.ID, again.ID)
	require.EqualValues(t, 600, again.BalanceAfter)

	stored, err := repo.FindByID(ctx, wallet.WalletID)
	require.NoError(t, err)
	require.EqualValues(t, 600, stored.Balance)

	count, err := repo.CountGrants(ctx, "T1", model.RelatedEntityPaymentTransaction)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestWalletGrantConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWalletRepository(testutil.NewDB(t))

	userID := "user-1"
	wallet := &model.TokenWallet{UserID: &userID}
	require.NoError(t, repo.Create(ctx, wallet))

	var group errgroup.Group
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			_, _, err := repo.Grant(ctx, grantFor(wallet.WalletID, "T1", 250))
			return err
		})
	}
	require.NoError(t, group.Wait())

	stored, err := repo.FindByID(ctx, wallet.WalletID)
	require.NoError(t, err)
	require.EqualValues(t, 250, stored.Balance)

	count, err := repo.CountGrants(ctx, "T1", model.RelatedEntityPaymentTransaction)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestWalletGrantMissingWalletRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWalletRepository(testutil.NewDB(t))

	_, _, err := repo.Grant(ctx, grantFor("no-such-wallet", "T1", 100))
	require.Error(t, err)
	require.True(t, repository.ErrNotFound.Has(err))

	count, err := repo.CountGrants(ctx, "T1", model.RelatedEntityPaymentTransaction)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestWalletFindForContext(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWalletRepository(testutil.NewDB(t))

	userID, orgID := "user-1", "org-1"
	personal := &model.TokenWallet{UserID: &userID}
	org := &model.TokenWallet{OrganizationID: &orgID}
	require.NoError(t, repo.Create(ctx, personal))
	require.NoError(t, repo.Create(ctx, org))

	found, err := repo.FindForContext(ctx, userID, nil)
	require.NoError(t, err)
	require.Equal(t, personal.WalletID, found.WalletID)

	found, err = repo.FindForContext(ctx, userID, &orgID)
	require.NoError(t, err)
	require.Equal(t, org.WalletID, found.WalletID)

	_, err = repo.FindForContext(ctx, "user-2", nil)
	require.True(t, repository.ErrNotFound.Has(err))
}
