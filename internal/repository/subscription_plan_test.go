package repository_test

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/testutil"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func plan(priceID, productID string, amount string) *model.SubscriptionPlan {
	tokens := int64(500)
	return &model.SubscriptionPlan{
		ID:              uuid.NewString(),
		StripePriceID:   priceID,
		StripeProductID: productID,
		ItemIDInternal:  priceID,
		Name:            "Pro",
		Description:     datatypes.NewJSONType(model.PlanDescription{Subtitle: "Pro", Features: []string{"a"}}),
		Amount:          decimal.RequireFromString(amount),
		Currency:        "usd",
		PlanType:        model.PlanTypeOneTimePurchase,
		Active:          true,
		TokensToAward:   &tokens,
	}
}

func TestSubscriptionPlanUpsertPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSubscriptionPlanRepository(testutil.NewDB(t))

	first := plan("price_pro", "prod_1", "9.99")
	require.NoError(t, repo.Upsert(ctx, first))

	second := plan("price_pro", "prod_1", "19.99")
	second.ItemIDInternal = "changed"
	second.Name = "Pro Plus"
	require.NoError(t, repo.Upsert(ctx, second))

	stored, err := repo.FindByPriceID(ctx, "price_pro")
	require.NoError(t, err)
	require.Equal(t, first.ID, stored.ID)
	require.Equal(t, "price_pro", stored.ItemIDInternal)
	require.Equal(t, "Pro Plus", stored.Name)
	require.True(t, decimal.RequireFromString("19.99").Equal(stored.Amount))
	require.Equal(t, []string{"a"}, stored.Description.Data().Features)
}

func TestSubscriptionPlanProductUpdatesSkipExcludedPrice(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSubscriptionPlanRepository(testutil.NewDB(t))

	require.NoError(t, repo.Upsert(ctx, plan("price_a", "prod_1", "1.00")))
	require.NoError(t, repo.Upsert(ctx, plan("price_b", "prod_1", "2.00")))
	require.NoError(t, repo.Upsert(ctx, plan("price_FREE", "prod_1", "0.00")))

	rows, err := repo.UpdateByProductID(ctx, "prod_1", "price_FREE", map[string]interface{}{"name": "Renamed"})
	require.NoError(t, err)
	require.EqualValues(t, 2, rows)

	rows, err = repo.DeactivateByProductID(ctx, "prod_1", "price_FREE")
	require.NoError(t, err)
	require.EqualValues(t, 2, rows)

	plans, err := repo.ListByProductID(ctx, "prod_1")
	require.NoError(t, err)
	require.Len(t, plans, 3)
	for _, p := range plans {
		if p.StripePriceID == "price_FREE" {
			require.Equal(t, "Pro", p.Name)
			require.True(t, p.Active)
			continue
		}
		require.Equal(t, "Renamed", p.Name)
		require.False(t, p.Active)
	}

	_, err = repo.FindActiveByPriceID(ctx, "price_a")
	require.True(t, repository.ErrNotFound.Has(err))

	active, err := repo.FindActiveByPriceID(ctx, "price_FREE")
	require.NoError(t, err)
	require.Equal(t, "price_FREE", active.ItemIDInternal)
}

func TestSubscriptionPlanUpdateUnknownPrice(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSubscriptionPlanRepository(testutil.NewDB(t))

	rows, err := repo.UpdateByPriceID(ctx, "price_missing", map[string]interface{}{"active": false})
	require.NoError(t, err)
	require.Zero(t, rows)

	rows, err = repo.DeactivateByPriceID(ctx, "price_missing")
	require.NoError(t, err)
	require.Zero(t, rows)
}
