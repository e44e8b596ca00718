package repository_test

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/testutil"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookEventRecordDelivery(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWebhookEventRepository(testutil.NewDB(t))

	require.NoError(t, repo.RecordDelivery(ctx, &model.WebhookEvent{
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
		Success:   false,
		Outcome:   "failed",
		Error:     "store unavailable",
	}))
	require.NoError(t, repo.RecordDelivery(ctx, &model.WebhookEvent{
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
		Success:   true,
		Outcome:   "processed",
	}))

	event, err := repo.Find(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, 2, event.DeliveryCount)
	require.True(t, event.Success)
	require.Equal(t, "processed", event.Outcome)
	require.Empty(t, event.Error)
	require.False(t, event.LastSeenAt.Before(event.FirstSeenAt))
}
