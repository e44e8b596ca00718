package service

import (
	"encoding/json"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/repository"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// HandlerContext carries the collaborators every event handler works with.
type HandlerContext struct {
	Log           *zap.Logger
	Gateway       client.GatewayClient
	Transactions  repository.PaymentTransactionRepository
	Plans         repository.SubscriptionPlanRepository
	Subscriptions repository.UserSubscriptionRepository
	Wallets       WalletService

	// FreePriceID is the always-free price that catalog events never touch.
	FreePriceID  string
	SyncPageSize int64
}

func decodeObject[T any](event stripe.Event) (*T, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, ErrValidation.New("event %s carries no data object", event.ID)
	}

	var obj T
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, ErrValidation.New("decode %s payload: %v", event.Type, err)
	}
	return &obj, nil
}
