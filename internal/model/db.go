package model

import "time"

// WebhookEvent is the delivery audit log. Idempotency is decided by ledger
// state, never by this table.
type WebhookEvent struct {
	EventID       string `gorm:"primaryKey;size:128;not null"`
	EventType     string `gorm:"size:64;index"`
	Livemode      bool
	Success       bool
	Outcome       string `gorm:"size:32"`
	Error         string `gorm:"size:1024"`
	DeliveryCount int    `gorm:"not null;default:1"`
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}

// All returns every persisted model, in migration order.
func All() []any {
	return []any{
		&PaymentTransaction{},
		&SubscriptionPlan{},
		&UserSubscription{},
		&TokenWallet{},
		&TokenWalletTransaction{},
		&WebhookEvent{},
	}
}
