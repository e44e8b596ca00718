package model

import "time"

const (
	WalletCurrencyAIToken = "AI_TOKEN"

	WalletTxTypeCreditPurchase = "CREDIT_PURCHASE"

	// RelatedEntityPaymentTransaction is the related_entity_type of grants
	// keyed by a payment transaction id.
	RelatedEntityPaymentTransaction = "payment_transactions"
)

type TokenWallet struct {
	WalletID       string  `gorm:"primaryKey;size:64;not null"`
	UserID         *string `gorm:"size:64;index"`
	OrganizationID *string `gorm:"size:64;index"`
	Balance        int64   `gorm:"not null;default:0"`
	Currency       string  `gorm:"size:16;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TokenWalletTransaction is an append-only credit record. At most one row
// exists per (related_entity_id, related_entity_type).
type TokenWalletTransaction struct {
	ID                string `gorm:"primaryKey;size:64;not null"`
	WalletID          string `gorm:"size:64;index;not null"`
	Type              string `gorm:"size:32;not null"`
	Amount            int64  `gorm:"not null"`
	BalanceAfter      int64  `gorm:"not null"`
	RelatedEntityID   string `gorm:"size:128;not null;uniqueIndex:idx_wallet_tx_related_entity"`
	RelatedEntityType string `gorm:"size:64;not null;uniqueIndex:idx_wallet_tx_related_entity"`
	RecordedByUserID  string `gorm:"size:64"`
	Notes             string `gorm:"size:512"`
	CreatedAt         time.Time
}
