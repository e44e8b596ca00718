package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const GatewayStripe = "stripe"

type PaymentStatus string

const (
	PaymentStatusPending          PaymentStatus = "PENDING"
	PaymentStatusCompleted        PaymentStatus = "COMPLETED"
	PaymentStatusTokenAwardFailed PaymentStatus = "TOKEN_AWARD_FAILED"
	PaymentStatusFailed           PaymentStatus = "FAILED"
	PaymentStatusExpired          PaymentStatus = "EXPIRED"
)

// transitionSources lists, for every target status, the statuses a
// transaction may be in when it moves there. Anything absent is forbidden.
var transitionSources = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCompleted:        {PaymentStatusPending},
	PaymentStatusFailed:           {PaymentStatusPending},
	PaymentStatusExpired:          {PaymentStatusPending},
	PaymentStatusTokenAwardFailed: {PaymentStatusCompleted},
}

// TransitionSources returns the statuses from which to is reachable.
func TransitionSources(to PaymentStatus) []PaymentStatus {
	return transitionSources[to]
}

// CanTransition reports whether a transaction in status from may move to to.
func CanTransition(from, to PaymentStatus) bool {
	return slices.Contains(transitionSources[to], from)
}

// IsFailure reports whether the status is a terminal failure (FAILED or EXPIRED).
func (s PaymentStatus) IsFailure() bool {
	return s == PaymentStatusFailed || s == PaymentStatusExpired
}

type PurchaseMode string

const (
	PurchaseModeOneTime      PurchaseMode = "one_time"
	PurchaseModeSubscription PurchaseMode = "subscription"
)

type PaymentTransaction struct {
	ID                   string          `gorm:"primaryKey;size:64;not null"`
	UserID               string          `gorm:"size:64;index;not null"`
	OrganizationID       *string         `gorm:"size:64;index"`
	TargetWalletID       string          `gorm:"size:64;index;not null"`
	PaymentGatewayID     string          `gorm:"size:32;not null;uniqueIndex:idx_payment_gateway_tx"`
	GatewayTransactionID *string         `gorm:"size:255;uniqueIndex:idx_payment_gateway_tx"` // checkout session or invoice id
	PurchaseMode         PurchaseMode    `gorm:"size:32;not null"`
	AmountRequested      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency             string          `gorm:"size:8;not null"`
	TokensToAward        int64           `gorm:"not null;default:0"`
	Status               PaymentStatus   `gorm:"size:32;index;not null"`
	Metadata             datatypes.JSONMap
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MetadataString returns a string metadata value or "" when absent.
func (t *PaymentTransaction) MetadataString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	v, ok := t.Metadata[key].(string)
	if !ok {
		return ""
	}
	return v
}
