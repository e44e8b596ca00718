package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PlanType string

const (
	PlanTypeOneTimePurchase PlanType = "one_time_purchase"
	PlanTypeSubscription    PlanType = "subscription"
)

type PlanDescription struct {
	Subtitle string   `json:"subtitle"`
	Features []string `json:"features"`
}

// SubscriptionPlan mirrors one gateway price.
type SubscriptionPlan struct {
	ID              string `gorm:"primaryKey;size:64;not null"`
	StripePriceID   string `gorm:"size:255;uniqueIndex;not null"`
	StripeProductID string `gorm:"size:255;index"`
	ItemIDInternal  string `gorm:"size:255;uniqueIndex;not null"`
	Name            string `gorm:"size:255;not null"`
	Description     datatypes.JSONType[PlanDescription]
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"` // major currency units
	Currency        string          `gorm:"size:8;not null"`
	Interval        *string         `gorm:"size:16"` // nil for one-time prices
	IntervalCount   *int64
	PlanType        PlanType `gorm:"size:32;not null"`
	Active          bool     `gorm:"index;not null"`
	TokensToAward   *int64
	Metadata        datatypes.JSONMap
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SubscriptionStatus string

const SubscriptionStatusCanceled SubscriptionStatus = "canceled"

type UserSubscription struct {
	ID                   string             `gorm:"primaryKey;size:64;not null"`
	StripeSubscriptionID string             `gorm:"size:255;uniqueIndex;not null"`
	UserID               string             `gorm:"size:64;index;not null"`
	OrganizationID       *string            `gorm:"size:64;index"`
	StripeCustomerID     string             `gorm:"size:255;index;not null"`
	PlanID               *string            `gorm:"size:64;index"`
	Status               SubscriptionStatus `gorm:"size:32;index;not null"`
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool `gorm:"not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
