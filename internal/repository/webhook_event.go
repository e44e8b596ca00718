package repository

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	// RecordDelivery stores the outcome of one delivery, bumping the delivery
	// counter when the event was seen before.
	RecordDelivery(ctx context.Context, event *model.WebhookEvent) error
	Find(ctx context.Context, eventID string) (*model.WebhookEvent, error)
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) RecordDelivery(ctx context.Context, event *model.WebhookEvent) error {
	now := time.Now()
	event.FirstSeenAt = now
	event.LastSeenAt = now
	event.DeliveryCount = 1

	return wrap(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"success":        event.Success,
			"outcome":        event.Outcome,
			"error":          event.Error,
			"last_seen_at":   now,
			"delivery_count": gorm.Expr("webhook_events.delivery_count + 1"),
		}),
	}).Create(event).Error)
}

func (r *webhookEventRepositoryImpl) Find(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &event, nil
}
