package repository

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserSubscriptionRepository interface {
	// Upsert inserts sub or refreshes the lifecycle columns of the row with
	// the same gateway subscription id. Ownership columns (user, organization,
	// customer) of an existing row are never overwritten.
	Upsert(ctx context.Context, sub *model.UserSubscription) error
	UpdateLifecycle(ctx context.Context, subscriptionID string, fields map[string]interface{}) (int64, error)
	MarkCanceled(ctx context.Context, subscriptionID string) (int64, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*model.UserSubscription, error)
}

type userSubscriptionRepoImpl struct {
	db *gorm.DB
}

func NewUserSubscriptionRepository(db *gorm.DB) UserSubscriptionRepository {
	return &userSubscriptionRepoImpl{
		db: db,
	}
}

func (r *userSubscriptionRepoImpl) Upsert(ctx context.Context, sub *model.UserSubscription) error {
	return wrap(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error)
}

func (r *userSubscriptionRepoImpl) UpdateLifecycle(ctx context.Context, subscriptionID string, fields map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		switch k {
		case "user_id", "organization_id", "stripe_customer_id", "stripe_subscription_id":
			// ownership is immutable here
			continue
		}
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&model.UserSubscription{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(updates)

	return result.RowsAffected, wrap(result.Error)
}

func (r *userSubscriptionRepoImpl) MarkCanceled(ctx context.Context, subscriptionID string) (int64, error) {
	return r.UpdateLifecycle(ctx, subscriptionID, map[string]interface{}{
		"status": model.SubscriptionStatusCanceled,
	})
}

func (r *userSubscriptionRepoImpl) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		First(&sub).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &sub, nil
}

func (r *userSubscriptionRepoImpl) FindByCustomerID(ctx context.Context, customerID string) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		Order("updated_at DESC").
		First(&sub).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &sub, nil
}
