package repository

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionPlanRepository is the local mirror of the gateway catalog.
type SubscriptionPlanRepository interface {
	// Upsert inserts the plan or refreshes every gateway-owned column of the
	// row with the same stripe_price_id. The internal id and item id of an
	// existing row are preserved.
	Upsert(ctx context.Context, plan *model.SubscriptionPlan) error
	UpdateByPriceID(ctx context.Context, priceID string, fields map[string]interface{}) (int64, error)
	// UpdateByProductID and DeactivateByProductID touch every plan of the
	// product except the one priced exceptPriceID.
	UpdateByProductID(ctx context.Context, productID, exceptPriceID string, fields map[string]interface{}) (int64, error)
	DeactivateByPriceID(ctx context.Context, priceID string) (int64, error)
	DeactivateByProductID(ctx context.Context, productID, exceptPriceID string) (int64, error)
	FindByPriceID(ctx context.Context, priceID string) (*model.SubscriptionPlan, error)
	FindActiveByPriceID(ctx context.Context, priceID string) (*model.SubscriptionPlan, error)
	FindByItemID(ctx context.Context, itemID string) (*model.SubscriptionPlan, error)
	ListByProductID(ctx context.Context, productID string) ([]*model.SubscriptionPlan, error)
}

type subscriptionPlanRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionPlanRepository(db *gorm.DB) SubscriptionPlanRepository {
	return &subscriptionPlanRepoImpl{
		db: db,
	}
}

func (r *subscriptionPlanRepoImpl) Upsert(ctx context.Context, plan *model.SubscriptionPlan) error {
	return wrap(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_price_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_product_id",
			"name",
			"description",
			"amount",
			"currency",
			"interval",
			"interval_count",
			"plan_type",
			"active",
			"tokens_to_award",
			"metadata",
			"updated_at",
		}),
	}).Create(plan).Error)
}

func (r *subscriptionPlanRepoImpl) UpdateByPriceID(ctx context.Context, priceID string, fields map[string]interface{}) (int64, error) {
	return r.update(ctx, fields, "stripe_price_id = ?", priceID)
}

func (r *subscriptionPlanRepoImpl) UpdateByProductID(ctx context.Context, productID, exceptPriceID string, fields map[string]interface{}) (int64, error) {
	return r.update(ctx, fields, "stripe_product_id = ? AND stripe_price_id <> ?", productID, exceptPriceID)
}

func (r *subscriptionPlanRepoImpl) DeactivateByPriceID(ctx context.Context, priceID string) (int64, error) {
	return r.update(ctx, map[string]interface{}{"active": false}, "stripe_price_id = ?", priceID)
}

func (r *subscriptionPlanRepoImpl) DeactivateByProductID(ctx context.Context, productID, exceptPriceID string) (int64, error) {
	return r.update(ctx, map[string]interface{}{"active": false}, "stripe_product_id = ? AND stripe_price_id <> ?", productID, exceptPriceID)
}

func (r *subscriptionPlanRepoImpl) update(ctx context.Context, fields map[string]interface{}, where string, args ...interface{}) (int64, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&model.SubscriptionPlan{}).
		Where(where, args...).
		Updates(updates)

	return result.RowsAffected, wrap(result.Error)
}

func (r *subscriptionPlanRepoImpl) FindByPriceID(ctx context.Context, priceID string) (*model.SubscriptionPlan, error) {
	return r.first(ctx, "stripe_price_id = ?", priceID)
}

func (r *subscriptionPlanRepoImpl) FindActiveByPriceID(ctx context.Context, priceID string) (*model.SubscriptionPlan, error) {
	return r.first(ctx, "stripe_price_id = ? AND active = ?", priceID, true)
}

func (r *subscriptionPlanRepoImpl) FindByItemID(ctx context.Context, itemID string) (*model.SubscriptionPlan, error) {
	return r.first(ctx, "item_id_internal = ?", itemID)
}

func (r *subscriptionPlanRepoImpl) first(ctx context.Context, where string, args ...interface{}) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where(where, args...).First(&plan).Error; err != nil {
		return nil, wrap(err)
	}
	return &plan, nil
}

func (r *subscriptionPlanRepoImpl) ListByProductID(ctx context.Context, productID string) ([]*model.SubscriptionPlan, error) {
	var plans []*model.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("stripe_product_id = ?", productID).
		Order("stripe_price_id").
		Find(&plans).Error

	if err != nil {
		return nil, wrap(err)
	}

	return plans, nil
}
