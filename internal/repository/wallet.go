package repository

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Grant struct {
	WalletID          string
	Type              string
	Amount            int64
	RelatedEntityID   string
	RelatedEntityType string
	RecordedByUserID  string
	Notes             string
}

type WalletRepository interface {
	Create(ctx context.Context, wallet *model.TokenWallet) error
	FindByID(ctx context.Context, walletID string) (*model.TokenWallet, error)
	// FindForContext returns the organization wallet when organizationID is
	// set, otherwise the personal wallet of userID.
	FindForContext(ctx context.Context, userID string, organizationID *string) (*model.TokenWallet, error)
	// Grant credits the wallet once per (RelatedEntityID, RelatedEntityType).
	// A repeated grant returns the stored row with created == false and
	// leaves the balance untouched.
	Grant(ctx context.Context, grant Grant) (_ *model.TokenWalletTransaction, created bool, _ error)
	CountGrants(ctx context.Context, relatedEntityID, relatedEntityType string) (int64, error)
}

type walletRepoImpl struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepoImpl{
		db: db,
	}
}

func (r *walletRepoImpl) Create(ctx context.Context, wallet *model.TokenWallet) error {
	if wallet.WalletID == "" {
		wallet.WalletID = uuid.NewString()
	}
	if wallet.Currency == "" {
		wallet.Currency = model.WalletCurrencyAIToken
	}
	return wrap(r.db.WithContext(ctx).Create(wallet).Error)
}

func (r *walletRepoImpl) FindByID(ctx context.Context, walletID string) (*model.TokenWallet, error) {
	var wallet model.TokenWallet
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		First(&wallet).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &wallet, nil
}

func (r *walletRepoImpl) FindForContext(ctx context.Context, userID string, organizationID *string) (*model.TokenWallet, error) {
	query := r.db.WithContext(ctx)
	if organizationID != nil && *organizationID != "" {
		query = query.Where("organization_id = ?", *organizationID)
	} else {
		query = query.Where("user_id = ? AND organization_id IS NULL", userID)
	}

	var wallet model.TokenWallet
	if err := query.First(&wallet).Error; err != nil {
		return nil, wrap(err)
	}

	return &wallet, nil
}

func (r *walletRepoImpl) Grant(ctx context.Context, grant Grant) (*model.TokenWalletTransaction, bool, error) {
	entry := &model.TokenWalletTransaction{
		ID:                uuid.NewString(),
		WalletID:          grant.WalletID,
		Type:              grant.Type,
		Amount:            grant.Amount,
		RelatedEntityID:   grant.RelatedEntityID,
		RelatedEntityType: grant.RelatedEntityType,
		RecordedByUserID:  grant.RecordedByUserID,
		Notes:             grant.Notes,
		CreatedAt:         time.Now(),
	}
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "related_entity_id"}, {Name: "related_entity_type"}},
			DoNothing: true,
		}).Create(entry)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// already granted
			var existing model.TokenWalletTransaction
			err := tx.Where("related_entity_id = ? AND related_entity_type = ?", grant.RelatedEntityID, grant.RelatedEntityType).
				First(&existing).Error
			if err != nil {
				return err
			}
			entry = &existing
			return nil
		}

		result = tx.Model(&model.TokenWallet{}).
			Where("wallet_id = ?", grant.WalletID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", grant.Amount),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var wallet model.TokenWallet
		if err := tx.Where("wallet_id = ?", grant.WalletID).First(&wallet).Error; err != nil {
			return err
		}

		entry.BalanceAfter = wallet.Balance
		created = true
		return tx.Model(entry).Update("balance_after", wallet.Balance).Error
	})
	if err != nil {
		return nil, false, wrap(err)
	}

	return entry, created, nil
}

func (r *walletRepoImpl) CountGrants(ctx context.Context, relatedEntityID, relatedEntityType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TokenWalletTransaction{}).
		Where("related_entity_id = ? AND related_entity_type = ?", relatedEntityID, relatedEntityType).
		Count(&count).Error

	return count, wrap(err)
}
