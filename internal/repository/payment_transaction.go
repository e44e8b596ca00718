package repository

import (
	"context"
	"payment-gateway-ledger/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentTransactionRepository interface {
	Create(ctx context.Context, txn *model.PaymentTransaction) error
	// CreateIfAbsent inserts txn unless a row with the same gateway
	// transaction id exists. It returns the stored row and whether it was
	// created by this call.
	CreateIfAbsent(ctx context.Context, txn *model.PaymentTransaction) (*model.PaymentTransaction, bool, error)
	FindByID(ctx context.Context, id string) (*model.PaymentTransaction, error)
	FindByGatewayTransactionID(ctx context.Context, gatewayID, gatewayTxID string) (*model.PaymentTransaction, error)
	// Transition moves the transaction to status to, but only from one of the
	// statuses allowed by model.TransitionSources. It reports whether the row
	// was updated; false means another writer got there first or the move
	// would go backward.
	Transition(ctx context.Context, id string, to model.PaymentStatus, fields map[string]interface{}) (bool, error)
	// AttachGatewayTransactionID sets the gateway id of a PENDING transaction
	// that does not have one yet.
	AttachGatewayTransactionID(ctx context.Context, id, gatewayTxID string) (bool, error)
}

type paymentTransactionRepoImpl struct {
	db *gorm.DB
}

func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &paymentTransactionRepoImpl{
		db: db,
	}
}

func (r *paymentTransactionRepoImpl) Create(ctx context.Context, txn *model.PaymentTransaction) error {
	return wrap(r.db.WithContext(ctx).Create(txn).Error)
}

func (r *paymentTransactionRepoImpl) CreateIfAbsent(ctx context.Context, txn *model.PaymentTransaction) (*model.PaymentTransaction, bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_gateway_id"}, {Name: "gateway_transaction_id"}},
		DoNothing: true,
	}).Create(txn)
	if result.Error != nil {
		return nil, false, wrap(result.Error)
	}
	if result.RowsAffected == 1 {
		return txn, true, nil
	}

	existing, err := r.FindByGatewayTransactionID(ctx, txn.PaymentGatewayID, *txn.GatewayTransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *paymentTransactionRepoImpl) FindByID(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&txn).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &txn, nil
}

func (r *paymentTransactionRepoImpl) FindByGatewayTransactionID(ctx context.Context, gatewayID, gatewayTxID string) (*model.PaymentTransaction, error) {
	var txn model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_gateway_id = ? AND gateway_transaction_id = ?", gatewayID, gatewayTxID).
		First(&txn).Error

	if err != nil {
		return nil, wrap(err)
	}

	return &txn, nil
}

func (r *paymentTransactionRepoImpl) Transition(ctx context.Context, id string, to model.PaymentStatus, fields map[string]interface{}) (bool, error) {
	from := model.TransitionSources(to)
	if len(from) == 0 {
		return false, nil
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where(`
			id = ?
			AND status IN ?
		`,
			id,
			from,
		).
		Updates(updates)

	if result.Error != nil {
		return false, wrap(result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *paymentTransactionRepoImpl) AttachGatewayTransactionID(ctx context.Context, id, gatewayTxID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where(`
			id = ?
			AND status = ?
			AND gateway_transaction_id IS NULL
		`,
			id,
			model.PaymentStatusPending,
		).
		Updates(map[string]interface{}{
			"gateway_transaction_id": gatewayTxID,
			"updated_at":             time.Now(),
		})

	if result.Error != nil {
		return false, wrap(result.Error)
	}

	return result.RowsAffected == 1, nil
}
