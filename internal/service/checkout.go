package service

import (
	"context"
	"fmt"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// checkout session metadata keys written by the payment initiator
const (
	metaInternalPaymentID = "internal_payment_id"
	metaUserID            = "user_id"
	metaOrganizationID    = "organization_id"
	metaItemID            = "item_id"
	metaTokensToAward     = "tokens_to_award"

	internalPaymentIDPrefix = "ptxn_"

	// payment_transactions.metadata keys
	metaFailureReason = "failure_reason"
	metaLinkageError  = "subscription_link_error"
	txMetaItemID      = "itemId"
)

const (
	msgInternalIDMissing    = "Internal payment ID missing from webhook metadata."
	msgPaymentNotFound      = "Payment record not found."
	msgTokenAwardFailed     = "Token award failed after payment."
	msgPreviouslyFailed     = "Payment previously marked as failed."
	msgUnexpectedCheckout   = "Unexpected error while processing checkout completion."
	msgAsyncPaymentFailed   = "Payment failed as per Stripe."
	msgTokenAwardPrevFailed = "Token award previously failed for this payment."
	msgAwaitingPayment      = "Checkout completed, awaiting payment confirmation."
	msgLinkageFailed        = "Payment completed but subscription linkage failed."
)

func internalPaymentID(metadata map[string]string) string {
	return strings.TrimPrefix(strings.TrimSpace(metadata[metaInternalPaymentID]), internalPaymentIDPrefix)
}

// handleCheckoutSessionCompleted settles a PENDING transaction once the
// gateway confirms payment: optional subscription linkage, COMPLETED, then
// the token grant.
func handleCheckoutSessionCompleted(ctx context.Context, hc *HandlerContext, event stripe.Event) (res dto.Result) {
	session, err := decodeObject[stripe.CheckoutSession](event)
	if err != nil {
		return failureFromErr("", err)
	}

	log := hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("session_id", session.ID),
	)

	internalID := internalPaymentID(session.Metadata)
	if internalID == "" {
		log.Error("checkout session without internal payment id")
		return failure("", dto.ErrorKindValidation, msgInternalIDMissing)
	}
	log = log.With(zap.String("transaction_id", internalID))

	// delayed payment methods settle later through async_payment_succeeded
	// or async_payment_failed
	if event.Type == stripe.EventTypeCheckoutSessionCompleted && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		log.Info("checkout completed without payment, leaving transaction pending")
		res := acknowledged(internalID, dto.OutcomeSkipped, msgAwaitingPayment)
		res.TokensAwarded = int64Ptr(0)
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("checkout completion panicked", zap.Any("panic", r))
			markFailed(ctx, hc, log, internalID, nil, fmt.Sprintf("unexpected error: %v", r))
			res = failure(internalID, dto.ErrorKindInternal, msgUnexpectedCheckout)
		}
	}()

	txn, err := hc.Transactions.FindByID(ctx, internalID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			log.Error("payment transaction not found")
			return failure(internalID, dto.ErrorKindNotFound, msgPaymentNotFound)
		}
		log.Error("load payment transaction", zap.Error(err))
		return failureFromErr(internalID, err)
	}

	if txn.Status != model.PaymentStatusPending {
		return replayResult(log, txn)
	}

	if txn.PurchaseMode == model.PurchaseModeSubscription || session.Mode == stripe.CheckoutSessionModeSubscription {
		sub, err := subscriptionForSession(ctx, hc, txn, session)
		if err != nil {
			log.Error("resolve subscription for checkout", zap.Error(err))
			markFailed(ctx, hc, log, txn.ID, txn.Metadata, err.Error())
			return failureFromErr(txn.ID, err)
		}

		if err := hc.Subscriptions.Upsert(ctx, sub); err != nil {
			// the payment went through; linkage is tracked separately
			log.Error("upsert user subscription", zap.Error(err), zap.String("subscription_id", sub.StripeSubscriptionID))
			if _, terr := completeTransaction(ctx, hc, txn, session.ID, map[string]interface{}{
				"metadata": withMetadata(txn.Metadata, metaLinkageError, err.Error()),
			}); terr != nil {
				log.Error("mark payment completed after subscription failure", zap.Error(terr))
			}
			res := failure(txn.ID, dto.ErrorKindPartial, fmt.Sprintf("Payment completed but subscription linkage failed: %v", err))
			res.TokensAwarded = int64Ptr(0)
			return res
		}
	}

	moved, err := completeTransaction(ctx, hc, txn, session.ID, nil)
	if err != nil {
		log.Error("mark payment completed", zap.Error(err))
		return failureFromErr(txn.ID, err)
	}
	if !moved {
		// a concurrent delivery settled it first
		current, err := hc.Transactions.FindByID(ctx, txn.ID)
		if err != nil {
			return failureFromErr(txn.ID, err)
		}
		return replayResult(log, current)
	}

	return awardTokens(ctx, hc, log, txn, txn.TokensToAward,
		fmt.Sprintf("Tokens for Stripe Checkout Session %s", session.ID))
}

// replayResult answers a delivery for a transaction that already left
// PENDING. Nothing is written.
func replayResult(log *zap.Logger, txn *model.PaymentTransaction) dto.Result {
	log.Info("payment already settled", zap.String("status", string(txn.Status)))

	switch txn.Status {
	case model.PaymentStatusCompleted:
		if txn.MetadataString(metaLinkageError) != "" {
			// settled without a grant
			return dto.Result{
				Success:       true,
				TransactionID: txn.ID,
				TokensAwarded: int64Ptr(0),
				Error:         msgLinkageFailed,
				Outcome:       dto.OutcomeAlreadyProcessed,
			}
		}
		return dto.Result{
			Success:       true,
			TransactionID: txn.ID,
			TokensAwarded: int64Ptr(txn.TokensToAward),
			Outcome:       dto.OutcomeAlreadyProcessed,
		}
	case model.PaymentStatusTokenAwardFailed:
		return dto.Result{
			Success:       true,
			TransactionID: txn.ID,
			TokensAwarded: int64Ptr(0),
			Error:         msgTokenAwardPrevFailed,
			Outcome:       dto.OutcomeAlreadyProcessed,
		}
	default:
		reason := txn.MetadataString(metaFailureReason)
		if reason == "" {
			reason = msgPreviouslyFailed
		}
		return dto.Result{
			Success:       true,
			TransactionID: txn.ID,
			TokensAwarded: int64Ptr(0),
			Error:         reason,
			Outcome:       dto.OutcomePreviouslyFailed,
		}
	}
}

func completeTransaction(ctx context.Context, hc *HandlerContext, txn *model.PaymentTransaction, gatewayTxID string, extra map[string]interface{}) (bool, error) {
	fields := map[string]interface{}{}
	for k, v := range extra {
		fields[k] = v
	}
	if gatewayTxID != "" && txn.GatewayTransactionID == nil {
		fields["gateway_transaction_id"] = gatewayTxID
	}
	return hc.Transactions.Transition(ctx, txn.ID, model.PaymentStatusCompleted, fields)
}

// awardTokens runs after the transaction is COMPLETED. A failed grant moves
// it to TOKEN_AWARD_FAILED.
func awardTokens(ctx context.Context, hc *HandlerContext, log *zap.Logger, txn *model.PaymentTransaction, tokens int64, notes string) dto.Result {
	if tokens <= 0 {
		log.Info("payment completed without token award")
		return processed(txn.ID, int64Ptr(0))
	}

	if _, err := hc.Wallets.AwardForPayment(ctx, txn, tokens, notes); err != nil {
		log.Error("token award failed", zap.Error(err), zap.Int64("tokens", tokens))
		_, terr := hc.Transactions.Transition(ctx, txn.ID, model.PaymentStatusTokenAwardFailed, map[string]interface{}{
			"metadata": withMetadata(txn.Metadata, metaFailureReason, err.Error()),
		})
		if terr != nil {
			log.Error("mark token award failed", zap.Error(terr))
		}
		res := failure(txn.ID, dto.ErrorKindPartial, msgTokenAwardFailed)
		res.TokensAwarded = int64Ptr(0)
		return res
	}

	log.Info("payment completed", zap.Int64("tokens", tokens))
	return processed(txn.ID, int64Ptr(tokens))
}

// markFailed moves a PENDING transaction to FAILED, recording reason.
func markFailed(ctx context.Context, hc *HandlerContext, log *zap.Logger, id string, metadata datatypes.JSONMap, reason string) {
	moved, err := hc.Transactions.Transition(ctx, id, model.PaymentStatusFailed, map[string]interface{}{
		"metadata": withMetadata(metadata, metaFailureReason, reason),
	})
	if err != nil {
		log.Error("mark payment failed", zap.Error(err))
		return
	}
	if !moved {
		log.Warn("payment not moved to FAILED, no longer pending")
	}
}

func withMetadata(metadata datatypes.JSONMap, key string, value interface{}) datatypes.JSONMap {
	merged := datatypes.JSONMap{}
	for k, v := range metadata {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

func subscriptionForSession(ctx context.Context, hc *HandlerContext, txn *model.PaymentTransaction, session *stripe.CheckoutSession) (*model.UserSubscription, error) {
	var subscriptionID, customerID string
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if subscriptionID == "" || customerID == "" {
		return nil, ErrValidation.New("subscription or customer id missing from checkout session %s", session.ID)
	}

	itemID := txn.MetadataString(txMetaItemID)
	if itemID == "" {
		itemID = session.Metadata[metaItemID]
	}
	if itemID == "" {
		return nil, ErrValidation.New("item id missing, cannot resolve plan for checkout session %s", session.ID)
	}

	plan, err := hc.Plans.FindByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	gatewaySub, err := hc.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	return &model.UserSubscription{
		ID:                   uuid.NewString(),
		StripeSubscriptionID: subscriptionID,
		UserID:               txn.UserID,
		OrganizationID:       txn.OrganizationID,
		StripeCustomerID:     customerID,
		PlanID:               &plan.ID,
		Status:               model.SubscriptionStatus(gatewaySub.Status),
		CurrentPeriodStart:   unixTime(gatewaySub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(gatewaySub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    gatewaySub.CancelAtPeriodEnd,
	}, nil
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// handleCheckoutSessionClosed returns a handler that moves a PENDING
// transaction to the terminal status to when the session ends without
// payment.
func handleCheckoutSessionClosed(to model.PaymentStatus) HandlerFunc {
	return func(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
		session, err := decodeObject[stripe.CheckoutSession](event)
		if err != nil {
			return failureFromErr("", err)
		}

		log := hc.Log.With(
			zap.String("event_id", event.ID),
			zap.String("session_id", session.ID),
			zap.String("target_status", string(to)),
		)

		internalID := internalPaymentID(session.Metadata)
		if internalID == "" {
			log.Error("checkout session without internal payment id")
			return failure("", dto.ErrorKindValidation, msgInternalIDMissing)
		}

		txn, err := hc.Transactions.FindByID(ctx, internalID)
		if err != nil {
			if repository.ErrNotFound.Has(err) {
				return failure(internalID, dto.ErrorKindNotFound, msgPaymentNotFound)
			}
			return failureFromErr(internalID, err)
		}

		if txn.Status != model.PaymentStatusPending {
			if !txn.Status.IsFailure() {
				log.Warn("session closed for a settled payment, leaving it as is", zap.String("status", string(txn.Status)))
				return acknowledged(txn.ID, dto.OutcomeSkipped,
					fmt.Sprintf("Payment transaction %s already %s.", txn.ID, txn.Status))
			}
			return replayResult(log, txn)
		}

		message := msgAsyncPaymentFailed
		if to == model.PaymentStatusExpired {
			message = fmt.Sprintf("Payment transaction %s marked as EXPIRED.", txn.ID)
		}

		moved, err := hc.Transactions.Transition(ctx, txn.ID, to, map[string]interface{}{
			"gateway_transaction_id": session.ID,
			"metadata":               withMetadata(txn.Metadata, metaFailureReason, message),
		})
		if err != nil {
			log.Error("close payment transaction", zap.Error(err))
			return failureFromErr(txn.ID, err)
		}
		if !moved {
			current, err := hc.Transactions.FindByID(ctx, txn.ID)
			if err != nil {
				return failureFromErr(txn.ID, err)
			}
			return replayResult(log, current)
		}

		log.Info("payment transaction closed")
		res := acknowledged(txn.ID, dto.OutcomeProcessed, message)
		res.TokensAwarded = int64Ptr(0)
		return res
	}
}
