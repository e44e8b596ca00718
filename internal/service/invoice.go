package service

import (
	"context"
	"fmt"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// renewalOwner is who a recurring invoice belongs to locally.
type renewalOwner struct {
	sub    *model.UserSubscription
	wallet *model.TokenWallet
}

func invoiceIDs(inv *stripe.Invoice) (customerID, subscriptionID, priceID string) {
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		subscriptionID = inv.Subscription.ID
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Price != nil {
		priceID = inv.Lines.Data[0].Price.ID
	}
	return customerID, subscriptionID, priceID
}

func resolveRenewalOwner(ctx context.Context, hc *HandlerContext, customerID string) (*renewalOwner, dto.Result, bool) {
	sub, err := hc.Subscriptions.FindByCustomerID(ctx, customerID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			return nil, failure("", dto.ErrorKindNotFound, fmt.Sprintf("User not found for customer %s", customerID)), false
		}
		return nil, failureFromErr("", err), false
	}

	wallet, err := hc.Wallets.FindForContext(ctx, sub.UserID, sub.OrganizationID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			return nil, failure("", dto.ErrorKindNotFound, fmt.Sprintf("Wallet not found for user %s", sub.UserID)), false
		}
		return nil, failureFromErr("", err), false
	}

	return &renewalOwner{sub: sub, wallet: wallet}, dto.Result{}, true
}

func renewalTransaction(event stripe.Event, inv *stripe.Invoice, owner *renewalOwner, status model.PaymentStatus, tokens int64, extra datatypes.JSONMap) *model.PaymentTransaction {
	_, subscriptionID, _ := invoiceIDs(inv)
	invoiceID := inv.ID

	amount := inv.AmountPaid
	if status == model.PaymentStatusFailed {
		amount = inv.AmountDue
	}

	metadata := datatypes.JSONMap{
		"stripe_event_id":        event.ID,
		"type":                   "RENEWAL",
		"stripe_subscription_id": subscriptionID,
		"billing_reason":         string(inv.BillingReason),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	return &model.PaymentTransaction{
		ID:                   uuid.NewString(),
		UserID:               owner.sub.UserID,
		OrganizationID:       owner.sub.OrganizationID,
		TargetWalletID:       owner.wallet.WalletID,
		PaymentGatewayID:     model.GatewayStripe,
		GatewayTransactionID: &invoiceID,
		PurchaseMode:         model.PurchaseModeSubscription,
		AmountRequested:      decimal.New(amount, -2),
		Currency:             strings.ToLower(string(inv.Currency)),
		TokensToAward:        tokens,
		Status:               status,
		Metadata:             metadata,
	}
}

// handleInvoicePaymentSucceeded records a paid renewal invoice as its own
// transaction, keyed by the invoice id, and grants the plan's tokens.
func handleInvoicePaymentSucceeded(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	inv, err := decodeObject[stripe.Invoice](event)
	if err != nil {
		return failureFromErr("", err)
	}

	customerID, subscriptionID, priceID := invoiceIDs(inv)
	log := hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("invoice_id", inv.ID),
		zap.String("customer_id", customerID),
	)

	if customerID == "" {
		log.Warn("invoice without customer, nothing to reconcile")
		return acknowledged(event.ID, dto.OutcomeSkipped, fmt.Sprintf("Invoice %s has no customer.", inv.ID))
	}
	if inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		// the first period is paid and credited through checkout completion
		log.Info("initial subscription invoice settled by checkout")
		return acknowledged(event.ID, dto.OutcomeSkipped,
			fmt.Sprintf("Invoice %s is the initial subscription invoice; handled by checkout completion.", inv.ID))
	}

	existing, err := hc.Transactions.FindByGatewayTransactionID(ctx, model.GatewayStripe, inv.ID)
	switch {
	case err == nil && existing.Status != model.PaymentStatusPending:
		return replayResult(log, existing)
	case err != nil && !repository.ErrNotFound.Has(err):
		log.Error("invoice idempotency check", zap.Error(err))
		return failureFromErr("", err)
	}

	owner, res, ok := resolveRenewalOwner(ctx, hc, customerID)
	if !ok {
		log.Error("resolve invoice owner", zap.String("error", res.Error))
		return res
	}

	txn := existing
	if txn == nil {
		if priceID == "" {
			return failure("", dto.ErrorKindValidation, fmt.Sprintf("Invoice %s has no priced line item.", inv.ID))
		}

		plan, err := hc.Plans.FindByPriceID(ctx, priceID)
		if err != nil {
			if !repository.ErrNotFound.Has(err) {
				return failureFromErr("", err)
			}
			message := fmt.Sprintf("Subscription plan details not found for price ID %s.", priceID)
			failed := renewalTransaction(event, inv, owner, model.PaymentStatusFailed, 0, datatypes.JSONMap{
				metaFailureReason: message,
			})
			if _, _, err := hc.Transactions.CreateIfAbsent(ctx, failed); err != nil {
				log.Error("record failed renewal", zap.Error(err))
			}
			log.Error("renewal plan not found", zap.String("price_id", priceID))
			return failure(failed.ID, dto.ErrorKindNotFound, message)
		}

		var tokens int64
		if plan.TokensToAward != nil {
			tokens = *plan.TokensToAward
		}
		if tokens <= 0 {
			log.Warn("renewal plan awards no tokens", zap.String("item_id", plan.ItemIDInternal))
		}

		pending := renewalTransaction(event, inv, owner, model.PaymentStatusPending, tokens, datatypes.JSONMap{
			"item_id_internal": plan.ItemIDInternal,
		})
		stored, _, err := hc.Transactions.CreateIfAbsent(ctx, pending)
		if err != nil {
			log.Error("record renewal", zap.Error(err))
			return failureFromErr("", err)
		}
		if stored.Status != model.PaymentStatusPending {
			return replayResult(log, stored)
		}
		txn = stored
	}
	log = log.With(zap.String("transaction_id", txn.ID))

	if subscriptionID != "" {
		refreshSubscriptionPeriod(ctx, hc, log, subscriptionID)
	}

	moved, err := completeTransaction(ctx, hc, txn, "", nil)
	if err != nil {
		log.Error("mark renewal completed", zap.Error(err))
		return failureFromErr(txn.ID, err)
	}
	if !moved {
		current, err := hc.Transactions.FindByID(ctx, txn.ID)
		if err != nil {
			return failureFromErr(txn.ID, err)
		}
		return replayResult(log, current)
	}

	return awardTokens(ctx, hc, log, txn, txn.TokensToAward,
		fmt.Sprintf("Subscription renewal for invoice %s", inv.ID))
}

// refreshSubscriptionPeriod copies the gateway's current billing period onto
// the local subscription. Failures are logged only.
func refreshSubscriptionPeriod(ctx context.Context, hc *HandlerContext, log *zap.Logger, subscriptionID string) {
	gatewaySub, err := hc.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		log.Warn("retrieve subscription for renewal", zap.Error(err), zap.String("subscription_id", subscriptionID))
		return
	}

	rows, err := hc.Subscriptions.UpdateLifecycle(ctx, subscriptionID, map[string]interface{}{
		"status":               model.SubscriptionStatus(gatewaySub.Status),
		"current_period_start": unixTime(gatewaySub.CurrentPeriodStart),
		"current_period_end":   unixTime(gatewaySub.CurrentPeriodEnd),
		"cancel_at_period_end": gatewaySub.CancelAtPeriodEnd,
	})
	if err != nil {
		log.Warn("refresh subscription period", zap.Error(err), zap.String("subscription_id", subscriptionID))
		return
	}
	if rows == 0 {
		log.Warn("renewed subscription not found locally", zap.String("subscription_id", subscriptionID))
	}
}

// handleInvoicePaymentFailed records a failed renewal attempt. The
// subscription's own status is left to subscription events.
func handleInvoicePaymentFailed(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	inv, err := decodeObject[stripe.Invoice](event)
	if err != nil {
		return failureFromErr("", err)
	}

	customerID, _, _ := invoiceIDs(inv)
	log := hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("invoice_id", inv.ID),
		zap.String("customer_id", customerID),
	)
	message := fmt.Sprintf("Invoice %s payment failed.", inv.ID)

	existing, err := hc.Transactions.FindByGatewayTransactionID(ctx, model.GatewayStripe, inv.ID)
	if err != nil && !repository.ErrNotFound.Has(err) {
		log.Error("invoice idempotency check", zap.Error(err))
		return failureFromErr("", err)
	}
	if existing != nil {
		return failExistingRenewal(ctx, hc, log, existing, message)
	}

	if customerID == "" {
		log.Warn("invoice without customer, nothing to reconcile")
		return acknowledged(event.ID, dto.OutcomeSkipped, fmt.Sprintf("Invoice %s has no customer.", inv.ID))
	}

	owner, res, ok := resolveRenewalOwner(ctx, hc, customerID)
	if !ok {
		log.Error("resolve invoice owner", zap.String("error", res.Error))
		return res
	}

	failed := renewalTransaction(event, inv, owner, model.PaymentStatusFailed, 0, datatypes.JSONMap{
		metaFailureReason: message,
		"attempt_count":   inv.AttemptCount,
	})
	stored, created, err := hc.Transactions.CreateIfAbsent(ctx, failed)
	if err != nil {
		log.Error("record failed renewal", zap.Error(err))
		return failureFromErr("", err)
	}
	if !created {
		return failExistingRenewal(ctx, hc, log, stored, message)
	}

	log.Info("failed renewal recorded", zap.String("transaction_id", stored.ID))
	res = acknowledged(stored.ID, dto.OutcomeProcessed, message)
	res.TokensAwarded = int64Ptr(0)
	return res
}

func failExistingRenewal(ctx context.Context, hc *HandlerContext, log *zap.Logger, txn *model.PaymentTransaction, message string) dto.Result {
	log = log.With(zap.String("transaction_id", txn.ID))

	switch txn.Status {
	case model.PaymentStatusPending:
		moved, err := hc.Transactions.Transition(ctx, txn.ID, model.PaymentStatusFailed, map[string]interface{}{
			"metadata": withMetadata(txn.Metadata, metaFailureReason, message),
		})
		if err != nil {
			return failureFromErr(txn.ID, err)
		}
		if moved {
			res := acknowledged(txn.ID, dto.OutcomeProcessed, message)
			res.TokensAwarded = int64Ptr(0)
			return res
		}
		current, err := hc.Transactions.FindByID(ctx, txn.ID)
		if err != nil {
			return failureFromErr(txn.ID, err)
		}
		return failExistingRenewal(ctx, hc, log, current, message)
	case model.PaymentStatusCompleted, model.PaymentStatusTokenAwardFailed:
		log.Warn("payment failure for a settled invoice, not moving it backward", zap.String("status", string(txn.Status)))
		return acknowledged(txn.ID, dto.OutcomeSkipped,
			fmt.Sprintf("Payment transaction %s already %s; failure ignored.", txn.ID, txn.Status))
	default:
		return replayResult(log, txn)
	}
}
