package service

import (
	"context"
	"fmt"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

func handleSubscriptionUpdated(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	sub, err := decodeObject[stripe.Subscription](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}
	if sub.ID == "" {
		return failure(event.ID, dto.ErrorKindValidation, "Subscription ID missing from event.")
	}

	log := hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
	)

	if sub.Customer == nil || sub.Customer.ID == "" {
		log.Warn("subscription update without customer")
		return acknowledged(event.ID, dto.OutcomeSkipped, fmt.Sprintf("Subscription %s has no customer.", sub.ID))
	}

	fields := map[string]interface{}{
		"status":               model.SubscriptionStatus(sub.Status),
		"current_period_start": unixTime(sub.CurrentPeriodStart),
		"current_period_end":   unixTime(sub.CurrentPeriodEnd),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	}

	planID := resolvePlanID(ctx, hc, log, sub)
	if planID == "" && sub.Status == stripe.SubscriptionStatusCanceled && hc.FreePriceID != "" {
		if free, err := hc.Plans.FindByPriceID(ctx, hc.FreePriceID); err == nil {
			planID = free.ID
		}
	}
	if planID != "" {
		fields["plan_id"] = planID
	}

	rows, err := hc.Subscriptions.UpdateLifecycle(ctx, sub.ID, fields)
	if err != nil {
		log.Error("update user subscription", zap.Error(err))
		return failureFromErr(event.ID, err)
	}
	if rows == 0 {
		log.Warn("subscription not found locally")
		return acknowledged(event.ID, dto.OutcomeSkipped, fmt.Sprintf("Subscription %s not found locally.", sub.ID))
	}

	log.Info("user subscription updated", zap.String("plan_id", planID))
	return processed(event.ID, nil)
}

// resolvePlanID maps the subscription's current price to a local plan, or
// "" to keep whatever plan the row already has.
func resolvePlanID(ctx context.Context, hc *HandlerContext, log *zap.Logger, sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		log.Warn("subscription has no priced item, keeping prior plan")
		return ""
	}

	priceID := sub.Items.Data[0].Price.ID
	plan, err := hc.Plans.FindByPriceID(ctx, priceID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			log.Warn("plan for subscription price not found, keeping prior plan", zap.String("price_id", priceID))
		} else {
			log.Error("resolve plan for subscription", zap.Error(err), zap.String("price_id", priceID))
		}
		return ""
	}
	return plan.ID
}

func handleSubscriptionDeleted(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	sub, err := decodeObject[stripe.Subscription](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}
	if sub.ID == "" {
		return failure(event.ID, dto.ErrorKindValidation, "Subscription ID missing from event.")
	}

	log := hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("subscription_id", sub.ID),
	)

	rows, err := hc.Subscriptions.MarkCanceled(ctx, sub.ID)
	if err != nil {
		log.Error("cancel user subscription", zap.Error(err))
		return failureFromErr(event.ID, err)
	}
	if rows == 0 {
		log.Warn("deleted subscription was never synced locally")
		return acknowledged(event.ID, dto.OutcomeSkipped, fmt.Sprintf("Subscription %s not found locally.", sub.ID))
	}

	log.Info("user subscription canceled")
	return processed(event.ID, nil)
}
