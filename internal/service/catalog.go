package service

import (
	"context"
	"encoding/json"
	"fmt"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const metaItemIDInternal = "item_id_internal"

const (
	msgFreePriceIgnored   = "Price '%s' event ignored as per specific rule."
	msgFreeProductIgnored = "Product '%s' update event ignored."
)

// freePriceIgnored acknowledges catalog events that target the free price
// sentinel without touching the plan table.
func freePriceIgnored(hc *HandlerContext, log *zap.Logger, id, format string) (dto.Result, bool) {
	if hc.FreePriceID == "" || id != hc.FreePriceID {
		return dto.Result{}, false
	}
	log.Info("ignoring catalog event for the free price")
	return acknowledged(id, dto.OutcomeIgnored, fmt.Sprintf(format, id)), true
}

// unitAmountKnown reports whether the price carries a flat unit amount.
// Event payloads are probed directly, since a null unit_amount decodes to 0.
func unitAmountKnown(price *stripe.Price, raw json.RawMessage) bool {
	if len(raw) > 0 {
		var probe struct {
			UnitAmount *int64 `json:"unit_amount"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return false
		}
		return probe.UnitAmount != nil
	}
	return price.BillingScheme != stripe.PriceBillingSchemeTiered && price.CustomUnitAmount == nil
}

// parseDescription turns a product description into the plan's structured
// description. A JSON array of strings becomes the feature list.
func parseDescription(productName, description string) model.PlanDescription {
	desc := model.PlanDescription{Subtitle: productName, Features: []string{}}

	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return desc
	}

	if strings.HasPrefix(trimmed, "[") {
		var features []string
		if err := json.Unmarshal([]byte(trimmed), &features); err == nil {
			desc.Features = features
			return desc
		}
	}

	desc.Subtitle = description
	return desc
}

// parseTokensToAward reads tokens_to_award from the first metadata map that
// has it. ok is false when the key is absent or not an integer.
func parseTokensToAward(log *zap.Logger, sources ...map[string]string) (int64, bool) {
	for _, metadata := range sources {
		raw, found := metadata[metaTokensToAward]
		if !found {
			continue
		}
		tokens, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || tokens < 0 {
			log.Warn("invalid tokens_to_award metadata, ignoring", zap.String("value", raw))
			return 0, false
		}
		return tokens, true
	}
	return 0, false
}

func recurrenceFields(price *stripe.Price) (model.PlanType, *string, *int64) {
	if price.Recurring == nil && price.Type != stripe.PriceTypeRecurring {
		return model.PlanTypeOneTimePurchase, nil, nil
	}
	if price.Recurring == nil {
		return model.PlanTypeSubscription, nil, nil
	}
	interval := string(price.Recurring.Interval)
	count := price.Recurring.IntervalCount
	return model.PlanTypeSubscription, &interval, &count
}

func planFromPrice(log *zap.Logger, price *stripe.Price, product *stripe.Product) *model.SubscriptionPlan {
	planType, interval, intervalCount := recurrenceFields(price)

	var tokens *int64
	if v, ok := parseTokensToAward(log, price.Metadata, product.Metadata); ok {
		tokens = &v
	} else {
		tokens = int64Ptr(0)
	}

	itemID := price.Metadata[metaItemIDInternal]
	if itemID == "" {
		itemID = price.ID
	}

	name := product.Name
	if name == "" {
		name = price.Nickname
	}
	if name == "" {
		name = price.ID
	}

	metadata := datatypes.JSONMap{}
	for k, v := range price.Metadata {
		metadata[k] = v
	}

	return &model.SubscriptionPlan{
		ID:              uuid.NewString(),
		StripePriceID:   price.ID,
		StripeProductID: product.ID,
		ItemIDInternal:  itemID,
		Name:            name,
		Description:     datatypes.NewJSONType(parseDescription(product.Name, product.Description)),
		Amount:          decimal.New(price.UnitAmount, -2),
		Currency:        strings.ToLower(string(price.Currency)),
		Interval:        interval,
		IntervalCount:   intervalCount,
		PlanType:        planType,
		Active:          price.Active,
		TokensToAward:   tokens,
		Metadata:        metadata,
	}
}

// upsertPlanFromPrice mirrors one gateway price into the catalog. It is
// shared by price.created and the catalog synchronizer.
func upsertPlanFromPrice(ctx context.Context, hc *HandlerContext, price *stripe.Price, hasUnitAmount bool) (dto.Outcome, error) {
	if hc.FreePriceID != "" && price.ID == hc.FreePriceID {
		return dto.OutcomeIgnored, nil
	}
	if price.Product == nil || price.Product.ID == "" {
		return "", ErrValidation.New("price %s has no product reference", price.ID)
	}
	if !hasUnitAmount {
		return "", ErrValidation.New("price %s has a null unit_amount", price.ID)
	}

	log := hc.Log.With(zap.String("price_id", price.ID), zap.String("product_id", price.Product.ID))

	product, err := hc.Gateway.GetProduct(ctx, price.Product.ID)
	if err != nil {
		if client.ErrGatewayResourceMissing.Has(err) {
			log.Warn("product for price is deleted, skipping")
			return dto.OutcomeSkipped, nil
		}
		return "", err
	}
	if product.Deleted {
		log.Warn("product for price is deleted, skipping")
		return dto.OutcomeSkipped, nil
	}

	plan := planFromPrice(log, price, product)
	if err := hc.Plans.Upsert(ctx, plan); err != nil {
		return "", err
	}

	log.Info("plan upserted", zap.String("plan_type", string(plan.PlanType)), zap.Bool("active", plan.Active))
	return dto.OutcomeProcessed, nil
}

func handlePriceCreated(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	price, err := decodeObject[stripe.Price](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("price_id", price.ID))
	if res, ignored := freePriceIgnored(hc, log, price.ID, msgFreePriceIgnored); ignored {
		return res
	}

	outcome, err := upsertPlanFromPrice(ctx, hc, price, unitAmountKnown(price, event.Data.Raw))
	if err != nil {
		log.Error("upsert plan from price", zap.Error(err))
		return failureFromErr(price.ID, err)
	}

	res := processed(price.ID, nil)
	res.Outcome = outcome
	return res
}

func handlePriceUpdated(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	price, err := decodeObject[stripe.Price](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("price_id", price.ID))
	if res, ignored := freePriceIgnored(hc, log, price.ID, msgFreePriceIgnored); ignored {
		return res
	}

	planType, interval, intervalCount := recurrenceFields(price)
	metadata := datatypes.JSONMap{}
	for k, v := range price.Metadata {
		metadata[k] = v
	}

	fields := map[string]interface{}{
		"active":         price.Active,
		"plan_type":      planType,
		"interval":       interval,
		"interval_count": intervalCount,
		"metadata":       metadata,
	}
	if unitAmountKnown(price, event.Data.Raw) {
		fields["amount"] = decimal.New(price.UnitAmount, -2)
		fields["currency"] = strings.ToLower(string(price.Currency))
	}
	if tokens, ok := parseTokensToAward(log, price.Metadata); ok {
		fields["tokens_to_award"] = tokens
	}

	rows, err := hc.Plans.UpdateByPriceID(ctx, price.ID, fields)
	if err != nil {
		log.Error("update plan from price", zap.Error(err))
		return failureFromErr(price.ID, err)
	}
	if rows == 0 {
		log.Warn("no local plan for updated price")
		return acknowledged(price.ID, dto.OutcomeSkipped, fmt.Sprintf("No plan found for price %s.", price.ID))
	}

	log.Info("plan updated from price", zap.Bool("active", price.Active))
	return processed(price.ID, nil)
}

func handlePriceDeleted(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	price, err := decodeObject[stripe.Price](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("price_id", price.ID))
	if res, ignored := freePriceIgnored(hc, log, price.ID, msgFreePriceIgnored); ignored {
		return res
	}

	rows, err := hc.Plans.DeactivateByPriceID(ctx, price.ID)
	if err != nil {
		log.Error("deactivate plan", zap.Error(err))
		return failureFromErr(price.ID, err)
	}
	if rows == 0 {
		log.Warn("no local plan for deleted price")
		return acknowledged(price.ID, dto.OutcomeSkipped, fmt.Sprintf("No plan found for price %s.", price.ID))
	}

	log.Info("plan deactivated")
	return processed(price.ID, nil)
}

// handleProductCreated mirrors every price of the new product.
func handleProductCreated(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	product, err := decodeObject[stripe.Product](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("product_id", product.ID))
	if res, ignored := freePriceIgnored(hc, log, product.ID, msgFreeProductIgnored); ignored {
		return res
	}

	result := syncPrices(ctx, hc, product.ID)
	if !result.Success {
		log.Error("sync prices for new product", zap.Strings("errors", result.Errors))
		return failure(product.ID, dto.ErrorKindDownstream,
			fmt.Sprintf("Product %s created, but %d of %d prices failed to sync: %s",
				product.ID, result.Failed, result.Total, strings.Join(result.Errors, "; ")))
	}

	log.Info("prices synced for new product", zap.Int("prices", result.Total))
	return processed(product.ID, nil)
}

func handleProductUpdated(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	product, err := decodeObject[stripe.Product](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("product_id", product.ID))
	if res, ignored := freePriceIgnored(hc, log, product.ID, msgFreeProductIgnored); ignored {
		return res
	}

	fields := map[string]interface{}{
		"active":      product.Active,
		"description": datatypes.NewJSONType(parseDescription(product.Name, product.Description)),
	}
	if product.Name != "" {
		fields["name"] = product.Name
	}

	rows, err := hc.Plans.UpdateByProductID(ctx, product.ID, hc.FreePriceID, fields)
	if err != nil {
		log.Error("update plans for product", zap.Error(err))
		return failureFromErr(product.ID, err)
	}
	if rows == 0 {
		log.Warn("no local plans for updated product")
		return acknowledged(product.ID, dto.OutcomeSkipped, fmt.Sprintf("No plans found for product %s.", product.ID))
	}

	log.Info("plans updated for product", zap.Int64("plans", rows), zap.Bool("active", product.Active))
	return processed(product.ID, nil)
}

func handleProductDeleted(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result {
	product, err := decodeObject[stripe.Product](event)
	if err != nil {
		return failureFromErr(event.ID, err)
	}

	log := hc.Log.With(zap.String("event_id", event.ID), zap.String("product_id", product.ID))
	if res, ignored := freePriceIgnored(hc, log, product.ID, msgFreeProductIgnored); ignored {
		return res
	}

	rows, err := hc.Plans.DeactivateByProductID(ctx, product.ID, hc.FreePriceID)
	if err != nil {
		log.Error("deactivate plans for product", zap.Error(err))
		return failureFromErr(product.ID, err)
	}
	if rows == 0 {
		log.Warn("no local plans for deleted product")
		return acknowledged(product.ID, dto.OutcomeSkipped, fmt.Sprintf("No plans found for product %s.", product.ID))
	}

	log.Info("plans deactivated for product", zap.Int64("plans", rows))
	return processed(product.ID, nil)
}
