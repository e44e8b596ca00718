package service

import (
	"context"
	"fmt"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/dto"

	"go.uber.org/zap"
)

// CatalogSynchronizer reconciles the local plan table with the gateway's
// full price listing.
type CatalogSynchronizer interface {
	SyncPlans(ctx context.Context) dto.SyncResult
}

type catalogSynchronizerImpl struct {
	hc *HandlerContext
}

func NewCatalogSynchronizer(hc *HandlerContext) CatalogSynchronizer {
	return &catalogSynchronizerImpl{hc: hc}
}

func (s *catalogSynchronizerImpl) SyncPlans(ctx context.Context) dto.SyncResult {
	result := syncPrices(ctx, s.hc, "")
	s.hc.Log.Info("catalog sync finished",
		zap.Bool("success", result.Success),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

// syncPrices pages through the price listing (of one product when
// productID is set) and upserts every price, counting failures instead of
// stopping at the first one.
func syncPrices(ctx context.Context, hc *HandlerContext, productID string) dto.SyncResult {
	limit := hc.SyncPageSize
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result dto.SyncResult
	listed := true
	cursor := ""
	for {
		page, err := hc.Gateway.ListPrices(ctx, client.PriceQuery{
			ProductID:     productID,
			StartingAfter: cursor,
			Limit:         limit,
		})
		if err != nil {
			hc.Log.Error("list prices", zap.Error(err), zap.String("starting_after", cursor))
			result.Errors = append(result.Errors, fmt.Sprintf("list prices: %v", err))
			listed = false
			break
		}

		for _, price := range page.Prices {
			result.Total++
			if _, err := upsertPlanFromPrice(ctx, hc, price, unitAmountKnown(price, nil)); err != nil {
				hc.Log.Warn("sync price", zap.Error(err), zap.String("price_id", price.ID))
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", price.ID, err))
				continue
			}
			result.Succeeded++
		}

		if !page.HasMore || len(page.Prices) == 0 {
			break
		}
		cursor = page.Prices[len(page.Prices)-1].ID
	}

	result.Success = listed && result.Failed == 0
	return result
}
