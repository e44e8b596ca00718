package handler

import (
	"net/http"
	"payment-gateway-ledger/internal/service"

	"github.com/labstack/echo/v4"
)

type CatalogHandler struct {
	synchronizer service.CatalogSynchronizer
}

func NewCatalogHandler(synchronizer service.CatalogSynchronizer) *CatalogHandler {
	return &CatalogHandler{
		synchronizer: synchronizer,
	}
}

// SyncPlans runs a full catalog reconciliation and reports its counts.
func (h *CatalogHandler) SyncPlans(c echo.Context) error {
	result := h.synchronizer.SyncPlans(c.Request().Context())
	if !result.Success {
		return c.JSON(http.StatusBadGateway, result)
	}
	return c.JSON(http.StatusOK, result)
}
