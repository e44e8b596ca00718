package handler

import (
	"io"
	"net/http"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/service"

	"github.com/labstack/echo/v4"
)

// maxWebhookBody bounds the payload read from the gateway.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// StripeWebhook answers 200 for anything the gateway should not redeliver,
// 401 for unauthenticated deliveries and 500 for transient failures.
func (h *WebhookHandler) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook body")
	}

	signature := c.Request().Header.Get(service.SignatureHeader)

	result, err := h.webhookService.HandleWebhook(ctx, signature, payload)
	if err != nil {
		if service.ErrVerification.Has(err) {
			return c.JSON(http.StatusUnauthorized, result)
		}
		return c.JSON(http.StatusBadRequest, result)
	}

	return c.JSON(webhookStatus(result), result)
}

func webhookStatus(result dto.Result) int {
	if result.Retryable() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
