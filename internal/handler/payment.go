package handler

import (
	"net/http"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/middleware"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := c.Get(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}

	var req dto.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.UserID = userID

	result, err := h.paymentService.InitiatePayment(ctx, req)
	if err != nil {
		return c.JSON(initiationStatus(err), result)
	}

	return c.JSON(http.StatusOK, result)
}

func initiationStatus(err error) int {
	switch {
	case service.ErrValidation.Has(err):
		return http.StatusBadRequest
	case repository.ErrNotFound.Has(err):
		return http.StatusNotFound
	case service.ErrConfiguration.Has(err):
		return http.StatusUnprocessableEntity
	case client.ErrGateway.Has(err), client.ErrGatewayResourceMissing.Has(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
