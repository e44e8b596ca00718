package server

import (
	"context"
	"net/http"
	"payment-gateway-ledger/internal/handler"
	authmw "payment-gateway-ledger/internal/middleware"
	"payment-gateway-ledger/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Services struct {
	Webhook   service.WebhookService
	Payment   service.PaymentService
	Catalog   service.CatalogSynchronizer
	JWTSecret string
}

type Server struct {
	echo           *echo.Echo
	log            *zap.Logger
	jwtSecret      string
	webhookHandler *handler.WebhookHandler
	paymentHandler *handler.PaymentHandler
	catalogHandler *handler.CatalogHandler
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func NewServer(log *zap.Logger, services Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		log:            log,
		jwtSecret:      services.JWTSecret,
		webhookHandler: handler.NewWebhookHandler(services.Webhook),
		paymentHandler: handler.NewPaymentHandler(services.Payment),
		catalogHandler: handler.NewCatalogHandler(services.Catalog),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- gateway webhooks --------
	api.POST("/webhooks/stripe", s.webhookHandler.StripeWebhook)

	// -------- authenticated --------
	auth := authmw.AuthMiddleware(s.jwtSecret)
	api.POST("/payments/initiate", s.paymentHandler.InitiatePayment, auth)
	api.POST("/admin/catalog/sync", s.catalogHandler.SyncPlans, auth)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
