package client

import (
	"context"
	"errors"
	"payment-gateway-ledger/internal/config"

	"github.com/stripe/stripe-go/v81"
	stripeapi "github.com/stripe/stripe-go/v81/client"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// ErrGateway wraps every failed gateway call.
	ErrGateway = errs.Class("stripe")
	// ErrGatewayResourceMissing marks objects the gateway reports as gone.
	ErrGatewayResourceMissing = errs.Class("stripe resource missing")
)

// PriceQuery selects one page of the gateway price listing.
type PriceQuery struct {
	ProductID     string // empty lists every product
	StartingAfter string // empty for the first page
	Limit         int64
}

// PricePage is one page of the gateway price listing.
type PricePage struct {
	Prices  []*stripe.Price
	HasMore bool
}

// GatewayClient is the subset of the gateway API the ledger talks to.
type GatewayClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	GetProduct(ctx context.Context, productID string) (*stripe.Product, error)
	// ListPrices returns one page of active and inactive prices.
	ListPrices(ctx context.Context, query PriceQuery) (*PricePage, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClientImpl struct {
	api *stripeapi.API
}

// NewStripeClient builds a gateway client. Network retries are disabled:
// a failed call surfaces to the caller as is.
func NewStripeClient(log *zap.Logger, cfg config.Stripe) GatewayClient {
	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     log.Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}

	api := stripeapi.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &stripeClientImpl{api: api}
}

func (c *stripeClientImpl) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sub, err := c.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, gatewayError(err)
	}
	return sub, nil
}

func (c *stripeClientImpl) GetProduct(ctx context.Context, productID string) (*stripe.Product, error) {
	product, err := c.api.Products.Get(productID, &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, gatewayError(err)
	}
	return product, nil
}

func (c *stripeClientImpl) ListPrices(ctx context.Context, query PriceQuery) (*PricePage, error) {
	params := &stripe.PriceListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(query.Limit)
	params.Single = true
	if query.StartingAfter != "" {
		params.StartingAfter = stripe.String(query.StartingAfter)
	}
	if query.ProductID != "" {
		params.Product = stripe.String(query.ProductID)
	}

	page := &PricePage{}
	iter := c.api.Prices.List(params)
	for iter.Next() {
		page.Prices = append(page.Prices, iter.Price())
	}
	if err := iter.Err(); err != nil {
		return nil, gatewayError(err)
	}
	if meta := iter.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}

	return page, nil
}

func (c *stripeClientImpl) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayError(err)
	}
	return session, nil
}

func gatewayError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return ErrGatewayResourceMissing.Wrap(err)
	}
	return ErrGateway.Wrap(err)
}
