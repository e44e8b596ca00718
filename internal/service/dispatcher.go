package service

import (
	"context"
	"fmt"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// HandlerFunc applies one verified event to the ledger.
type HandlerFunc func(ctx context.Context, hc *HandlerContext, event stripe.Event) dto.Result

// Dispatcher routes verified events to their handler by type.
type Dispatcher struct {
	hc       *HandlerContext
	handlers map[stripe.EventType]HandlerFunc
}

// NewDispatcher returns a dispatcher with every supported event registered.
func NewDispatcher(hc *HandlerContext) *Dispatcher {
	d := &Dispatcher{
		hc:       hc,
		handlers: make(map[stripe.EventType]HandlerFunc),
	}

	d.Register(stripe.EventTypeCheckoutSessionCompleted, handleCheckoutSessionCompleted)
	d.Register(stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, handleCheckoutSessionCompleted)
	d.Register(stripe.EventTypeCheckoutSessionAsyncPaymentFailed, handleCheckoutSessionClosed(model.PaymentStatusFailed))
	d.Register(stripe.EventTypeCheckoutSessionExpired, handleCheckoutSessionClosed(model.PaymentStatusExpired))

	d.Register(stripe.EventTypeInvoicePaymentSucceeded, handleInvoicePaymentSucceeded)
	d.Register(stripe.EventTypeInvoicePaymentFailed, handleInvoicePaymentFailed)

	d.Register(stripe.EventTypeCustomerSubscriptionUpdated, handleSubscriptionUpdated)
	d.Register(stripe.EventTypeCustomerSubscriptionDeleted, handleSubscriptionDeleted)

	d.Register(stripe.EventTypeProductCreated, handleProductCreated)
	d.Register(stripe.EventTypeProductUpdated, handleProductUpdated)
	d.Register(stripe.EventTypeProductDeleted, handleProductDeleted)
	d.Register(stripe.EventTypePriceCreated, handlePriceCreated)
	d.Register(stripe.EventTypePriceUpdated, handlePriceUpdated)
	d.Register(stripe.EventTypePriceDeleted, handlePriceDeleted)

	return d
}

func (d *Dispatcher) Register(eventType stripe.EventType, fn HandlerFunc) {
	d.handlers[eventType] = fn
}

// Dispatch runs the handler for event.Type. Unregistered types are
// acknowledged as no-ops, and a panicking handler yields a failure result.
func (d *Dispatcher) Dispatch(ctx context.Context, event stripe.Event) (res dto.Result) {
	log := d.hc.Log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)

	fn, ok := d.handlers[event.Type]
	if !ok {
		log.Info("ignoring unhandled webhook event type")
		return acknowledged(event.ID, dto.OutcomeIgnored,
			fmt.Sprintf("Webhook event type %s ignored.", event.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("webhook handler panicked", zap.Any("panic", r))
			res = failure(event.ID, dto.ErrorKindInternal, fmt.Sprintf("unexpected error handling %s", event.Type))
		}
	}()

	res = fn(ctx, d.hc, event)
	if res.Success {
		log.Info("webhook event handled",
			zap.String("outcome", string(res.Outcome)),
			zap.String("transaction_id", res.TransactionID),
		)
	} else {
		log.Warn("webhook event failed",
			zap.String("error", res.Error),
			zap.String("error_kind", string(res.Kind)),
			zap.String("transaction_id", res.TransactionID),
		)
	}
	return res
}
