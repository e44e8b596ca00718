package service

import (
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// EventVerifier authenticates a raw webhook delivery.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

type stripeVerifierImpl struct {
	secret    string
	tolerance time.Duration
}

// NewEventVerifier checks signatures against secret, rejecting deliveries
// signed more than tolerance ago. Zero tolerance uses the gateway default.
func NewEventVerifier(secret string, tolerance time.Duration) EventVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &stripeVerifierImpl{
		secret:    secret,
		tolerance: tolerance,
	}
}

func (v *stripeVerifierImpl) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if signatureHeader == "" {
		return stripe.Event{}, ErrVerification.New("Webhook signature missing.")
	}

	// the payload schema is treated as opaque, so API version drift is accepted
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ErrVerification.Wrap(err)
	}

	return event, nil
}
