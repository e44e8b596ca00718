package service

import (
	"context"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookService is the entry point for raw gateway deliveries.
type WebhookService interface {
	// HandleWebhook verifies and dispatches one delivery. A non-nil error
	// means the delivery was rejected before dispatch.
	HandleWebhook(ctx context.Context, signature string, payload []byte) (dto.Result, error)
}

type webhookServiceImpl struct {
	log        *zap.Logger
	verifier   EventVerifier
	dispatcher *Dispatcher
	events     repository.WebhookEventRepository
}

func NewWebhookService(log *zap.Logger, verifier EventVerifier, dispatcher *Dispatcher, events repository.WebhookEventRepository) WebhookService {
	return &webhookServiceImpl{
		log:        log,
		verifier:   verifier,
		dispatcher: dispatcher,
		events:     events,
	}
}

func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, signature string, payload []byte) (dto.Result, error) {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.log.Warn("webhook verification failed", zap.Error(err))
		return dto.Result{
			Success: false,
			Error:   err.Error(),
			Outcome: dto.OutcomeFailed,
			Kind:    dto.ErrorKindValidation,
		}, err
	}

	res := s.dispatcher.Dispatch(ctx, event)

	if s.events != nil {
		record := &model.WebhookEvent{
			EventID:   event.ID,
			EventType: string(event.Type),
			Livemode:  event.Livemode,
			Success:   res.Success,
			Outcome:   string(res.Outcome),
			Error:     truncate(res.Error, 1024),
		}
		if err := s.events.RecordDelivery(ctx, record); err != nil {
			s.log.Warn("record webhook delivery", zap.Error(err), zap.String("event_id", event.ID))
		}
	}

	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
