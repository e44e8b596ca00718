package service

import (
	"context"
	"fmt"
	"net/url"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	msgCurrencyMismatch  = "Requested currency does not match item currency."
	msgWalletMissing     = "User/Organization wallet not found. A wallet must be provisioned before payment."
	msgPlanMisconfigured = "Service offering configuration error for the selected item."
)

// PaymentService starts purchases: it records a PENDING transaction and
// opens a hosted checkout session for it.
type PaymentService interface {
	InitiatePayment(ctx context.Context, req dto.PurchaseRequest) (dto.InitiationResult, error)
}

type paymentServiceImpl struct {
	log          *zap.Logger
	gateway      client.GatewayClient
	transactions repository.PaymentTransactionRepository
	plans        repository.SubscriptionPlanRepository
	wallets      WalletService
	siteURL      string
}

func NewPaymentService(
	log *zap.Logger,
	gateway client.GatewayClient,
	transactions repository.PaymentTransactionRepository,
	plans repository.SubscriptionPlanRepository,
	wallets WalletService,
	siteURL string,
) PaymentService {
	return &paymentServiceImpl{
		log:          log,
		gateway:      gateway,
		transactions: transactions,
		plans:        plans,
		wallets:      wallets,
		siteURL:      strings.TrimRight(siteURL, "/"),
	}
}

func sessionMode(planType model.PlanType) (stripe.CheckoutSessionMode, model.PurchaseMode, bool) {
	switch planType {
	case model.PlanTypeOneTimePurchase:
		return stripe.CheckoutSessionModePayment, model.PurchaseModeOneTime, true
	case model.PlanTypeSubscription:
		return stripe.CheckoutSessionModeSubscription, model.PurchaseModeSubscription, true
	default:
		return "", "", false
	}
}

func (s *paymentServiceImpl) InitiatePayment(ctx context.Context, req dto.PurchaseRequest) (dto.InitiationResult, error) {
	log := s.log.With(
		zap.String("user_id", req.UserID),
		zap.String("item_id", req.ItemID),
		zap.Int64("quantity", req.Quantity),
	)

	if req.UserID == "" {
		return dto.InitiationResult{Error: "User ID is required."}, ErrValidation.New("user id is required")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	plan, err := s.plans.FindActiveByPriceID(ctx, req.ItemID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			message := fmt.Sprintf("Item ID %s not found or is not active.", req.ItemID)
			return dto.InitiationResult{Error: message}, repository.ErrNotFound.New("%s", message)
		}
		log.Error("load plan", zap.Error(err))
		return dto.InitiationResult{Error: err.Error()}, err
	}

	if plan.TokensToAward == nil || plan.Amount.IsZero() || plan.Currency == "" {
		log.Error("plan is missing tokens, amount or currency", zap.String("plan_id", plan.ID))
		return dto.InitiationResult{Error: msgPlanMisconfigured}, ErrConfiguration.New("%s", msgPlanMisconfigured)
	}

	mode, purchaseMode, ok := sessionMode(plan.PlanType)
	if !ok {
		message := fmt.Sprintf("Invalid or missing plan_type: '%s' received for item ID: %s. Cannot determine Stripe session mode.",
			plan.PlanType, req.ItemID)
		log.Error("unknown plan type", zap.String("plan_type", string(plan.PlanType)))
		return dto.InitiationResult{Error: message}, ErrConfiguration.New("%s", message)
	}

	if !strings.EqualFold(req.Currency, plan.Currency) {
		return dto.InitiationResult{Error: msgCurrencyMismatch}, ErrValidation.New("%s", msgCurrencyMismatch)
	}

	wallet, err := s.wallets.FindForContext(ctx, req.UserID, req.OrganizationID)
	if err != nil {
		if repository.ErrNotFound.Has(err) {
			return dto.InitiationResult{Error: msgWalletMissing}, repository.ErrNotFound.New("%s", msgWalletMissing)
		}
		log.Error("load wallet", zap.Error(err))
		return dto.InitiationResult{Error: err.Error()}, err
	}

	tokens := *plan.TokensToAward * req.Quantity

	metadata := datatypes.JSONMap{
		txMetaItemID:        req.ItemID,
		"quantity":          req.Quantity,
		"requestedCurrency": strings.ToLower(req.Currency),
	}
	for k, v := range req.Metadata {
		metadata["user_"+k] = v
	}

	txn := &model.PaymentTransaction{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		OrganizationID:   req.OrganizationID,
		TargetWalletID:   wallet.WalletID,
		PaymentGatewayID: model.GatewayStripe,
		PurchaseMode:     purchaseMode,
		AmountRequested:  plan.Amount.Mul(decimal.NewFromInt(req.Quantity)),
		Currency:         plan.Currency,
		TokensToAward:    tokens,
		Status:           model.PaymentStatusPending,
		Metadata:         metadata,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		log.Error("create pending payment", zap.Error(err))
		return dto.InitiationResult{Error: err.Error()}, err
	}
	log = log.With(zap.String("transaction_id", txn.ID))

	session, err := s.gateway.CreateCheckoutSession(ctx, s.checkoutParams(txn, plan, mode, req, tokens))
	if err != nil {
		log.Error("create checkout session", zap.Error(err))
		_, terr := s.transactions.Transition(ctx, txn.ID, model.PaymentStatusFailed, map[string]interface{}{
			"metadata": withMetadata(withMetadata(txn.Metadata,
				"error_message", "Failed to create Stripe Checkout Session."),
				"adapter_error_details", err.Error()),
		})
		if terr != nil {
			log.Error("mark payment failed", zap.Error(terr))
		}
		return dto.InitiationResult{
			TransactionID: txn.ID,
			Error:         "Failed to initiate payment with the payment gateway.",
		}, err
	}

	if _, err := s.transactions.AttachGatewayTransactionID(ctx, txn.ID, session.ID); err != nil {
		// the session id is written again on completion
		log.Warn("attach checkout session id", zap.Error(err), zap.String("session_id", session.ID))
	}

	log.Info("checkout session created", zap.String("session_id", session.ID), zap.Int64("tokens", tokens))
	return dto.InitiationResult{
		Success:                     true,
		TransactionID:               txn.ID,
		PaymentGatewayTransactionID: session.ID,
		RedirectURL:                 session.URL,
		ClientSecret:                session.ClientSecret,
	}, nil
}

func (s *paymentServiceImpl) checkoutParams(txn *model.PaymentTransaction, plan *model.SubscriptionPlan, mode stripe.CheckoutSessionMode, req dto.PurchaseRequest, tokens int64) *stripe.CheckoutSessionParams {
	sessionMetadata := map[string]string{
		metaInternalPaymentID: internalPaymentIDPrefix + txn.ID,
		metaUserID:            req.UserID,
		metaItemID:            req.ItemID,
		metaTokensToAward:     strconv.FormatInt(tokens, 10),
	}
	if req.OrganizationID != nil {
		sessionMetadata[metaOrganizationID] = *req.OrganizationID
	}

	successURL := fmt.Sprintf("%s/subscription/success?session_id={CHECKOUT_SESSION_ID}&payment_id=%s",
		s.siteURL, url.QueryEscape(txn.ID))

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(s.siteURL + "/subscription"),
		ClientReferenceID: stripe.String(req.UserID),
	}
	for k, v := range sessionMetadata {
		params.AddMetadata(k, v)
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: sessionMetadata,
		}
	}
	params.SetIdempotencyKey("checkout_" + txn.ID)

	return params
}
