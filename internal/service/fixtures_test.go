package service

import (
	"context"
	"encoding/json"
	"errors"
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/model"
	"payment-gateway-ledger/internal/repository"
	"payment-gateway-ledger/internal/testutil"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	testUserID     = "user-1"
	testFreePrice  = "price_FREE"
	testSessionURL = "https://checkout.stripe.test/c/pay/cs_test_1"
)

// fakeGateway serves canned gateway objects and records what was asked.
type fakeGateway struct {
	mu sync.Mutex

	subscriptions map[string]*stripe.Subscription
	products      map[string]*stripe.Product
	prices        []*stripe.Price

	listErr    error
	sessionErr error

	calls    int
	sessions []*stripe.CheckoutSessionParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscriptions: map[string]*stripe.Subscription{},
		products:      map[string]*stripe.Product{},
	}
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, client.ErrGatewayResourceMissing.New("no such subscription: %s", subscriptionID)
	}
	return sub, nil
}

func (g *fakeGateway) GetProduct(ctx context.Context, productID string) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	product, ok := g.products[productID]
	if !ok {
		return nil, client.ErrGatewayResourceMissing.New("no such product: %s", productID)
	}
	return product, nil
}

func (g *fakeGateway) ListPrices(ctx context.Context, query client.PriceQuery) (*client.PricePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	if g.listErr != nil {
		return nil, g.listErr
	}

	var matching []*stripe.Price
	for _, price := range g.prices {
		if query.ProductID != "" && (price.Product == nil || price.Product.ID != query.ProductID) {
			continue
		}
		matching = append(matching, price)
	}

	start := 0
	if query.StartingAfter != "" {
		for i, price := range matching {
			if price.ID == query.StartingAfter {
				start = i + 1
				break
			}
		}
	}

	end := start + int(query.Limit)
	if end > len(matching) {
		end = len(matching)
	}
	return &client.PricePage{
		Prices:  matching[start:end],
		HasMore: end < len(matching),
	}, nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	g.sessions = append(g.sessions, params)
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return &stripe.CheckoutSession{
		ID:           "cs_test_1",
		URL:          testSessionURL,
		ClientSecret: "cs_test_1_secret",
	}, nil
}

// failingWallets is a WalletService whose grants always fail.
type failingWallets struct {
	WalletService
}

func (failingWallets) AwardForPayment(ctx context.Context, txn *model.PaymentTransaction, amount int64, notes string) (*model.TokenWalletTransaction, error) {
	return nil, errors.New("wallet ledger unavailable")
}

// failingSubscriptions is a subscription store whose upserts always fail.
type failingSubscriptions struct {
	repository.UserSubscriptionRepository
}

func (failingSubscriptions) Upsert(ctx context.Context, sub *model.UserSubscription) error {
	return repository.ErrStore.New("subscription store unavailable")
}

// harness wires real repositories over a private in-memory database.
type harness struct {
	t       *testing.T
	db      *gorm.DB
	gateway *fakeGateway
	hc      *HandlerContext

	transactions  repository.PaymentTransactionRepository
	plans         repository.SubscriptionPlanRepository
	subscriptions repository.UserSubscriptionRepository
	wallets       repository.WalletRepository
	events        repository.WebhookEventRepository

	wallet *model.TokenWallet
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithLogger(t, zaptest.NewLogger(t))
}

func newHarnessWithLogger(t *testing.T, log *zap.Logger) *harness {
	db := testutil.NewDB(t)

	h := &harness{
		t:             t,
		db:            db,
		gateway:       newFakeGateway(),
		transactions:  repository.NewPaymentTransactionRepository(db),
		plans:         repository.NewSubscriptionPlanRepository(db),
		subscriptions: repository.NewUserSubscriptionRepository(db),
		wallets:       repository.NewWalletRepository(db),
		events:        repository.NewWebhookEventRepository(db),
	}

	h.hc = &HandlerContext{
		Log:           log,
		Gateway:       h.gateway,
		Transactions:  h.transactions,
		Plans:         h.plans,
		Subscriptions: h.subscriptions,
		Wallets:       NewWalletService(log, h.wallets),
		FreePriceID:   testFreePrice,
		SyncPageSize:  100,
	}

	userID := testUserID
	h.wallet = &model.TokenWallet{UserID: &userID}
	require.NoError(t, h.wallets.Create(context.Background(), h.wallet))

	return h
}

func (h *harness) pending(id string, mode model.PurchaseMode, tokens int64) *model.PaymentTransaction {
	txn := &model.PaymentTransaction{
		ID:               id,
		UserID:           testUserID,
		TargetWalletID:   h.wallet.WalletID,
		PaymentGatewayID: model.GatewayStripe,
		PurchaseMode:     mode,
		AmountRequested:  decimal.RequireFromString("9.99"),
		Currency:         "usd",
		TokensToAward:    tokens,
		Status:           model.PaymentStatusPending,
		Metadata:         datatypes.JSONMap{txMetaItemID: "price_pro"},
	}
	require.NoError(h.t, h.transactions.Create(context.Background(), txn))
	return txn
}

func (h *harness) plan(priceID, productID string, planType model.PlanType, tokens int64) *model.SubscriptionPlan {
	plan := &model.SubscriptionPlan{
		ID:              uuid.NewString(),
		StripePriceID:   priceID,
		StripeProductID: productID,
		ItemIDInternal:  priceID,
		Name:            "Pro",
		Description:     datatypes.NewJSONType(model.PlanDescription{Subtitle: "Pro", Features: []string{}}),
		Amount:          decimal.RequireFromString("9.99"),
		Currency:        "usd",
		PlanType:        planType,
		Active:          true,
		TokensToAward:   &tokens,
	}
	require.NoError(h.t, h.plans.Upsert(context.Background(), plan))
	return plan
}

func (h *harness) transaction(id string) *model.PaymentTransaction {
	txn, err := h.transactions.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return txn
}

func (h *harness) balance() int64 {
	wallet, err := h.wallets.FindByID(context.Background(), h.wallet.WalletID)
	require.NoError(h.t, err)
	return wallet.Balance
}

func (h *harness) grants(txnID string) int64 {
	count, err := h.wallets.CountGrants(context.Background(), txnID, model.RelatedEntityPaymentTransaction)
	require.NoError(h.t, err)
	return count
}

func (h *harness) planCount() int64 {
	var count int64
	require.NoError(h.t, h.db.Model(&model.SubscriptionPlan{}).Count(&count).Error)
	return count
}

func newEvent(t *testing.T, id string, eventType stripe.EventType, object interface{}) stripe.Event {
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func checkoutObject(sessionID string, mode stripe.CheckoutSessionMode, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":       sessionID,
		"object":   "checkout.session",
		"mode":     string(mode),
		"metadata": metadata,
	}
}
