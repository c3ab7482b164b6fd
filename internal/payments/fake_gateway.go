package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// Payment method ids that make FakeGateway simulate processor outcomes.
const (
	FakeMethodDeclined     = "pm_card_chargeDeclined"
	FakeMethodRequires3DS  = "pm_card_authenticationRequired"
	FakeMethodProcessing   = "pm_card_processing"
	defaultFakeMethodBrand = "visa"
)

// FakeGateway is an in-memory processor for development and tests.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and never enabled
// in production.
type FakeGateway struct {
	mu        sync.Mutex
	intents   map[string]*PaymentIntent
	methods   map[string][]PaymentMethod
	idempKeys map[string]string
	logger    *logging.Logger
}

var _ Gateway = (*FakeGateway)(nil)

func NewFakeGateway(logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		intents:   make(map[string]*PaymentIntent),
		methods:   make(map[string][]PaymentMethod),
		idempKeys: make(map[string]string),
		logger:    logger,
	}
}

func (g *FakeGateway) CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if params.IdempotencyKey != "" {
		if id, ok := g.idempKeys[params.IdempotencyKey]; ok {
			out := *g.intents[id]
			return &out, nil
		}
	}
	if params.Confirm && params.PaymentMethodID == FakeMethodDeclined {
		return nil, fmt.Errorf("%w: your card was declined", ErrCardDeclined)
	}

	id := "pi_fake_" + uuid.New().String()[:12]
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	intent := &PaymentIntent{
		ID:              id,
		ClientSecret:    id + "_secret_" + uuid.New().String()[:8],
		AmountCents:     params.AmountCents,
		Currency:        currency,
		Status:          StatusRequiresPaymentMethod,
		CustomerID:      params.CustomerID,
		PaymentMethodID: params.PaymentMethodID,
		Metadata:        copyMetadata(params.Metadata),
	}
	if params.Confirm {
		switch params.PaymentMethodID {
		case FakeMethodRequires3DS:
			intent.Status = StatusRequiresAction
		case FakeMethodProcessing:
			intent.Status = StatusProcessing
		default:
			intent.Status = StatusSucceeded
		}
	}
	g.intents[id] = intent
	if params.IdempotencyKey != "" {
		g.idempKeys[params.IdempotencyKey] = id
	}
	g.logger.Debug("fake payment intent created", "payment_intent_id", id, "status", intent.Status, "amount_cents", params.AmountCents)

	out := *intent
	return &out, nil
}

func (g *FakeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	out := *intent
	return &out, nil
}

// SetStatus forces an intent into a status, as a client-side confirmation would.
func (g *FakeGateway) SetStatus(intentID string, status IntentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	intent.Status = status
	return nil
}

func (g *FakeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PaymentMethod{}, g.methods[customerID]...), nil
}

func (g *FakeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, pm := range g.methods[customerID] {
		if pm.ID == paymentMethodID {
			out := pm
			return &out, nil
		}
	}
	now := time.Now().UTC()
	pm := PaymentMethod{
		ID:      paymentMethodID,
		Type:    "card",
		Card:    &CardDetails{Brand: defaultFakeMethodBrand, Last4: "4242", ExpMonth: int(now.Month()), ExpYear: now.Year() + 3},
		Created: now.Unix(),
	}
	g.methods[customerID] = append(g.methods[customerID], pm)
	out := pm
	return &out, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
