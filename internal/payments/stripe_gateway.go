package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

var stripeTracer = otel.Tracer("leadmarket.internal.payments.stripe")

// StripeGateway talks to the Stripe REST API with form-encoded requests.
type StripeGateway struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey string, logger *logging.Logger) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeGateway{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeGateway) WithBaseURL(baseURL string) *StripeGateway {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun makes intent creation succeed locally without calling Stripe.
func (s *StripeGateway) WithDryRun(enabled bool) *StripeGateway {
	s.dryRun = enabled
	return s
}

func (s *StripeGateway) WithHTTPClient(client *http.Client) *StripeGateway {
	if client != nil {
		s.httpClient = client
	}
	return s
}

func (s *StripeGateway) CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("leadmarket.lead_id", params.Metadata["leadId"]),
		attribute.String("leadmarket.contractor_id", params.Metadata["contractorId"]),
		attribute.Int64("leadmarket.amount_cents", params.AmountCents),
		attribute.Bool("stripe.confirm", params.Confirm),
	)

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	if s.dryRun {
		id := "pi_dryrun_" + uuid.New().String()[:8]
		status := StatusRequiresPaymentMethod
		if params.Confirm {
			status = StatusSucceeded
		}
		s.logger.Info("stripe dry run: skipping payment intent creation",
			"lead_id", params.Metadata["leadId"], "amount_cents", params.AmountCents)
		return &PaymentIntent{
			ID:              id,
			ClientSecret:    id + "_secret_dryrun",
			AmountCents:     params.AmountCents,
			Currency:        currency,
			Status:          status,
			CustomerID:      params.CustomerID,
			PaymentMethodID: params.PaymentMethodID,
			Metadata:        params.Metadata,
		}, nil
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", currency)
	form.Set("payment_method_types[]", "card")
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.PaymentMethodID != "" {
		form.Set("payment_method", params.PaymentMethodID)
	}
	if params.Confirm {
		form.Set("confirm", "true")
		form.Set("off_session", "true")
	}
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent PaymentIntent
	if err := s.do(ctx, http.MethodPost, "/v1/payment_intents", form, params.IdempotencyKey, &intent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("stripe.payment_intent_id", intent.ID), attribute.String("stripe.status", string(intent.Status)))
	return &intent, nil
}

func (s *StripeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_payment_intent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", intentID))

	var intent PaymentIntent
	if err := s.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, "", &intent); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &intent, nil
}

func (s *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_payment_methods", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	query := url.Values{}
	query.Set("customer", customerID)
	query.Set("type", "card")

	var list struct {
		Data []PaymentMethod `json:"data"`
	}
	if err := s.do(ctx, http.MethodGet, "/v1/payment_methods?"+query.Encode(), nil, "", &list); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if list.Data == nil {
		list.Data = []PaymentMethod{}
	}
	return list.Data, nil
}

func (s *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.attach_payment_method", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	form := url.Values{}
	form.Set("customer", customerID)

	var pm PaymentMethod
	if err := s.do(ctx, http.MethodPost, "/v1/payment_methods/"+url.PathEscape(paymentMethodID)+"/attach", form, "", &pm); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &pm, nil
}

func (s *StripeGateway) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	// The caller's span names the operation; the HTTP round trip is annotated on it.
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("http.request.method", method), attribute.String("url.path", path))

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", s.apiVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return stripeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

// stripeErrorResponse represents a Stripe API error.
type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func stripeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var parsed stripeErrorResponse
	_ = json.Unmarshal(data, &parsed)

	switch {
	case resp.StatusCode == http.StatusNotFound || parsed.Error.Code == "resource_missing":
		return fmt.Errorf("%w: %s", ErrIntentNotFound, parsed.Error.Message)
	case parsed.Error.Type == "card_error":
		return fmt.Errorf("%w: %s", ErrCardDeclined, parsed.Error.Message)
	}
	if parsed.Error.Message != "" {
		return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, parsed.Error.Message)
	}
	return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(data))
}
