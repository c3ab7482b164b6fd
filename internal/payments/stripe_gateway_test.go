package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

func TestStripeGateway_CreatePaymentIntent(t *testing.T) {
	var gotForm map[string][]string
	var gotIdem string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		gotIdem = r.Header.Get("Idempotency-Key")

		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_123",
			"client_secret": "pi_123_secret_abc",
			"amount":        13200,
			"currency":      "usd",
			"status":        "succeeded",
		})
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk_test_123", logging.Discard()).WithBaseURL(srv.URL)
	intent, err := gw.CreatePaymentIntent(context.Background(), IntentParams{
		AmountCents:     13200,
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		Confirm:         true,
		Description:     "Lead purchase: ramp_installation - Austin, TX",
		Metadata:        map[string]string{"leadId": "lead-1", "contractorId": "c1"},
		IdempotencyKey:  "purchase:lead-1:c1",
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, int64(13200), intent.AmountCents)
	assert.True(t, intent.Status.Succeeded())
	assert.Equal(t, "purchase:lead-1:c1", gotIdem)
	assert.Equal(t, []string{"13200"}, gotForm["amount"])
	assert.Equal(t, []string{"usd"}, gotForm["currency"])
	assert.Equal(t, []string{"cus_1"}, gotForm["customer"])
	assert.Equal(t, []string{"pm_1"}, gotForm["payment_method"])
	assert.Equal(t, []string{"true"}, gotForm["confirm"])
	assert.Equal(t, []string{"lead-1"}, gotForm["metadata[leadId]"])
}

func TestStripeGateway_CardDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk", logging.Discard()).WithBaseURL(srv.URL)
	_, err := gw.CreatePaymentIntent(context.Background(), IntentParams{AmountCents: 4000, Confirm: true, PaymentMethodID: "pm"})
	assert.ErrorIs(t, err, ErrCardDeclined)
}

func TestStripeGateway_RetrieveMissingIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk", logging.Discard()).WithBaseURL(srv.URL)
	_, err := gw.RetrievePaymentIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestStripeGateway_PaymentMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_methods":
			assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
			assert.Equal(t, "card", r.URL.Query().Get("type"))
			_, _ = w.Write([]byte(`{"data":[{"id":"pm_1","type":"card","card":{"brand":"visa","last4":"4242","exp_month":12,"exp_year":2030}}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_methods/pm_2/attach":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
			_, _ = w.Write([]byte(`{"id":"pm_2","type":"card","card":{"brand":"mastercard","last4":"5555"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk", logging.Discard()).WithBaseURL(srv.URL)

	methods, err := gw.ListPaymentMethods(context.Background(), "cus_1")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "4242", methods[0].Card.Last4)

	pm, err := gw.AttachPaymentMethod(context.Background(), "pm_2", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "mastercard", pm.Card.Brand)
}

func TestStripeGateway_DryRun(t *testing.T) {
	gw := NewStripeGateway("", logging.Discard()).WithDryRun(true).WithBaseURL("http://127.0.0.1:1")

	intent, err := gw.CreatePaymentIntent(context.Background(), IntentParams{AmountCents: 4000, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, intent.Status)

	intent, err = gw.CreatePaymentIntent(context.Background(), IntentParams{AmountCents: 4000})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, intent.Status)
	assert.NotEmpty(t, intent.ClientSecret)
}
