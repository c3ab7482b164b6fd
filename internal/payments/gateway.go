// Package payments wraps the card processor used to charge contractors for leads.
package payments

import (
	"context"
	"errors"
)

var (
	// ErrIntentNotFound is returned when the processor has no such payment intent.
	ErrIntentNotFound = errors.New("payments: payment intent not found")
	// ErrCardDeclined is returned when the processor rejects the payment method.
	ErrCardDeclined = errors.New("payments: card declined")
)

// IntentStatus mirrors the processor's PaymentIntent status values.
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusCanceled              IntentStatus = "canceled"
	StatusSucceeded             IntentStatus = "succeeded"
)

// Succeeded reports whether funds were collected.
func (s IntentStatus) Succeeded() bool { return s == StatusSucceeded }

// Pending reports whether the intent can still succeed without a new payment method.
func (s IntentStatus) Pending() bool {
	switch s {
	case StatusRequiresConfirmation, StatusRequiresAction, StatusProcessing, StatusRequiresCapture:
		return true
	}
	return false
}

// PaymentIntent is the subset of a processor payment intent the marketplace uses.
type PaymentIntent struct {
	ID              string            `json:"id"`
	ClientSecret    string            `json:"client_secret"`
	AmountCents     int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Status          IntentStatus      `json:"status"`
	CustomerID      string            `json:"customer,omitempty"`
	PaymentMethodID string            `json:"payment_method,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IntentParams describes a payment intent to create. When Confirm is set the
// processor charges PaymentMethodID immediately.
type IntentParams struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Confirm         bool
	Description     string
	Metadata        map[string]string
	IdempotencyKey  string
}

// PaymentMethod is a stored card.
type PaymentMethod struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Card    *CardDetails `json:"card,omitempty"`
	Created int64        `json:"created"`
}

type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// Gateway is the card processor.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error)
}
