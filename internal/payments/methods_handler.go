package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

type contractorLookup interface {
	GetByID(ctx context.Context, id string) (*contractors.Contractor, error)
}

// MethodsHandler serves a contractor's stored payment methods.
type MethodsHandler struct {
	gateway     Gateway
	contractors contractorLookup
	logger      *logging.Logger
}

func NewMethodsHandler(gateway Gateway, directory contractorLookup, logger *logging.Logger) *MethodsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MethodsHandler{gateway: gateway, contractors: directory, logger: logger}
}

type attachMethodRequest struct {
	ContractorID    string `json:"contractorId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

// List handles GET /api/payments/methods?contractorId=
func (h *MethodsHandler) List(w http.ResponseWriter, r *http.Request) {
	contractorID := strings.TrimSpace(r.URL.Query().Get("contractorId"))
	if contractorID == "" {
		writeEnvelope(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Contractor ID required"})
		return
	}

	contractor, err := h.contractors.GetByID(r.Context(), contractorID)
	if err != nil && !errors.Is(err, contractors.ErrContractorNotFound) {
		h.logger.Error("contractor lookup failed", "error", err, "contractor_id", contractorID)
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to retrieve payment methods"})
		return
	}
	if contractor == nil || contractor.StripeCustomerID == "" {
		writeEnvelope(w, http.StatusNotFound, map[string]any{"success": false, "error": "No payment methods found"})
		return
	}

	methods, err := h.gateway.ListPaymentMethods(r.Context(), contractor.StripeCustomerID)
	if err != nil {
		h.logger.Error("list payment methods failed", "error", err, "contractor_id", contractorID)
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to retrieve payment methods"})
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "paymentMethods": methods})
}

// Attach handles POST /api/payments/methods
func (h *MethodsHandler) Attach(w http.ResponseWriter, r *http.Request) {
	var req attachMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return
	}
	if req.ContractorID == "" || req.PaymentMethodID == "" {
		writeEnvelope(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing required fields"})
		return
	}

	contractor, err := h.contractors.GetByID(r.Context(), req.ContractorID)
	if errors.Is(err, contractors.ErrContractorNotFound) {
		writeEnvelope(w, http.StatusNotFound, map[string]any{"success": false, "error": "Contractor not found"})
		return
	}
	if err != nil {
		h.logger.Error("contractor lookup failed", "error", err, "contractor_id", req.ContractorID)
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to add payment method"})
		return
	}
	if contractor.StripeCustomerID == "" {
		writeEnvelope(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Contractor has no billing profile"})
		return
	}

	pm, err := h.gateway.AttachPaymentMethod(r.Context(), req.PaymentMethodID, contractor.StripeCustomerID)
	if err != nil {
		h.logger.Error("attach payment method failed", "error", err, "contractor_id", req.ContractorID)
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to add payment method"})
		return
	}
	h.logger.Info("payment method added", "contractor_id", req.ContractorID, "payment_method_id", pm.ID)
	writeEnvelope(w, http.StatusOK, map[string]any{
		"success":       true,
		"paymentMethod": pm,
		"message":       "Payment method added successfully",
	})
}

func writeEnvelope(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
