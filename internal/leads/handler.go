package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// Service is the engine surface used by the HTTP handlers.
type Service interface {
	GenerateLead(ctx context.Context, req *GenerateLeadRequest) (*GenerateLeadResult, error)
	GetLead(ctx context.Context, leadID string) (*Lead, error)
	ListLeads(ctx context.Context, filter ListFilter) ([]*Lead, error)
	MatchContractors(ctx context.Context, leadID string) ([]contractors.Contractor, error)
	PurchaseLead(ctx context.Context, leadID, contractorID, paymentMethodID string) (*PurchaseResult, error)
	UpdateLeadStatus(ctx context.Context, req UpdateStatusRequest) (*Lead, error)
	CreatePaymentIntent(ctx context.Context, leadID, contractorID string) (*PaymentIntentResult, error)
	ConfirmPayment(ctx context.Context, paymentIntentID, leadID, contractorID string) (*PurchaseResult, error)
	ContractorPerformance(ctx context.Context, contractorID string) (*contractors.Performance, error)
}

var _ Service = (*Engine)(nil)

// Handler handles HTTP requests for leads
type Handler struct {
	svc    Service
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(svc Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type purchaseRequest struct {
	LeadID          string `json:"leadId"`
	ContractorID    string `json:"contractorId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

type createIntentRequest struct {
	LeadID       string `json:"leadId"`
	ContractorID string `json:"contractorId"`
	// Amount is accepted for compatibility and ignored; the lead's price is charged.
	Amount float64 `json:"amount,omitempty"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	LeadID          string `json:"leadId"`
	ContractorID    string `json:"contractorId"`
}

// Generate handles POST /api/leads/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateLeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.GenerateLead(r.Context(), &req)
	if err != nil {
		h.fail(w, err, "Failed to generate lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"lead":                res.Lead,
		"matchingContractors": res.MatchingContractorCount,
	})
}

// List handles GET /api/leads?status=&location=&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		Location: strings.TrimSpace(q.Get("location")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		h.fail(w, &ValidationError{Field: "limit", Reason: "must be an integer"}, "")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		h.fail(w, &ValidationError{Field: "offset", Reason: "must be an integer"}, "")
		return
	}

	leads, err := h.svc.ListLeads(r.Context(), filter)
	if err != nil {
		h.fail(w, err, "Failed to list leads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "leads": leads, "count": len(leads)})
}

// Get handles GET /api/leads/{leadID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	lead, err := h.svc.GetLead(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.fail(w, err, "Failed to load lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "lead": lead})
}

// Matches handles GET /api/leads/{leadID}/matches
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.MatchContractors(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.fail(w, err, "Failed to match contractors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "contractors": matches, "count": len(matches)})
}

// Purchase handles POST /api/leads/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.PurchaseLead(r.Context(), req.LeadID, req.ContractorID, req.PaymentMethodID)
	if err != nil {
		h.fail(w, err, "Failed to purchase lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"lead":     res.Lead,
		"purchase": res.Purchase,
		"message":  "Lead purchased successfully",
	})
}

// UpdateStatus handles PUT /api/leads/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.svc.UpdateLeadStatus(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to update lead status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"lead":    lead,
		"message": fmt.Sprintf("Lead status updated to %s", lead.Status),
	})
}

// CreateIntent handles POST /api/payments/create-intent
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.CreatePaymentIntent(r.Context(), req.LeadID, req.ContractorID)
	if err != nil {
		h.fail(w, err, "Failed to create payment intent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"clientSecret":    res.ClientSecret,
		"paymentIntentId": res.PaymentIntentID,
		"amount":          res.Amount,
	})
}

// Confirm handles POST /api/payments/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ConfirmPayment(r.Context(), req.PaymentIntentID, req.LeadID, req.ContractorID)
	if err != nil {
		h.fail(w, err, "Failed to confirm payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"lead":     res.Lead,
		"purchase": res.Purchase,
		"message":  "Payment successful! Lead has been assigned to you.",
	})
}

// Performance handles GET /api/contractors/{contractorID}/performance
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.svc.ContractorPerformance(r.Context(), chi.URLParam(r, "contractorID"))
	if err != nil {
		h.fail(w, err, "Failed to load contractor performance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "performance": perf})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return false
	}
	return true
}

// fail writes the error envelope. Unexpected errors are logged and replaced
// by fallback so internals never reach the client.
func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	status, msg := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		msg = fallback
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func classifyError(err error) (int, string) {
	var (
		verr *ValidationError
		terr *TransitionError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.As(err, &terr):
		return http.StatusBadRequest, terr.Error()
	case errors.Is(err, ErrMissingFields):
		return http.StatusBadRequest, "Missing required fields"
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status"
	case errors.Is(err, ErrLeadUnavailable):
		return http.StatusBadRequest, "Lead no longer available"
	case errors.Is(err, ErrLeadExpired):
		return http.StatusBadRequest, "Lead has expired"
	case errors.Is(err, ErrPaymentIncomplete):
		return http.StatusBadRequest, "Payment not completed"
	case errors.Is(err, ErrLeadNotFound):
		return http.StatusNotFound, "Lead not found"
	case errors.Is(err, ErrContractorNotFound):
		return http.StatusNotFound, "Contractor not found"
	case errors.Is(err, ErrPaymentNotFound):
		return http.StatusNotFound, "Payment intent not found"
	case errors.Is(err, ErrPaymentFailed):
		return http.StatusPaymentRequired, "Payment failed"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "Too many purchase attempts"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "Lead was modified concurrently, please retry"
	}
	return http.StatusInternalServerError, ""
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
