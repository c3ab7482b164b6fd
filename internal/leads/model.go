package leads

import (
	"time"
)

// Status is a lead's position in the sales funnel.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAssigned  Status = "assigned"
	StatusContacted Status = "contacted"
	StatusQuoted    Status = "quoted"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusExpired   Status = "expired"
)

// Urgency levels in ascending order.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

// PaymentStatus of a purchase record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Lead is a homeowner's modification need offered to contractors.
// LeadScore, Price, LeadType, UrgencyLevel and Description are fixed at creation.
type Lead struct {
	ID                 string    `json:"id"`
	AssessmentID       string    `json:"assessmentId"`
	HomeownerID        string    `json:"homeownerId"`
	LeadType           string    `json:"leadType"`
	Description        string    `json:"description"`
	EstimatedBudgetMin float64   `json:"estimatedBudgetMin"`
	EstimatedBudgetMax float64   `json:"estimatedBudgetMax"`
	UrgencyLevel       string    `json:"urgencyLevel"`
	Status             Status    `json:"status"`
	LeadScore          int       `json:"leadScore"`
	Price              int       `json:"price"`
	Location           string    `json:"location"`
	RoomScanned        string    `json:"roomScanned,omitempty"`
	Hazards            []string  `json:"hazards"`
	Recommendations    []string  `json:"recommendations"`
	MobilityNeeds      []string  `json:"mobilityNeeds,omitempty"`
	ContractorID       string    `json:"contractorId,omitempty"`
	Notes              []Note    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	Version            int64     `json:"version"`
}

// Note is an append-only comment recorded with a status change.
type Note struct {
	Text         string    `json:"text"`
	Status       Status    `json:"status"`
	ContractorID string    `json:"contractorId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the lead's purchase window has closed.
func (l *Lead) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && l.ExpiresAt.Before(now)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	out := *l
	out.Hazards = append([]string(nil), l.Hazards...)
	out.Recommendations = append([]string(nil), l.Recommendations...)
	out.MobilityNeeds = append([]string(nil), l.MobilityNeeds...)
	out.Notes = append([]Note(nil), l.Notes...)
	return &out
}

// Purchase records a contractor paying for a lead. Never mutated after creation.
type Purchase struct {
	ID              string        `json:"id"`
	LeadID          string        `json:"leadId"`
	ContractorID    string        `json:"contractorId"`
	AmountPaid      float64       `json:"amountPaid"`
	PaymentIntentID string        `json:"paymentIntentId"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// EstimatedBudget is the assessed cost range of the modification.
type EstimatedBudget struct {
	Min *float64 `json:"min" validate:"required,gte=0"`
	Max *float64 `json:"max" validate:"required,gte=0"`
}

// AssessmentData is the result of the AR self-assessment.
type AssessmentData struct {
	RoomScanned     string           `json:"roomScanned"`
	HazardsDetected []string         `json:"hazardsDetected"`
	Recommendations []string         `json:"recommendations"`
	EstimatedBudget *EstimatedBudget `json:"estimatedBudget" validate:"required"`
	UrgencyScore    float64          `json:"urgencyScore" validate:"gte=0,lte=100"`
}

// HomeInfo is what the homeowner told us about the home and themselves.
type HomeInfo struct {
	Address       string   `json:"address"`
	UrgencyLevel  *string  `json:"urgencyLevel" validate:"required"`
	MobilityNeeds []string `json:"mobilityNeeds"`
	// Contact details used for homeowner notifications. Not stored on the lead.
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// GenerateLeadRequest is the input to GenerateLead.
type GenerateLeadRequest struct {
	AssessmentID   string          `json:"assessmentId" validate:"required"`
	HomeownerID    string          `json:"homeownerId" validate:"required"`
	AssessmentData *AssessmentData `json:"assessmentData" validate:"required"`
	HomeInfo       *HomeInfo       `json:"homeInfo" validate:"required"`
}

// GenerateLeadResult is returned by GenerateLead.
type GenerateLeadResult struct {
	Lead                    *Lead `json:"lead"`
	MatchingContractorCount int   `json:"matchingContractors"`
}

// PurchaseResult is returned by PurchaseLead and ConfirmPayment.
type PurchaseResult struct {
	Lead     *Lead     `json:"lead"`
	Purchase *Purchase `json:"purchase"`
}

// PaymentIntentResult is returned by CreatePaymentIntent.
type PaymentIntentResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int    `json:"amount"`
}

// UpdateStatusRequest is the input to UpdateLeadStatus.
type UpdateStatusRequest struct {
	LeadID       string `json:"leadId"`
	Status       string `json:"status"`
	ContractorID string `json:"contractorId,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ListFilter narrows ListLeads.
type ListFilter struct {
	Status   Status
	Location string
	// NotExpiredAt, when set, skips leads whose expiry is before it.
	NotExpiredAt time.Time
	Limit        int
	Offset       int
}
