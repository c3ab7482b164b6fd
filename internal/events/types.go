package events

const (
	LeadGeneratedEvent     = "leads.generated.v1"
	LeadPurchasedEvent     = "leads.purchased.v1"
	LeadStatusChangedEvent = "leads.status_changed.v1"
)

// Purchase flows.
const (
	PurchaseFlowDirect  = "direct"
	PurchaseFlowConfirm = "confirm"
)

// LeadSnapshot is the lead state carried by events after a commit.
type LeadSnapshot struct {
	LeadID             string  `json:"lead_id"`
	HomeownerID        string  `json:"homeowner_id"`
	ContractorID       string  `json:"contractor_id,omitempty"`
	LeadType           string  `json:"lead_type"`
	Location           string  `json:"location"`
	Status             string  `json:"status"`
	UrgencyLevel       string  `json:"urgency_level"`
	LeadScore          int     `json:"lead_score"`
	Price              int     `json:"price"`
	EstimatedBudgetMax float64 `json:"estimated_budget_max"`
}

type LeadGeneratedV1 struct {
	BaseEvent
	Lead                    LeadSnapshot `json:"lead"`
	MatchingContractorCount int          `json:"matching_contractor_count"`
}

func (LeadGeneratedV1) EventName() string     { return LeadGeneratedEvent }
func (e LeadGeneratedV1) AggregateID() string { return e.Lead.LeadID }

type LeadPurchasedV1 struct {
	BaseEvent
	Lead            LeadSnapshot `json:"lead"`
	PurchaseID      string       `json:"purchase_id"`
	ContractorID    string       `json:"contractor_id"`
	AmountPaid      float64      `json:"amount_paid"`
	PaymentIntentID string       `json:"payment_intent_id"`
	Flow            string       `json:"flow"`
}

func (LeadPurchasedV1) EventName() string     { return LeadPurchasedEvent }
func (e LeadPurchasedV1) AggregateID() string { return e.Lead.LeadID }

type LeadStatusChangedV1 struct {
	BaseEvent
	Lead  LeadSnapshot `json:"lead"`
	From  string       `json:"from"`
	To    string       `json:"to"`
	Notes string       `json:"notes,omitempty"`
}

func (LeadStatusChangedV1) EventName() string     { return LeadStatusChangedEvent }
func (e LeadStatusChangedV1) AggregateID() string { return e.Lead.LeadID }
