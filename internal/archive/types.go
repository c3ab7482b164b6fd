package archive

import (
	"time"

	"github.com/accessmod/lead-marketplace/internal/leads"
)

const recordVersion = "1.0"

// ExpiredLeadRecord is the object written to S3 for each expired lead.
type ExpiredLeadRecord struct {
	Version       string       `json:"version"`
	ArchivedAt    time.Time    `json:"archived_at"`
	HomeownerHash string       `json:"homeowner_hash"`
	Lead          *leads.Lead  `json:"lead"`
	Notes         []leads.Note `json:"notes,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	LeadID       string  `json:"lead_id"`
	S3Key        string  `json:"s3_key"`
	LeadType     string  `json:"lead_type"`
	Location     string  `json:"location"`
	LeadScore    int     `json:"lead_score"`
	Price        int     `json:"price"`
	ExpiredFrom  string  `json:"expired_from,omitempty"`
	ContractorID string  `json:"contractor_id,omitempty"`
	BudgetMax    float64 `json:"budget_max"`
	ArchivedAt   string  `json:"archived_at"`
}
