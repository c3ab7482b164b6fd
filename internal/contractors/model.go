package contractors

import (
	"errors"
	"time"
)

var (
	// ErrContractorNotFound is returned when a contractor id does not resolve.
	ErrContractorNotFound = errors.New("contractor not found")

	// ErrPerformanceNotFound is returned when no outcomes were recorded yet.
	ErrPerformanceNotFound = errors.New("contractor performance not found")
)

// Contractor is a business listed in the marketplace directory.
type Contractor struct {
	ID               string   `json:"id"`
	BusinessName     string   `json:"businessName"`
	Email            string   `json:"email,omitempty"`
	Specializations  []string `json:"specializations"`
	ServiceAreas     []string `json:"serviceAreas"`
	Rating           float64  `json:"rating"`
	StripeCustomerID string   `json:"stripeCustomerId,omitempty"`
}

// Performance aggregates a contractor's lead outcomes and spend.
type Performance struct {
	ContractorID   string    `json:"contractorId" dynamodbav:"contractorId"`
	TotalLeads     int64     `json:"totalLeads" dynamodbav:"totalLeads"`
	Conversions    int64     `json:"conversions" dynamodbav:"conversions"`
	ConversionRate float64   `json:"conversionRate" dynamodbav:"-"`
	Revenue        float64   `json:"revenue" dynamodbav:"revenue"`
	Purchases      int64     `json:"purchases" dynamodbav:"purchases"`
	Spend          float64   `json:"spend" dynamodbav:"spend"`
	UpdatedAt      time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// recompute derives the conversion rate (percent) from the counters.
func (p *Performance) recompute() {
	if p.TotalLeads <= 0 {
		p.ConversionRate = 0
		return
	}
	p.ConversionRate = float64(p.Conversions) / float64(p.TotalLeads) * 100
}
