package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/internal/events"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// ErrRecipientNotFound is returned by directories that cannot resolve an address.
var ErrRecipientNotFound = errors.New("notify: recipient not found")

// Recipient is an email destination.
type Recipient struct {
	Email string
	Name  string
}

// HomeownerDirectory resolves a homeowner id to an address.
type HomeownerDirectory interface {
	Lookup(ctx context.Context, homeownerID string) (Recipient, error)
}

// HomeownerStore is a HomeownerDirectory that also accepts new contacts.
type HomeownerStore interface {
	HomeownerDirectory
	SaveContact(ctx context.Context, homeownerID, name, email string) error
}

// ContractorDirectory resolves contractor details.
type ContractorDirectory interface {
	GetByID(ctx context.Context, id string) (*contractors.Contractor, error)
}

// Service sends lead lifecycle emails. Unknown recipients are skipped, not failed.
type Service struct {
	email       EmailSender
	homeowners  HomeownerDirectory
	contractors ContractorDirectory
	logger      *logging.Logger
}

func NewService(email EmailSender, homeowners HomeownerDirectory, contractors ContractorDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{
		email:       email,
		homeowners:  homeowners,
		contractors: contractors,
		logger:      logger,
	}
}

// HomeownerContacted tells the homeowner their contractor reached out.
func (s *Service) HomeownerContacted(ctx context.Context, lead events.LeadSnapshot) error {
	to, ok, err := s.homeowner(ctx, lead)
	if !ok {
		return err
	}
	business := s.businessName(ctx, lead.ContractorID)
	return s.send(ctx, lead, EmailMessage{
		To:      to.Email,
		ToName:  to.Name,
		Subject: fmt.Sprintf("%s has reached out about your %s project", business, humanize(lead.LeadType)),
		Body: fmt.Sprintf(
			"Good news! %s has contacted you about your home modification request in %s.\n\n"+
				"If you have not heard from them, check your phone and email or reply to this message.",
			business, lead.Location),
	})
}

// HomeownerLeadAssigned tells the homeowner a contractor took their request.
func (s *Service) HomeownerLeadAssigned(ctx context.Context, lead events.LeadSnapshot) error {
	to, ok, err := s.homeowner(ctx, lead)
	if !ok {
		return err
	}
	business := s.businessName(ctx, lead.ContractorID)
	return s.send(ctx, lead, EmailMessage{
		To:      to.Email,
		ToName:  to.Name,
		Subject: "A contractor has been matched to your request",
		Body: fmt.Sprintf(
			"%s will handle your %s project in %s and should contact you shortly.",
			business, humanize(lead.LeadType), lead.Location),
	})
}

// ContractorPurchaseConfirmed sends the contractor a receipt.
func (s *Service) ContractorPurchaseConfirmed(ctx context.Context, lead events.LeadSnapshot, amountPaid float64) error {
	c, ok, err := s.contractor(ctx, lead)
	if !ok {
		return err
	}
	return s.send(ctx, lead, EmailMessage{
		To:      c.Email,
		ToName:  c.BusinessName,
		Subject: fmt.Sprintf("Lead purchase confirmed: %s", humanize(lead.LeadType)),
		Body: fmt.Sprintf(
			"Your payment of $%.2f was received and lead %s in %s is now assigned to you.\n\n"+
				"Urgency: %s. Reach out to the homeowner promptly to keep your conversion rate high.",
			amountPaid, lead.LeadID, lead.Location, lead.UrgencyLevel),
	})
}

// ContractorConversion congratulates the contractor on a won job.
func (s *Service) ContractorConversion(ctx context.Context, lead events.LeadSnapshot) error {
	c, ok, err := s.contractor(ctx, lead)
	if !ok {
		return err
	}
	return s.send(ctx, lead, EmailMessage{
		To:      c.Email,
		ToName:  c.BusinessName,
		Subject: "Congratulations on winning the job!",
		Body: fmt.Sprintf(
			"Lead %s (%s in %s) is marked as won. Estimated project value: $%.2f.",
			lead.LeadID, humanize(lead.LeadType), lead.Location, lead.EstimatedBudgetMax),
	})
}

func (s *Service) send(ctx context.Context, lead events.LeadSnapshot, msg EmailMessage) error {
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: lead %s: %w", lead.LeadID, err)
	}
	return nil
}

func (s *Service) homeowner(ctx context.Context, lead events.LeadSnapshot) (Recipient, bool, error) {
	log := s.logger.ForLead(lead.LeadID)
	if s.homeowners == nil || lead.HomeownerID == "" {
		log.Debug("notify: homeowner directory not configured, skipping")
		return Recipient{}, false, nil
	}
	to, err := s.homeowners.Lookup(ctx, lead.HomeownerID)
	if errors.Is(err, ErrRecipientNotFound) || (err == nil && to.Email == "") {
		log.Warn("notify: no email for homeowner", "homeowner_id", lead.HomeownerID)
		return Recipient{}, false, nil
	}
	if err != nil {
		return Recipient{}, false, fmt.Errorf("notify: homeowner lookup: %w", err)
	}
	return to, true, nil
}

func (s *Service) contractor(ctx context.Context, lead events.LeadSnapshot) (*contractors.Contractor, bool, error) {
	log := s.logger.ForLead(lead.LeadID)
	if s.contractors == nil || lead.ContractorID == "" {
		return nil, false, nil
	}
	c, err := s.contractors.GetByID(ctx, lead.ContractorID)
	if errors.Is(err, contractors.ErrContractorNotFound) || (err == nil && c.Email == "") {
		log.Warn("notify: no email for contractor", "contractor_id", lead.ContractorID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("notify: contractor lookup: %w", err)
	}
	return c, true, nil
}

func (s *Service) businessName(ctx context.Context, contractorID string) string {
	if s.contractors != nil && contractorID != "" {
		if c, err := s.contractors.GetByID(ctx, contractorID); err == nil && c.BusinessName != "" {
			return c.BusinessName
		}
	}
	return "Your contractor"
}

// humanize turns "grab_bar_installation" into "grab bar installation".
func humanize(leadType string) string {
	return strings.ReplaceAll(leadType, "_", " ")
}

// AddressBook is an in-memory HomeownerDirectory.
type AddressBook struct {
	mu      sync.RWMutex
	entries map[string]Recipient
}

func NewAddressBook() *AddressBook {
	return &AddressBook{entries: make(map[string]Recipient)}
}

func (b *AddressBook) Add(homeownerID string, r Recipient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[homeownerID] = r
}

// SaveContact stores or replaces a homeowner's address.
func (b *AddressBook) SaveContact(ctx context.Context, homeownerID, name, email string) error {
	b.Add(homeownerID, Recipient{Email: email, Name: name})
	return nil
}

func (b *AddressBook) Lookup(ctx context.Context, homeownerID string) (Recipient, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.entries[homeownerID]
	if !ok {
		return Recipient{}, ErrRecipientNotFound
	}
	return r, nil
}
