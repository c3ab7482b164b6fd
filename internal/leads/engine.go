package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/internal/events"
	"github.com/accessmod/lead-marketplace/internal/locking"
	"github.com/accessmod/lead-marketplace/internal/payments"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

var tracer = otel.Tracer("leadmarket.internal.leads")

const (
	// DefaultLeadTTL is how long a lead stays purchasable.
	DefaultLeadTTL = 30 * 24 * time.Hour

	defaultLockWait   = 5 * time.Second
	maxWriteAttempts  = 3
	defaultListLimit  = 50
	maxListLimit      = 100
	purchaseLockSpace = "lead:"
)

// VelocityGuard limits purchase attempts per contractor.
type VelocityGuard interface {
	Allow(ctx context.Context, contractorID string) (bool, error)
}

// HomeownerContacts stores where a homeowner can be reached.
type HomeownerContacts interface {
	SaveContact(ctx context.Context, homeownerID, name, email string) error
}

// EngineDeps are the collaborators of Engine. Repo, Directory, Gateway and Bus are required.
type EngineDeps struct {
	Repo        Repository
	Directory   contractors.Directory
	Gateway     payments.Gateway
	Bus         events.Bus
	Locker      locking.Locker
	Velocity    VelocityGuard
	Performance contractors.PerformanceStore
	Homeowners  HomeownerContacts
	Logger      *logging.Logger
	LeadTTL     time.Duration
	LockWait    time.Duration
	Now         func() time.Time
}

// Engine runs the lead lifecycle: generation, pricing, purchase and status changes.
type Engine struct {
	repo        Repository
	directory   contractors.Directory
	gateway     payments.Gateway
	bus         events.Bus
	locker      locking.Locker
	velocity    VelocityGuard
	performance contractors.PerformanceStore
	homeowners  HomeownerContacts
	logger      *logging.Logger
	ttl         time.Duration
	lockWait    time.Duration
	now         func() time.Time
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.Repo == nil || deps.Directory == nil || deps.Gateway == nil || deps.Bus == nil {
		panic("leads: engine requires repo, directory, gateway and bus")
	}
	e := &Engine{
		repo:        deps.Repo,
		directory:   deps.Directory,
		gateway:     deps.Gateway,
		bus:         deps.Bus,
		locker:      deps.Locker,
		velocity:    deps.Velocity,
		performance: deps.Performance,
		homeowners:  deps.Homeowners,
		logger:      deps.Logger,
		ttl:         deps.LeadTTL,
		lockWait:    deps.LockWait,
		now:         deps.Now,
	}
	if e.locker == nil {
		e.locker = locking.NewMemoryLocker()
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	if e.ttl <= 0 {
		e.ttl = DefaultLeadTTL
	}
	if e.lockWait <= 0 {
		e.lockWait = defaultLockWait
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// GenerateLead scores, prices and stores a lead from an assessment.
func (e *Engine) GenerateLead(ctx context.Context, req *GenerateLeadRequest) (*GenerateLeadResult, error) {
	ctx, span := tracer.Start(ctx, "leads.generate")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, home := req.AssessmentData, req.HomeInfo
	userUrgency := *home.UrgencyLevel
	budgetMax := *data.EstimatedBudget.Max

	score := ScoreLead(ScoreInput{
		UserUrgency:       userUrgency,
		BudgetMax:         budgetMax,
		HazardCount:       len(data.HazardsDetected),
		MobilityNeedCount: len(home.MobilityNeeds),
	})
	urgency := ResolveUrgency(data.UrgencyScore, userUrgency)
	now := e.now()

	lead := &Lead{
		ID:                 uuid.New().String(),
		AssessmentID:       req.AssessmentID,
		HomeownerID:        req.HomeownerID,
		LeadType:           ClassifyLeadType(data.RoomScanned, data.HazardsDetected),
		Description:        BuildDescription(data.RoomScanned, data.HazardsDetected, data.Recommendations, home.MobilityNeeds, userUrgency),
		EstimatedBudgetMin: *data.EstimatedBudget.Min,
		EstimatedBudgetMax: budgetMax,
		UrgencyLevel:       urgency,
		Status:             StatusOpen,
		LeadScore:          score,
		Price:              PriceLead(score, urgency, budgetMax),
		Location:           ExtractLocation(home.Address),
		RoomScanned:        data.RoomScanned,
		Hazards:            nonNil(data.HazardsDetected),
		Recommendations:    nonNil(data.Recommendations),
		MobilityNeeds:      home.MobilityNeeds,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.Add(e.ttl),
	}
	if err := e.repo.Create(ctx, lead); err != nil {
		return nil, fmt.Errorf("leads: create: %w", err)
	}
	e.saveContact(ctx, lead, home)
	span.SetAttributes(
		attribute.String("leadmarket.lead_id", lead.ID),
		attribute.Int("leadmarket.lead_score", lead.LeadScore),
		attribute.Int("leadmarket.price", lead.Price),
	)

	matched := 0
	if directory, err := e.directory.List(ctx); err != nil {
		e.logger.Warn("contractor matching skipped", "lead_id", lead.ID, "error", err)
	} else {
		matched = len(MatchContractors(lead, directory))
	}

	e.logger.ForLead(lead.ID).Info("lead generated",
		"lead_type", lead.LeadType, "lead_score", lead.LeadScore, "price", lead.Price,
		"urgency_level", lead.UrgencyLevel, "matching_contractors", matched)

	e.bus.Publish(ctx, events.LeadGeneratedV1{
		BaseEvent:               events.NewBaseEvent(),
		Lead:                    snapshot(lead),
		MatchingContractorCount: matched,
	})

	return &GenerateLeadResult{Lead: lead, MatchingContractorCount: matched}, nil
}

// GetLead returns a lead by id.
func (e *Engine) GetLead(ctx context.Context, leadID string) (*Lead, error) {
	return e.repo.Get(ctx, leadID)
}

// ListLeads pages through leads. Open leads past expiry are left out of
// status=open listings because they can no longer be bought.
func (e *Engine) ListLeads(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	filter.Offset = max(filter.Offset, 0)
	if filter.Status == StatusOpen {
		filter.NotExpiredAt = e.now()
	}
	return e.repo.List(ctx, filter)
}

// MatchContractors returns the directory entries matching a stored lead.
func (e *Engine) MatchContractors(ctx context.Context, leadID string) ([]contractors.Contractor, error) {
	lead, err := e.repo.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	directory, err := e.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: list contractors: %w", err)
	}
	return MatchContractors(lead, directory), nil
}

// ContractorPerformance returns a contractor's outcome counters, zeroed when
// nothing was recorded yet.
func (e *Engine) ContractorPerformance(ctx context.Context, contractorID string) (*contractors.Performance, error) {
	if _, err := e.contractor(ctx, contractorID); err != nil {
		return nil, err
	}
	if e.performance == nil {
		return &contractors.Performance{ContractorID: contractorID}, nil
	}
	perf, err := e.performance.Get(ctx, contractorID)
	if errors.Is(err, contractors.ErrPerformanceNotFound) {
		return &contractors.Performance{ContractorID: contractorID}, nil
	}
	return perf, err
}

// UpdateLeadStatus applies a lifecycle transition.
func (e *Engine) UpdateLeadStatus(ctx context.Context, req UpdateStatusRequest) (*Lead, error) {
	ctx, span := tracer.Start(ctx, "leads.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("leadmarket.lead_id", req.LeadID), attribute.String("leadmarket.target_status", req.Status))

	target, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.LeadID) == "" {
		return nil, ErrMissingFields
	}

	var from Status
	lead, err := e.mutate(ctx, req.LeadID, func(l *Lead) error {
		if err := checkTransition(l.Status, target); err != nil {
			return err
		}
		from = l.Status
		now := e.now()
		l.Status = target
		if req.ContractorID != "" {
			l.ContractorID = req.ContractorID
		}
		if note := strings.TrimSpace(req.Notes); note != "" {
			l.Notes = append(l.Notes, Note{Text: note, Status: target, ContractorID: req.ContractorID, CreatedAt: now})
		}
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.ForLead(lead.ID).Info("lead status updated", "from", from, "to", target, "contractor_id", lead.ContractorID)
	e.publishStatusChange(ctx, lead, from, req.Notes)
	return lead, nil
}

// ExpireLead moves an open lead whose purchase window has closed to expired.
// It reports false when the lead no longer qualifies. Purchased leads keep
// their status.
func (e *Engine) ExpireLead(ctx context.Context, leadID string) (bool, error) {
	skip := errors.New("not expirable")
	var from Status
	lead, err := e.mutate(ctx, leadID, func(l *Lead) error {
		if l.Status != StatusOpen || !l.Expired(e.now()) {
			return skip
		}
		from = l.Status
		l.Status = StatusExpired
		l.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, skip) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.ForLead(lead.ID).Info("lead expired", "from", from)
	e.publishStatusChange(ctx, lead, from, "")
	return true, nil
}

// CreatePaymentIntent starts a client-confirmed payment for an open lead at its price.
func (e *Engine) CreatePaymentIntent(ctx context.Context, leadID, contractorID string) (*PaymentIntentResult, error) {
	ctx, span := tracer.Start(ctx, "leads.create_payment_intent")
	defer span.End()

	if leadID == "" || contractorID == "" {
		return nil, ErrMissingFields
	}
	if err := e.checkVelocity(ctx, contractorID); err != nil {
		return nil, err
	}

	lead, err := e.purchasable(ctx, leadID)
	if err != nil {
		return nil, err
	}
	contractor, err := e.contractor(ctx, contractorID)
	if err != nil {
		return nil, err
	}

	intent, err := e.gateway.CreatePaymentIntent(ctx, payments.IntentParams{
		AmountCents: int64(lead.Price) * 100,
		Currency:    "usd",
		CustomerID:  contractor.StripeCustomerID,
		Description: fmt.Sprintf("Lead purchase: %s - %s", lead.LeadType, lead.Location),
		Metadata:    purchaseMetadata(lead, contractorID),
	})
	if err != nil {
		return nil, fmt.Errorf("leads: create payment intent: %w", err)
	}

	e.logger.ForLead(lead.ID).Info("payment intent created",
		"payment_intent_id", intent.ID, "contractor_id", contractorID, "amount", lead.Price)
	return &PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          lead.Price,
	}, nil
}

// PurchaseLead charges the contractor's saved payment method and assigns the lead.
func (e *Engine) PurchaseLead(ctx context.Context, leadID, contractorID, paymentMethodID string) (*PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "leads.purchase")
	defer span.End()
	span.SetAttributes(attribute.String("leadmarket.lead_id", leadID), attribute.String("leadmarket.contractor_id", contractorID))

	if leadID == "" || contractorID == "" || paymentMethodID == "" {
		return nil, ErrMissingFields
	}
	if err := e.checkVelocity(ctx, contractorID); err != nil {
		return nil, err
	}

	release, err := e.lock(ctx, leadID)
	if err != nil {
		return nil, err
	}
	defer release()

	lead, err := e.purchasable(ctx, leadID)
	if err != nil {
		return nil, err
	}
	contractor, err := e.contractor(ctx, contractorID)
	if err != nil {
		return nil, err
	}

	intent, err := e.gateway.CreatePaymentIntent(ctx, payments.IntentParams{
		AmountCents:     int64(lead.Price) * 100,
		Currency:        "usd",
		CustomerID:      contractor.StripeCustomerID,
		PaymentMethodID: paymentMethodID,
		Confirm:         true,
		Description:     fmt.Sprintf("Lead purchase: %s - %s", lead.LeadType, lead.Location),
		Metadata:        purchaseMetadata(lead, contractorID),
		IdempotencyKey:  fmt.Sprintf("purchase:%s:%s:%s:%d", lead.ID, contractorID, paymentMethodID, lead.Version),
	})
	if errors.Is(err, payments.ErrCardDeclined) {
		e.logger.ForLead(lead.ID).Warn("lead purchase declined", "contractor_id", contractorID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: charge: %w", err)
	}

	switch {
	case intent.Status.Succeeded():
	case intent.Status.Pending():
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentIncomplete, intent.ID, intent.Status)
	default:
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentFailed, intent.ID, intent.Status)
	}

	return e.assign(ctx, lead, contractorID, intent.ID, float64(lead.Price), events.PurchaseFlowDirect, false)
}

// ConfirmPayment records a purchase for a payment intent confirmed by the
// client. Repeated calls for the same intent return the original purchase.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentIntentID, leadID, contractorID string) (*PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "leads.confirm_payment")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", paymentIntentID))

	if paymentIntentID == "" || leadID == "" || contractorID == "" {
		return nil, ErrMissingFields
	}
	if res, ok, err := e.existingPurchase(ctx, paymentIntentID); ok || err != nil {
		return res, err
	}

	intent, err := e.gateway.RetrievePaymentIntent(ctx, paymentIntentID)
	if errors.Is(err, payments.ErrIntentNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: retrieve payment intent: %w", err)
	}
	if !intent.Status.Succeeded() {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentIncomplete, intent.ID, intent.Status)
	}
	if intent.Metadata["leadId"] != leadID {
		return nil, &ValidationError{Field: "leadId", Reason: "does not match payment intent"}
	}
	if intent.Metadata["contractorId"] != contractorID {
		return nil, &ValidationError{Field: "contractorId", Reason: "does not match payment intent"}
	}

	release, err := e.lock(ctx, leadID)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, ok, err := e.existingPurchase(ctx, paymentIntentID); ok || err != nil {
		return res, err
	}
	lead, err := e.repo.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status != StatusOpen {
		e.logger.ForLead(lead.ID).Error("paid for unavailable lead",
			"payment_intent_id", paymentIntentID, "contractor_id", contractorID, "status", lead.Status)
		return nil, ErrLeadUnavailable
	}
	if intent.AmountCents != int64(lead.Price)*100 {
		e.logger.ForLead(lead.ID).Error("payment amount does not match lead price",
			"payment_intent_id", paymentIntentID, "amount_cents", intent.AmountCents, "price", lead.Price)
		return nil, &ValidationError{Field: "paymentIntentId", Reason: "amount does not match lead price"}
	}

	return e.assign(ctx, lead, contractorID, intent.ID, float64(lead.Price), events.PurchaseFlowConfirm, true)
}

// assign commits open -> assigned with its purchase, retrying on version
// conflicts while the lead stays open. The caller holds the lead lock.
func (e *Engine) assign(ctx context.Context, lead *Lead, contractorID, intentID string, amount float64, flow string, fromConfirm bool) (*PurchaseResult, error) {
	purchase := &Purchase{
		ID:              uuid.New().String(),
		LeadID:          lead.ID,
		ContractorID:    contractorID,
		AmountPaid:      amount,
		PaymentIntentID: intentID,
		PaymentStatus:   PaymentCompleted,
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := e.repo.Get(ctx, lead.ID)
			if err != nil {
				return nil, err
			}
			if fresh.Status != StatusOpen {
				e.logger.ForLead(lead.ID).Error("lead taken while payment settled",
					"payment_intent_id", intentID, "contractor_id", contractorID, "status", fresh.Status)
				return nil, ErrConflict
			}
			lead = fresh
		}

		expected := lead.Version
		updated := lead.Clone()
		now := e.now()
		updated.Status = StatusAssigned
		updated.ContractorID = contractorID
		updated.UpdatedAt = now
		purchase.CreatedAt = now

		err := e.repo.CommitPurchase(ctx, updated, expected, purchase)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if errors.Is(err, ErrDuplicatePurchase) && fromConfirm {
			if res, ok, lookupErr := e.existingPurchase(ctx, intentID); ok || lookupErr != nil {
				return res, lookupErr
			}
		}
		if err != nil {
			return nil, fmt.Errorf("leads: commit purchase: %w", err)
		}

		e.logger.ForLead(updated.ID).Info("lead purchased",
			"contractor_id", contractorID, "payment_intent_id", intentID, "amount_paid", amount, "flow", flow)
		e.publishStatusChange(ctx, updated, StatusOpen, "")
		e.bus.Publish(ctx, events.LeadPurchasedV1{
			BaseEvent:       events.NewBaseEvent(),
			Lead:            snapshot(updated),
			PurchaseID:      purchase.ID,
			ContractorID:    contractorID,
			AmountPaid:      amount,
			PaymentIntentID: intentID,
			Flow:            flow,
		})
		return &PurchaseResult{Lead: updated, Purchase: purchase}, nil
	}
	return nil, ErrConflict
}

func (e *Engine) existingPurchase(ctx context.Context, intentID string) (*PurchaseResult, bool, error) {
	purchase, err := e.repo.PurchaseByIntent(ctx, intentID)
	if errors.Is(err, ErrPurchaseNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	lead, err := e.repo.Get(ctx, purchase.LeadID)
	if err != nil {
		return nil, false, err
	}
	return &PurchaseResult{Lead: lead, Purchase: purchase}, true, nil
}

// mutate runs fn against the freshest copy of a lead under the lead lock and
// persists it with a version check.
func (e *Engine) mutate(ctx context.Context, leadID string, fn func(*Lead) error) (*Lead, error) {
	release, err := e.lock(ctx, leadID)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		lead, err := e.repo.Get(ctx, leadID)
		if err != nil {
			return nil, err
		}
		expected := lead.Version
		if err := fn(lead); err != nil {
			return nil, err
		}
		err = e.repo.Update(ctx, lead, expected)
		if errors.Is(err, ErrVersionConflict) {
			e.logger.ForLead(leadID).Debug("version conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("leads: update: %w", err)
		}
		return lead, nil
	}
	return nil, ErrConflict
}

func (e *Engine) lock(ctx context.Context, leadID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()
	release, err := e.locker.Acquire(lockCtx, purchaseLockSpace+leadID)
	if errors.Is(err, locking.ErrLockTimeout) {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: lock: %w", err)
	}
	return release, nil
}

func (e *Engine) purchasable(ctx context.Context, leadID string) (*Lead, error) {
	lead, err := e.repo.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status != StatusOpen {
		return nil, ErrLeadUnavailable
	}
	if lead.Expired(e.now()) {
		return nil, ErrLeadExpired
	}
	return lead, nil
}

func (e *Engine) contractor(ctx context.Context, contractorID string) (*contractors.Contractor, error) {
	c, err := e.directory.GetByID(ctx, contractorID)
	if errors.Is(err, contractors.ErrContractorNotFound) {
		return nil, ErrContractorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: contractor lookup: %w", err)
	}
	return c, nil
}

// saveContact records the homeowner's address so lifecycle emails can reach
// them. Failures leave the lead in place.
func (e *Engine) saveContact(ctx context.Context, lead *Lead, home *HomeInfo) {
	email := strings.TrimSpace(home.Email)
	if e.homeowners == nil || email == "" {
		return
	}
	if err := e.homeowners.SaveContact(ctx, lead.HomeownerID, strings.TrimSpace(home.Name), email); err != nil {
		e.logger.ForLead(lead.ID).Warn("homeowner contact not saved", "homeowner_id", lead.HomeownerID, "error", err)
	}
}

func (e *Engine) checkVelocity(ctx context.Context, contractorID string) error {
	if e.velocity == nil {
		return nil
	}
	ok, err := e.velocity.Allow(ctx, contractorID)
	if err != nil {
		e.logger.Warn("velocity check errored, allowing", "contractor_id", contractorID, "error", err)
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (e *Engine) publishStatusChange(ctx context.Context, lead *Lead, from Status, notes string) {
	e.bus.Publish(ctx, events.LeadStatusChangedV1{
		BaseEvent: events.NewBaseEvent(),
		Lead:      snapshot(lead),
		From:      string(from),
		To:        string(lead.Status),
		Notes:     strings.TrimSpace(notes),
	})
}

func purchaseMetadata(lead *Lead, contractorID string) map[string]string {
	return map[string]string{
		"leadId":       lead.ID,
		"contractorId": contractorID,
		"leadType":     lead.LeadType,
		"homeownerId":  lead.HomeownerID,
	}
}

func snapshot(l *Lead) events.LeadSnapshot {
	return events.LeadSnapshot{
		LeadID:             l.ID,
		HomeownerID:        l.HomeownerID,
		ContractorID:       l.ContractorID,
		LeadType:           l.LeadType,
		Location:           l.Location,
		Status:             string(l.Status),
		UrgencyLevel:       l.UrgencyLevel,
		LeadScore:          l.LeadScore,
		Price:              l.Price,
		EstimatedBudgetMax: l.EstimatedBudgetMax,
	}
}
