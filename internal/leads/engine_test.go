package leads

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/internal/events"
	"github.com/accessmod/lead-marketplace/internal/payments"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubVelocity struct {
	allow bool
	err   error
}

func (s stubVelocity) Allow(context.Context, string) (bool, error) { return s.allow, s.err }

type harness struct {
	engine  *Engine
	repo    *InMemoryRepository
	gateway *payments.FakeGateway
	bus     *events.InMemoryBus
	clock   *testClock
	perf    *contractors.InMemoryPerformanceStore

	mu     sync.Mutex
	events []events.Event
}

func newHarness(t *testing.T, opts ...func(*EngineDeps)) *harness {
	t.Helper()
	h := &harness{
		repo:    NewInMemoryRepository(),
		gateway: payments.NewFakeGateway(logging.Discard()),
		bus:     events.NewInMemoryBus(logging.Discard()),
		clock:   &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		perf:    contractors.NewInMemoryPerformanceStore(),
	}
	h.bus.Subscribe(events.AllEvents, events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
		return nil
	}))
	deps := EngineDeps{
		Repo:        h.repo,
		Directory:   contractors.NewInMemoryDirectory(contractors.DemoContractors()...),
		Gateway:     h.gateway,
		Bus:         h.bus,
		Performance: h.perf,
		Logger:      logging.Discard(),
		Now:         h.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.engine = NewEngine(deps)
	return h
}

func (h *harness) published() []events.Event {
	h.bus.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.events...)
}

func (h *harness) generate(t *testing.T) *Lead {
	t.Helper()
	res, err := h.engine.GenerateLead(context.Background(), validRequest())
	require.NoError(t, err)
	return res.Lead
}

func (h *harness) setStatus(t *testing.T, id string, status Status) {
	t.Helper()
	lead, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	lead.Status = status
	require.NoError(t, h.repo.Update(context.Background(), lead, lead.Version))
}

func TestGenerateLead_GrabBarScenario(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.GenerateLead(context.Background(), validRequest())
	require.NoError(t, err)

	lead := res.Lead
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "grab_bar_installation", lead.LeadType)
	assert.Equal(t, 88, lead.LeadScore)
	assert.Equal(t, UrgencyHigh, lead.UrgencyLevel)
	assert.Equal(t, 132, lead.Price)
	assert.Equal(t, "Austin, TX", lead.Location)
	assert.Equal(t, StatusOpen, lead.Status)
	assert.Equal(t, h.clock.Now().Add(DefaultLeadTTL), lead.ExpiresAt)
	assert.Contains(t, lead.Description, "Bathroom safety modification needed.")
	assert.Equal(t, 1, res.MatchingContractorCount)

	evs := h.published()
	require.Len(t, evs, 1)
	generated, ok := evs[0].(events.LeadGeneratedV1)
	require.True(t, ok)
	assert.Equal(t, lead.ID, generated.Lead.LeadID)
	assert.Equal(t, 1, generated.MatchingContractorCount)
}

func TestGenerateLead_WriteOnceFieldsRoundTrip(t *testing.T) {
	h := newHarness(t)
	created := h.generate(t)

	stored, err := h.engine.GetLead(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.LeadScore, stored.LeadScore)
	assert.Equal(t, created.Price, stored.Price)
	assert.Equal(t, created.LeadType, stored.LeadType)
	assert.Equal(t, created.UrgencyLevel, stored.UrgencyLevel)

	_, err = h.engine.UpdateLeadStatus(context.Background(), UpdateStatusRequest{LeadID: created.ID, Status: "expired"})
	require.NoError(t, err)
	stored, err = h.engine.GetLead(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Price, stored.Price)
	assert.Equal(t, created.LeadScore, stored.LeadScore)
}

type contactRecorder struct {
	mu    sync.Mutex
	saved map[string][2]string
	err   error
}

func (c *contactRecorder) SaveContact(_ context.Context, homeownerID, name, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		c.saved = map[string][2]string{}
	}
	c.saved[homeownerID] = [2]string{name, email}
	return c.err
}

func TestGenerateLead_SavesHomeownerContact(t *testing.T) {
	ctx := context.Background()
	contacts := &contactRecorder{}
	h := newHarness(t, func(d *EngineDeps) { d.Homeowners = contacts })

	h.generate(t)
	assert.Empty(t, contacts.saved)

	req := validRequest()
	req.HomeInfo.Name = " Pat "
	req.HomeInfo.Email = "pat@example.com"
	_, err := h.engine.GenerateLead(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"Pat", "pat@example.com"}, contacts.saved["home_1"])

	contacts.err = errors.New("db down")
	res, err := h.engine.GenerateLead(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, res.Lead.Status)
}

func TestGenerateLead_ValidationError(t *testing.T) {
	h := newHarness(t)
	req := validRequest()
	req.HomeInfo.UrgencyLevel = nil

	_, err := h.engine.GenerateLead(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, h.published())
}

type failingDirectory struct{ contractors.Directory }

func (failingDirectory) List(context.Context) ([]contractors.Contractor, error) {
	return nil, errors.New("directory offline")
}

func TestGenerateLead_DirectoryFailureCountsZero(t *testing.T) {
	h := newHarness(t, func(d *EngineDeps) { d.Directory = failingDirectory{d.Directory} })
	res, err := h.engine.GenerateLead(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchingContractorCount)
}

func TestPurchaseLead_Succeeds(t *testing.T) {
	h := newHarness(t)
	lead := h.generate(t)

	res, err := h.engine.PurchaseLead(context.Background(), lead.ID, "contractor_1", "pm_card_visa")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res.Lead.Status)
	assert.Equal(t, "contractor_1", res.Lead.ContractorID)
	assert.Equal(t, 132.0, res.Purchase.AmountPaid)
	assert.Equal(t, PaymentCompleted, res.Purchase.PaymentStatus)

	intent, err := h.gateway.RetrievePaymentIntent(context.Background(), res.Purchase.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, int64(13200), intent.AmountCents)
	assert.Equal(t, "cus_demo_contractor_1", intent.CustomerID)
	assert.Equal(t, lead.ID, intent.Metadata["leadId"])

	stored, err := h.repo.PurchaseByIntent(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Purchase.ID, stored.ID)

	var sawStatus, sawPurchase bool
	for _, ev := range h.published() {
		switch e := ev.(type) {
		case events.LeadStatusChangedV1:
			sawStatus = e.From == "open" && e.To == "assigned"
		case events.LeadPurchasedV1:
			sawPurchase = e.Flow == events.PurchaseFlowDirect && e.AmountPaid == 132
		}
	}
	assert.True(t, sawStatus)
	assert.True(t, sawPurchase)
}

func TestPurchaseLead_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("missing fields", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.PurchaseLead(ctx, "lead", "", "pm")
		assert.ErrorIs(t, err, ErrMissingFields)
	})

	t.Run("unknown lead", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.PurchaseLead(ctx, "missing", "contractor_1", "pm")
		assert.ErrorIs(t, err, ErrLeadNotFound)
	})

	t.Run("assigned lead is unavailable", func(t *testing.T) {
		h := newHarness(t)
		lead := h.generate(t)
		h.setStatus(t, lead.ID, StatusAssigned)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm")
		assert.ErrorIs(t, err, ErrLeadUnavailable)
	})

	t.Run("expired lead", func(t *testing.T) {
		h := newHarness(t)
		lead := h.generate(t)
		h.clock.Advance(DefaultLeadTTL + time.Second)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm")
		assert.ErrorIs(t, err, ErrLeadExpired)
	})

	t.Run("unknown contractor", func(t *testing.T) {
		h := newHarness(t)
		lead := h.generate(t)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "nobody", "pm")
		assert.ErrorIs(t, err, ErrContractorNotFound)
	})

	t.Run("declined card", func(t *testing.T) {
		h := newHarness(t)
		lead := h.generate(t)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", payments.FakeMethodDeclined)
		assert.ErrorIs(t, err, ErrPaymentFailed)
		stored, _ := h.repo.Get(ctx, lead.ID)
		assert.Equal(t, StatusOpen, stored.Status)
	})

	t.Run("needs authentication", func(t *testing.T) {
		h := newHarness(t)
		lead := h.generate(t)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", payments.FakeMethodRequires3DS)
		assert.ErrorIs(t, err, ErrPaymentIncomplete)
		stored, _ := h.repo.Get(ctx, lead.ID)
		assert.Equal(t, StatusOpen, stored.Status)
	})

	t.Run("rate limited", func(t *testing.T) {
		h := newHarness(t, func(d *EngineDeps) { d.Velocity = stubVelocity{allow: false} })
		lead := h.generate(t)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm")
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("velocity errors fail open", func(t *testing.T) {
		h := newHarness(t, func(d *EngineDeps) { d.Velocity = stubVelocity{err: errors.New("redis down")} })
		lead := h.generate(t)
		_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm")
		assert.NoError(t, err)
	})
}

func TestPurchaseLead_ConcurrentBuyersOneWins(t *testing.T) {
	h := newHarness(t)
	lead := h.generate(t)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for _, c := range []string{"contractor_1", "contractor_2", "contractor_3", "contractor_1"} {
		wg.Add(1)
		go func(contractorID string) {
			defer wg.Done()
			_, err := h.engine.PurchaseLead(context.Background(), lead.ID, contractorID, "pm_card_visa")
			if err == nil {
				successes.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrLeadUnavailable)
		}(c)
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes.Load())
}

func TestCreatePaymentIntentAndConfirm(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	intent, err := h.engine.CreatePaymentIntent(ctx, lead.ID, "contractor_2")
	require.NoError(t, err)
	assert.Equal(t, 132, intent.Amount)
	assert.NotEmpty(t, intent.ClientSecret)

	_, err = h.engine.ConfirmPayment(ctx, intent.PaymentIntentID, lead.ID, "contractor_2")
	assert.ErrorIs(t, err, ErrPaymentIncomplete)

	require.NoError(t, h.gateway.SetStatus(intent.PaymentIntentID, payments.StatusSucceeded))
	res, err := h.engine.ConfirmPayment(ctx, intent.PaymentIntentID, lead.ID, "contractor_2")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res.Lead.Status)
	assert.Equal(t, 132.0, res.Purchase.AmountPaid)

	again, err := h.engine.ConfirmPayment(ctx, intent.PaymentIntentID, lead.ID, "contractor_2")
	require.NoError(t, err)
	assert.Equal(t, res.Purchase.ID, again.Purchase.ID)

	var confirmFlows int
	for _, ev := range h.published() {
		if e, ok := ev.(events.LeadPurchasedV1); ok && e.Flow == events.PurchaseFlowConfirm {
			confirmFlows++
		}
	}
	assert.Equal(t, 1, confirmFlows)
}

func TestConfirmPayment_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	_, err := h.engine.ConfirmPayment(ctx, "", lead.ID, "contractor_1")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = h.engine.ConfirmPayment(ctx, "pi_unknown", lead.ID, "contractor_1")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	intent, err := h.engine.CreatePaymentIntent(ctx, lead.ID, "contractor_1")
	require.NoError(t, err)
	require.NoError(t, h.gateway.SetStatus(intent.PaymentIntentID, payments.StatusSucceeded))

	_, err = h.engine.ConfirmPayment(ctx, intent.PaymentIntentID, "other-lead", "contractor_1")
	assert.ErrorIs(t, err, ErrValidation)

	h.setStatus(t, lead.ID, StatusExpired)
	_, err = h.engine.ConfirmPayment(ctx, intent.PaymentIntentID, lead.ID, "contractor_1")
	assert.ErrorIs(t, err, ErrLeadUnavailable)
}

func TestConfirmPayment_RequiresMatchingIntent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)
	require.Equal(t, 132, lead.Price)

	confirmWith := func(amountCents int64, metadata map[string]string) error {
		t.Helper()
		pi, err := h.gateway.CreatePaymentIntent(ctx, payments.IntentParams{AmountCents: amountCents, Metadata: metadata})
		require.NoError(t, err)
		require.NoError(t, h.gateway.SetStatus(pi.ID, payments.StatusSucceeded))
		_, err = h.engine.ConfirmPayment(ctx, pi.ID, lead.ID, "contractor_1")
		return err
	}

	tests := []struct {
		name        string
		amountCents int64
		metadata    map[string]string
	}{
		{"no metadata", 13200, nil},
		{"missing contractor", 13200, map[string]string{"leadId": lead.ID}},
		{"other contractor", 13200, map[string]string{"leadId": lead.ID, "contractorId": "contractor_2"}},
		{"underpaid", 100, map[string]string{"leadId": lead.ID, "contractorId": "contractor_1"}},
		{"overpaid", 13300, map[string]string{"leadId": lead.ID, "contractorId": "contractor_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := confirmWith(tt.amountCents, tt.metadata)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrValidation)

			stored, err := h.repo.Get(ctx, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusOpen, stored.Status)
			assert.Empty(t, stored.ContractorID)
		})
	}

	require.NoError(t, confirmWith(13200, map[string]string{"leadId": lead.ID, "contractorId": "contractor_1"}))
	stored, err := h.repo.Get(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, stored.Status)
}

func TestCreatePaymentIntent_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	_, err := h.engine.CreatePaymentIntent(ctx, "", "contractor_1")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = h.engine.CreatePaymentIntent(ctx, lead.ID, "nobody")
	assert.ErrorIs(t, err, ErrContractorNotFound)

	h.clock.Advance(DefaultLeadTTL + time.Minute)
	_, err = h.engine.CreatePaymentIntent(ctx, lead.ID, "contractor_1")
	assert.ErrorIs(t, err, ErrLeadExpired)
}

func TestUpdateLeadStatus_FunnelToWon(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)
	_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm_card_visa")
	require.NoError(t, err)

	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "contacted", Notes: "  called homeowner "})
	require.NoError(t, err)
	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "quoted"})
	require.NoError(t, err)
	won, err := h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "won"})
	require.NoError(t, err)

	assert.Equal(t, StatusWon, won.Status)
	require.Len(t, won.Notes, 1)
	assert.Equal(t, "called homeowner", won.Notes[0].Text)
	assert.Equal(t, StatusContacted, won.Notes[0].Status)

	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "Cannot transition from won to lost")
}

func TestUpdateLeadStatus_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	_, err := h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{Status: "assigned"})
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: "missing", Status: "assigned"})
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "won"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := h.repo.Get(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, stored.Status)
}

// conflictingRepository loses the version race a fixed number of times.
type conflictingRepository struct {
	*InMemoryRepository
	conflicts int
	calls     int
}

func (r *conflictingRepository) Update(ctx context.Context, lead *Lead, expected int64) error {
	r.calls++
	if r.calls <= r.conflicts {
		return ErrVersionConflict
	}
	return r.InMemoryRepository.Update(ctx, lead, expected)
}

func TestUpdateLeadStatus_RetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()

	repo := &conflictingRepository{InMemoryRepository: NewInMemoryRepository(), conflicts: 2}
	h := newHarness(t, func(d *EngineDeps) { d.Repo = repo })
	lead := h.generate(t)

	updated, err := h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "assigned"})
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, updated.Status)
	assert.Equal(t, 3, repo.calls)

	repo = &conflictingRepository{InMemoryRepository: NewInMemoryRepository(), conflicts: 10}
	h = newHarness(t, func(d *EngineDeps) { d.Repo = repo })
	lead = h.generate(t)
	_, err = h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "assigned"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxWriteAttempts, repo.calls)
}

func TestListLeads_HidesExpiredOpenLeads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	old := h.generate(t)
	h.clock.Advance(DefaultLeadTTL - time.Hour)
	fresh := h.generate(t)
	h.clock.Advance(2 * time.Hour)

	open, err := h.engine.ListLeads(ctx, ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fresh.ID, open[0].ID)

	all, err := h.engine.ListLeads(ctx, ListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, []string{all[0].ID, all[1].ID}, old.ID)

	_, err = h.engine.ListLeads(ctx, ListFilter{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestListLeads_OpenPagesSkipExpiredBeforeLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.generate(t)
		h.clock.Advance(time.Minute)
	}
	stale := storedLead("stale", StatusOpen, h.clock.Now())
	stale.ExpiresAt = h.clock.Now().Add(-time.Hour)
	require.NoError(t, h.repo.Create(ctx, stale))

	first, err := h.engine.ListLeads(ctx, ListFilter{Status: StatusOpen, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := h.engine.ListLeads(ctx, ListFilter{Status: StatusOpen, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	for _, l := range append(first, second...) {
		assert.NotEqual(t, "stale", l.ID)
	}
}

func TestExpireLead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	ok, err := h.engine.ExpireLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	h.clock.Advance(DefaultLeadTTL + time.Second)
	ok, err = h.engine.ExpireLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := h.repo.Get(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)

	ok, err = h.engine.ExpireLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpireLead_LeavesPurchasedLeads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	h.clock.Advance(DefaultLeadTTL - 24*time.Hour)
	_, err := h.engine.PurchaseLead(ctx, lead.ID, "contractor_1", "pm_card_visa")
	require.NoError(t, err)

	h.clock.Advance(48 * time.Hour)
	ok, err := h.engine.ExpireLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	updated, err := h.engine.UpdateLeadStatus(ctx, UpdateStatusRequest{LeadID: lead.ID, Status: "contacted", ContractorID: "contractor_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusContacted, updated.Status)
}

func TestMatchContractorsAndPerformance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.generate(t)

	matches, err := h.engine.MatchContractors(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "contractor_1", matches[0].ID)

	perf, err := h.engine.ContractorPerformance(ctx, "contractor_2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), perf.TotalLeads)

	_, err = h.engine.ContractorPerformance(ctx, "nobody")
	assert.ErrorIs(t, err, ErrContractorNotFound)
}
