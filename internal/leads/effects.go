package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/accessmod/lead-marketplace/internal/contractors"
	"github.com/accessmod/lead-marketplace/internal/events"
	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// Notifier tells homeowners and contractors about lead progress.
type Notifier interface {
	HomeownerContacted(ctx context.Context, lead events.LeadSnapshot) error
	HomeownerLeadAssigned(ctx context.Context, lead events.LeadSnapshot) error
	ContractorPurchaseConfirmed(ctx context.Context, lead events.LeadSnapshot, amountPaid float64) error
	ContractorConversion(ctx context.Context, lead events.LeadSnapshot) error
}

// MetricsRecorder counts funnel outcomes.
type MetricsRecorder interface {
	LeadGenerated(leadType string, score int)
	LeadPurchased(leadType string, amount float64)
	QuoteProvided(leadType string)
	Conversion(leadType string, value float64)
	LeadLost(leadType string)
	LeadExpired(leadType string)
	StatusChanged(from, to string)
}

// Archiver keeps expired leads outside the primary store.
type Archiver interface {
	ArchiveExpired(ctx context.Context, lead *Lead) error
}

// Effects are the side effects run after committed lead changes. Any field may be nil.
type Effects struct {
	Notifier    Notifier
	Metrics     MetricsRecorder
	Performance contractors.PerformanceStore
	Archiver    Archiver
	Repo        Repository
	Logger      *logging.Logger
}

// RegisterEffects subscribes the side effects to the bus. Each effect runs
// independently, so one failing does not block the rest.
func RegisterEffects(bus events.Bus, fx Effects) {
	if fx.Logger == nil {
		fx.Logger = logging.Default()
	}
	r := &effectRunner{Effects: fx}
	bus.Subscribe(events.LeadGeneratedEvent, events.HandlerFunc(r.onGenerated))
	bus.Subscribe(events.LeadStatusChangedEvent, events.HandlerFunc(r.onStatusChanged))
	bus.Subscribe(events.LeadPurchasedEvent, events.HandlerFunc(r.onPurchased))
}

type effectRunner struct {
	Effects
}

func (r *effectRunner) onGenerated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.LeadGeneratedV1)
	if !ok {
		return nil
	}
	if r.Metrics != nil {
		r.Metrics.LeadGenerated(e.Lead.LeadType, e.Lead.LeadScore)
	}
	return nil
}

func (r *effectRunner) onStatusChanged(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.LeadStatusChangedV1)
	if !ok {
		return nil
	}
	lead := e.Lead
	if r.Metrics != nil {
		r.Metrics.StatusChanged(e.From, e.To)
	}

	var errs []error
	switch Status(e.To) {
	case StatusContacted:
		if r.Notifier != nil {
			errs = append(errs, wrapEffect("notify homeowner contacted", r.Notifier.HomeownerContacted(ctx, lead)))
		}
	case StatusQuoted:
		if r.Metrics != nil {
			r.Metrics.QuoteProvided(lead.LeadType)
		}
	case StatusWon:
		if r.Metrics != nil {
			r.Metrics.Conversion(lead.LeadType, lead.EstimatedBudgetMax)
		}
		if r.Notifier != nil {
			errs = append(errs, wrapEffect("notify contractor conversion", r.Notifier.ContractorConversion(ctx, lead)))
		}
		errs = append(errs, r.recordOutcome(ctx, lead, true))
	case StatusLost:
		if r.Metrics != nil {
			r.Metrics.LeadLost(lead.LeadType)
		}
		errs = append(errs, r.recordOutcome(ctx, lead, false))
	case StatusExpired:
		if r.Metrics != nil {
			r.Metrics.LeadExpired(lead.LeadType)
		}
		errs = append(errs, r.archive(ctx, lead.LeadID))
	}
	return errors.Join(errs...)
}

func (r *effectRunner) onPurchased(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.LeadPurchasedV1)
	if !ok {
		return nil
	}
	var errs []error
	if r.Notifier != nil {
		errs = append(errs, wrapEffect("notify homeowner assigned", r.Notifier.HomeownerLeadAssigned(ctx, e.Lead)))
		if e.Flow == events.PurchaseFlowConfirm {
			errs = append(errs, wrapEffect("notify contractor purchase", r.Notifier.ContractorPurchaseConfirmed(ctx, e.Lead, e.AmountPaid)))
		}
	}
	if r.Metrics != nil {
		r.Metrics.LeadPurchased(e.Lead.LeadType, e.AmountPaid)
	}
	if r.Performance != nil {
		_, err := r.Performance.RecordPurchase(ctx, e.ContractorID, e.AmountPaid)
		errs = append(errs, wrapEffect("record purchase", err))
	}
	return errors.Join(errs...)
}

func (r *effectRunner) recordOutcome(ctx context.Context, lead events.LeadSnapshot, converted bool) error {
	if r.Performance == nil || lead.ContractorID == "" {
		return nil
	}
	value := 0.0
	if converted {
		value = lead.EstimatedBudgetMax
	}
	_, err := r.Performance.RecordOutcome(ctx, lead.ContractorID, converted, value)
	return wrapEffect("record outcome", err)
}

func (r *effectRunner) archive(ctx context.Context, leadID string) error {
	if r.Archiver == nil || r.Repo == nil {
		return nil
	}
	lead, err := r.Repo.Get(ctx, leadID)
	if err != nil {
		return wrapEffect("load expired lead", err)
	}
	return wrapEffect("archive expired lead", r.Archiver.ArchiveExpired(ctx, lead))
}

func wrapEffect(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
