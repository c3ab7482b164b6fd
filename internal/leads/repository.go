package leads

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrPurchaseNotFound is returned when no purchase exists for a payment intent.
var ErrPurchaseNotFound = errors.New("purchase not found")

// ErrDuplicatePurchase is returned when a payment intent was already recorded.
var ErrDuplicatePurchase = errors.New("purchase already recorded for payment intent")

// Repository defines the interface for lead storage. Writes are guarded by
// the lead's version: Update and CommitPurchase fail with ErrVersionConflict
// when the stored version differs from expectedVersion, and bump it on success.
type Repository interface {
	Create(ctx context.Context, lead *Lead) error
	Get(ctx context.Context, id string) (*Lead, error)
	Update(ctx context.Context, lead *Lead, expectedVersion int64) error
	// CommitPurchase updates the lead and appends the purchase atomically.
	CommitPurchase(ctx context.Context, lead *Lead, expectedVersion int64, purchase *Purchase) error
	PurchaseByIntent(ctx context.Context, paymentIntentID string) (*Purchase, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
	// ListExpired returns open leads whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Lead, error)
}

// InMemoryRepository keeps leads and purchases in maps.
type InMemoryRepository struct {
	mu        sync.RWMutex
	leads     map[string]*Lead
	purchases map[string]*Purchase
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:     make(map[string]*Lead),
		purchases: make(map[string]*Purchase),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.leads[lead.ID]; exists {
		return ErrVersionConflict
	}
	lead.Version = 1
	r.leads[lead.ID] = lead.Clone()
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, lead *Lead, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(lead, expectedVersion)
}

func (r *InMemoryRepository) updateLocked(lead *Lead, expectedVersion int64) error {
	stored, ok := r.leads[lead.ID]
	if !ok {
		return ErrLeadNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	lead.Version = expectedVersion + 1
	r.leads[lead.ID] = lead.Clone()
	return nil
}

func (r *InMemoryRepository) CommitPurchase(ctx context.Context, lead *Lead, expectedVersion int64, purchase *Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.purchases[purchase.PaymentIntentID]; dup {
		return ErrDuplicatePurchase
	}
	if err := r.updateLocked(lead, expectedVersion); err != nil {
		return err
	}
	p := *purchase
	r.purchases[purchase.PaymentIntentID] = &p
	return nil
}

func (r *InMemoryRepository) PurchaseByIntent(ctx context.Context, paymentIntentID string) (*Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.purchases[paymentIntentID]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	out := *p
	return &out, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	all := make([]*Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(filter.Location)) {
			continue
		}
		if !filter.NotExpiredAt.IsZero() && l.Expired(filter.NotExpiredAt) {
			continue
		}
		all = append(all, l.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, filter.Offset, filter.Limit), nil
}

func (r *InMemoryRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Lead, error) {
	r.mu.RLock()
	var out []*Lead
	for _, l := range r.leads {
		if l.Status == StatusOpen && l.Expired(now) {
			out = append(out, l.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return page(out, 0, limit), nil
}

func page(in []*Lead, offset, limit int) []*Lead {
	offset = max(offset, 0)
	if offset >= len(in) {
		return []*Lead{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
