package contractors

import (
	"context"
	"sync"
	"time"
)

// PerformanceStore tracks per-contractor outcomes. Updates must be atomic per contractor.
type PerformanceStore interface {
	RecordOutcome(ctx context.Context, contractorID string, converted bool, value float64) (*Performance, error)
	RecordPurchase(ctx context.Context, contractorID string, amount float64) (*Performance, error)
	Get(ctx context.Context, contractorID string) (*Performance, error)
}

// InMemoryPerformanceStore keeps performance counters in a map.
type InMemoryPerformanceStore struct {
	mu    sync.Mutex
	stats map[string]*Performance
	now   func() time.Time
}

func NewInMemoryPerformanceStore() *InMemoryPerformanceStore {
	return &InMemoryPerformanceStore{
		stats: make(map[string]*Performance),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryPerformanceStore) entry(contractorID string) *Performance {
	p, ok := s.stats[contractorID]
	if !ok {
		p = &Performance{ContractorID: contractorID}
		s.stats[contractorID] = p
	}
	return p
}

func (s *InMemoryPerformanceStore) RecordOutcome(ctx context.Context, contractorID string, converted bool, value float64) (*Performance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.entry(contractorID)
	p.TotalLeads++
	if converted {
		p.Conversions++
		p.Revenue += value
	}
	p.UpdatedAt = s.now()
	p.recompute()
	out := *p
	return &out, nil
}

func (s *InMemoryPerformanceStore) RecordPurchase(ctx context.Context, contractorID string, amount float64) (*Performance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.entry(contractorID)
	p.Purchases++
	p.Spend += amount
	p.UpdatedAt = s.now()
	p.recompute()
	out := *p
	return &out, nil
}

func (s *InMemoryPerformanceStore) Get(ctx context.Context, contractorID string) (*Performance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.stats[contractorID]
	if !ok {
		return nil, ErrPerformanceNotFound
	}
	out := *p
	return &out, nil
}
