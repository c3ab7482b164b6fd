package contractors

import (
	"context"
	"sync"
)

// Directory looks up contractors. List must return a stable order.
type Directory interface {
	List(ctx context.Context) ([]Contractor, error)
	GetByID(ctx context.Context, id string) (*Contractor, error)
}

// InMemoryDirectory is a Directory backed by a slice, preserving insertion order.
type InMemoryDirectory struct {
	mu          sync.RWMutex
	contractors []Contractor
}

// NewInMemoryDirectory creates a directory seeded with the given contractors.
func NewInMemoryDirectory(seed ...Contractor) *InMemoryDirectory {
	d := &InMemoryDirectory{}
	for _, c := range seed {
		d.contractors = append(d.contractors, clone(c))
	}
	return d
}

// Upsert adds or replaces a contractor, keeping its original position.
func (d *InMemoryDirectory) Upsert(c Contractor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.contractors {
		if d.contractors[i].ID == c.ID {
			d.contractors[i] = clone(c)
			return
		}
	}
	d.contractors = append(d.contractors, clone(c))
}

// List returns a copy of every contractor in directory order.
func (d *InMemoryDirectory) List(ctx context.Context) ([]Contractor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Contractor, 0, len(d.contractors))
	for _, c := range d.contractors {
		out = append(out, clone(c))
	}
	return out, nil
}

// GetByID returns a contractor or ErrContractorNotFound.
func (d *InMemoryDirectory) GetByID(ctx context.Context, id string) (*Contractor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.contractors {
		if c.ID == id {
			found := clone(c)
			return &found, nil
		}
	}
	return nil, ErrContractorNotFound
}

func clone(c Contractor) Contractor {
	c.Specializations = append([]string(nil), c.Specializations...)
	c.ServiceAreas = append([]string(nil), c.ServiceAreas...)
	return c
}

// DemoContractors is the development seed used when no database is configured.
func DemoContractors() []Contractor {
	return []Contractor{
		{
			ID:               "contractor_1",
			BusinessName:     "Mike's Accessibility Solutions",
			Email:            "mike@accessibilitysolutions.example",
			Specializations:  []string{"grab_bars", "bathroom_modifications", "ramps", "bathroom", "grab", "ramp"},
			ServiceAreas:     []string{"Austin", "Round Rock", "Cedar Park"},
			Rating:           4.8,
			StripeCustomerID: "cus_demo_contractor_1",
		},
		{
			ID:               "contractor_2",
			BusinessName:     "SafeHome Renovations",
			Email:            "jobs@safehomerenovations.example",
			Specializations:  []string{"wheelchair_access", "doorway_widening", "flooring", "entrance", "hallway"},
			ServiceAreas:     []string{"Houston", "Sugar Land", "Katy"},
			Rating:           4.9,
			StripeCustomerID: "cus_demo_contractor_2",
		},
		{
			ID:               "contractor_3",
			BusinessName:     "Universal Design Pro",
			Email:            "hello@universaldesignpro.example",
			Specializations:  []string{"stair_lifts", "lighting", "universal_design", "stair", "kitchen"},
			ServiceAreas:     []string{"Dallas", "Plano", "Richardson"},
			Rating:           4.7,
			StripeCustomerID: "cus_demo_contractor_3",
		},
	}
}
