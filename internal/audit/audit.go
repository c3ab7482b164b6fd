// Package audit keeps an append-only history of lead status changes and
// purchases for dispute handling.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/accessmod/lead-marketplace/internal/events"
)

// EventType names the kind of history entry.
type EventType string

const (
	EventLeadGenerated EventType = "lead.generated"
	EventStatusChanged EventType = "lead.status_changed"
	EventLeadPurchased EventType = "lead.purchased"
)

// Entry is an immutable history record.
type Entry struct {
	ID           string          `json:"id"`
	EventType    EventType       `json:"eventType"`
	LeadID       string          `json:"leadId"`
	ContractorID string          `json:"contractorId,omitempty"`
	FromStatus   string          `json:"fromStatus,omitempty"`
	ToStatus     string          `json:"toStatus"`
	Notes        string          `json:"notes,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type purchaseDetails struct {
	PurchaseID      string  `json:"purchase_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	AmountPaid      float64 `json:"amount_paid"`
	Flow            string  `json:"flow"`
}

// Service writes and reads lead history.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts an entry, filling in the id and timestamp when absent.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO lead_audit_events (
			id, event_type, lead_id, contractor_id, from_status, to_status, notes, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.LeadID,
		nullString(entry.ContractorID),
		nullString(entry.FromStatus),
		entry.ToStatus,
		nullString(entry.Notes),
		[]byte(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record %s for lead %s: %w", entry.EventType, entry.LeadID, err)
	}
	return nil
}

// Filter narrows a history query.
type Filter struct {
	LeadID    string
	EventType EventType
	Since     time.Time
	Limit     int
}

// History returns a lead's entries oldest first.
func (s *Service) History(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, event_type, lead_id, contractor_id, from_status, to_status, notes, details, created_at
		FROM lead_audit_events
		WHERE lead_id = $1
	`
	args := []any{filter.LeadID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query history: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var contractorID, fromStatus, notes sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.LeadID, &contractorID, &fromStatus,
			&e.ToStatus, &notes, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan history: %w", err)
		}
		e.ContractorID = contractorID.String
		e.FromStatus = fromStatus.String
		e.Notes = notes.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read history: %w", err)
	}
	return out, nil
}

// Subscribe records every lead event published on the bus.
func (s *Service) Subscribe(bus events.Bus) {
	bus.Subscribe(events.LeadGeneratedEvent, events.HandlerFunc(s.handle))
	bus.Subscribe(events.LeadStatusChangedEvent, events.HandlerFunc(s.handle))
	bus.Subscribe(events.LeadPurchasedEvent, events.HandlerFunc(s.handle))
}

func (s *Service) handle(ctx context.Context, ev events.Event) error {
	entry, ok := entryFor(ev)
	if !ok {
		return nil
	}
	return s.Record(ctx, entry)
}

func entryFor(ev events.Event) (Entry, bool) {
	switch e := ev.(type) {
	case events.LeadGeneratedV1:
		return Entry{
			EventType: EventLeadGenerated,
			LeadID:    e.Lead.LeadID,
			ToStatus:  e.Lead.Status,
			CreatedAt: e.OccurredAt(),
		}, true
	case events.LeadStatusChangedV1:
		return Entry{
			EventType:    EventStatusChanged,
			LeadID:       e.Lead.LeadID,
			ContractorID: e.Lead.ContractorID,
			FromStatus:   e.From,
			ToStatus:     e.To,
			Notes:        e.Notes,
			CreatedAt:    e.OccurredAt(),
		}, true
	case events.LeadPurchasedV1:
		details, _ := json.Marshal(purchaseDetails{
			PurchaseID:      e.PurchaseID,
			PaymentIntentID: e.PaymentIntentID,
			AmountPaid:      e.AmountPaid,
			Flow:            e.Flow,
		})
		return Entry{
			EventType:    EventLeadPurchased,
			LeadID:       e.Lead.LeadID,
			ContractorID: e.ContractorID,
			ToStatus:     e.Lead.Status,
			Details:      details,
			CreatedAt:    e.OccurredAt(),
		}, true
	}
	return Entry{}, false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
