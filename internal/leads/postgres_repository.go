package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const leadColumns = `id, assessment_id, homeowner_id, lead_type, description,
	estimated_budget_min, estimated_budget_max, urgency_level, status, lead_score, price,
	location, room_scanned, hazards, recommendations, mobility_needs, contractor_id, notes,
	created_at, updated_at, expires_at, version`

// PostgresRepository stores leads and purchases in Postgres.
type PostgresRepository struct {
	db pgxConn
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository accepts a *pgxpool.Pool or any compatible connection.
func NewPostgresRepository(db pgxConn) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) error {
	notes, err := marshalNotes(lead.Notes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1)
	`
	if _, err := r.db.Exec(ctx, query,
		lead.ID,
		lead.AssessmentID,
		lead.HomeownerID,
		lead.LeadType,
		lead.Description,
		lead.EstimatedBudgetMin,
		lead.EstimatedBudgetMax,
		lead.UrgencyLevel,
		string(lead.Status),
		lead.LeadScore,
		lead.Price,
		lead.Location,
		lead.RoomScanned,
		nonNil(lead.Hazards),
		nonNil(lead.Recommendations),
		nonNil(lead.MobilityNeeds),
		nullable(lead.ContractorID),
		notes,
		lead.CreatedAt,
		lead.UpdatedAt,
		lead.ExpiresAt,
	); err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	lead.Version = 1
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Lead, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

const updateLeadSQL = `
	UPDATE leads
	SET status = $2, contractor_id = $3, notes = $4, updated_at = $5, version = version + 1
	WHERE id = $1 AND version = $6
`

func (r *PostgresRepository) Update(ctx context.Context, lead *Lead, expectedVersion int64) error {
	notes, err := marshalNotes(lead.Notes)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, updateLeadSQL,
		lead.ID, string(lead.Status), nullable(lead.ContractorID), notes, lead.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, r.db, lead.ID)
	}
	lead.Version = expectedVersion + 1
	return nil
}

func (r *PostgresRepository) CommitPurchase(ctx context.Context, lead *Lead, expectedVersion int64, purchase *Purchase) error {
	notes, err := marshalNotes(lead.Notes)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("leads: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, updateLeadSQL,
		lead.ID, string(lead.Status), nullable(lead.ContractorID), notes, lead.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, tx, lead.ID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO purchases (id, lead_id, contractor_id, amount_paid, payment_intent_id, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, purchase.ID, purchase.LeadID, purchase.ContractorID, purchase.AmountPaid,
		purchase.PaymentIntentID, string(purchase.PaymentStatus), purchase.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePurchase
		}
		return fmt.Errorf("leads: insert purchase failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("leads: commit purchase: %w", err)
	}
	lead.Version = expectedVersion + 1
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) missingOrConflict(ctx context.Context, q rowQuerier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("leads: existence check failed: %w", err)
	}
	if !exists {
		return ErrLeadNotFound
	}
	return ErrVersionConflict
}

func (r *PostgresRepository) PurchaseByIntent(ctx context.Context, paymentIntentID string) (*Purchase, error) {
	var (
		p      Purchase
		status string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, lead_id, contractor_id, amount_paid, payment_intent_id, payment_status, created_at
		FROM purchases
		WHERE payment_intent_id = $1
	`, paymentIntentID).Scan(&p.ID, &p.LeadID, &p.ContractorID, &p.AmountPaid, &p.PaymentIntentID, &status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: select purchase failed: %w", err)
	}
	p.PaymentStatus = PaymentStatus(status)
	return &p, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		where = append(where, "location ILIKE $"+strconv.Itoa(len(args)))
	}
	if !filter.NotExpiredAt.IsZero() {
		args = append(args, filter.NotExpiredAt)
		where = append(where, "expires_at >= $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	return r.queryLeads(ctx, query, args...)
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryLeads(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE status = 'open' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
}

func (r *PostgresRepository) queryLeads(ctx context.Context, query string, args ...any) ([]*Lead, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead         Lead
		status       string
		contractorID *string
		notes        []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.AssessmentID,
		&lead.HomeownerID,
		&lead.LeadType,
		&lead.Description,
		&lead.EstimatedBudgetMin,
		&lead.EstimatedBudgetMax,
		&lead.UrgencyLevel,
		&status,
		&lead.LeadScore,
		&lead.Price,
		&lead.Location,
		&lead.RoomScanned,
		&lead.Hazards,
		&lead.Recommendations,
		&lead.MobilityNeeds,
		&contractorID,
		&notes,
		&lead.CreatedAt,
		&lead.UpdatedAt,
		&lead.ExpiresAt,
		&lead.Version,
	); err != nil {
		return nil, err
	}
	lead.Status = Status(status)
	if contractorID != nil {
		lead.ContractorID = *contractorID
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &lead.Notes); err != nil {
			return nil, fmt.Errorf("leads: decode notes: %w", err)
		}
	}
	return &lead, nil
}

func marshalNotes(notes []Note) ([]byte, error) {
	if notes == nil {
		notes = []Note{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("leads: encode notes: %w", err)
	}
	return data, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
