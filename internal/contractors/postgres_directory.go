package contractors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const contractorColumns = `id, business_name, email, specializations, service_areas, rating, stripe_customer_id`

// PostgresDirectory reads the contractors table through database/sql.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory wraps an open database handle.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	if db == nil {
		panic("contractors: sql db cannot be nil")
	}
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) List(ctx context.Context) ([]Contractor, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+contractorColumns+` FROM contractors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("contractors: list: %w", err)
	}
	defer rows.Close()

	out := []Contractor{}
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("contractors: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) GetByID(ctx context.Context, id string) (*Contractor, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id = $1`, id)
	c, err := scanContractor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contractors: get %s: %w", id, err)
	}
	return &c, nil
}

// Upsert inserts or updates a contractor row.
func (d *PostgresDirectory) Upsert(ctx context.Context, c Contractor) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO contractors (id, business_name, email, specializations, service_areas, rating, stripe_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			email = EXCLUDED.email,
			specializations = EXCLUDED.specializations,
			service_areas = EXCLUDED.service_areas,
			rating = EXCLUDED.rating,
			stripe_customer_id = EXCLUDED.stripe_customer_id`,
		c.ID, c.BusinessName, nullString(c.Email), pq.Array(c.Specializations), pq.Array(c.ServiceAreas),
		c.Rating, nullString(c.StripeCustomerID))
	if err != nil {
		return fmt.Errorf("contractors: upsert %s: %w", c.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContractor(row rowScanner) (Contractor, error) {
	var (
		c        Contractor
		email    sql.NullString
		customer sql.NullString
	)
	if err := row.Scan(&c.ID, &c.BusinessName, &email, pq.Array(&c.Specializations),
		pq.Array(&c.ServiceAreas), &c.Rating, &customer); err != nil {
		return Contractor{}, err
	}
	c.Email = email.String
	c.StripeCustomerID = customer.String
	if c.Specializations == nil {
		c.Specializations = []string{}
	}
	if c.ServiceAreas == nil {
		c.ServiceAreas = []string{}
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
