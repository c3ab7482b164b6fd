package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresHomeowners keeps homeowner contact details in the homeowners table.
type PostgresHomeowners struct {
	db *sql.DB
}

func NewPostgresHomeowners(db *sql.DB) *PostgresHomeowners {
	if db == nil {
		panic("notify: sql db cannot be nil")
	}
	return &PostgresHomeowners{db: db}
}

// SaveContact upserts the homeowner's address. A blank name keeps the stored one.
func (h *PostgresHomeowners) SaveContact(ctx context.Context, homeownerID, name, email string) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO homeowners (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), homeowners.name),
			email = EXCLUDED.email,
			updated_at = now()`,
		homeownerID, name, email)
	if err != nil {
		return fmt.Errorf("notify: save homeowner %s: %w", homeownerID, err)
	}
	return nil
}

func (h *PostgresHomeowners) Lookup(ctx context.Context, homeownerID string) (Recipient, error) {
	var r Recipient
	err := h.db.QueryRowContext(ctx, `SELECT email, name FROM homeowners WHERE id = $1`, homeownerID).
		Scan(&r.Email, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, ErrRecipientNotFound
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("notify: homeowner %s: %w", homeownerID, err)
	}
	return r, nil
}
