package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadColumnNames = []string{
	"id", "assessment_id", "homeowner_id", "lead_type", "description",
	"estimated_budget_min", "estimated_budget_max", "urgency_level", "status", "lead_score", "price",
	"location", "room_scanned", "hazards", "recommendations", "mobility_needs", "contractor_id", "notes",
	"created_at", "updated_at", "expires_at", "version",
}

func leadRow(rows *pgxmock.Rows, id string, status Status, contractorID *string, notes []byte, now time.Time) *pgxmock.Rows {
	return rows.AddRow(
		id, "assess-1", "home-1", "grab_bar_installation", "Bathroom safety modification needed.",
		800.0, 2500.0, UrgencyHigh, string(status), 88, 132,
		"Austin, TX", "bathroom", []string{"No grab bars"}, []string{"Install grab bars"}, []string{"balance_issues"},
		contractorID, notes, now, now, now.Add(DefaultLeadTTL), int64(3),
	)
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	lead := &Lead{
		ID: "lead-1", AssessmentID: "assess-1", HomeownerID: "home-1", LeadType: "ramp_installation",
		Status: StatusOpen, LeadScore: 70, Price: 72, Location: "Austin, TX",
		CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(DefaultLeadTTL),
	}

	mock.ExpectExec("INSERT INTO leads").
		WithArgs(
			"lead-1", "assess-1", "home-1", "ramp_installation", "",
			0.0, 0.0, "", "open", 70, 72,
			"Austin, TX", "", []string{}, []string{}, []string{},
			pgxmock.AnyArg(), []byte("[]"), now, now, now.Add(DefaultLeadTTL),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), lead))
	assert.Equal(t, int64(1), lead.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	contractor := "contractor_1"
	notes := []byte(`[{"text":"called","status":"contacted","createdAt":"2024-01-01T00:00:00Z"}]`)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id").
		WithArgs("lead-1").
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-1", StatusContacted, &contractor, notes, now))

	lead, err := repo.Get(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, StatusContacted, lead.Status)
	assert.Equal(t, "contractor_1", lead.ContractorID)
	assert.Equal(t, 88, lead.LeadScore)
	assert.Equal(t, int64(3), lead.Version)
	require.Len(t, lead.Notes, 1)
	assert.Equal(t, "called", lead.Notes[0].Text)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateVersionCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	lead := &Lead{ID: "lead-1", Status: StatusContacted, ContractorID: "contractor_1", UpdatedAt: time.Now().UTC()}

	mock.ExpectExec("UPDATE leads").
		WithArgs("lead-1", "contacted", pgxmock.AnyArg(), []byte("[]"), lead.UpdatedAt, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Update(context.Background(), lead, 2))
	assert.Equal(t, int64(3), lead.Version)

	mock.ExpectExec("UPDATE leads").
		WithArgs("lead-1", "contacted", pgxmock.AnyArg(), []byte("[]"), lead.UpdatedAt, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.Update(context.Background(), lead, 2), ErrVersionConflict)

	mock.ExpectExec("UPDATE leads").
		WithArgs("lead-1", "contacted", pgxmock.AnyArg(), []byte("[]"), lead.UpdatedAt, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.Update(context.Background(), lead, 2), ErrLeadNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CommitPurchase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	lead := &Lead{ID: "lead-1", Status: StatusAssigned, ContractorID: "contractor_1", UpdatedAt: now}
	purchase := &Purchase{
		ID: "p1", LeadID: "lead-1", ContractorID: "contractor_1", AmountPaid: 132,
		PaymentIntentID: "pi_1", PaymentStatus: PaymentCompleted, CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads").
		WithArgs("lead-1", "assigned", pgxmock.AnyArg(), []byte("[]"), now, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO purchases").
		WithArgs("p1", "lead-1", "contractor_1", 132.0, "pi_1", "completed", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CommitPurchase(context.Background(), lead, 1, purchase))
	assert.Equal(t, int64(2), lead.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CommitPurchaseDuplicateRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	lead := &Lead{ID: "lead-1", Status: StatusAssigned, UpdatedAt: now}
	purchase := &Purchase{ID: "p1", LeadID: "lead-1", PaymentIntentID: "pi_1", PaymentStatus: PaymentCompleted, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO purchases").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err = repo.CommitPurchase(context.Background(), lead, 1, purchase)
	assert.ErrorIs(t, err, ErrDuplicatePurchase)
	assert.Equal(t, int64(0), lead.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_PurchaseByIntent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM purchases").WithArgs("pi_1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "lead_id", "contractor_id", "amount_paid", "payment_intent_id", "payment_status", "created_at"}).
			AddRow("p1", "lead-1", "contractor_1", 132.0, "pi_1", "completed", now))
	p, err := repo.PurchaseByIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, p.PaymentStatus)
	assert.Equal(t, 132.0, p.AmountPaid)

	mock.ExpectQuery("FROM purchases").WithArgs("pi_2").WillReturnError(pgx.ErrNoRows)
	_, err = repo.PurchaseByIntent(context.Background(), "pi_2")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)

	mock.ExpectQuery("FROM purchases").WithArgs("pi_3").WillReturnError(errors.New("boom"))
	_, err = repo.PurchaseByIntent(context.Background(), "pi_3")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPurchaseNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(leadColumnNames)
	leadRow(rows, "lead-1", StatusOpen, nil, []byte("[]"), now)
	leadRow(rows, "lead-2", StatusOpen, nil, nil, now)
	mock.ExpectQuery(`WHERE status = \$1 AND location ILIKE \$2 ORDER BY created_at DESC, id ASC LIMIT \$3 OFFSET \$4`).
		WithArgs("open", "%Austin%", 20, 40).
		WillReturnRows(rows)

	leads, err := repo.List(context.Background(), ListFilter{Status: StatusOpen, Location: "Austin", Limit: 20, Offset: 40})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Empty(t, leads[0].ContractorID)
	assert.Empty(t, leads[1].Notes)

	mock.ExpectQuery(`WHERE status = \$1 AND expires_at >= \$2 ORDER BY created_at DESC, id ASC LIMIT \$3$`).
		WithArgs("open", now, 2).
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-3", StatusOpen, nil, nil, now))
	leads, err = repo.List(context.Background(), ListFilter{Status: StatusOpen, NotExpiredAt: now, Limit: 2})
	require.NoError(t, err)
	require.Len(t, leads, 1)

	mock.ExpectQuery(`FROM leads ORDER BY created_at DESC, id ASC$`).
		WillReturnRows(pgxmock.NewRows(leadColumnNames))
	leads, err = repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE status = 'open' AND expires_at < \$1`).
		WithArgs(now, 100).
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-1", StatusOpen, nil, nil, now))

	leads, err := repo.ListExpired(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, StatusOpen, leads[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
