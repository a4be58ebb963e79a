package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/domain"
	"onboard/pkg/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func sampleRecord() *domain.ClientRecord {
	return &domain.ClientRecord{
		DistributorID: "dist-1",
		Name:          "Asha Rao",
		Mobile:        "9876543210",
		AadhaarNumber: "1234-5678-9012",
		PANNumber:     "ABCDE1234F",
		AadhaarImages: domain.AadhaarImageList{{Side: domain.ImageSideFront, URL: "https://cdn/f.jpg"}},
		CreditCards: domain.CreditCardList{{
			CardNumber: "4111111111111111",
			CardLimit:  decimal.NewFromInt(50000),
			CardType:   domain.CardNetworkVisa,
		}},
		BankAccounts: domain.BankAccountList{},
		Source:       domain.ClientSource,
	}
}

func sampleReminders() []domain.ReminderRecord {
	return []domain.ReminderRecord{{
		ID:         uuid.New(),
		ClientName: "Asha Rao",
		CardNumber: "4111111111111111",
		CardType:   domain.CardNetworkVisa,
		CardLimit:  decimal.NewFromInt(50000),
		Status:     domain.ReminderStatusPending,
	}}
}

func TestFormatClientID(t *testing.T) {
	assert.Equal(t, "CLIENT-000001", FormatClientID(1))
	assert.Equal(t, "CLIENT-123456", FormatClientID(123456))
	assert.Equal(t, "CLIENT-1234567", FormatClientID(1234567))
}

func TestClientRepository_CommitCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)
	userID := uuid.New()
	rec := sampleRecord()
	rec.UserID = &userID

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('client_number_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO clients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM reminders").
		WithArgs("CLIENT-000042").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO reminders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET client_ids").
		WithArgs("CLIENT-000042", userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.Commit(context.Background(), rec, sampleReminders(), domain.SubmitModeCreate)

	require.NoError(t, err)
	assert.Equal(t, "CLIENT-000042", id)
	assert.Empty(t, rec.ClientID, "caller's record is not mutated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_CommitCreateWithoutRemindersOrUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO clients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM reminders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	id, err := repo.Commit(context.Background(), sampleRecord(), nil, domain.SubmitModeCreate)

	require.NoError(t, err)
	assert.Equal(t, "CLIENT-000007", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_CommitEditKeepsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)
	rec := sampleRecord()
	rec.ClientID = "CLIENT-000003"
	submitted := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT submitted_at FROM clients").
		WithArgs("CLIENT-000003").
		WillReturnRows(sqlmock.NewRows([]string{"submitted_at"}).AddRow(submitted))
	mock.ExpectExec("INSERT INTO clients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM reminders").
		WithArgs("CLIENT-000003").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO reminders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.Commit(context.Background(), rec, sampleReminders(), domain.SubmitModeEdit)

	require.NoError(t, err)
	assert.Equal(t, "CLIENT-000003", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_CommitEditUnknownClient(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)
	rec := sampleRecord()
	rec.ClientID = "CLIENT-999999"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT submitted_at FROM clients").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), rec, nil, domain.SubmitModeEdit)

	assert.ErrorIs(t, err, errors.ErrClientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_CommitRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(8)))
	mock.ExpectExec("INSERT INTO clients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM reminders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO reminders").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), sampleRecord(), sampleReminders(), domain.SubmitModeCreate)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert reminders")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClientRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"client_id", "distributor_id", "user_id", "name", "mobile", "email", "date_of_birth",
		"address", "aadhaar_number", "pan_number", "aadhaar_images", "pan_image_url",
		"credit_cards", "bank_accounts", "source", "submitted_at", "updated_at",
	}).AddRow(
		"CLIENT-000001", "dist-1", nil, "Asha Rao", "9876543210", "", "",
		"", "1234-5678-9012", "ABCDE1234F",
		`[{"side":"front","url":"https://cdn/f.jpg"}]`, "",
		`[{"cardNumber":"4111111111111111","cardLimit":"50000","cardType":"Visa"}]`,
		`[]`, "client_form", now, now,
	)
	mock.ExpectQuery("FROM clients WHERE client_id").WithArgs("CLIENT-000001").WillReturnRows(rows)

	rec, err := repo.FindByID(context.Background(), "CLIENT-000001")

	require.NoError(t, err)
	assert.Nil(t, rec.UserID)
	assert.Equal(t, "https://cdn/f.jpg", rec.AadhaarImages.URL(domain.ImageSideFront))
	require.Len(t, rec.CreditCards, 1)
	assert.True(t, rec.CreditCards[0].CardLimit.Equal(decimal.NewFromInt(50000)))
	assert.Empty(t, rec.BankAccounts)

	mock.ExpectQuery("FROM clients WHERE client_id").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "CLIENT-000002")
	assert.ErrorIs(t, err, errors.ErrClientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributorRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDistributorRepository(db)

	mock.ExpectQuery("FROM distributors WHERE id").
		WithArgs("dist-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("dist-1", "Sharma Finance", time.Now()))
	mock.ExpectQuery("FROM distributors WHERE id").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	d, err := repo.FindByID(context.Background(), "dist-1")
	require.NoError(t, err)
	assert.Equal(t, "Sharma Finance", d.Name)

	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrDistributorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributorRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDistributorRepository(db)
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO distributors (id, name, created_at)")).
		WithArgs("dist-7", "Gupta Associates", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &domain.Distributor{ID: "dist-7", Name: "Gupta Associates", CreatedAt: created})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
