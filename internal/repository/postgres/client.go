package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"onboard/internal/domain"
	"onboard/pkg/errors"
)

// FormatClientID renders the human-readable client number.
func FormatClientID(n int64) string {
	return fmt.Sprintf("CLIENT-%06d", n)
}

// ClientRepository persists submitted clients together with their reminders.
type ClientRepository struct {
	db *sqlx.DB
}

func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `client_id, distributor_id, user_id, name, mobile, email, date_of_birth,
	address, aadhaar_number, pan_number, aadhaar_images, pan_image_url,
	credit_cards, bank_accounts, source, submitted_at, updated_at`

const upsertClientQuery = `
	INSERT INTO clients (
		client_id, distributor_id, user_id, name, mobile, email, date_of_birth,
		address, aadhaar_number, pan_number, aadhaar_images, pan_image_url,
		credit_cards, bank_accounts, source, submitted_at, updated_at
	) VALUES (
		:client_id, :distributor_id, :user_id, :name, :mobile, :email, :date_of_birth,
		:address, :aadhaar_number, :pan_number, :aadhaar_images, :pan_image_url,
		:credit_cards, :bank_accounts, :source, :submitted_at, :updated_at
	)
	ON CONFLICT (client_id) DO UPDATE SET
		user_id = COALESCE(EXCLUDED.user_id, clients.user_id),
		name = EXCLUDED.name,
		mobile = EXCLUDED.mobile,
		email = EXCLUDED.email,
		date_of_birth = EXCLUDED.date_of_birth,
		address = EXCLUDED.address,
		aadhaar_number = EXCLUDED.aadhaar_number,
		pan_number = EXCLUDED.pan_number,
		aadhaar_images = EXCLUDED.aadhaar_images,
		pan_image_url = EXCLUDED.pan_image_url,
		credit_cards = EXCLUDED.credit_cards,
		bank_accounts = EXCLUDED.bank_accounts,
		updated_at = EXCLUDED.updated_at`

const insertReminderQuery = `
	INSERT INTO reminders (
		id, client_id, client_name, client_mobile, distributor_id, card_number,
		card_type, bank_name, card_holder_name, card_limit, bill_generation_date,
		due_date, status, created_at
	) VALUES (
		:id, :client_id, :client_name, :client_mobile, :distributor_id, :card_number,
		:card_type, :bank_name, :card_holder_name, :card_limit, :bill_generation_date,
		:due_date, :status, :created_at
	)`

// Commit writes the client, replaces its reminders and links it to the owning
// user in one transaction. On create the id comes from client_number_seq.
func (r *ClientRepository) Commit(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (id string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := *rec
	row.UpdatedAt = now

	switch mode {
	case domain.SubmitModeCreate:
		var n int64
		if err = tx.GetContext(ctx, &n, `SELECT nextval('client_number_seq')`); err != nil {
			return "", errors.Wrap(err, "failed to allocate client id")
		}
		row.ClientID = FormatClientID(n)
		row.SubmittedAt = now
	case domain.SubmitModeEdit:
		var submittedAt time.Time
		err = tx.GetContext(ctx, &submittedAt,
			`SELECT submitted_at FROM clients WHERE client_id = $1 FOR UPDATE`, row.ClientID)
		if err == sql.ErrNoRows {
			return "", errors.ErrClientNotFound
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to lock client")
		}
		row.SubmittedAt = submittedAt
	default:
		err = fmt.Errorf("unknown submit mode %q", mode)
		return "", err
	}

	if _, err = tx.NamedExecContext(ctx, upsertClientQuery, &row); err != nil {
		return "", errors.Wrap(err, "failed to upsert client")
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM reminders WHERE client_id = $1`, row.ClientID); err != nil {
		return "", errors.Wrap(err, "failed to delete reminders")
	}

	if len(reminders) > 0 {
		batch := make([]domain.ReminderRecord, len(reminders))
		for i, rem := range reminders {
			rem.ClientID = row.ClientID
			rem.CreatedAt = now
			batch[i] = rem
		}
		if _, err = tx.NamedExecContext(ctx, insertReminderQuery, batch); err != nil {
			return "", errors.Wrap(err, "failed to insert reminders")
		}
	}

	if row.UserID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET client_ids = array_append(client_ids, $1::text)
			WHERE id = $2 AND NOT ($1::text = ANY(client_ids))`,
			row.ClientID, *row.UserID)
		if err != nil {
			return "", errors.Wrap(err, "failed to link client to user")
		}
	}

	if err = tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit client")
	}
	return row.ClientID, nil
}

func (r *ClientRepository) FindByID(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	var rec domain.ClientRecord
	query := `SELECT ` + clientColumns + ` FROM clients WHERE client_id = $1`

	err := r.db.GetContext(ctx, &rec, query, clientID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrClientNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find client")
	}
	return &rec, nil
}

// FindReminders lists the reminders currently stored for a client.
func (r *ClientRepository) FindReminders(ctx context.Context, clientID string) ([]domain.ReminderRecord, error) {
	var out []domain.ReminderRecord
	query := `
		SELECT id, client_id, client_name, client_mobile, distributor_id, card_number,
			card_type, bank_name, card_holder_name, card_limit, bill_generation_date,
			due_date, status, created_at
		FROM reminders WHERE client_id = $1 ORDER BY created_at, card_number`

	if err := r.db.SelectContext(ctx, &out, query, clientID); err != nil {
		return nil, errors.Wrap(err, "failed to find reminders")
	}
	return out, nil
}
