package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"onboard/internal/domain"
	"onboard/pkg/errors"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, google_subject, client_ids, created_at`

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ClientIDs == nil {
		user.ClientIDs = pq.StringArray{}
	}
	query := `
		INSERT INTO users (id, name, email, password_hash, google_subject, client_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, strings.ToLower(user.Email), user.PasswordHash,
		user.GoogleSubject, user.ClientIDs, user.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.ErrUserAlreadyExists
		}
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (r *UserRepository) FindByGoogleSubject(ctx context.Context, subject string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE google_subject = $1`, subject)
}

// SetGoogleSubject links an existing password account to a Google identity.
func (r *UserRepository) SetGoogleSubject(ctx context.Context, id uuid.UUID, subject string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET google_subject = $1 WHERE id = $2`, subject, id)
	if err != nil {
		return errors.Wrap(err, "failed to link google account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to link google account")
	}
	if n == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	return &user, nil
}
