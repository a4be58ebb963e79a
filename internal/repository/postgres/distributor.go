package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"onboard/internal/domain"
	"onboard/pkg/errors"
)

// DistributorRepository reads the referrers that hand out form links.
// The form service only reads them; Upsert is used by cmd/seed.
type DistributorRepository struct {
	db *sqlx.DB
}

func NewDistributorRepository(db *sqlx.DB) *DistributorRepository {
	return &DistributorRepository{db: db}
}

func (r *DistributorRepository) FindByID(ctx context.Context, id string) (*domain.Distributor, error) {
	var d domain.Distributor
	query := `SELECT id, name, created_at FROM distributors WHERE id = $1`

	err := r.db.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDistributorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find distributor")
	}
	return &d, nil
}

// Upsert creates the distributor or renames an existing one.
func (r *DistributorRepository) Upsert(ctx context.Context, d *domain.Distributor) error {
	query := `
		INSERT INTO distributors (id, name, created_at)
		VALUES (:id, :name, :created_at)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return errors.Wrap(err, "failed to upsert distributor")
	}
	return nil
}
