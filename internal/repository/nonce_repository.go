package repository

import (
	"context"

	"github.com/spec-kit/authgate/internal/domain"
)

// NonceRepository stores at most one nonce per (owner, purpose).
type NonceRepository interface {
	// Upsert writes the nonce, replacing any existing value for the pair.
	Upsert(ctx context.Context, nonce *domain.Nonce) error
	Get(ctx context.Context, ownerID, purpose string) (*domain.Nonce, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	DeleteByOwner(ctx context.Context, ownerID string) error
}

type nonceRepository struct {
	db DBTX
}

// NewNonceRepository returns a Postgres-backed implementation.
func NewNonceRepository(db DBTX) NonceRepository {
	return &nonceRepository{db: db}
}

func (r *nonceRepository) Upsert(ctx context.Context, nonce *domain.Nonce) error {
	const query = `
        INSERT INTO nonces (owner_id, purpose, value)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_id, purpose)
        DO UPDATE SET value=EXCLUDED.value, created_at=NOW()
        RETURNING created_at`

	err := r.db.QueryRow(ctx, query, nonce.OwnerID, nonce.Purpose, nonce.Value).Scan(&nonce.CreatedAt)
	return mapError(err)
}

func (r *nonceRepository) Get(ctx context.Context, ownerID, purpose string) (*domain.Nonce, error) {
	const query = `
        SELECT owner_id, purpose, value, created_at
        FROM nonces WHERE owner_id=$1 AND purpose=$2`

	var nonce domain.Nonce
	if err := r.db.QueryRow(ctx, query, ownerID, purpose).Scan(
		&nonce.OwnerID,
		&nonce.Purpose,
		&nonce.Value,
		&nonce.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &nonce, nil
}

func (r *nonceRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM nonces WHERE owner_id=$1`, ownerID).Scan(&count)
	return count, mapError(err)
}

func (r *nonceRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM nonces WHERE owner_id=$1`, ownerID)
	return mapError(err)
}
