package repository

import (
	"context"

	"github.com/spec-kit/authgate/internal/domain"
)

// CredentialRepository stores the password credential owned by a user.
type CredentialRepository interface {
	GetByUser(ctx context.Context, userID string) (*domain.Credential, error)
	Create(ctx context.Context, cred *domain.Credential) error
	// DeleteByUser removes the user's credential. Deleting a missing
	// credential is not an error.
	DeleteByUser(ctx context.Context, userID string) error
}

type credentialRepository struct {
	db DBTX
}

// NewCredentialRepository returns a Postgres-backed implementation.
func NewCredentialRepository(db DBTX) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) GetByUser(ctx context.Context, userID string) (*domain.Credential, error) {
	const query = `
        SELECT user_id, digest, salt, created_at
        FROM credentials WHERE user_id=$1`

	var cred domain.Credential
	if err := r.db.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.Digest,
		&cred.Salt,
		&cred.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &cred, nil
}

func (r *credentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	const query = `
        INSERT INTO credentials (user_id, digest, salt)
        VALUES ($1, $2, $3)
        RETURNING created_at`

	err := r.db.QueryRow(ctx, query, cred.UserID, cred.Digest, cred.Salt).Scan(&cred.CreatedAt)
	return mapError(err)
}

func (r *credentialRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE user_id=$1`, userID)
	return mapError(err)
}
