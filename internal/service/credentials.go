package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/repository"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

// CredentialService owns the salted password digest of each user and the
// user's credential version.
type CredentialService struct {
	uow    repository.UnitOfWork
	hasher auth.Hasher
	logger *zap.Logger
}

// NewCredentialService builds the service.
func NewCredentialService(uow repository.UnitOfWork, hasher auth.Hasher, logger *zap.Logger) *CredentialService {
	return &CredentialService{uow: uow, hasher: hasher, logger: logger}
}

// SetPassword replaces the user's credential and regenerates its credential
// version in one unit of work. On success user.CredentialVersion holds the new
// version, which invalidates every auth and reset token minted before.
func (s *CredentialService) SetPassword(ctx context.Context, user *domain.User, raw string) error {
	return s.setPasswordIn(ctx, s.uow, user, raw)
}

func (s *CredentialService) setPasswordIn(ctx context.Context, uow repository.UnitOfWork, user *domain.User, raw string) error {
	if user == nil || user.ID == "" {
		return apperrors.NewValidationError("user is required", nil)
	}
	if raw == "" {
		return apperrors.NewValidationError("password must not be empty", nil)
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return err
	}
	digest := s.hasher.Hash(raw, salt)
	version, err := randomHex(16)
	if err != nil {
		return err
	}

	// Bulk-access connections cannot read inside Atomic, so the lookup
	// happens up front.
	var existed bool
	if !uow.Transactional() {
		if existed, err = hasCredential(ctx, uow, user.ID); err != nil {
			return err
		}
	}

	updated := *user
	err = uow.Atomic(ctx, func(ctx context.Context, tx repository.UnitOfWork) error {
		if tx.Transactional() {
			var err error
			if existed, err = hasCredential(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		if existed {
			if err := tx.Credentials().DeleteByUser(ctx, user.ID); err != nil {
				return fmt.Errorf("delete credential: %w", err)
			}
		}
		cred := &domain.Credential{UserID: user.ID, Digest: digest, Salt: salt}
		if err := tx.Credentials().Create(ctx, cred); err != nil {
			return fmt.Errorf("create credential: %w", err)
		}
		updated.CredentialVersion = version
		if err := tx.Users().Update(ctx, &updated); err != nil {
			return fmt.Errorf("update credential version: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	user.CredentialVersion = updated.CredentialVersion
	user.UpdatedAt = updated.UpdatedAt
	return nil
}

func hasCredential(ctx context.Context, repos repository.Repositories, userID string) (bool, error) {
	_, err := repos.Credentials().GetByUser(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("find credential: %w", err)
	}
	return true, nil
}

// ValidatePassword reports whether raw matches the user's stored password.
// It never returns an error; store failures and inconsistencies are logged
// and reported as a mismatch.
func (s *CredentialService) ValidatePassword(ctx context.Context, user *domain.User, raw string) bool {
	if !user.HasPassword() {
		return false
	}

	cred, err := s.uow.Credentials().GetByUser(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("credential missing for user with credential version", zap.String("user_id", user.ID))
		return false
	}
	if err != nil {
		s.logger.Error("load credential", zap.String("user_id", user.ID), zap.Error(err))
		return false
	}

	return auth.ComparePassword(s.hasher, raw, cred.Digest, cred.Salt)
}

// DeleteUser removes the user's credential, nonces and the user itself in one
// unit of work.
func (s *CredentialService) DeleteUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return apperrors.NewValidationError("user is required", nil)
	}
	return s.uow.Atomic(ctx, func(ctx context.Context, tx repository.UnitOfWork) error {
		if err := tx.Credentials().DeleteByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		if err := tx.Nonces().DeleteByOwner(ctx, user.ID); err != nil {
			return fmt.Errorf("delete nonces: %w", err)
		}
		if err := tx.Users().Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
