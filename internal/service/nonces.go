package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/repository"
)

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NonceStore adapts the nonce repository to the token engine. Each mint
// overwrites the (owner, purpose) row so an owner never has more than one
// nonce per purpose.
type NonceStore struct {
	repos repository.Repositories
}

// NewNonceStore builds a NonceStore over repos.
func NewNonceStore(repos repository.Repositories) *NonceStore {
	return &NonceStore{repos: repos}
}

func (s *NonceStore) MintNonce(ctx context.Context, ownerID, purpose string) (string, error) {
	value, err := randomHex(16)
	if err != nil {
		return "", err
	}
	nonce := &domain.Nonce{OwnerID: ownerID, Purpose: purpose, Value: value}
	if err := s.repos.Nonces().Upsert(ctx, nonce); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return value, nil
}

func (s *NonceStore) CurrentNonce(ctx context.Context, ownerID, purpose string) (string, bool, error) {
	nonce, err := s.repos.Nonces().Get(ctx, ownerID, purpose)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return nonce.Value, true, nil
}
