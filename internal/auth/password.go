package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/spec-kit/authgate/internal/config"
)

// SaltSize is the length in bytes of generated password salts.
const SaltSize = 16

// Hasher derives a password digest from a password and salt.
type Hasher interface {
	Hash(password string, salt []byte) []byte
}

// Argon2Hasher hashes passwords with argon2id.
type Argon2Hasher struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
}

// NewArgon2Hasher builds a hasher from the auth configuration.
func NewArgon2Hasher(cfg config.AuthConfig) *Argon2Hasher {
	return &Argon2Hasher{
		Time:      cfg.Argon2Time,
		MemoryKiB: cfg.Argon2MemoryKiB,
		Threads:   cfg.Argon2Threads,
		KeyLen:    32,
	}
}

func (h *Argon2Hasher) Hash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.Time, h.MemoryKiB, h.Threads, h.KeyLen)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// ComparePassword reports whether password hashes to digest under salt.
func ComparePassword(h Hasher, password string, digest, salt []byte) bool {
	if len(digest) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(h.Hash(password, salt), digest) == 1
}
