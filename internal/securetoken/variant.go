package securetoken

import (
	"time"

	"github.com/spec-kit/authgate/internal/domain"
)

// Variant selects how a token's signature material is derived and how long
// the token stays valid.
type Variant int

const (
	// Auth tokens are signed over the user's credential version and die on
	// any password change.
	Auth Variant = iota + 1
	// Transfer tokens carry identity from an HTTP context into an HTTPS-only
	// one. Each mint overwrites the transfer nonce.
	Transfer
	// PasswordReset tokens are signed over the reset nonce and the credential
	// version.
	PasswordReset
)

// Default lifetimes per variant.
const (
	DefaultAuthTTL          = 14 * 24 * time.Hour
	DefaultTransferTTL      = time.Hour
	DefaultPasswordResetTTL = time.Hour
)

// strategy describes one variant. material returns the extra signature
// components given the user and the nonce value (empty for variants without
// a nonce purpose).
type strategy struct {
	name            string
	defaultTTL      time.Duration
	noncePurpose    string
	requirePassword bool
	material        func(user *domain.User, nonce string) []string
}

var strategies = map[Variant]strategy{
	Auth: {
		name:       "auth",
		defaultTTL: DefaultAuthTTL,
		material: func(user *domain.User, _ string) []string {
			return []string{user.CredentialVersion}
		},
	},
	Transfer: {
		name:         "transfer",
		defaultTTL:   DefaultTransferTTL,
		noncePurpose: domain.NoncePurposeTransfer,
		material: func(_ *domain.User, nonce string) []string {
			return []string{nonce}
		},
	},
	PasswordReset: {
		name:            "password_reset",
		defaultTTL:      DefaultPasswordResetTTL,
		noncePurpose:    domain.NoncePurposePasswordReset,
		requirePassword: true,
		material: func(user *domain.User, nonce string) []string {
			return []string{nonce, user.CredentialVersion}
		},
	},
}

func (v Variant) String() string {
	if s, ok := strategies[v]; ok {
		return s.name
	}
	return "unknown"
}

// DefaultTTL returns the variant's default lifetime, or zero for an unknown variant.
func (v Variant) DefaultTTL() time.Duration {
	return strategies[v].defaultTTL
}

// ParseVariant maps a variant name back to its value.
func ParseVariant(name string) (Variant, bool) {
	for v, s := range strategies {
		if s.name == name {
			return v, true
		}
	}
	return 0, false
}
