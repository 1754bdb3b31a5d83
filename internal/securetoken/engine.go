package securetoken

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/authgate/internal/clock"
	"github.com/spec-kit/authgate/internal/domain"
)

// SecretStore supplies the process-wide signing secret.
type SecretStore interface {
	SigningSecret() ([]byte, error)
}

// StaticSecret is a SecretStore holding a fixed key.
type StaticSecret []byte

func (s StaticSecret) SigningSecret() ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrNoSecret
	}
	return s, nil
}

// NonceStore mints and reads single-use nonces keyed by (owner, purpose).
type NonceStore interface {
	// MintNonce stores a fresh value for the pair, replacing any prior one.
	MintNonce(ctx context.Context, ownerID, purpose string) (string, error)
	// CurrentNonce returns the live value; found is false when none exists.
	CurrentNonce(ctx context.Context, ownerID, purpose string) (value string, found bool, err error)
}

// UserLookup resolves a user id. A nil user with a nil error means "not found".
type UserLookup func(ctx context.Context, id string) (*domain.User, error)

// Engine mints and validates tokens. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	secrets SecretStore
	nonces  NonceStore
	clock   clock.Clock
	ttls    map[Variant]time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTTL overrides the default lifetime of a variant. Non-positive values are ignored.
func WithTTL(v Variant, ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttls[v] = ttl
		}
	}
}

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine builds an Engine.
func NewEngine(secrets SecretStore, nonces NonceStore, opts ...Option) *Engine {
	e := &Engine{
		secrets: secrets,
		nonces:  nonces,
		clock:   clock.Real(),
		ttls:    make(map[Variant]time.Duration, len(strategies)),
	}
	for v, s := range strategies {
		e.ttls[v] = s.defaultTTL
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL returns the effective lifetime for a variant.
func (e *Engine) TTL(v Variant) time.Duration {
	return e.ttls[v]
}

// ForUser mints a token for user. Nonce-based variants overwrite the user's
// nonce for the variant's purpose, which invalidates every token of that
// variant minted before.
func (e *Engine) ForUser(ctx context.Context, v Variant, user *domain.User) (Token, error) {
	s, ok := strategies[v]
	if !ok {
		return Token{}, ErrUnknownVariant
	}
	if user == nil {
		return Token{}, fmt.Errorf("securetoken: mint %s token: nil user", s.name)
	}
	if s.requirePassword && !user.HasPassword() {
		return Token{}, ErrNoPassword
	}

	var nonce string
	if s.noncePurpose != "" {
		var err error
		nonce, err = e.nonces.MintNonce(ctx, user.ID, s.noncePurpose)
		if err != nil {
			return Token{}, fmt.Errorf("securetoken: mint %s nonce: %w", s.name, err)
		}
	}

	secret, err := e.secrets.SigningSecret()
	if err != nil {
		return Token{}, err
	}

	ts := FormatTimestamp(e.now())
	sig, err := Sign(secret, user.ID, s.material(user, nonce), ts)
	if err != nil {
		return Token{}, err
	}
	return Token{Variant: v, UserID: user.ID, Timestamp: ts, Signature: sig}, nil
}

// ForValue parses a token value. Malformed input yields FailureMalformed.
func (e *Engine) ForValue(v Variant, value string) (Token, Failure) {
	if _, ok := strategies[v]; !ok {
		return Token{}, FailureUnknownVariant
	}
	t, ok := parseValue(v, value)
	if !ok {
		return Token{}, FailureMalformed
	}
	return t, FailureNone
}

// IsExpired reports whether more than ttl has elapsed since the token was
// minted. A non-positive ttl selects the variant default. Tokens whose
// timestamp cannot be parsed are expired.
func (e *Engine) IsExpired(t Token, ttl time.Duration) bool {
	return e.expiry(t, ttl) != FailureNone
}

// now is truncated to the microsecond precision tokens carry, so a token is
// valid for exactly ttl regardless of the clock's sub-microsecond digits.
func (e *Engine) now() time.Time {
	return e.clock.Now().Truncate(time.Microsecond)
}

func (e *Engine) expiry(t Token, ttl time.Duration) Failure {
	issued, err := t.IssuedAt()
	if err != nil {
		return FailureBadTimestamp
	}
	if ttl <= 0 {
		ttl = e.ttls[t.Variant]
	}
	if e.now().Sub(issued) > ttl {
		return FailureExpired
	}
	return FailureNone
}

// IsAuthentic reports whether t was signed for user's current state.
func (e *Engine) IsAuthentic(ctx context.Context, t Token, user *domain.User) bool {
	return e.authenticity(ctx, t, user) == FailureNone
}

func (e *Engine) authenticity(ctx context.Context, t Token, user *domain.User) Failure {
	s, ok := strategies[t.Variant]
	if !ok {
		return FailureUnknownVariant
	}
	if user == nil {
		return FailureUserNotFound
	}
	if t.UserID != user.ID {
		return FailureUserMismatch
	}
	if (t.Variant == Auth || s.requirePassword) && !user.HasPassword() {
		return FailureNoCredential
	}

	var nonce string
	if s.noncePurpose != "" {
		value, found, err := e.nonces.CurrentNonce(ctx, user.ID, s.noncePurpose)
		if err != nil {
			return FailureStore
		}
		if !found {
			return FailureMissingNonce
		}
		nonce = value
	}

	secret, err := e.secrets.SigningSecret()
	if err != nil {
		return FailureStore
	}
	expected, err := Sign(secret, user.ID, s.material(user, nonce), t.Timestamp)
	if err != nil {
		return FailureSignatureMismatch
	}
	if !signaturesEqual(expected, t.Signature) {
		return FailureSignatureMismatch
	}
	return FailureNone
}

// Validate checks expiry then authenticity.
func (e *Engine) Validate(ctx context.Context, t Token, user *domain.User, ttl time.Duration) Result {
	if f := e.expiry(t, ttl); f != FailureNone {
		return fail(t, f)
	}
	if f := e.authenticity(ctx, t, user); f != FailureNone {
		return fail(t, f)
	}
	return Result{Token: t}
}

// IsValid is the boolean form of Validate.
func (e *Engine) IsValid(ctx context.Context, t Token, user *domain.User, ttl time.Duration) bool {
	return e.Validate(ctx, t, user, ttl).OK()
}

// ValidateValue parses value and validates it against user.
func (e *Engine) ValidateValue(ctx context.Context, v Variant, value string, user *domain.User, ttl time.Duration) Result {
	t, f := e.ForValue(v, value)
	if f != FailureNone {
		return fail(t, f)
	}
	return e.Validate(ctx, t, user, ttl)
}

// ResolveUser parses value, looks up the addressed user and validates the
// token. It never returns an error: any failure yields a nil user.
func (e *Engine) ResolveUser(ctx context.Context, v Variant, value string, lookup UserLookup, ttl time.Duration) (*domain.User, Result) {
	t, f := e.ForValue(v, value)
	if f != FailureNone {
		return nil, fail(t, f)
	}
	if f := e.expiry(t, ttl); f != FailureNone {
		return nil, fail(t, f)
	}

	user, err := lookup(ctx, t.UserID)
	if err != nil {
		return nil, fail(t, FailureLookup)
	}
	if user == nil {
		return nil, fail(t, FailureUserNotFound)
	}

	if f := e.authenticity(ctx, t, user); f != FailureNone {
		return nil, fail(t, f)
	}
	return user, Result{Token: t}
}
