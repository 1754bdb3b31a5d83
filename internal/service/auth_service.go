package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/clock"
	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/events"
	"github.com/spec-kit/authgate/internal/repository"
	"github.com/spec-kit/authgate/internal/securetoken"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

var (
	errInvalidCredentials = apperrors.NewUnauthorized("invalid credentials")
	errInvalidToken       = apperrors.NewUnauthorized("invalid token")
)

// TokenMetrics counts token checks by variant and outcome.
type TokenMetrics interface {
	RecordTokenCheck(variant, outcome string)
}

// AuthService coordinates token minting and validation with the password and
// identity-transfer flows built on top of it.
type AuthService struct {
	uow         repository.UnitOfWork
	tokens      *securetoken.Engine
	nonces      securetoken.NonceStore
	credentials *CredentialService
	dispatcher  events.Dispatcher
	metrics     TokenMetrics
	logger      *zap.Logger
	clock       clock.Clock
}

// AuthDependencies encapsulates the collaborators of the auth service.
type AuthDependencies struct {
	UnitOfWork  repository.UnitOfWork
	Tokens      *securetoken.Engine
	Nonces      securetoken.NonceStore
	Credentials *CredentialService
	Dispatcher  events.Dispatcher
	Metrics     TokenMetrics
	Logger      *zap.Logger
	Clock       clock.Clock
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &AuthService{
		uow:         deps.UnitOfWork,
		tokens:      deps.Tokens,
		nonces:      deps.Nonces,
		credentials: deps.Credentials,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		clock:       clk,
	}
}

// MintToken returns the serialized token of variant v for user.
func (s *AuthService) MintToken(ctx context.Context, v securetoken.Variant, user *domain.User) (string, error) {
	t, err := s.tokens.ForUser(ctx, v, user)
	if err != nil {
		return "", err
	}
	return t.Value(), nil
}

// ExpiresAt returns when a token of variant v minted now stops validating.
func (s *AuthService) ExpiresAt(v securetoken.Variant) time.Time {
	return s.clock.Now().Add(s.tokens.TTL(v))
}

// ValidateToken reports whether value is a live token of variant v for user.
// A non-positive ttl selects the variant default.
func (s *AuthService) ValidateToken(ctx context.Context, v securetoken.Variant, value string, user *domain.User, ttl time.Duration) bool {
	res := s.tokens.ValidateValue(ctx, v, value, user, ttl)
	s.observe(v, res)
	return res.OK()
}

// ResolveUserFromToken returns the user a token of variant v was minted for,
// or false when the token does not validate.
func (s *AuthService) ResolveUserFromToken(ctx context.Context, v securetoken.Variant, value string, ttl time.Duration) (*domain.User, bool) {
	user, res := s.tokens.ResolveUser(ctx, v, value, s.lookupUser, ttl)
	s.observe(v, res)
	return user, res.OK()
}

// Authenticate resolves an auth token. It satisfies auth.Authenticator.
func (s *AuthService) Authenticate(ctx context.Context, value string) (*domain.User, bool) {
	return s.ResolveUserFromToken(ctx, securetoken.Auth, value, 0)
}

func (s *AuthService) lookupUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.uow.Users().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (s *AuthService) observe(v securetoken.Variant, res securetoken.Result) {
	if s.metrics != nil {
		s.metrics.RecordTokenCheck(v.String(), res.Failure.String())
	}
	if !res.OK() {
		s.logger.Debug("token rejected",
			zap.String("variant", v.String()),
			zap.String("reason", res.Failure.String()),
			zap.String("user_id", res.Token.UserID))
	}
}

// SetPassword delegates to the credential service.
func (s *AuthService) SetPassword(ctx context.Context, user *domain.User, raw string) error {
	return s.credentials.SetPassword(ctx, user, raw)
}

// ValidatePassword delegates to the credential service.
func (s *AuthService) ValidatePassword(ctx context.Context, user *domain.User, raw string) bool {
	return s.credentials.ValidatePassword(ctx, user, raw)
}

// Register creates a user with a password and returns it with a fresh auth
// token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if password == "" {
		return nil, "", apperrors.NewValidationError("password must not be empty", nil)
	}

	user := &domain.User{Email: email}
	err = s.uow.Atomic(ctx, func(ctx context.Context, tx repository.UnitOfWork) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.NewConflict("email already registered", nil)
			}
			return fmt.Errorf("create user: %w", err)
		}
		return s.credentials.setPasswordIn(ctx, tx, user, password)
	})
	if err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{Email: user.Email})

	token, err := s.MintToken(ctx, securetoken.Auth, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login checks the password and returns a fresh auth token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", errInvalidCredentials
	}

	user, err := s.uow.Users().GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", errInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !s.credentials.ValidatePassword(ctx, user, password) {
		return nil, "", errInvalidCredentials
	}

	token, err := s.MintToken(ctx, securetoken.Auth, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ChangePassword verifies the current password, sets the new one and returns
// a fresh auth token. Every token minted before stops validating.
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) (string, error) {
	if !s.credentials.ValidatePassword(ctx, user, currentPassword) {
		return "", errInvalidCredentials
	}
	if err := s.credentials.SetPassword(ctx, user, newPassword); err != nil {
		return "", err
	}

	s.publish(ctx, events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{Email: user.Email, Reason: "change"})
	return s.MintToken(ctx, securetoken.Auth, user)
}

// RequestPasswordReset mints a reset token for the account behind email and
// publishes it for delivery. Unknown addresses and accounts without a
// password are ignored so callers cannot probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.uow.Users().GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.MintToken(ctx, securetoken.PasswordReset, user)
	if errors.Is(err, securetoken.ErrNoPassword) {
		s.logger.Info("password reset requested for user without password", zap.String("user_id", user.ID))
		return nil
	}
	if err != nil {
		return err
	}

	s.publish(ctx, events.EventPasswordResetRequested, user.ID, events.PasswordResetRequestedPayload{
		Email:     user.Email,
		Token:     token,
		ExpiresAt: s.ExpiresAt(securetoken.PasswordReset),
	})
	return nil
}

// ConfirmPasswordReset sets a new password for the user a reset token was
// minted for and returns a fresh auth token. The reset token is spent because
// the credential version it was signed with changes.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	if newPassword == "" {
		return "", apperrors.NewValidationError("password must not be empty", nil)
	}

	user, ok := s.ResolveUserFromToken(ctx, securetoken.PasswordReset, token, 0)
	if !ok {
		return "", errInvalidToken
	}
	if err := s.credentials.SetPassword(ctx, user, newPassword); err != nil {
		return "", err
	}

	s.publish(ctx, events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{Email: user.Email, Reason: "reset"})
	return s.MintToken(ctx, securetoken.Auth, user)
}

// BeginTransfer mints a transfer token carrying the user's identity to
// another origin. Any earlier transfer token of the user stops validating.
func (s *AuthService) BeginTransfer(ctx context.Context, user *domain.User) (string, error) {
	return s.MintToken(ctx, securetoken.Transfer, user)
}

// CompleteTransfer redeems a transfer token for an auth token on the
// receiving origin. The transfer nonce is rotated so the token works once.
func (s *AuthService) CompleteTransfer(ctx context.Context, token string) (*domain.User, string, error) {
	user, ok := s.ResolveUserFromToken(ctx, securetoken.Transfer, token, 0)
	if !ok {
		return nil, "", errInvalidToken
	}
	if _, err := s.nonces.MintNonce(ctx, user.ID, domain.NoncePurposeTransfer); err != nil {
		return nil, "", fmt.Errorf("rotate transfer nonce: %w", err)
	}

	authToken, err := s.MintToken(ctx, securetoken.Auth, user)
	if err != nil {
		return nil, "", err
	}
	return user, authToken, nil
}

// DeleteUser removes the user and everything it owns.
func (s *AuthService) DeleteUser(ctx context.Context, user *domain.User) error {
	if err := s.credentials.DeleteUser(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, events.EventUserDeleted, user.ID, nil)
	return nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
	}
	return email, nil
}
