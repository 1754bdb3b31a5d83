package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/domain"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User  *domain.User
	Token string
}

// Authenticator resolves an auth token value to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, bool)
}

// AuthMiddleware validates auth tokens from the Authorization header or the
// auth cookie and loads principals.
type AuthMiddleware struct {
	authenticator Authenticator
	cookieName    string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(authenticator Authenticator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, cookieName: cookieName}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := m.tokenFromRequest(c)
	if err != nil {
		return err
	}
	if token == "" {
		return apperrors.NewUnauthorized("missing credentials")
	}

	user, ok := m.authenticator.Authenticate(c.UserContext(), token)
	if !ok {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{User: user, Token: token})
	return c.Next()
}

// Optional loads a principal when a valid token is present and otherwise lets
// the request through anonymously.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	token, err := m.tokenFromRequest(c)
	if err != nil || token == "" {
		return c.Next()
	}
	if user, ok := m.authenticator.Authenticate(c.UserContext(), token); ok {
		c.Locals(principalKey, &Principal{User: user, Token: token})
	}
	return c.Next()
}

func (m *AuthMiddleware) tokenFromRequest(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", apperrors.NewUnauthorized("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if m.cookieName != "" {
		return c.Cookies(m.cookieName), nil
	}
	return "", nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// IdentityFromContext returns the caller's identity, or the anonymous
// identity when nobody is signed in.
func IdentityFromContext(c *fiber.Ctx) domain.Identity {
	if p, ok := PrincipalFromContext(c); ok && p.User != nil {
		return domain.IdentityFromUser(p.User)
	}
	return domain.Identity{}
}
