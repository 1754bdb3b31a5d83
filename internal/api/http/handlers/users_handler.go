package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/securetoken"
	"github.com/spec-kit/authgate/internal/service"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

// UsersHandler exposes auth endpoints for end-users.
type UsersHandler struct {
	auth   *service.AuthService
	cookie config.AuthConfig
}

// NewUsersHandler constructs handler. The auth cookie is named and secured
// according to cookie.
func NewUsersHandler(authService *service.AuthService, cookie config.AuthConfig) *UsersHandler {
	return &UsersHandler{auth: authService, cookie: cookie}
}

// Register handles POST /auth/users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, err := h.auth.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(h.authenticated(c, user, token))
}

// Login handles POST /auth/users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(h.authenticated(c, user, token))
}

// Me handles GET /auth/users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Delete handles DELETE /auth/users/me.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.auth.DeleteUser(c.UserContext(), user); err != nil {
		return err
	}
	h.clearCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

// authenticated sets the auth cookie and builds the standard response body.
func (h *UsersHandler) authenticated(c *fiber.Ctx, user *domain.User, token string) fiber.Map {
	expiresAt := h.auth.ExpiresAt(securetoken.Auth)
	setAuthCookie(c, h.cookie, token, expiresAt)
	return fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(user),
			"auth": dto.AuthResponse{Token: token, ExpiresAt: expiresAt},
		},
	}
}

func (h *UsersHandler) clearCookie(c *fiber.Ctx) {
	if h.cookie.CookieName == "" {
		return
	}
	c.ClearCookie(h.cookie.CookieName)
}

func setAuthCookie(c *fiber.Ctx, cfg config.AuthConfig, token string, expiresAt time.Time) {
	if cfg.CookieName == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		Secure:   cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal.User, nil
}
