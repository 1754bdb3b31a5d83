package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/securetoken"
	"github.com/spec-kit/authgate/internal/service"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

// PasswordHandler exposes password change and reset endpoints.
type PasswordHandler struct {
	auth   *service.AuthService
	cookie config.AuthConfig
}

// NewPasswordHandler constructs handler.
func NewPasswordHandler(authService *service.AuthService, cookie config.AuthConfig) *PasswordHandler {
	return &PasswordHandler{auth: authService, cookie: cookie}
}

// Change handles POST /auth/password/change. The caller's other sessions stop
// validating; the response carries a replacement token.
func (h *PasswordHandler) Change(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.NewPassword == "" {
		return apperrors.NewValidationError("new_password required", nil)
	}

	token, err := h.auth.ChangePassword(c.UserContext(), user, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.issue(c, token)})
}

// RequestReset handles POST /auth/password/reset/request. It answers 202 for
// every well-formed address.
func (h *PasswordHandler) RequestReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"status": "requested"}})
}

// ConfirmReset handles POST /auth/password/reset/confirm.
func (h *PasswordHandler) ConfirmReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Token == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("token and new_password required", nil)
	}

	token, err := h.auth.ConfirmPasswordReset(c.UserContext(), req.Token, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.issue(c, token)})
}

func (h *PasswordHandler) issue(c *fiber.Ctx, token string) dto.AuthResponse {
	expiresAt := h.auth.ExpiresAt(securetoken.Auth)
	setAuthCookie(c, h.cookie, token, expiresAt)
	return dto.AuthResponse{Token: token, ExpiresAt: expiresAt}
}
