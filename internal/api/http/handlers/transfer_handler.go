package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/securetoken"
	"github.com/spec-kit/authgate/internal/service"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

// TransferHandler carries a signed-in identity from one origin to another.
type TransferHandler struct {
	auth   *service.AuthService
	cookie config.AuthConfig
}

// NewTransferHandler constructs handler.
func NewTransferHandler(authService *service.AuthService, cookie config.AuthConfig) *TransferHandler {
	return &TransferHandler{auth: authService, cookie: cookie}
}

// Begin handles POST /auth/transfer.
func (h *TransferHandler) Begin(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	token, err := h.auth.BeginTransfer(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: h.auth.ExpiresAt(securetoken.Transfer),
	}})
}

// Complete handles POST /auth/transfer/complete on the receiving origin.
func (h *TransferHandler) Complete(c *fiber.Ctx) error {
	var req dto.TransferCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", nil)
	}

	user, token, err := h.auth.CompleteTransfer(c.UserContext(), req.Token)
	if err != nil {
		return err
	}
	expiresAt := h.auth.ExpiresAt(securetoken.Auth)
	setAuthCookie(c, h.cookie, token, expiresAt)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(user),
			"auth": dto.AuthResponse{Token: token, ExpiresAt: expiresAt},
		},
	})
}
