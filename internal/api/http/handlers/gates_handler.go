package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/featuregate"
	"github.com/spec-kit/authgate/internal/observability"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

// GatesHandler answers bridge checks and serves bridge administration.
type GatesHandler struct {
	cache   *featuregate.Cache
	admin   *featuregate.Admin
	metrics *observability.Metrics
}

// NewGatesHandler constructs handler.
func NewGatesHandler(cache *featuregate.Cache, admin *featuregate.Admin, metrics *observability.Metrics) *GatesHandler {
	return &GatesHandler{cache: cache, admin: admin, metrics: metrics}
}

// Check handles GET /gates/:bridge. A denied identity sees the same 404 as a
// bridge that does not exist.
func (h *GatesHandler) Check(c *fiber.Ctx) error {
	bridge := c.Params("bridge")
	if !h.cache.CanCross(c.UserContext(), bridge, auth.IdentityFromContext(c)) {
		return apperrors.NewDomainError("NOT_FOUND", "feature not available", http.StatusNotFound, nil)
	}
	return c.JSON(fiber.Map{"data": dto.GateCheckResponse{Bridge: bridge, Allowed: true}})
}

// ListBridges handles GET /admin/gates.
func (h *GatesHandler) ListBridges(c *fiber.Ctx) error {
	bridges, err := h.admin.ListBridges(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.BridgeResponse, 0, len(bridges))
	for i := range bridges {
		items = append(items, dto.NewBridgeResponse(&bridges[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateBridge handles POST /admin/gates.
func (h *GatesHandler) CreateBridge(c *fiber.Ctx) error {
	var req dto.CreateBridgeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	bridge, err := h.admin.CreateBridge(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewBridgeResponse(bridge)})
}

// DeleteBridge handles DELETE /admin/gates/:bridge.
func (h *GatesHandler) DeleteBridge(c *fiber.Ctx) error {
	if err := h.admin.DeleteBridge(c.UserContext(), c.Params("bridge")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddFilter handles POST /admin/gates/:bridge/filters.
func (h *GatesHandler) AddFilter(c *fiber.Ctx) error {
	var req dto.AddFilterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Kind == "" {
		return apperrors.NewValidationError("kind required", nil)
	}
	filter, err := h.admin.AddFilter(c.UserContext(), c.Params("bridge"), req.Kind, req.Whitelist, req.Payload)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewFilterResponse(filter)})
}

// Bust handles POST /admin/gates/bust.
func (h *GatesHandler) Bust(c *fiber.Ctx) error {
	if err := h.admin.Bust(c.UserContext()); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"state": h.cache.State().String()}})
}

// Metrics handles GET /admin/metrics.
func (h *GatesHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
