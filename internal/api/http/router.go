package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Password       *handlers.PasswordHandler
	Transfer       *handlers.TransferHandler
	Gates          *handlers.GatesHandler
	AuthMiddleware *auth.AuthMiddleware
	AdminAPIKey    string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)

	authGroup.Post("/password/reset/request", cfg.Password.RequestReset)
	authGroup.Post("/password/reset/confirm", cfg.Password.ConfirmReset)
	authGroup.Post("/transfer/complete", cfg.Transfer.Complete)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireUser())
	protected.Get("/users/me", cfg.Users.Me)
	protected.Delete("/users/me", cfg.Users.Delete)
	protected.Post("/password/change", cfg.Password.Change)
	protected.Post("/transfer", cfg.Transfer.Begin)

	app.Get("/gates/:bridge", cfg.AuthMiddleware.Optional, cfg.Gates.Check)

	admin := app.Group("/admin", auth.RequireAdminKey(cfg.AdminAPIKey))
	admin.Get("/metrics", cfg.Gates.Metrics)
	admin.Get("/gates", cfg.Gates.ListBridges)
	admin.Post("/gates", cfg.Gates.CreateBridge)
	admin.Post("/gates/bust", cfg.Gates.Bust)
	admin.Delete("/gates/:bridge", cfg.Gates.DeleteBridge)
	admin.Post("/gates/:bridge/filters", cfg.Gates.AddFilter)
}
