package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Integrations   *handlers.IntegrationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)

	integrations := app.Group("/integrations", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleAdmin))
	integrations.Post("/", cfg.Integrations.Create)
	integrations.Get("/", cfg.Integrations.List)
	integrations.Get("/:id", cfg.Integrations.Get)
	integrations.Put("/:id", cfg.Integrations.Update)
	integrations.Post("/:id/test", cfg.Integrations.Test)
	integrations.Post("/:id/activate", cfg.Integrations.Activate)
	integrations.Post("/:id/suspend", cfg.Integrations.Suspend)
	integrations.Post("/:id/deactivate", cfg.Integrations.Deactivate)
	integrations.Post("/:id/enable", cfg.Integrations.Enable)
	integrations.Post("/:id/disable", cfg.Integrations.Disable)
	integrations.Get("/:id/sync-attempts", cfg.Integrations.SyncAttempts)
}
