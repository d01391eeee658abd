package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	OpsKeyHash     string
}

// RegisterRoutes wires HTTP routes. Ticket ingestion and operator
// endpoints are guarded by the shared ops key; everything else on the
// ticket surface requires a handler bearer token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	opsKey := auth.RequireOpsKey(cfg.OpsKeyHash)
	bearer := cfg.AuthMiddleware.Handle

	v1 := app.Group("/v1")
	v1.Post("/tickets", opsKey, cfg.Tickets.CreateTicket)
	v1.Get("/tickets", bearer, auth.RequireHandler(), cfg.Tickets.ListTickets)
	v1.Get("/tickets/:id", bearer, auth.RequireHandler(), cfg.Tickets.GetTicket)
	v1.Post("/tickets/:id/status", bearer, auth.RequireHandler(), cfg.Tickets.ChangeStatus)
	v1.Post("/tickets/:id/assign", bearer, auth.RequireElevated(), cfg.Tickets.Assign)

	admin := v1.Group("/admin", opsKey)
	admin.Post("/tokens", cfg.Admin.MintToken)
	admin.Post("/reconcile", cfg.Admin.Reconcile)
	admin.Post("/timers/:id/cancel", cfg.Admin.CancelTimer)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
