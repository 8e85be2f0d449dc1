package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/music-store/support-service/internal/api/http/handlers"
	"github.com/music-store/support-service/internal/auth"
	"github.com/music-store/support-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	customer := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireCustomer())
	customer.Post("/", cfg.Tickets.CreateTicket)
	customer.Get("/", cfg.Tickets.ListTickets)
	customer.Get("/:id", cfg.Tickets.GetTicket)
	customer.Post("/:id/messages", cfg.Tickets.AddMessage)
	customer.Get("/:id/messages", cfg.Tickets.ListMessages)

	staff := app.Group("/staff/tickets", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	// Static paths must register ahead of the :id routes.
	staff.Get("/urgent", cfg.StaffTickets.UrgentTickets)
	staff.Get("/unassigned", cfg.StaffTickets.UnassignedTickets)
	staff.Get("/needs-attention", cfg.StaffTickets.NeedsAttentionTickets)
	staff.Get("/search", cfg.StaffTickets.SearchTickets)
	staff.Get("/stats", cfg.StaffTickets.Stats)
	staff.Get("/", cfg.StaffTickets.ListTickets)
	staff.Get("/:id", cfg.StaffTickets.GetTicket)
	staff.Get("/:id/messages", cfg.StaffTickets.ListMessages)
	staff.Get("/:id/history", cfg.StaffTickets.ListHistory)
	staff.Post("/:id/reply", cfg.StaffTickets.Reply)
	staff.Post("/:id/assign", cfg.StaffTickets.Assign)
	staff.Put("/:id/status", cfg.StaffTickets.UpdateStatus)
	staff.Post("/:id/close", cfg.StaffTickets.CloseTicket)
}
