package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coop-member-import/internal/api/http/handlers"
	"github.com/spec-kit/coop-member-import/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Imports        *handlers.ImportsHandler
	Members        *handlers.MembersHandler
	Activity       *handlers.ActivityHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/admin/login", cfg.Auth.AdminLogin)
	authGroup.Post("/members/activate", cfg.Auth.Activate)
	authGroup.Post("/members/activate/email", cfg.Auth.ActivateEmail)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())

	imports := admin.Group("/imports")
	imports.Post("/preview", cfg.Imports.Preview)
	imports.Post("/confirm", cfg.Imports.Confirm)
	imports.Get("/", cfg.Imports.List)
	imports.Get("/:id", cfg.Imports.Get)
	imports.Get("/:id/recovery", cfg.Imports.Recovery)
	imports.Post("/:id/retry", cfg.Imports.Retry)

	members := admin.Group("/members")
	members.Get("/", cfg.Members.List)
	members.Post("/resend", cfg.Members.BulkResend)
	members.Post("/retry", cfg.Members.BulkRetry)
	members.Get("/:id", cfg.Members.Get)
	members.Post("/:id/resend", cfg.Members.Resend)
	members.Post("/:id/retry-sms", cfg.Members.RetrySMS)
	members.Post("/:id/retry-email", cfg.Members.RetryEmail)

	admin.Get("/activity", cfg.Activity.List)
}
