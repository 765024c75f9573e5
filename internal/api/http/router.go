package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/outlet-feedback/internal/api/http/handlers"
	"github.com/spec-kit/outlet-feedback/internal/auth"
	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Feedback       *handlers.FeedbackHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil skips the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireRole())
	api.Get("/dashboard", cfg.Feedback.Dashboard)
	dashboard := api.Group("/dashboard")
	dashboard.Get("/daily-complaints", cfg.Feedback.DailyComplaints)
	dashboard.Get("/not-verified-distribution", cfg.Feedback.NotVerifiedDistribution)
	dashboard.Get("/washroom-feedback", cfg.Feedback.RatingChart(domain.RatingWashroom))
	dashboard.Get("/free-air-feedback", cfg.Feedback.RatingChart(domain.RatingAir))
	dashboard.Get("/drinking-water-feedback", cfg.Feedback.RatingChart(domain.RatingWater))
	api.Get("/filters/options", cfg.Feedback.FilterOptions)
	api.Get("/outlets/:code/field-officers",
		auth.RequireRole(domain.RoleVendor, domain.RoleSuperuser, domain.RoleDO),
		cfg.Feedback.FieldOfficers)

	feedbacks := api.Group("/feedbacks")
	feedbacks.Get("/", cfg.Feedback.ListFeedbacks)
	feedbacks.Get("/export/csv", cfg.Feedback.ExportCSV)
	feedbacks.Get("/:id", cfg.Feedback.GetFeedback)
	feedbacks.Get("/:id/history", cfg.Feedback.ListHistory)
	feedbacks.Patch("/:id/workflow", cfg.Feedback.UpdateWorkflow)
	feedbacks.Patch("/:id/review",
		auth.RequireRole(domain.RoleVendor, domain.RoleSuperuser, domain.RoleDO),
		cfg.Feedback.Review)
}
