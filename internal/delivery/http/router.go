package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caraxes029/Navigator/internal/service"
)

// SetupRoutes configures all HTTP routes. A nil gatherer serves the
// default Prometheus registry.
func SetupRoutes(app *fiber.App, sessionSvc *service.SessionService, gatherer prometheus.Gatherer) {
	handler := NewHandler(sessionSvc)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Health check
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Session state
		api.Get("/session", handler.GetSession)
		api.Get("/session/geojson", handler.GetSessionGeoJSON)
		api.Get("/traffic", handler.GetTraffic)
		api.Get("/compliance", handler.GetCompliance)
		api.Get("/events", handler.GetEvents)
		api.Get("/history", handler.GetHistory)

		// Commands
		api.Post("/position", handler.ReportPosition)
		api.Post("/destination", handler.SetDestination)
		api.Post("/route/recalculate", handler.Recalculate)
		api.Put("/flags", handler.SetFlags)
	}
}

// ErrorHandler renders errors as JSON
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
