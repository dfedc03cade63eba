package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/internal/service"
)

// Handler contains all HTTP handlers
type Handler struct {
	sessionSvc *service.SessionService
}

// NewHandler creates a new handler
func NewHandler(sessionSvc *service.SessionService) *Handler {
	return &Handler{sessionSvc: sessionSvc}
}

type positionRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type destinationRequest struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status, database := "ok", "ok"
	if err := h.sessionSvc.Health(c.Context()); err != nil {
		log.WithError(err).Warn("Health check: repository unavailable")
		status, database = "degraded", "unavailable"
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"database": database,
		"session":  h.sessionSvc.Snapshot().SessionID,
		"service":  "navigator",
		"version":  "1.0.0",
	})
}

// GetSession returns the latest session snapshot
func (h *Handler) GetSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.sessionSvc.Snapshot(),
	})
}

// GetSessionGeoJSON returns the latest snapshot as a GeoJSON FeatureCollection
func (h *Handler) GetSessionGeoJSON(c *fiber.Ctx) error {
	body, err := sessionFeatures(h.sessionSvc.Snapshot()).MarshalJSON()
	if err != nil {
		log.WithError(err).Error("Failed to encode GeoJSON")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to encode GeoJSON")
	}

	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(body)
}

// GetTraffic returns current traffic data with heatmap
func (h *Handler) GetTraffic(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.sessionSvc.GetTraffic(),
	})
}

// GetCompliance returns route compliance
func (h *Handler) GetCompliance(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.sessionSvc.GetCompliance(),
	})
}

// GetEvents returns recent session events
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	events := h.sessionSvc.RecentEvents(limit)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

// GetHistory returns snapshot history within a time range
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > 720 { // max 30 days
		hours = 24
	}

	data, err := h.sessionSvc.GetHistory(c.Context(), hours)
	if err != nil {
		log.WithError(err).Error("Failed to fetch session history")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch session history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"count":   len(data),
	})
}

// ReportPosition accepts a device location report
func (h *Handler) ReportPosition(c *fiber.Ctx) error {
	var req positionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Lat == nil || req.Lon == nil {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon are required")
	}

	if err := h.sessionSvc.ReportPosition(domain.NewCoordinate(*req.Lat, *req.Lon)); err != nil {
		if errors.Is(err, service.ErrPositionReportsDisabled) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
	})
}

// SetDestination geocodes or accepts a destination and routes to it
func (h *Handler) SetDestination(c *fiber.Ctx) error {
	var req destinationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	dr := service.DestinationRequest{Address: req.Address}
	if req.Lat != nil && req.Lon != nil {
		dest := domain.NewCoordinate(*req.Lat, *req.Lon)
		if !dest.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid destination coordinate")
		}
		dr.Coordinate = &dest
	}

	route, err := h.sessionSvc.SetDestination(c.Context(), dr)
	if err != nil {
		return toFiberError(err, "Failed to set destination")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    route,
	})
}

// Recalculate forces a route recalculation
func (h *Handler) Recalculate(c *fiber.Ctx) error {
	route, err := h.sessionSvc.Recalculate(c.Context())
	if err != nil {
		return toFiberError(err, "Failed to recalculate route")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    route,
	})
}

// SetFlags replaces the user preference flags
func (h *Handler) SetFlags(c *fiber.Ctx) error {
	var req domain.Flags
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	flags, err := h.sessionSvc.SetFlags(c.Context(), req)
	if err != nil {
		return toFiberError(err, "Failed to update flags")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    flags,
	})
}

// toFiberError maps session errors to HTTP statuses
func toFiberError(err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrSessionClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Session closed")
	case errors.Is(err, domain.ErrAddressNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Address not found")
	case errors.Is(err, domain.ErrNoDestination):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "No destination or point of interest available")
	case errors.Is(err, domain.ErrLocationUnavailable):
		return fiber.NewError(fiber.StatusConflict, "Current position unknown")
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "Upstream service unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "Upstream service timed out")
	default:
		log.WithError(err).Error(fallback)
		return fiber.NewError(fiber.StatusInternalServerError, fallback)
	}
}
