package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
)

// DefaultOSRMBaseURL is the public OSRM demo server
const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// RoutingService computes routes with an OSRM-compatible HTTP API
type RoutingService struct {
	baseURL    string
	httpClient *http.Client
}

// NewRoutingService creates a new routing service
func NewRoutingService(baseURL string, timeout time.Duration) *RoutingService {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	return &RoutingService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// osrmRouteResponse represents the OSRM /route response with GeoJSON geometry
type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route asks OSRM for routes from start to end. Options come back in the
// provider's order, fastest first.
func (s *RoutingService) Route(ctx context.Context, start, end domain.Coordinate, profile string, alternatives bool) ([]domain.RouteOption, error) {
	if profile == "" {
		profile = domain.ProfileDriving
	}

	endpoint := fmt.Sprintf(
		"%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson&alternatives=%s",
		s.baseURL, profile,
		start.Longitude, start.Latitude, end.Longitude, end.Latitude,
		strconv.FormatBool(alternatives),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("routing: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing: %w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: %w: status %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var osrm osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&osrm); err != nil {
		return nil, fmt.Errorf("routing: failed to decode response: %w", err)
	}
	if osrm.Code != "Ok" {
		return nil, fmt.Errorf("routing: %w: %s %s", domain.ErrCollaboratorUnavailable, osrm.Code, osrm.Message)
	}

	options := make([]domain.RouteOption, 0, len(osrm.Routes))
	for _, r := range osrm.Routes {
		geometry := make(domain.RoutePath, 0, len(r.Geometry.Coordinates))
		for _, c := range r.Geometry.Coordinates {
			if len(c) < 2 {
				continue
			}
			// GeoJSON order is lon, lat
			geometry = append(geometry, domain.NewCoordinate(c[1], c[0]))
		}
		options = append(options, domain.RouteOption{
			Geometry:        geometry,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		})
	}

	return options, nil
}
