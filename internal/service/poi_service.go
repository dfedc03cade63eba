package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

// DefaultOverpassURL is the public Overpass interpreter endpoint
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// POIService finds nearby amenities through the Overpass API
type POIService struct {
	endpoint   string
	amenity    string
	httpClient *http.Client
}

// NewPOIService creates a new point-of-interest service for one amenity kind
func NewPOIService(endpoint, amenity string, timeout time.Duration) *POIService {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	if amenity == "" {
		amenity = "hospital"
	}
	return &POIService{
		endpoint: endpoint,
		amenity:  amenity,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type overpassResponse struct {
	Elements []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"elements"`
}

// NearbyPointsOfInterest returns matching amenities within radiusMeters of
// center, nearest first
func (s *POIService) NearbyPointsOfInterest(ctx context.Context, center domain.Coordinate, radiusMeters float64) ([]domain.Coordinate, error) {
	query := fmt.Sprintf(
		`[out:json][timeout:10];node(around:%.0f,%f,%f)["amenity"="%s"];out;`,
		radiusMeters, center.Latitude, center.Longitude, s.amenity,
	)
	form := url.Values{"data": {query}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("poi: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poi: %w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poi: %w: status %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var op overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("poi: failed to decode response: %w", err)
	}

	type candidate struct {
		point    domain.Coordinate
		distance float64
	}
	candidates := make([]candidate, 0, len(op.Elements))
	for _, el := range op.Elements {
		d := utils.Haversine(center.Latitude, center.Longitude, el.Lat, el.Lon)
		if d > radiusMeters {
			continue
		}
		candidates = append(candidates, candidate{point: domain.NewCoordinate(el.Lat, el.Lon), distance: d})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	points := make([]domain.Coordinate, len(candidates))
	for i, c := range candidates {
		points[i] = c.point
	}
	return points, nil
}
