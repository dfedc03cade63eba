package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
)

// DefaultNominatimBaseURL is the public Nominatim instance
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

const geocoderUserAgent = "navigator/1.0"

// GeocodingService resolves addresses through Nominatim
type GeocodingService struct {
	baseURL    string
	httpClient *http.Client
}

// NewGeocodingService creates a new geocoding service
func NewGeocodingService(baseURL string, timeout time.Duration) *GeocodingService {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	return &GeocodingService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for address, or nil when nothing matches
func (s *GeocodingService) Geocode(ctx context.Context, address string) (*domain.Coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/search?%s", s.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocoding: failed to create request: %w", err)
	}
	// Nominatim usage policy requires an identifying agent
	req.Header.Set("User-Agent", geocoderUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding: %w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding: %w: status %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("geocoding: failed to decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoding: invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoding: invalid longitude %q: %w", results[0].Lon, err)
	}

	c := domain.NewCoordinate(lat, lon)
	return &c, nil
}
