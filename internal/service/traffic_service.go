package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
)

// DefaultTomTomBaseURL is the TomTom traffic flow API root
const DefaultTomTomBaseURL = "https://api.tomtom.com"

// TrafficService fetches live speed telemetry from TomTom flow segments
type TrafficService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewTrafficService creates a new traffic service
func NewTrafficService(apiKey, baseURL string, timeout time.Duration) *TrafficService {
	if baseURL == "" {
		baseURL = DefaultTomTomBaseURL
	}
	return &TrafficService{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// tomTomFlowResponse represents the TomTom flowSegmentData API response
type tomTomFlowResponse struct {
	FlowSegmentData struct {
		CurrentSpeed  float64 `json:"currentSpeed"`
		FreeFlowSpeed float64 `json:"freeFlowSpeed"`
		Confidence    float64 `json:"confidence"`
		RoadClosure   bool    `json:"roadClosure"`
	} `json:"flowSegmentData"`
}

// Telemetry fetches the flow segment closest to center.
// Without an API key there is nothing to ask, so the observation is absent.
func (s *TrafficService) Telemetry(ctx context.Context, center domain.Coordinate) (*domain.TelemetryObservation, error) {
	if s.apiKey == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf(
		"%s/traffic/services/4/flowSegmentData/absolute/10/json?point=%f,%f&unit=KMPH&key=%s",
		s.baseURL, center.Latitude, center.Longitude, url.QueryEscape(s.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("traffic: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("traffic: %w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("traffic: %w: status %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var flow tomTomFlowResponse
	if err := json.NewDecoder(resp.Body).Decode(&flow); err != nil {
		return nil, fmt.Errorf("traffic: failed to decode response: %w", domain.ErrInvalidObservation)
	}

	return &domain.TelemetryObservation{
		CurrentSpeed:  flow.FlowSegmentData.CurrentSpeed,
		FreeFlowSpeed: flow.FlowSegmentData.FreeFlowSpeed,
	}, nil
}
