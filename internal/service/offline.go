package service

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

// Offline stand-ins for the HTTP collaborators, used by the simulate command

const (
	simulatedStepMeters  = 150.0
	simulatedCitySpeed   = 30.0 / 3.6 // m/s
	simulatedArterySpeed = 50.0 / 3.6 // m/s
	simulatedDetourShare = 0.2
)

// SimulatedRouter draws straight routes between two points. With
// alternatives it also offers a longer but faster detour through an arterial
// road, listed first like a real router would.
type SimulatedRouter struct{}

// Route returns the candidates, fastest first
func (SimulatedRouter) Route(ctx context.Context, start, end domain.Coordinate, _ string, alternatives bool) ([]domain.RouteOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	direct := polyline(start, end)
	options := []domain.RouteOption{makeOption(direct, simulatedCitySpeed)}

	if alternatives {
		// offset the midpoint perpendicular to the direct line
		mid := domain.NewCoordinate(
			(start.Latitude+end.Latitude)/2-(end.Longitude-start.Longitude)*simulatedDetourShare,
			(start.Longitude+end.Longitude)/2+(end.Latitude-start.Latitude)*simulatedDetourShare,
		)
		detour := append(polyline(start, mid), polyline(mid, end)[1:]...)
		options = append(options, makeOption(detour, simulatedArterySpeed))
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].DurationSeconds < options[j].DurationSeconds
	})
	return options, nil
}

func polyline(from, to domain.Coordinate) domain.RoutePath {
	segments := int(math.Ceil(domain.Distance(from, to) / simulatedStepMeters))
	if segments < 1 {
		segments = 1
	}
	path := make(domain.RoutePath, 0, segments+1)
	for i := 0; i <= segments; i++ {
		t := float64(i) / float64(segments)
		path = append(path, domain.NewCoordinate(
			utils.Lerp(from.Latitude, to.Latitude, t),
			utils.Lerp(from.Longitude, to.Longitude, t),
		))
	}
	return path
}

func makeOption(path domain.RoutePath, speed float64) domain.RouteOption {
	var meters float64
	for i := 1; i < len(path); i++ {
		meters += domain.Distance(path[i-1], path[i])
	}
	return domain.RouteOption{
		Geometry:        path,
		DistanceMeters:  meters,
		DurationSeconds: meters / speed,
	}
}

// StaticPOI serves a fixed set of points of interest
type StaticPOI struct {
	Points []domain.Coordinate
}

// NearbyPointsOfInterest returns the points within radiusMeters, nearest first
func (p StaticPOI) NearbyPointsOfInterest(_ context.Context, center domain.Coordinate, radiusMeters float64) ([]domain.Coordinate, error) {
	out := make([]domain.Coordinate, 0, len(p.Points))
	for _, pt := range p.Points {
		if domain.Distance(center, pt) <= radiusMeters {
			out = append(out, pt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return domain.Distance(center, out[i]) < domain.Distance(center, out[j])
	})
	return out, nil
}

// SimulatedTelemetry invents speed readings. Now and then it has nothing to
// report, which exercises the synthetic fallback.
type SimulatedTelemetry struct {
	mu            sync.Mutex
	rng           *rand.Rand
	freeFlowSpeed float64
	gapChance     float64
}

// NewSimulatedTelemetry creates a seeded reading source
func NewSimulatedTelemetry(rng *rand.Rand) *SimulatedTelemetry {
	return &SimulatedTelemetry{rng: rng, freeFlowSpeed: 60, gapChance: 0.1}
}

// Telemetry returns a reading between 20% and 100% of free flow
func (t *SimulatedTelemetry) Telemetry(ctx context.Context, _ domain.Coordinate) (*domain.TelemetryObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rng.Float64() < t.gapChance {
		return nil, nil
	}
	ratio := 0.2 + t.rng.Float64()*0.8
	return &domain.TelemetryObservation{
		CurrentSpeed:  utils.RoundTo(t.freeFlowSpeed*ratio, 1),
		FreeFlowSpeed: t.freeFlowSpeed,
	}, nil
}
