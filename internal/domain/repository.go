package domain

import (
	"context"
	"time"
)

// LocationProvider reports where the agent currently is
type LocationProvider interface {
	// CurrentPosition fails with ErrLocationUnavailable when nothing is known
	CurrentPosition(ctx context.Context) (Coordinate, error)
}

// TelemetryProvider returns live speed data around a point. A nil
// observation with a nil error means the provider had nothing to report.
type TelemetryProvider interface {
	Telemetry(ctx context.Context, center Coordinate) (*TelemetryObservation, error)
}

// POIProvider lists points of interest near a center, nearest first
type POIProvider interface {
	NearbyPointsOfInterest(ctx context.Context, center Coordinate, radiusMeters float64) ([]Coordinate, error)
}

// RoutingProvider computes candidate routes between two points
type RoutingProvider interface {
	Route(ctx context.Context, start, end Coordinate, profile string, alternatives bool) ([]RouteOption, error)
}

// Geocoder resolves a free-form address. A nil result means no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Coordinate, error)
}

// Notifier delivers session events to the user or downstream systems
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// FlagStore persists user preference flags
type FlagStore interface {
	SaveFlags(ctx context.Context, sessionID string, flags Flags) error
	LoadFlags(ctx context.Context, sessionID string) (Flags, error)
}

// SessionRepository defines the interface for data persistence
// This follows the Dependency Inversion Principle - domain defines the interface
type SessionRepository interface {
	FlagStore

	// SaveSnapshot persists the state published at the end of a tick
	SaveSnapshot(ctx context.Context, snap SessionSnapshot) error

	// SaveEvent persists an emitted session event
	SaveEvent(ctx context.Context, event Event) error

	// GetHistoricalSnapshots retrieves snapshot history
	GetHistoricalSnapshots(ctx context.Context, from, to time.Time) ([]SessionSnapshot, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}
