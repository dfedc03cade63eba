package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaboratorUnavailable covers location, telemetry, routing, POI and
	// geocoding failures. Never fatal to a tick.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrLocationUnavailable is returned when no current position is known
	ErrLocationUnavailable = fmt.Errorf("location unavailable: %w", ErrCollaboratorUnavailable)

	// ErrInvalidObservation marks a malformed telemetry payload
	ErrInvalidObservation = errors.New("invalid telemetry observation")

	// ErrNoActiveRoute is returned when an operation needs a route and there is none
	ErrNoActiveRoute = errors.New("no active route")

	// ErrNoDestination is returned when recalculation has nowhere to go
	ErrNoDestination = errors.New("no destination or point of interest available")

	// ErrSessionClosed is returned once a session has been torn down
	ErrSessionClosed = errors.New("session closed")

	// ErrAddressNotFound is returned when geocoding finds no match
	ErrAddressNotFound = errors.New("address not found")
)
