package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what a session event reports
type EventType string

const (
	EventDeviationDetected       EventType = "DeviationDetected"
	EventCriticalCongestion      EventType = "CriticalCongestion"
	EventRouteComputed           EventType = "RouteComputed"
	EventCollaboratorUnavailable EventType = "CollaboratorUnavailable"
)

// Event is a user-facing notification emitted by the session. Delivery
// (UI, speech, Kafka) is the dispatcher's business.
type Event struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Type      EventType   `json:"type"`
	Message   string      `json:"message"`
	Position  *Coordinate `json:"position,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps a new event with an ID and the current time
func NewEvent(sessionID string, typ EventType, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// At attaches a position to the event
func (e Event) At(c Coordinate) Event {
	e.Position = &c
	return e
}
