package domain

import "time"

// Flags are the user preferences persisted between runs
type Flags struct {
	EmergencyMode   bool `json:"emergency_mode"`
	EcoFriendlyMode bool `json:"eco_friendly_mode"`
}

// RouteView describes the active route in a snapshot
type RouteView struct {
	Geometry        RoutePath   `json:"geometry"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Destination     *Coordinate `json:"destination,omitempty"`
	ComputedAt      time.Time   `json:"computed_at,omitempty"`
}

// SessionSnapshot is an immutable copy of the session state published after
// every tick. Readers never see the live state.
type SessionSnapshot struct {
	SessionID  string         `json:"session_id"`
	Tick       uint64         `json:"tick"`
	Position   *Coordinate    `json:"position,omitempty"`
	Congestion CongestionView `json:"congestion"`
	Traffic    Traffic        `json:"traffic"`
	Route      RouteView      `json:"route"`
	Compliance ComplianceView `json:"compliance"`
	Flags      Flags          `json:"flags"`
	Timestamp  time.Time      `json:"timestamp"`
}
