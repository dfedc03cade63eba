package domain

import (
	"fmt"
	"time"
)

// TelemetryObservation is a live speed reading for the road around a point.
// Zero values mean the provider did not report the field.
type TelemetryObservation struct {
	CurrentSpeed  float64 `json:"current_speed_kmh"`
	FreeFlowSpeed float64 `json:"free_flow_speed_kmh"`
}

// TrafficSample is the normalized real-time traffic index for one tick
type TrafficSample struct {
	Index       float64               `json:"index"`
	Level       string                `json:"level"`
	Fallback    bool                  `json:"fallback"`
	Observation *TelemetryObservation `json:"observation,omitempty"`
}

// Color is an RGB color with opacity for heatmap rendering
type Color struct {
	R       uint8   `json:"r"`
	G       uint8   `json:"g"`
	B       uint8   `json:"b"`
	Opacity float64 `json:"opacity"`
}

// Hex renders the color as #rrggbb
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// HeatmapSample represents a single weighted point for map visualization
type HeatmapSample struct {
	Coordinate
	Radius    float64 `json:"radius"`
	Intensity float64 `json:"intensity"`
	Color     Color   `json:"color"`
}

// Traffic is the traffic view of a session snapshot
type Traffic struct {
	Sample    TrafficSample   `json:"sample"`
	Heatmap   []HeatmapSample `json:"heatmap"`
	Timestamp time.Time       `json:"timestamp"`
}

// Congestion level labels
const (
	LevelFreeFlow = "Free Flow"
	LevelLight    = "Light"
	LevelModerate = "Moderate"
	LevelHeavy    = "Heavy"
	LevelSevere   = "Severe"
)

// CongestionLevel returns a human-readable label for an index in [0,1]
func CongestionLevel(index float64) string {
	switch {
	case index >= 0.8:
		return LevelSevere
	case index >= 0.6:
		return LevelHeavy
	case index >= 0.4:
		return LevelModerate
	case index >= 0.2:
		return LevelLight
	default:
		return LevelFreeFlow
	}
}
