package service

import (
	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

const (
	// DefaultComplianceThreshold is the distance in meters beyond which the
	// agent counts as off-route
	DefaultComplianceThreshold = 100.0

	// complianceScale is the number of distinct deviation locations that
	// drives the compliance rate to zero
	complianceScale = 100.0
)

// ComplianceMonitor checks the agent's position against the active route.
// It holds no session state.
type ComplianceMonitor struct {
	thresholdMeters float64
}

// NewComplianceMonitor creates a monitor. thresholdMeters <= 0 selects the default.
func NewComplianceMonitor(thresholdMeters float64) *ComplianceMonitor {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultComplianceThreshold
	}
	return &ComplianceMonitor{thresholdMeters: thresholdMeters}
}

// Threshold returns the deviation threshold in meters
func (m *ComplianceMonitor) Threshold() float64 {
	return m.thresholdMeters
}

// CheckCompliance returns a deviation when the latest position in trace is
// farther than the threshold from every point of route. An empty route or
// trace yields nil.
func (m *ComplianceMonitor) CheckCompliance(trace domain.PositionTrace, route domain.RoutePath) *domain.Deviation {
	current, ok := trace.Current()
	if !ok || route.Empty() {
		return nil
	}

	nearest, minDistance, _ := domain.Nearest(current, route)
	if minDistance <= m.thresholdMeters {
		return nil
	}

	return &domain.Deviation{
		Position:       current,
		NearestPoint:   nearest,
		DistanceMeters: minDistance,
	}
}

// UpdateCompliance records a deviation at current when it is farther than the
// threshold from suggested, and recomputes the compliance rate. It reports
// whether a deviation was recorded.
func (m *ComplianceMonitor) UpdateCompliance(state *domain.ComplianceState, current, suggested domain.Coordinate) bool {
	if domain.Distance(current, suggested) <= m.thresholdMeters {
		return false
	}
	if state.DeviationCounts == nil {
		state.DeviationCounts = make(map[domain.Coordinate]int)
	}
	state.DeviationCounts[current]++
	state.ComplianceRate = utils.ClampUnit(1 - float64(len(state.DeviationCounts))/complianceScale)
	return true
}
