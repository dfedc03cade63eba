package domain

// ComplianceState tracks how often the agent strayed from suggested points.
// DeviationCounts only grows during a session.
type ComplianceState struct {
	DeviationCounts map[Coordinate]int
	ComplianceRate  float64
}

// NewComplianceState returns a fully compliant state
func NewComplianceState() ComplianceState {
	return ComplianceState{
		DeviationCounts: make(map[Coordinate]int),
		ComplianceRate:  1,
	}
}

// TotalDeviations sums the per-location counts
func (c ComplianceState) TotalDeviations() int {
	total := 0
	for _, n := range c.DeviationCounts {
		total += n
	}
	return total
}

// Deviation is raised when the current position is farther than the
// compliance threshold from every point of the active route.
type Deviation struct {
	Position       Coordinate `json:"position"`
	NearestPoint   Coordinate `json:"nearest_point"`
	DistanceMeters float64    `json:"distance_meters"`
}

// ComplianceView is the JSON view of compliance for a snapshot
type ComplianceView struct {
	Rate               float64    `json:"rate"`
	DeviationLocations int        `json:"deviation_locations"`
	TotalDeviations    int        `json:"total_deviations"`
	LastDeviation      *Deviation `json:"last_deviation,omitempty"`
}
