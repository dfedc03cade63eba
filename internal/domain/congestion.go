package domain

// CongestionState is the SIR-style compartment state of a session.
// I is the congestion index, R the fraction of roads that recovered.
// S is derived, never stored.
type CongestionState struct {
	I     float64 `json:"i"`
	R     float64 `json:"r"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// S returns the susceptible fraction 1 - I - R
func (c CongestionState) S() float64 {
	return 1 - c.I - c.R
}

// CongestionView is the JSON view of the model. R0 is nil when the
// reproduction number saturates (Gamma == 0).
type CongestionView struct {
	CongestionState
	S           float64  `json:"s"`
	R0          *float64 `json:"r0"`
	R0Saturated bool     `json:"r0_saturated"`
}
