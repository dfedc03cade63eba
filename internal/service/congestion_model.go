package service

import (
	"math"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

// CongestionConfig holds the model constants
type CongestionConfig struct {
	Beta              float64 `mapstructure:"beta"`
	Gamma             float64 `mapstructure:"gamma"`
	Decay             float64 `mapstructure:"decay"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	ResetIndex        float64 `mapstructure:"reset_index"`
}

// DefaultCongestionConfig returns the stock model constants
func DefaultCongestionConfig() CongestionConfig {
	return CongestionConfig{
		Beta:              0.4,
		Gamma:             0.25,
		Decay:             0.01,
		CriticalThreshold: 0.9,
		ResetIndex:        0.1,
	}
}

// StepResult reports the state after a step. Critical is set when I crossed
// the critical threshold and the state was reset; Peak holds the value
// that triggered the reset.
type StepResult struct {
	State    domain.CongestionState
	Critical bool
	Peak     float64
}

// CongestionModel advances an SIR-style congestion process one tick at a
// time. It is owned by a single Scheduler and is not safe for concurrent use.
type CongestionModel struct {
	cfg     CongestionConfig
	state   domain.CongestionState
	forcing float64
}

// NewCongestionModel creates a model at the reset baseline with the
// configured default rates
func NewCongestionModel(cfg CongestionConfig) *CongestionModel {
	return &CongestionModel{
		cfg: cfg,
		state: domain.CongestionState{
			I:     utils.ClampUnit(cfg.ResetIndex),
			R:     0,
			Beta:  cfg.Beta,
			Gamma: cfg.Gamma,
		},
	}
}

// NewCongestionModelFrom creates a model starting from an explicit state
func NewCongestionModelFrom(cfg CongestionConfig, state domain.CongestionState) *CongestionModel {
	return &CongestionModel{cfg: cfg, state: state}
}

// State returns a copy of the current state
func (m *CongestionModel) State() domain.CongestionState {
	return m.state
}

// Forcing returns the traffic index passed to the last Step
func (m *CongestionModel) Forcing() float64 {
	return m.forcing
}

// UpdateParameters retunes the rates from the traffic index: heavy traffic
// propagates faster and dissipates slower.
func (m *CongestionModel) UpdateParameters(trafficIndex float64) {
	idx := utils.ClampUnit(trafficIndex)
	m.state.Beta = m.cfg.Beta * idx
	m.state.Gamma = m.cfg.Gamma * (1 - idx)
}

// Step advances the model by one tick with the current rates.
// currentIndex is the forcing input that was used to tune those rates.
func (m *CongestionModel) Step(currentIndex float64) StepResult {
	m.forcing = utils.ClampUnit(currentIndex)
	st := m.state

	s := st.S()
	deltaI := st.Beta*s*st.I - st.Gamma*st.I - m.cfg.Decay
	st.I = utils.ClampUnit(st.I + deltaI)

	deltaR := st.Gamma * st.I
	st.R = utils.ClampUnit(st.R + deltaR)

	res := StepResult{}
	if st.I >= m.cfg.CriticalThreshold {
		res.Critical = true
		res.Peak = st.I
		st.I = utils.ClampUnit(m.cfg.ResetIndex)
		st.R = 0
	}

	m.state = st
	res.State = st
	return res
}

// Advance retunes the rates from trafficIndex and steps once
func (m *CongestionModel) Advance(trafficIndex float64) StepResult {
	m.UpdateParameters(trafficIndex)
	return m.Step(trafficIndex)
}

// R0 reports Beta/Gamma. It returns +Inf when Gamma is zero.
func (m *CongestionModel) R0() float64 {
	if m.state.Gamma <= 0 {
		return math.Inf(1)
	}
	return m.state.Beta / m.state.Gamma
}

// View returns the JSON-safe view of the model
func (m *CongestionModel) View() domain.CongestionView {
	v := domain.CongestionView{
		CongestionState: m.state,
		S:               m.state.S(),
	}
	r0 := m.R0()
	if math.IsInf(r0, 1) {
		v.R0Saturated = true
	} else {
		v.R0 = &r0
	}
	return v
}
