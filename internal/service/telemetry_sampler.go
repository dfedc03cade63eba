package service

import (
	"math/rand"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

// Synthetic fallback range
const (
	FallbackIndexMin = 0.1
	FallbackIndexMax = 0.3
)

// TelemetrySampler turns provider speed observations into a traffic index
type TelemetrySampler struct {
	rng *rand.Rand
}

// NewTelemetrySampler creates a sampler drawing fallbacks from rng
func NewTelemetrySampler(rng *rand.Rand) *TelemetrySampler {
	return &TelemetrySampler{rng: rng}
}

// Sample returns the traffic index for obs, falling back to a synthetic
// value when obs is absent or unusable. The result is always in [0,1].
func (s *TelemetrySampler) Sample(obs *domain.TelemetryObservation) domain.TrafficSample {
	if err := validateObservation(obs); err != nil {
		return s.Fallback()
	}

	index := utils.ClampUnit(1 - obs.CurrentSpeed/obs.FreeFlowSpeed)
	return domain.TrafficSample{
		Index:       index,
		Level:       domain.CongestionLevel(index),
		Observation: obs,
	}
}

// Fallback draws a synthetic low-congestion sample
func (s *TelemetrySampler) Fallback() domain.TrafficSample {
	index := FallbackIndexMin + s.rng.Float64()*(FallbackIndexMax-FallbackIndexMin)
	return domain.TrafficSample{
		Index:    index,
		Level:    domain.CongestionLevel(index),
		Fallback: true,
	}
}

func validateObservation(obs *domain.TelemetryObservation) error {
	if obs == nil {
		return domain.ErrInvalidObservation
	}
	if !utils.IsFinite(obs.CurrentSpeed) || !utils.IsFinite(obs.FreeFlowSpeed) {
		return domain.ErrInvalidObservation
	}
	if obs.FreeFlowSpeed <= 0 || obs.CurrentSpeed <= 0 {
		return domain.ErrInvalidObservation
	}
	return nil
}
