package service

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caraxes029/Navigator/internal/domain"
)

func TestTelemetrySamplerRatio(t *testing.T) {
	s := NewTelemetrySampler(rand.New(rand.NewSource(1)))

	got := s.Sample(&domain.TelemetryObservation{CurrentSpeed: 30, FreeFlowSpeed: 60})
	assert.False(t, got.Fallback)
	assert.InDelta(t, 0.5, got.Index, 1e-12)
	assert.Equal(t, domain.LevelModerate, got.Level)

	// faster than free flow clamps to zero congestion
	got = s.Sample(&domain.TelemetryObservation{CurrentSpeed: 90, FreeFlowSpeed: 60})
	assert.False(t, got.Fallback)
	assert.Equal(t, 0.0, got.Index)
}

func TestTelemetrySamplerFallback(t *testing.T) {
	s := NewTelemetrySampler(rand.New(rand.NewSource(42)))

	cases := map[string]*domain.TelemetryObservation{
		"absent":            nil,
		"zero current":      {CurrentSpeed: 0, FreeFlowSpeed: 50},
		"zero free flow":    {CurrentSpeed: 30, FreeFlowSpeed: 0},
		"negative":          {CurrentSpeed: -5, FreeFlowSpeed: 50},
		"nan":               {CurrentSpeed: math.NaN(), FreeFlowSpeed: 50},
		"infinite freeflow": {CurrentSpeed: 20, FreeFlowSpeed: math.Inf(1)},
	}

	for name, obs := range cases {
		t.Run(name, func(t *testing.T) {
			got := s.Sample(obs)
			assert.True(t, got.Fallback)
			assert.GreaterOrEqual(t, got.Index, FallbackIndexMin)
			assert.LessOrEqual(t, got.Index, FallbackIndexMax)
			assert.False(t, math.IsNaN(got.Index))
		})
	}
}

func TestTelemetrySamplerAlwaysInUnitRange(t *testing.T) {
	s := NewTelemetrySampler(rand.New(rand.NewSource(3)))
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 1000; i++ {
		obs := &domain.TelemetryObservation{
			CurrentSpeed:  (rng.Float64() - 0.2) * 200,
			FreeFlowSpeed: (rng.Float64() - 0.2) * 200,
		}
		got := s.Sample(obs)
		assert.GreaterOrEqual(t, got.Index, 0.0)
		assert.LessOrEqual(t, got.Index, 1.0)
	}
}
