package service

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraxes029/Navigator/internal/domain"
)

func TestHeatmapSamplerBounds(t *testing.T) {
	h := NewHeatmapSampler(rand.New(rand.NewSource(5)), 0)
	center := domain.NewCoordinate(43.2389, 76.8897)

	for _, idx := range []float64{0, 0.25, 0.5, 0.75, 1} {
		samples := h.Generate(center, idx)
		require.Len(t, samples, DefaultHeatmapSamples)

		for _, s := range samples {
			assert.LessOrEqual(t, math.Abs(s.Latitude-center.Latitude), HeatmapJitterDegrees)
			assert.LessOrEqual(t, math.Abs(s.Longitude-center.Longitude), HeatmapJitterDegrees)
			assert.GreaterOrEqual(t, s.Radius, 20.0)
			assert.LessOrEqual(t, s.Radius, 70.0)
			assert.Equal(t, idx, s.Intensity)
			assert.Equal(t, HeatmapOpacity, s.Color.Opacity)
		}
	}
}

func TestHeatmapSamplerRadiusAndColor(t *testing.T) {
	h := NewHeatmapSampler(rand.New(rand.NewSource(5)), 4)

	low := h.Generate(domain.Coordinate{}, 0)
	require.Len(t, low, 4)
	assert.Equal(t, 20.0, low[0].Radius)
	assert.Equal(t, LowCongestionColor.Hex(), low[0].Color.Hex())

	high := h.Generate(domain.Coordinate{}, 1)
	assert.Equal(t, 70.0, high[0].Radius)
	assert.Equal(t, HighCongestionColor.Hex(), high[0].Color.Hex())

	// out of range index is clamped
	over := h.Generate(domain.Coordinate{}, 4)
	assert.Equal(t, 70.0, over[0].Radius)
}

func TestHeatmapSamplerDeterministicWithSeed(t *testing.T) {
	a := NewHeatmapSampler(rand.New(rand.NewSource(9)), 0).Generate(domain.Coordinate{}, 0.4)
	b := NewHeatmapSampler(rand.New(rand.NewSource(9)), 0).Generate(domain.Coordinate{}, 0.4)
	assert.Equal(t, a, b)
}
