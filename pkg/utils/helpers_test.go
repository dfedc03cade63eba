package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 1))
	assert.Equal(t, 1.0, Clamp(7, 0, 1))
	assert.Equal(t, 0.25, Clamp(0.25, 0, 1))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 1))
	assert.Equal(t, 1.0, ClampUnit(math.Inf(1)))
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is roughly 111.2 km
	d := Haversine(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 10)
	assert.Equal(t, 0.0, Haversine(43.2389, 76.8897, 43.2389, 76.8897))
}

func TestLerpAndRound(t *testing.T) {
	assert.Equal(t, 5.0, Lerp(0, 10, 0.5))
	assert.Equal(t, 0.0, Lerp(0, 10, 0))
	assert.Equal(t, 1.23, RoundTo(1.23456, 2))
	assert.True(t, IsFinite(1))
	assert.False(t, IsFinite(math.Inf(-1)))
	assert.False(t, IsFinite(math.NaN()))
}
