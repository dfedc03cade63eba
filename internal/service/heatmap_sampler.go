package service

import (
	"math"
	"math/rand"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/pkg/utils"
)

const (
	DefaultHeatmapSamples = 20
	// HeatmapJitterDegrees bounds the random offset on each axis
	HeatmapJitterDegrees = 0.01
	HeatmapMinRadius     = 20.0
	HeatmapRadiusSpan    = 50.0
	HeatmapOpacity       = 0.5
)

// Color anchors for the congestion gradient
var (
	LowCongestionColor  = domain.Color{R: 0x2e, G: 0xcc, B: 0x71}
	HighCongestionColor = domain.Color{R: 0xe7, G: 0x4c, B: 0x3c}
)

// HeatmapSampler generates jittered samples around a center whose radius and
// color follow the congestion level
type HeatmapSampler struct {
	rng     *rand.Rand
	samples int
}

// NewHeatmapSampler creates a sampler. samples <= 0 selects the default count.
func NewHeatmapSampler(rng *rand.Rand, samples int) *HeatmapSampler {
	if samples <= 0 {
		samples = DefaultHeatmapSamples
	}
	return &HeatmapSampler{rng: rng, samples: samples}
}

// Generate regenerates the full sample set around center
func (h *HeatmapSampler) Generate(center domain.Coordinate, trafficIndex float64) []domain.HeatmapSample {
	idx := utils.ClampUnit(trafficIndex)
	radius := HeatmapMinRadius + HeatmapRadiusSpan*idx
	color := interpolateColor(LowCongestionColor, HighCongestionColor, idx)

	points := make([]domain.HeatmapSample, 0, h.samples)
	for i := 0; i < h.samples; i++ {
		// Random offset within +/- HeatmapJitterDegrees
		latOffset := (h.rng.Float64() - 0.5) * 2 * HeatmapJitterDegrees
		lonOffset := (h.rng.Float64() - 0.5) * 2 * HeatmapJitterDegrees

		points = append(points, domain.HeatmapSample{
			Coordinate: domain.NewCoordinate(center.Latitude+latOffset, center.Longitude+lonOffset),
			Radius:     radius,
			Intensity:  idx,
			Color:      color,
		})
	}

	return points
}

func interpolateColor(low, high domain.Color, t float64) domain.Color {
	channel := func(a, b uint8) uint8 {
		return uint8(math.Round(utils.Lerp(float64(a), float64(b), t)))
	}
	return domain.Color{
		R:       channel(low.R, high.R),
		G:       channel(low.G, high.G),
		B:       channel(low.B, high.B),
		Opacity: HeatmapOpacity,
	}
}
