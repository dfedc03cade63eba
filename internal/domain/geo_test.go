package domain

import (
	"math/rand"
	"testing"

	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceIdentityAndSymmetry(t *testing.T) {
	fake := faker.NewWithSeed(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		p1 := NewCoordinate(fake.Address().Latitude(), fake.Address().Longitude())
		p2 := NewCoordinate(fake.Address().Latitude(), fake.Address().Longitude())

		assert.Equal(t, 0.0, Distance(p1, p1), "distance to self for %s", p1)
		assert.Equal(t, Distance(p1, p2), Distance(p2, p1), "symmetry for %s %s", p1, p2)
	}
}

func TestDistanceShortHop(t *testing.T) {
	d := Distance(NewCoordinate(0, 0), NewCoordinate(0.001, 0.001))
	assert.InDelta(t, 157.4, d, 0.5)

	// one hundredth of a degree north is ~1113 m anywhere
	d = Distance(NewCoordinate(43.2389, 76.8897), NewCoordinate(43.2489, 76.8897))
	assert.InDelta(t, 1113.2, d, 0.5)
}

func TestNearest(t *testing.T) {
	_, _, ok := Nearest(NewCoordinate(0, 0), nil)
	require.False(t, ok)

	points := []Coordinate{
		NewCoordinate(0.01, 0.01),
		NewCoordinate(0.002, 0),
		NewCoordinate(-0.005, 0),
	}
	p, meters, ok := Nearest(NewCoordinate(0, 0), points)
	require.True(t, ok)
	assert.Equal(t, points[1], p)
	assert.InDelta(t, 222.6, meters, 0.5)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, NewCoordinate(43.2, 76.9).Valid())
	assert.False(t, NewCoordinate(91, 0).Valid())
	assert.False(t, NewCoordinate(0, -181).Valid())
}
