package domain

import (
	"fmt"
	"math"
)

// MetersPerDegree is the length of one degree of latitude used by Distance.
const MetersPerDegree = 111319.9

// Coordinate is a WGS84 latitude/longitude pair in degrees
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NewCoordinate builds a Coordinate from latitude and longitude
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{Latitude: lat, Longitude: lon}
}

// Valid reports whether the coordinate lies within WGS84 bounds
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// Distance returns the equirectangular distance between two points in meters.
//
// The longitude term is scaled by the cosine of the mean latitude, which keeps
// the result symmetric in its arguments. The approximation is good for short
// hops (under ~10 km) and is not corrected near the poles or across the
// antimeridian.
func Distance(p1, p2 Coordinate) float64 {
	meanLat := (p1.Latitude + p2.Latitude) / 2
	dLat := math.Abs(p2.Latitude-p1.Latitude) * MetersPerDegree
	dLon := math.Abs(p2.Longitude-p1.Longitude) * MetersPerDegree * math.Cos(meanLat*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// Nearest returns the point in points closest to origin and its distance.
// ok is false when points is empty.
func Nearest(origin Coordinate, points []Coordinate) (nearest Coordinate, meters float64, ok bool) {
	meters = math.Inf(1)
	for _, p := range points {
		if d := Distance(origin, p); d < meters {
			nearest, meters, ok = p, d, true
		}
	}
	return nearest, meters, ok
}
