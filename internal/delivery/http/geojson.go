package http

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/caraxes029/Navigator/internal/domain"
)

func toPoint(c domain.Coordinate) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// sessionFeatures renders a snapshot for map clients: the active route as a
// LineString, the position and destination as Points, and one Point per
// heatmap sample
func sessionFeatures(snap domain.SessionSnapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(snap.Route.Geometry) > 1 {
		line := make(orb.LineString, len(snap.Route.Geometry))
		for i, c := range snap.Route.Geometry {
			line[i] = toPoint(c)
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["distance_meters"] = snap.Route.DistanceMeters
		f.Properties["duration_seconds"] = snap.Route.DurationSeconds
		fc.Append(f)
	}

	if snap.Position != nil {
		f := geojson.NewFeature(toPoint(*snap.Position))
		f.Properties["kind"] = "position"
		f.Properties["tick"] = snap.Tick
		fc.Append(f)
	}

	if snap.Route.Destination != nil {
		f := geojson.NewFeature(toPoint(*snap.Route.Destination))
		f.Properties["kind"] = "destination"
		fc.Append(f)
	}

	for _, s := range snap.Traffic.Heatmap {
		f := geojson.NewFeature(toPoint(s.Coordinate))
		f.Properties["kind"] = "heatmap"
		f.Properties["radius"] = s.Radius
		f.Properties["intensity"] = s.Intensity
		f.Properties["color"] = s.Color.Hex()
		f.Properties["opacity"] = s.Color.Opacity
		fc.Append(f)
	}

	return fc
}
