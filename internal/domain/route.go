package domain

// Routing profiles understood by the routing collaborator
const (
	ProfileDriving = "driving"
	ProfileCycling = "cycling"
	ProfileWalking = "walking"
)

// RoutePath is the geometry of the active route. An empty path means there
// is no active route.
type RoutePath []Coordinate

// Empty reports whether there is no active route
func (r RoutePath) Empty() bool {
	return len(r) == 0
}

// RouteOption is one candidate returned by the routing collaborator
type RouteOption struct {
	Geometry        RoutePath `json:"geometry"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// SelectRoute picks the option to follow. Eco-friendly mode takes the
// shortest distance; otherwise the provider's first (fastest) option wins.
// ok is false when there are no options.
func SelectRoute(options []RouteOption, ecoFriendly bool) (RouteOption, bool) {
	if len(options) == 0 {
		return RouteOption{}, false
	}
	if !ecoFriendly {
		return options[0], true
	}
	best := options[0]
	for _, opt := range options[1:] {
		if opt.DistanceMeters < best.DistanceMeters {
			best = opt
		}
	}
	return best, true
}

// PositionTrace is the append-only history of agent positions
type PositionTrace []Coordinate

// Append adds c to the trace. With a positive limit only the latest limit
// positions are kept.
func (t PositionTrace) Append(c Coordinate, limit int) PositionTrace {
	t = append(t, c)
	if limit > 0 && len(t) > limit {
		kept := make(PositionTrace, limit, limit*2)
		copy(kept, t[len(t)-limit:])
		t = kept
	}
	return t
}

// Current returns the latest position
func (t PositionTrace) Current() (Coordinate, bool) {
	if len(t) == 0 {
		return Coordinate{}, false
	}
	return t[len(t)-1], true
}
