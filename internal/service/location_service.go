package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
)

// ReportedLocation serves positions pushed by the device. A report older
// than staleAfter counts as no position at all.
type ReportedLocation struct {
	mu         sync.RWMutex
	last       domain.Coordinate
	reportedAt time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewReportedLocation creates an empty location source. A zero staleAfter
// never expires reports.
func NewReportedLocation(staleAfter time.Duration) *ReportedLocation {
	return &ReportedLocation{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Report records the device's latest position
func (l *ReportedLocation) Report(c domain.Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("location: invalid coordinate %s", c)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = c
	l.reportedAt = l.now()
	return nil
}

// CurrentPosition returns the last report, or ErrLocationUnavailable
func (l *ReportedLocation) CurrentPosition(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.reportedAt.IsZero() {
		return domain.Coordinate{}, fmt.Errorf("%w: no position reported yet", domain.ErrLocationUnavailable)
	}
	if l.staleAfter > 0 {
		if age := l.now().Sub(l.reportedAt); age > l.staleAfter {
			return domain.Coordinate{}, fmt.Errorf("%w: last report is %s old", domain.ErrLocationUnavailable, age.Round(time.Second))
		}
	}
	return l.last, nil
}

// RouteFollower is implemented by location sources that move along the
// active route. The scheduler hands every new route to it.
type RouteFollower interface {
	FollowRoute(path domain.RoutePath)
}

// SimulationConfig tunes the simulated walker
type SimulationConfig struct {
	// PointsPerTick is how many route vertices are passed per position read
	PointsPerTick int
	// DriftProbability is the chance that a read lands off the route
	DriftProbability float64
	// DriftMeters is how far off the route a drifting read lands
	DriftMeters float64
}

// DefaultSimulationConfig returns a walker that strays every few ticks
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		PointsPerTick:    1,
		DriftProbability: 0.15,
		DriftMeters:      250,
	}
}

// SimulatedLocation walks along the active route with occasional drift.
// Without a route it stays at its start point.
type SimulatedLocation struct {
	mu     sync.Mutex
	cfg    SimulationConfig
	rng    *rand.Rand
	start  domain.Coordinate
	path   domain.RoutePath
	cursor int
}

// NewSimulatedLocation creates a walker starting at start
func NewSimulatedLocation(start domain.Coordinate, rng *rand.Rand, cfg SimulationConfig) *SimulatedLocation {
	if cfg.PointsPerTick <= 0 {
		cfg.PointsPerTick = 1
	}
	return &SimulatedLocation{
		cfg:   cfg,
		rng:   rng,
		start: start,
	}
}

// FollowRoute restarts the walk at the beginning of path
func (l *SimulatedLocation) FollowRoute(path domain.RoutePath) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = append(domain.RoutePath(nil), path...)
	l.cursor = 0
}

// CurrentPosition advances the walker and returns where it is now
func (l *SimulatedLocation) CurrentPosition(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.start
	if !l.path.Empty() {
		pos = l.path[l.cursor]
		if l.cursor < len(l.path)-1 {
			l.cursor += l.cfg.PointsPerTick
			if l.cursor > len(l.path)-1 {
				l.cursor = len(l.path) - 1
			}
		}
		l.start = pos
	}

	if l.cfg.DriftProbability > 0 && l.rng.Float64() < l.cfg.DriftProbability {
		offset := l.cfg.DriftMeters / domain.MetersPerDegree
		pos = domain.NewCoordinate(pos.Latitude+offset, pos.Longitude)
	}
	return pos, nil
}
