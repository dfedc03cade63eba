package service

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraxes029/Navigator/internal/domain"
)

// occupancy counts how many collaborator calls run at the same time
type occupancy struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (o *occupancy) enter() func() {
	n := o.active.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { o.active.Add(-1) }
}

type trackedLocation struct {
	occ *occupancy
	loc *fakeLocation
}

func (l trackedLocation) CurrentPosition(ctx context.Context) (domain.Coordinate, error) {
	defer l.occ.enter()()
	return l.loc.CurrentPosition(ctx)
}

type trackedRouter struct {
	occ    *occupancy
	router *fakeRouter
}

func (r trackedRouter) Route(ctx context.Context, start, end domain.Coordinate, profile string, alternatives bool) ([]domain.RouteOption, error) {
	defer r.occ.enter()()
	return r.router.Route(ctx, start, end, profile, alternatives)
}

type trackedStore struct {
	occ   *occupancy
	store *memStore
}

func (s trackedStore) SaveFlags(ctx context.Context, id string, f domain.Flags) error {
	defer s.occ.enter()()
	return s.store.SaveFlags(ctx, id, f)
}

func (s trackedStore) LoadFlags(ctx context.Context, id string) (domain.Flags, error) {
	defer s.occ.enter()()
	return s.store.LoadFlags(ctx, id)
}

func (s trackedStore) SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) error {
	defer s.occ.enter()()
	return s.store.SaveSnapshot(ctx, snap)
}

// gatedLocation blocks every read until the gate opens or ctx is done
type gatedLocation struct {
	gate    chan struct{}
	entered atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
}

func newGatedLocation() *gatedLocation {
	return &gatedLocation{gate: make(chan struct{})}
}

func (g *gatedLocation) CurrentPosition(ctx context.Context) (domain.Coordinate, error) {
	g.entered.Add(1)
	if n := g.active.Add(1); n > g.peak.Load() {
		g.peak.Store(n)
	}
	defer g.active.Add(-1)

	select {
	case <-g.gate:
		return domain.NewCoordinate(0, 0), nil
	case <-ctx.Done():
		return domain.Coordinate{}, ctx.Err()
	}
}

type blockingTelemetry struct{}

func (blockingTelemetry) Telemetry(ctx context.Context, _ domain.Coordinate) (*domain.TelemetryObservation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSchedulerSerializesMutations(t *testing.T) {
	occ := &occupancy{}
	router := &fakeRouter{options: []domain.RouteOption{{
		Geometry:        domain.RoutePath{domain.NewCoordinate(0, 0), domain.NewCoordinate(0, 0.001)},
		DistanceMeters:  111,
		DurationSeconds: 20,
	}}}
	sched := NewScheduler(SchedulerConfig{Seed: 5}, Collaborators{
		Location: trackedLocation{occ: occ, loc: &fakeLocation{pos: domain.NewCoordinate(0, 0)}},
		POI:      &fakePOI{points: []domain.Coordinate{domain.NewCoordinate(0.002, 0)}},
		Routing:  trackedRouter{occ: occ, router: router},
		Store:    trackedStore{occ: occ, store: newMemStore()},
	})
	t.Cleanup(func() { _ = sched.Close() })

	ctx := context.Background()
	require.NoError(t, sched.Tick(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(4)
		go func() {
			defer wg.Done()
			assert.NoError(t, sched.Tick(ctx))
		}()
		go func() {
			defer wg.Done()
			_, err := sched.Recalculate(ctx, TriggerManual)
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			_, err := sched.SetFlags(ctx, domain.Flags{EcoFriendlyMode: i%2 == 0})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := sched.SetDestination(ctx, domain.NewCoordinate(0, 0.001))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	sched.WaitRecalculations()

	assert.Equal(t, int32(1), occ.peak.Load())
	assert.NotEmpty(t, router.calls())
}

func TestSchedulerConcurrentTicksCoalesce(t *testing.T) {
	loc := newGatedLocation()
	sched := NewScheduler(SchedulerConfig{Seed: 5}, Collaborators{Location: loc})
	t.Cleanup(func() { _ = sched.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sched.Tick(context.Background()))
		}()
	}

	require.Eventually(t, func() bool { return loc.entered.Load() == 1 }, time.Second, time.Millisecond)
	// let the other callers join the tick in flight
	time.Sleep(50 * time.Millisecond)
	close(loc.gate)
	wg.Wait()

	assert.Equal(t, int32(1), loc.peak.Load())
	assert.Equal(t, int32(1), loc.entered.Load())
	assert.Equal(t, uint64(1), sched.Snapshot().Tick)
}

func TestSchedulerTelemetryTimeoutFallsBack(t *testing.T) {
	sched := NewScheduler(SchedulerConfig{
		Seed:     5,
		Timeouts: Timeouts{Telemetry: 20 * time.Millisecond},
	}, Collaborators{
		Location:  &fakeLocation{pos: domain.NewCoordinate(0, 0)},
		Telemetry: blockingTelemetry{},
	})
	t.Cleanup(func() { _ = sched.Close() })

	start := time.Now()
	require.NoError(t, sched.Tick(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	snap := sched.Snapshot()
	assert.Equal(t, uint64(1), snap.Tick)
	assert.True(t, snap.Traffic.Sample.Fallback)
	assert.GreaterOrEqual(t, snap.Traffic.Sample.Index, FallbackIndexMin)
	assert.LessOrEqual(t, snap.Traffic.Sample.Index, FallbackIndexMax)
}

func TestSchedulerCloseReleasesInFlightTick(t *testing.T) {
	loc := newGatedLocation()
	sched := NewScheduler(SchedulerConfig{
		Seed:     5,
		Timeouts: Timeouts{Location: 5 * time.Second},
	}, Collaborators{Location: loc})

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()
	require.Eventually(t, func() bool { return loc.entered.Load() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, sched.Close())
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestSessionServiceStopReleasesInFlightTick(t *testing.T) {
	loc := newGatedLocation()
	sched := NewScheduler(SchedulerConfig{
		Seed:     5,
		Timeouts: Timeouts{Location: 5 * time.Second},
	}, Collaborators{Location: loc})
	svc := NewSessionService(SessionDeps{Scheduler: sched})

	svc.Start(context.Background())
	require.Eventually(t, func() bool { return loc.entered.Load() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	svc.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

type runRecord struct {
	Positions   []domain.Coordinate
	Indexes     []float64
	Infected    []float64
	Routes      []float64
	Compliance  domain.ComplianceView
	EventTypes  []domain.EventType
	RouterCalls int
}

func seededRun(t *testing.T, seed int64, ticks int) runRecord {
	t.Helper()
	start := domain.NewCoordinate(43.238, 76.945)
	dest := domain.NewCoordinate(43.258, 76.965)
	events := &eventCollector{}
	router := &countingRouter{}

	sched := NewScheduler(SchedulerConfig{SessionID: "seeded", Seed: seed}, Collaborators{
		Location:  NewSimulatedLocation(start, rand.New(rand.NewSource(seed+1)), DefaultSimulationConfig()),
		Telemetry: NewSimulatedTelemetry(rand.New(rand.NewSource(seed + 2))),
		POI:       StaticPOI{Points: []domain.Coordinate{dest}},
		Routing:   router,
	}, WithEvents(events))
	defer func() { _ = sched.Close() }()

	ctx := context.Background()
	require.NoError(t, sched.Tick(ctx))
	sched.WaitRecalculations()
	_, err := sched.SetDestination(ctx, dest)
	require.NoError(t, err)

	var rec runRecord
	for i := 0; i < ticks; i++ {
		require.NoError(t, sched.Tick(ctx))
		sched.WaitRecalculations()

		snap := sched.Snapshot()
		require.NotNil(t, snap.Position)
		rec.Positions = append(rec.Positions, *snap.Position)
		rec.Indexes = append(rec.Indexes, snap.Traffic.Sample.Index)
		rec.Infected = append(rec.Infected, snap.Congestion.I)
		rec.Routes = append(rec.Routes, snap.Route.DistanceMeters)
		rec.Compliance = snap.Compliance
	}

	events.mu.Lock()
	for _, e := range events.events {
		rec.EventTypes = append(rec.EventTypes, e.Type)
	}
	events.mu.Unlock()
	rec.RouterCalls = int(router.calls.Load())
	return rec
}

type countingRouter struct {
	SimulatedRouter
	calls atomic.Int32
}

func (r *countingRouter) Route(ctx context.Context, start, end domain.Coordinate, profile string, alternatives bool) ([]domain.RouteOption, error) {
	r.calls.Add(1)
	return r.SimulatedRouter.Route(ctx, start, end, profile, alternatives)
}

func TestSchedulerSeededRunIsReproducible(t *testing.T) {
	first := seededRun(t, 7, 60)
	second := seededRun(t, 7, 60)

	assert.Equal(t, first, second)

	// every deviation is rerouted before the next tick
	require.Positive(t, first.Compliance.TotalDeviations)
	assert.Equal(t, 1+first.Compliance.TotalDeviations, first.RouterCalls)

	other := seededRun(t, 8, 60)
	assert.NotEqual(t, first.Positions, other.Positions)
}
