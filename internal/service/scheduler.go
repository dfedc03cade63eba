package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucsky/cuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/internal/observability"
)

// Recalculation triggers
const (
	TriggerDeviation   = "deviation"
	TriggerEmergency   = "emergency"
	TriggerManual      = "manual"
	TriggerDestination = "destination"
)

// PositionHistory is how many recent positions a session keeps
const PositionHistory = 512

// Timeouts bound every collaborator call made by the scheduler
type Timeouts struct {
	Telemetry   time.Duration `mapstructure:"telemetry"`
	Routing     time.Duration `mapstructure:"routing"`
	Location    time.Duration `mapstructure:"location"`
	Persistence time.Duration `mapstructure:"persistence"`
}

// SchedulerConfig configures one navigation session
type SchedulerConfig struct {
	// SessionID keys persisted flags; a fresh ID is generated when empty
	SessionID                 string
	Period                    time.Duration
	Seed                      int64
	Profile                   string
	POIRadiusMeters           float64
	ComplianceThresholdMeters float64
	HeatmapSamples            int
	Congestion                CongestionConfig
	Timeouts                  Timeouts
}

// DefaultSchedulerConfig returns the stock session settings
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Period:                    10 * time.Second,
		Profile:                   domain.ProfileDriving,
		POIRadiusMeters:           5000,
		ComplianceThresholdMeters: DefaultComplianceThreshold,
		HeatmapSamples:            DefaultHeatmapSamples,
		Congestion:                DefaultCongestionConfig(),
		Timeouts: Timeouts{
			Telemetry:   5 * time.Second,
			Routing:     10 * time.Second,
			Location:    5 * time.Second,
			Persistence: 5 * time.Second,
		},
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.Profile == "" {
		c.Profile = d.Profile
	}
	if c.POIRadiusMeters <= 0 {
		c.POIRadiusMeters = d.POIRadiusMeters
	}
	if c.ComplianceThresholdMeters <= 0 {
		c.ComplianceThresholdMeters = d.ComplianceThresholdMeters
	}
	if c.HeatmapSamples <= 0 {
		c.HeatmapSamples = d.HeatmapSamples
	}
	if c.Congestion == (CongestionConfig{}) {
		c.Congestion = d.Congestion
	}
	if c.Timeouts.Telemetry <= 0 {
		c.Timeouts.Telemetry = d.Timeouts.Telemetry
	}
	if c.Timeouts.Routing <= 0 {
		c.Timeouts.Routing = d.Timeouts.Routing
	}
	if c.Timeouts.Location <= 0 {
		c.Timeouts.Location = d.Timeouts.Location
	}
	if c.Timeouts.Persistence <= 0 {
		c.Timeouts.Persistence = d.Timeouts.Persistence
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// SnapshotStore persists flags and tick snapshots
type SnapshotStore interface {
	domain.FlagStore
	SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) error
}

// SnapshotRecorder receives every published snapshot, e.g. for archiving
type SnapshotRecorder interface {
	Record(snap domain.SessionSnapshot) error
}

// Collaborators are the external systems a session talks to. Location is
// required; everything else may be nil.
type Collaborators struct {
	Location  domain.LocationProvider
	Telemetry domain.TelemetryProvider
	POI       domain.POIProvider
	Routing   domain.RoutingProvider
	Store     SnapshotStore
}

// SchedulerOption customizes a Scheduler
type SchedulerOption func(*Scheduler)

// WithEvents routes session events to p
func WithEvents(p EventPublisher) SchedulerOption {
	return func(s *Scheduler) { s.events = p }
}

// WithMetrics records session metrics on c
func WithMetrics(c *observability.SessionCollector) SchedulerOption {
	return func(s *Scheduler) { s.metrics = c }
}

// WithRecorder hands every tick snapshot to r
func WithRecorder(r SnapshotRecorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

type discardEvents struct{}

func (discardEvents) Publish(domain.Event) {}

// Scheduler owns the state of one navigation session and advances it on a
// fixed period. Every mutation goes through a single weighted semaphore;
// readers only ever see the immutable snapshot published after a change.
type Scheduler struct {
	id     string
	cfg    SchedulerConfig
	collab Collaborators

	events   EventPublisher
	metrics  *observability.SessionCollector
	recorder SnapshotRecorder
	tracer   trace.Tracer

	sem   *semaphore.Weighted
	group singleflight.Group

	lifeCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	pending int
	idle    *sync.Cond

	// guarded by sem
	tick        uint64
	model       *CongestionModel
	sampler     *TelemetrySampler
	heatmap     *HeatmapSampler
	monitor     *ComplianceMonitor
	positions   domain.PositionTrace
	route       domain.RouteOption
	routedAt    time.Time
	routeTarget *domain.Coordinate
	destination *domain.Coordinate
	compliance  domain.ComplianceState
	lastDev     *domain.Deviation
	flags       domain.Flags
	traffic     domain.Traffic

	snapshot atomic.Pointer[domain.SessionSnapshot]
}

// NewScheduler creates an idle session
func NewScheduler(cfg SchedulerConfig, collab Collaborators, opts ...SchedulerOption) *Scheduler {
	cfg = cfg.withDefaults()
	id := cfg.SessionID
	if id == "" {
		id = cuid.New()
	}

	lifeCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		id:         id,
		cfg:        cfg,
		collab:     collab,
		events:     discardEvents{},
		tracer:     otel.Tracer(observability.TracerName),
		sem:        semaphore.NewWeighted(1),
		lifeCtx:    lifeCtx,
		cancel:     cancel,
		model:      NewCongestionModel(cfg.Congestion),
		sampler:    NewTelemetrySampler(rand.New(rand.NewSource(cfg.Seed))),
		heatmap:    NewHeatmapSampler(rand.New(rand.NewSource(cfg.Seed+1)), cfg.HeatmapSamples),
		monitor:    NewComplianceMonitor(cfg.ComplianceThresholdMeters),
		route:      domain.RouteOption{Geometry: domain.RoutePath{}},
		compliance: domain.NewComplianceState(),
		traffic:    domain.Traffic{Heatmap: []domain.HeatmapSample{}},
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}

	s.publishLocked()
	return s
}

// ID returns the session identifier
func (s *Scheduler) ID() string {
	return s.id
}

// Period returns the tick period
func (s *Scheduler) Period() time.Duration {
	return s.cfg.Period
}

// Snapshot returns the latest published session state
func (s *Scheduler) Snapshot() domain.SessionSnapshot {
	return *s.snapshot.Load()
}

// Run restores persisted flags, then ticks immediately and every period
// until ctx is cancelled or the session is closed.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.RestoreFlags(ctx); err != nil {
		log.WithError(err).Warn("Could not restore flags, using defaults")
	}

	log.WithFields(log.Fields{
		"session": s.id,
		"period":  s.cfg.Period,
	}).Info("Navigation session started")

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("Tick failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.lifeCtx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one estimation and compliance cycle. Concurrent calls coalesce
// into a single tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	_, err, _ := s.group.Do("tick", func() (interface{}, error) {
		trigger, err := s.runTick(ctx)
		if err != nil {
			return nil, err
		}
		if trigger != "" {
			s.RequestRecalculation(trigger)
		}
		return nil, nil
	})
	return err
}

func (s *Scheduler) runTick(ctx context.Context) (string, error) {
	ctx, release := s.bind(ctx)
	defer release()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	if s.isClosed() {
		return "", domain.ErrSessionClosed
	}
	return s.tickLocked(ctx), nil
}

// tickLocked performs one cycle and returns the recalculation trigger, if any
func (s *Scheduler) tickLocked(ctx context.Context) string {
	start := time.Now()
	s.tick++

	ctx, span := s.tracer.Start(ctx, "scheduler.tick", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int64("tick", int64(s.tick)),
	))
	defer span.End()
	defer func() { s.metrics.ObserveTick(time.Since(start)) }()

	// (a) position
	var pos domain.Coordinate
	err := s.call(ctx, "location", s.cfg.Timeouts.Location, func(ctx context.Context) error {
		var err error
		pos, err = s.collab.Location.CurrentPosition(ctx)
		return err
	})
	if err != nil {
		if s.lifeCtx.Err() != nil {
			return ""
		}
		log.WithError(err).WithField("tick", s.tick).Warn("No position, skipping tick")
		s.emit(domain.NewEvent(s.id, domain.EventCollaboratorUnavailable, "Location unavailable, waiting for the next update"))
		span.SetAttributes(attribute.Bool("skipped", true))
		return ""
	}
	s.positions = s.positions.Append(pos, PositionHistory)

	trigger := ""

	// (b) compliance
	if dev := s.monitor.CheckCompliance(s.positions, s.route.Geometry); dev != nil {
		s.monitor.UpdateCompliance(&s.compliance, dev.Position, dev.NearestPoint)
		s.lastDev = dev
		s.metrics.IncDeviations()
		s.emit(domain.NewEvent(s.id, domain.EventDeviationDetected,
			fmt.Sprintf("Off route by %.0f m, recalculating", dev.DistanceMeters)).At(pos))
		trigger = TriggerDeviation
	}

	// (c) telemetry
	var obs *domain.TelemetryObservation
	if s.collab.Telemetry != nil {
		err := s.call(ctx, "telemetry", s.cfg.Timeouts.Telemetry, func(ctx context.Context) error {
			var err error
			obs, err = s.collab.Telemetry.Telemetry(ctx, pos)
			return err
		})
		if err != nil {
			log.WithError(err).Debug("Telemetry unavailable, using synthetic index")
			obs = nil
		}
	}
	sample := s.sampler.Sample(obs)

	// (d) congestion model
	step := s.model.Advance(sample.Index)
	if step.Critical {
		s.metrics.IncCriticalResets()
		s.emit(domain.NewEvent(s.id, domain.EventCriticalCongestion,
			fmt.Sprintf("Critical congestion (index %.2f), model reset", step.Peak)).At(pos))
	}

	// (e) heatmap
	now := time.Now()
	s.traffic = domain.Traffic{
		Sample:    sample,
		Heatmap:   s.heatmap.Generate(pos, sample.Index),
		Timestamp: now,
	}

	// (f) emergency
	if trigger == "" && s.flags.EmergencyMode {
		trigger = TriggerEmergency
	}

	// (g) publish and persist
	snap := s.publishLocked()
	s.persistLocked(ctx, snap)

	s.metrics.SetTraffic(sample.Index, sample.Fallback)
	s.metrics.SetCongestion(step.State.I, step.State.R, s.model.R0())
	s.metrics.SetComplianceRate(s.compliance.ComplianceRate)

	span.SetAttributes(
		attribute.Float64("traffic.index", sample.Index),
		attribute.Bool("traffic.fallback", sample.Fallback),
		attribute.Float64("congestion.i", step.State.I),
		attribute.String("recalculation", trigger),
	)
	return trigger
}

// RequestRecalculation schedules a route recalculation without waiting for
// it. It runs once the current holder of the session releases it.
func (s *Scheduler) RequestRecalculation(trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending++
	go func() {
		defer s.recalculationDone()
		if _, err := s.Recalculate(s.lifeCtx, trigger); err != nil && s.lifeCtx.Err() == nil {
			log.WithError(err).WithField("trigger", trigger).Warn("Route recalculation failed")
		}
	}()
}

func (s *Scheduler) recalculationDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

// WaitRecalculations blocks until every requested recalculation has
// finished. Ticking and then waiting gives a run that depends only on the
// seed, not on goroutine scheduling.
func (s *Scheduler) WaitRecalculations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// Recalculate computes a new route from the current position to the
// destination, or to the nearest point of interest when none is set.
// Concurrent requests share one computation.
func (s *Scheduler) Recalculate(ctx context.Context, trigger string) (domain.RouteView, error) {
	if s.isClosed() {
		return domain.RouteView{}, domain.ErrSessionClosed
	}

	ctx, release := s.bind(ctx)
	defer release()

	v, err, _ := s.group.Do("recalculate", func() (interface{}, error) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
		if s.isClosed() {
			return nil, domain.ErrSessionClosed
		}
		return s.recalculateLocked(ctx, trigger)
	})
	if err != nil {
		return domain.RouteView{}, err
	}
	return v.(domain.RouteView), nil
}

func (s *Scheduler) recalculateLocked(ctx context.Context, trigger string) (domain.RouteView, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.recalculate", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	origin, ok := s.positions.Current()
	if !ok {
		s.metrics.IncRecalculation(trigger, "skipped")
		return domain.RouteView{}, fmt.Errorf("scheduler: cannot recalculate: %w", domain.ErrLocationUnavailable)
	}
	if s.collab.Routing == nil {
		s.metrics.IncRecalculation(trigger, "skipped")
		return domain.RouteView{}, fmt.Errorf("scheduler: no routing provider: %w", domain.ErrCollaboratorUnavailable)
	}

	target, err := s.targetLocked(ctx, origin)
	if err != nil {
		s.metrics.IncRecalculation(trigger, "error")
		return domain.RouteView{}, err
	}

	eco := s.flags.EcoFriendlyMode
	var options []domain.RouteOption
	err = s.call(ctx, "routing", s.cfg.Timeouts.Routing, func(ctx context.Context) error {
		var err error
		options, err = s.collab.Routing.Route(ctx, origin, target, s.cfg.Profile, eco)
		return err
	})
	if err != nil {
		s.metrics.IncRecalculation(trigger, "error")
		s.emit(domain.NewEvent(s.id, domain.EventCollaboratorUnavailable, "Routing unavailable, keeping the current route").At(origin))
		return domain.RouteView{}, fmt.Errorf("scheduler: failed to compute route: %w", err)
	}

	chosen, ok := domain.SelectRoute(options, eco)
	if !ok || chosen.Geometry.Empty() {
		s.metrics.IncRecalculation(trigger, "error")
		return domain.RouteView{}, fmt.Errorf("scheduler: routing returned no usable route: %w", domain.ErrCollaboratorUnavailable)
	}

	s.route = chosen
	s.routedAt = time.Now()
	s.routeTarget = &target
	if follower, ok := s.collab.Location.(RouteFollower); ok {
		follower.FollowRoute(chosen.Geometry)
	}

	s.metrics.IncRecalculation(trigger, "ok")
	s.emit(domain.NewEvent(s.id, domain.EventRouteComputed,
		fmt.Sprintf("New route to %s: %.0f m, about %.0f min", target, chosen.DistanceMeters, chosen.DurationSeconds/60)).At(origin))

	s.publishLocked()
	return s.routeViewLocked(), nil
}

// targetLocked picks the explicit destination, or the nearest point of interest
func (s *Scheduler) targetLocked(ctx context.Context, origin domain.Coordinate) (domain.Coordinate, error) {
	if s.destination != nil {
		return *s.destination, nil
	}
	if s.collab.POI == nil {
		return domain.Coordinate{}, domain.ErrNoDestination
	}

	var points []domain.Coordinate
	err := s.call(ctx, "poi", s.cfg.Timeouts.Routing, func(ctx context.Context) error {
		var err error
		points, err = s.collab.POI.NearbyPointsOfInterest(ctx, origin, s.cfg.POIRadiusMeters)
		return err
	})
	if err != nil {
		s.emit(domain.NewEvent(s.id, domain.EventCollaboratorUnavailable, "Points of interest unavailable").At(origin))
		return domain.Coordinate{}, fmt.Errorf("scheduler: failed to find points of interest: %w", err)
	}

	nearest, _, ok := domain.Nearest(origin, points)
	if !ok {
		return domain.Coordinate{}, domain.ErrNoDestination
	}
	return nearest, nil
}

// SetDestination replaces the destination and routes to it right away
func (s *Scheduler) SetDestination(ctx context.Context, dest domain.Coordinate) (domain.RouteView, error) {
	if !dest.Valid() {
		return domain.RouteView{}, fmt.Errorf("scheduler: invalid destination %s", dest)
	}
	ctx, release := s.bind(ctx)
	defer release()
	if err := s.acquire(ctx); err != nil {
		return domain.RouteView{}, err
	}
	defer s.sem.Release(1)

	s.destination = &dest
	view, err := s.recalculateLocked(ctx, TriggerDestination)
	if err != nil {
		s.publishLocked()
		return s.routeViewLocked(), err
	}
	return view, nil
}

// SetFlags replaces the user preference flags and persists them
func (s *Scheduler) SetFlags(ctx context.Context, flags domain.Flags) (domain.SessionSnapshot, error) {
	ctx, release := s.bind(ctx)
	defer release()
	if err := s.acquire(ctx); err != nil {
		return domain.SessionSnapshot{}, err
	}
	defer s.sem.Release(1)

	s.flags = flags
	if s.collab.Store != nil {
		if err := s.call(ctx, "persistence", s.cfg.Timeouts.Persistence, func(ctx context.Context) error {
			return s.collab.Store.SaveFlags(ctx, s.id, flags)
		}); err != nil {
			log.WithError(err).Warn("Failed to persist flags")
		}
	}
	return *s.publishLocked(), nil
}

// RestoreFlags loads the flags persisted for this session
func (s *Scheduler) RestoreFlags(ctx context.Context) error {
	if s.collab.Store == nil {
		return nil
	}
	ctx, release := s.bind(ctx)
	defer release()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	var flags domain.Flags
	err := s.call(ctx, "persistence", s.cfg.Timeouts.Persistence, func(ctx context.Context) error {
		var err error
		flags, err = s.collab.Store.LoadFlags(ctx, s.id)
		return err
	})
	if err != nil {
		return fmt.Errorf("scheduler: failed to load flags: %w", err)
	}
	s.flags = flags
	s.publishLocked()
	return nil
}

// Close stops the session. No tick or recalculation starts afterwards.
// Work in flight has its context cancelled and is awaited.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.WaitRecalculations()

	// wait out a tick still holding the session
	if err := s.sem.Acquire(context.Background(), 1); err == nil {
		s.sem.Release(1)
	}
	log.WithField("session", s.id).Info("Navigation session closed")
	return nil
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// bind derives a context that is also cancelled when the session closes
func (s *Scheduler) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.lifeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Scheduler) acquire(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if s.isClosed() {
		s.sem.Release(1)
		return domain.ErrSessionClosed
	}
	return nil
}

// call runs fn under its own span and timeout, counting failures
func (s *Scheduler) call(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "collaborator."+name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.IncCollaboratorFailure(name)
	}
	return err
}

func (s *Scheduler) emit(event domain.Event) {
	s.events.Publish(event)
}

func (s *Scheduler) persistLocked(ctx context.Context, snap *domain.SessionSnapshot) {
	if s.collab.Store != nil {
		err := s.call(ctx, "persistence", s.cfg.Timeouts.Persistence, func(ctx context.Context) error {
			if err := s.collab.Store.SaveFlags(ctx, s.id, s.flags); err != nil {
				return err
			}
			return s.collab.Store.SaveSnapshot(ctx, *snap)
		})
		if err != nil {
			log.WithError(err).Warn("Failed to persist session state")
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(*snap); err != nil {
			log.WithError(err).Warn("Failed to archive snapshot")
		}
	}
}

func (s *Scheduler) routeViewLocked() domain.RouteView {
	view := domain.RouteView{
		Geometry:        s.route.Geometry,
		DistanceMeters:  s.route.DistanceMeters,
		DurationSeconds: s.route.DurationSeconds,
		ComputedAt:      s.routedAt,
	}
	if s.destination != nil {
		d := *s.destination
		view.Destination = &d
	} else if s.routeTarget != nil {
		d := *s.routeTarget
		view.Destination = &d
	}
	return view
}

// publishLocked stores a new snapshot. Slices are shared with the live
// state, which only ever replaces them wholesale.
func (s *Scheduler) publishLocked() *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		SessionID:  s.id,
		Tick:       s.tick,
		Congestion: s.model.View(),
		Traffic:    s.traffic,
		Route:      s.routeViewLocked(),
		Compliance: domain.ComplianceView{
			Rate:               s.compliance.ComplianceRate,
			DeviationLocations: len(s.compliance.DeviationCounts),
			TotalDeviations:    s.compliance.TotalDeviations(),
		},
		Flags:     s.flags,
		Timestamp: time.Now(),
	}
	if pos, ok := s.positions.Current(); ok {
		snap.Position = &pos
	}
	if s.lastDev != nil {
		dev := *s.lastDev
		snap.Compliance.LastDeviation = &dev
	}
	s.snapshot.Store(snap)
	return snap
}
