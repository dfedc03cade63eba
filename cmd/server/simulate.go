package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jaswdr/faker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/internal/observability"
	"github.com/caraxes029/Navigator/internal/repository/postgres"
	"github.com/caraxes029/Navigator/internal/service"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a session offline against simulated collaborators",
	Long: `simulate drives a session tick by tick with a simulated agent, synthetic
traffic readings, straight-line routing and a fixed set of points of interest.
The same seed always produces the same run.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Int("ticks", 100, "Number of ticks to run")
	f.Int64("seed", 0, "Random seed (default: session.seed, or time based)")
	f.String("start", "", "Start position as lat,lon (default: random)")
	f.String("destination", "", "Destination as lat,lon (default: 2-5 km from start)")
	f.Int("pois", 3, "Number of points of interest around the start")
	f.Duration("interval", 0, "Pause between ticks")
	f.Bool("emergency", false, "Start in emergency mode")
	f.Bool("eco", false, "Start in eco-friendly mode")
	f.Bool("archive", false, "Write the tick archive regardless of archive.enabled")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	ticks, _ := flags.GetInt("ticks")
	interval, _ := flags.GetDuration("interval")
	poiCount, _ := flags.GetInt("pois")
	emergency, _ := flags.GetBool("emergency")
	eco, _ := flags.GetBool("eco")
	if ticks <= 0 {
		return fmt.Errorf("--ticks must be positive")
	}

	seed := cfg.Session.Seed
	if flags.Changed("seed") {
		seed, _ = flags.GetInt64("seed")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	startFlag, _ := flags.GetString("start")
	start, err := parseCoordinate(startFlag)
	if err != nil {
		return err
	}
	if start == nil {
		fake := faker.NewWithSeed(rand.NewSource(seed))
		p := domain.NewCoordinate(fake.Address().Latitude(), fake.Address().Longitude())
		start = &p
	}

	destFlag, _ := flags.GetString("destination")
	dest, err := parseCoordinate(destFlag)
	if err != nil {
		return err
	}
	if dest == nil {
		p := offset(*start, 2000+rng.Float64()*3000, rng.Float64()*2*math.Pi)
		dest = &p
	}

	pois := make([]domain.Coordinate, poiCount)
	for i := range pois {
		pois[i] = offset(*start, rng.Float64()*cfg.POI.RadiusMeters*0.6, rng.Float64()*2*math.Pi)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	metrics, err := observability.NewSessionCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	repo := postgres.NewMockRepository()
	events := service.NewEventLog(ticks * 4)
	sinks := []domain.Notifier{events, service.NewRepositoryNotifier(repo)}
	kafka := openKafka(cfg.Kafka)
	if kafka != nil {
		sinks = append(sinks, kafka)
	}
	defer closeKafka(kafka)
	dispatcher := service.NewDispatcher(service.DefaultEventBuffer, cfg.Timeouts.Persistence, sinks...)

	archiveCfg := cfg.Archive
	if forced, _ := flags.GetBool("archive"); forced {
		archiveCfg.Enabled = true
	}
	recorder := openArchive(ctx, archiveCfg)

	schedCfg := cfg.SchedulerConfig()
	schedCfg.Seed = seed
	sched := service.NewScheduler(schedCfg, service.Collaborators{
		Location:  service.NewSimulatedLocation(*start, rand.New(rand.NewSource(seed+1)), service.DefaultSimulationConfig()),
		Telemetry: service.NewSimulatedTelemetry(rand.New(rand.NewSource(seed + 2))),
		POI:       service.StaticPOI{Points: pois},
		Routing:   service.SimulatedRouter{},
		Store:     repo,
	}, schedulerOptions(dispatcher, recorder, service.WithMetrics(metrics))...)

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(dispatchCtx)
	}()

	log.WithFields(log.Fields{
		"session":     sched.ID(),
		"seed":        seed,
		"start":       start.String(),
		"destination": dest.String(),
	}).Info("Simulation starting")

	if emergency || eco {
		if _, err := sched.SetFlags(ctx, domain.Flags{EmergencyMode: emergency, EcoFriendlyMode: eco}); err != nil {
			log.WithError(err).Warn("Could not set flags")
		}
	}
	// the first tick gives the scheduler a position to route from
	if err := sched.Tick(ctx); err != nil {
		log.WithError(err).Warn("First tick failed")
	}
	sched.WaitRecalculations()
	if _, err := sched.SetDestination(ctx, *dest); err != nil {
		log.WithError(err).Warn("No initial route")
	}

	bar := progressbar.NewOptions(ticks,
		progressbar.OptionSetDescription("simulating"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	done := 1
	_ = bar.Add(1)
	for done < ticks && ctx.Err() == nil {
		if interval > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval):
			}
		}
		if err := sched.Tick(ctx); err != nil {
			log.WithError(err).Warn("Tick failed")
			break
		}
		// reroutes land before the next tick, so the seed alone decides the run
		sched.WaitRecalculations()
		done++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	final := sched.Snapshot()
	if err := sched.Close(); err != nil {
		log.WithError(err).Warn("Session close failed")
	}
	cancelDispatch()
	wg.Wait()
	closeArchive(recorder)

	printSummary(final, done, events.Recent(ticks*4), dispatcher.Dropped())
	return nil
}

func printSummary(snap domain.SessionSnapshot, ticks int, events []domain.Event, dropped uint64) {
	counts := make(map[domain.EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}

	fmt.Printf("Session %s: %d ticks\n", snap.SessionID, ticks)
	if snap.Position != nil {
		fmt.Printf("  final position   %s\n", snap.Position.String())
	}
	fmt.Printf("  compliance rate  %.3f (%d deviations)\n", snap.Compliance.Rate, snap.Compliance.TotalDeviations)
	fmt.Printf("  congestion       I=%.4f R=%.4f S=%.4f\n", snap.Congestion.I, snap.Congestion.R, snap.Congestion.S)
	fmt.Printf("  traffic          %.2f (%s)\n", snap.Traffic.Sample.Index, snap.Traffic.Sample.Level)
	fmt.Printf("  route            %.0f m\n", snap.Route.DistanceMeters)
	fmt.Printf("  events           %d deviation, %d critical, %d routed, %d unavailable\n",
		counts[domain.EventDeviationDetected],
		counts[domain.EventCriticalCongestion],
		counts[domain.EventRouteComputed],
		counts[domain.EventCollaboratorUnavailable],
	)
	if dropped > 0 {
		fmt.Printf("  dropped events   %d\n", dropped)
	}
}

// parseCoordinate reads "lat,lon". An empty string yields nil.
func parseCoordinate(s string) (*domain.Coordinate, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid coordinate %q, want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	c := domain.NewCoordinate(lat, lon)
	if !c.Valid() {
		return nil, fmt.Errorf("coordinate %q out of range", s)
	}
	return &c, nil
}

// offset moves c by meters along bearing (radians from north)
func offset(c domain.Coordinate, meters, bearing float64) domain.Coordinate {
	dLat := meters * math.Cos(bearing) / domain.MetersPerDegree
	dLon := meters * math.Sin(bearing) / (domain.MetersPerDegree * math.Cos(c.Latitude*math.Pi/180))
	return domain.NewCoordinate(c.Latitude+dLat, c.Longitude+dLon)
}
