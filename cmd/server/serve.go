package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/caraxes029/Navigator/internal/delivery/http"
	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/internal/observability"
	"github.com/caraxes029/Navigator/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session loop behind the HTTP API",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	// Dependency Injection: Repositories
	repo, closeRepo := openRepository(ctx, cfg.DatabaseURL)
	defer closeRepo()

	metrics, err := observability.NewSessionCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	// Event sinks
	events := service.NewEventLog(100)
	sinks := []domain.Notifier{service.LogNotifier{}, events, service.NewRepositoryNotifier(repo)}
	kafka := openKafka(cfg.Kafka)
	if kafka != nil {
		sinks = append(sinks, kafka)
	}
	defer closeKafka(kafka)
	dispatcher := service.NewDispatcher(service.DefaultEventBuffer, cfg.Timeouts.Persistence, sinks...)

	recorder := openArchive(ctx, cfg.Archive)

	// Dependency Injection: Services
	reported := service.NewReportedLocation(cfg.Session.LocationStaleAfter)
	sched := service.NewScheduler(cfg.SchedulerConfig(), service.Collaborators{
		Location:  reported,
		Telemetry: service.NewTrafficService(cfg.TomTomAPIKey, service.DefaultTomTomBaseURL, cfg.Timeouts.Telemetry),
		POI:       service.NewPOIService(cfg.POI.BaseURL, cfg.POI.Amenity, cfg.Timeouts.Routing),
		Routing:   service.NewRoutingService(cfg.Routing.BaseURL, cfg.Timeouts.Routing),
		Store:     repo,
	}, schedulerOptions(dispatcher, recorder, service.WithMetrics(metrics))...)

	sessionSvc := service.NewSessionService(service.SessionDeps{
		Scheduler:  sched,
		Dispatcher: dispatcher,
		Events:     events,
		Reported:   reported,
		Geocoder:   service.NewGeocodingService(cfg.Geocoding.BaseURL, cfg.Timeouts.Routing),
		Repository: repo,
	})

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:               "Navigator API v1.0",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          http.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
		Output: os.Stdout,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	http.SetupRoutes(app, sessionSvc, prometheus.DefaultGatherer)

	sessionSvc.Start(ctx)
	log.WithFields(log.Fields{"session": sched.ID(), "period": sched.Period()}).Info("Session started")

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("Server error")
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	sessionSvc.Stop()
	closeArchive(recorder)
	log.Info("Server exited gracefully")
	return nil
}
