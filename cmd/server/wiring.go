package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/caraxes029/Navigator/internal/archive"
	"github.com/caraxes029/Navigator/internal/config"
	"github.com/caraxes029/Navigator/internal/domain"
	"github.com/caraxes029/Navigator/internal/repository/postgres"
	"github.com/caraxes029/Navigator/internal/service"
)

const archiveS3Prefix = "ticks"

// openRepository connects to PostgreSQL, falling back to in-memory storage
// when the database is not configured or not reachable
func openRepository(ctx context.Context, databaseURL string) (domain.SessionRepository, func()) {
	if databaseURL == "" {
		log.Warn("DATABASE_URL not set, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.WithError(err).Warn("Could not connect to database, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.WithError(err).Warn("Database not reachable, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}

	repo := postgres.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		log.WithError(err).Warn("Could not prepare schema, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}

	log.Info("Connected to PostgreSQL")
	return repo, pool.Close
}

// openKafka returns nil when Kafka is disabled or unreachable
func openKafka(cfg config.KafkaConfig) *service.KafkaNotifier {
	if !cfg.Enabled {
		return nil
	}
	k, err := service.NewKafkaNotifier(cfg.Brokers, cfg.Topic)
	if err != nil {
		log.WithError(err).Warn("Kafka unavailable, events stay local")
		return nil
	}
	log.WithField("topic", cfg.Topic).Info("Publishing events to Kafka")
	return k
}

func closeKafka(k *service.KafkaNotifier) {
	if k == nil {
		return
	}
	if err := k.Close(); err != nil {
		log.WithError(err).Warn("Kafka producer close failed")
	}
}

// openArchive returns nil when archiving is disabled
func openArchive(ctx context.Context, cfg archive.Config) *archive.Recorder {
	if !cfg.Enabled {
		return nil
	}

	var uploader archive.Uploader
	if cfg.S3Bucket != "" {
		s3, err := archive.NewS3Uploader(ctx, cfg.S3Region, cfg.S3Bucket, archiveS3Prefix)
		if err != nil {
			log.WithError(err).Warn("S3 upload disabled")
		} else {
			uploader = s3
		}
	}
	return archive.NewRecorder(cfg.Dir, uploader)
}

func closeArchive(rec *archive.Recorder) {
	if rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := rec.Close(ctx); err != nil {
		log.WithError(err).Error("Tick archive incomplete")
	}
}

func schedulerOptions(events service.EventPublisher, rec *archive.Recorder, opts ...service.SchedulerOption) []service.SchedulerOption {
	opts = append(opts, service.WithEvents(events))
	if rec != nil {
		opts = append(opts, service.WithRecorder(rec))
	}
	return opts
}
