package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/caraxes029/Navigator/internal/archive"
	"github.com/caraxes029/Navigator/internal/logging"
	"github.com/caraxes029/Navigator/internal/observability"
	"github.com/caraxes029/Navigator/internal/service"
)

// Config is the full process configuration
type Config struct {
	Port         string `mapstructure:"port"`
	DatabaseURL  string `mapstructure:"database_url"`
	TomTomAPIKey string `mapstructure:"tomtom_api_key"`

	Routing    RoutingConfig               `mapstructure:"routing"`
	POI        POIConfig                   `mapstructure:"poi"`
	Geocoding  GeocodingConfig             `mapstructure:"geocoding"`
	Session    SessionConfig               `mapstructure:"session"`
	Timeouts   service.Timeouts            `mapstructure:"timeouts"`
	Congestion service.CongestionConfig    `mapstructure:"congestion"`
	Compliance ComplianceConfig            `mapstructure:"compliance"`
	Heatmap    HeatmapConfig               `mapstructure:"heatmap"`
	Kafka      KafkaConfig                 `mapstructure:"kafka"`
	Archive    archive.Config              `mapstructure:"archive"`
	Tracing    observability.TracingConfig `mapstructure:"tracing"`
	Log        logging.Config              `mapstructure:"log"`
}

type RoutingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Profile string `mapstructure:"profile"`
}

type POIConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	Amenity      string  `mapstructure:"amenity"`
	RadiusMeters float64 `mapstructure:"radius_meters"`
}

type GeocodingConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SessionConfig controls the tick loop. An empty ID gets a generated one,
// which means persisted flags are not found again after a restart.
type SessionConfig struct {
	ID                 string        `mapstructure:"id"`
	Period             time.Duration `mapstructure:"period"`
	Seed               int64         `mapstructure:"seed"`
	LocationStaleAfter time.Duration `mapstructure:"location_stale_after"`
}

type ComplianceConfig struct {
	ThresholdMeters float64 `mapstructure:"threshold_meters"`
}

type HeatmapConfig struct {
	Samples int `mapstructure:"samples"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	sched := service.DefaultSchedulerConfig()

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("tomtom_api_key", "")

	v.SetDefault("routing.base_url", service.DefaultOSRMBaseURL)
	v.SetDefault("routing.profile", sched.Profile)
	v.SetDefault("poi.base_url", service.DefaultOverpassURL)
	v.SetDefault("poi.amenity", "hospital")
	v.SetDefault("poi.radius_meters", sched.POIRadiusMeters)
	v.SetDefault("geocoding.base_url", service.DefaultNominatimBaseURL)

	v.SetDefault("session.id", "")
	v.SetDefault("session.period", sched.Period)
	v.SetDefault("session.seed", 0)
	v.SetDefault("session.location_stale_after", time.Minute)

	v.SetDefault("timeouts.telemetry", sched.Timeouts.Telemetry)
	v.SetDefault("timeouts.routing", sched.Timeouts.Routing)
	v.SetDefault("timeouts.location", sched.Timeouts.Location)
	v.SetDefault("timeouts.persistence", sched.Timeouts.Persistence)

	v.SetDefault("congestion.beta", sched.Congestion.Beta)
	v.SetDefault("congestion.gamma", sched.Congestion.Gamma)
	v.SetDefault("congestion.decay", sched.Congestion.Decay)
	v.SetDefault("congestion.critical_threshold", sched.Congestion.CriticalThreshold)
	v.SetDefault("congestion.reset_index", sched.Congestion.ResetIndex)

	v.SetDefault("compliance.threshold_meters", sched.ComplianceThresholdMeters)
	v.SetDefault("heatmap.samples", sched.HeatmapSamples)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "navigator-events")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "./archive")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_region", "us-east-1")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "navigator")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env, then the optional config file, then the environment.
// Environment variables win; nested keys use underscores, e.g. SESSION_PERIOD.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using system environment")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.WithField("file", v.ConfigFileUsed()).Info("Using config file")
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the session cannot run with
func (c *Config) Validate() error {
	if c.Session.Period <= 0 {
		return fmt.Errorf("config: session.period must be positive, got %s", c.Session.Period)
	}
	if c.Congestion.Beta < 0 || c.Congestion.Gamma < 0 || c.Congestion.Decay < 0 {
		return fmt.Errorf("config: congestion rates must be non-negative")
	}
	if c.Congestion.CriticalThreshold <= 0 || c.Congestion.CriticalThreshold > 1 {
		return fmt.Errorf("config: congestion.critical_threshold must be in (0, 1], got %v", c.Congestion.CriticalThreshold)
	}
	if c.Congestion.ResetIndex < 0 || c.Congestion.ResetIndex >= c.Congestion.CriticalThreshold {
		return fmt.Errorf("config: congestion.reset_index must be in [0, critical_threshold), got %v", c.Congestion.ResetIndex)
	}
	if c.Compliance.ThresholdMeters <= 0 {
		return fmt.Errorf("config: compliance.threshold_meters must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.enabled requires kafka.brokers")
	}
	return nil
}

// SchedulerConfig assembles the per-session settings
func (c *Config) SchedulerConfig() service.SchedulerConfig {
	return service.SchedulerConfig{
		SessionID:                 c.Session.ID,
		Period:                    c.Session.Period,
		Seed:                      c.Session.Seed,
		Profile:                   c.Routing.Profile,
		POIRadiusMeters:           c.POI.RadiusMeters,
		ComplianceThresholdMeters: c.Compliance.ThresholdMeters,
		HeatmapSamples:            c.Heatmap.Samples,
		Congestion:                c.Congestion,
		Timeouts:                  c.Timeouts,
	}
}
