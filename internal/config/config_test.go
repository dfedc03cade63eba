package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Session.Period)
	assert.Equal(t, time.Minute, cfg.Session.LocationStaleAfter)
	assert.Equal(t, 0.4, cfg.Congestion.Beta)
	assert.Equal(t, 0.25, cfg.Congestion.Gamma)
	assert.Equal(t, 0.9, cfg.Congestion.CriticalThreshold)
	assert.Equal(t, 100.0, cfg.Compliance.ThresholdMeters)
	assert.Equal(t, 20, cfg.Heatmap.Samples)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Telemetry)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Routing)
	assert.Equal(t, "hospital", cfg.POI.Amenity)
	assert.Equal(t, "navigator-events", cfg.Kafka.Topic)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "./archive", cfg.Archive.Dir)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, "info", cfg.Log.Level)

	sched := cfg.SchedulerConfig()
	assert.Equal(t, cfg.Session.Period, sched.Period)
	assert.Equal(t, "driving", sched.Profile)
	assert.Equal(t, 5000.0, sched.POIRadiusMeters)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_PERIOD", "2s")
	t.Setenv("SESSION_ID", "device-7")
	t.Setenv("CONGESTION_BETA", "0.6")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TIMEOUTS_ROUTING", "1500ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Session.Period)
	assert.Equal(t, "device-7", cfg.SchedulerConfig().SessionID)
	assert.Equal(t, 0.6, cfg.Congestion.Beta)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Routing)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navigator.yaml")
	body := `
session:
  period: 30s
  seed: 42
compliance:
  threshold_meters: 50
archive:
  enabled: true
  dir: /tmp/ticks
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Session.Period)
	assert.Equal(t, int64(42), cfg.Session.Seed)
	assert.Equal(t, 50.0, cfg.Compliance.ThresholdMeters)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "/tmp/ticks", cfg.Archive.Dir)
	// untouched keys keep their defaults
	assert.Equal(t, 0.25, cfg.Congestion.Gamma)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("CONGESTION_CRITICAL_THRESHOLD", "1.5")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Session.Period = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Kafka.Enabled = true
	bad.Kafka.Brokers = nil
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Congestion.Gamma = -0.1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Congestion.ResetIndex = 1.2
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Congestion.ResetIndex = -0.1
	assert.Error(t, bad.Validate())

	// resetting at or above the threshold would fire again on the next tick
	bad = *cfg
	bad.Congestion.ResetIndex = bad.Congestion.CriticalThreshold
	assert.Error(t, bad.Validate())

	ok := *cfg
	ok.Congestion.ResetIndex = 0
	assert.NoError(t, ok.Validate())
}
