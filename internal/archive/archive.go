package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/caraxes029/Navigator/internal/domain"
)

// Config controls the tick archive
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
}

// TickRecord is one archived tick
type TickRecord struct {
	SessionID       string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Tick            int64   `parquet:"name=tick, type=INT64"`
	Timestamp       int64   `parquet:"name=timestamp_ms, type=INT64"`
	HasPosition     bool    `parquet:"name=has_position, type=BOOLEAN"`
	Latitude        float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude       float64 `parquet:"name=longitude, type=DOUBLE"`
	CongestionI     float64 `parquet:"name=congestion_i, type=DOUBLE"`
	CongestionR     float64 `parquet:"name=congestion_r, type=DOUBLE"`
	CongestionS     float64 `parquet:"name=congestion_s, type=DOUBLE"`
	Beta            float64 `parquet:"name=beta, type=DOUBLE"`
	Gamma           float64 `parquet:"name=gamma, type=DOUBLE"`
	R0              float64 `parquet:"name=r0, type=DOUBLE"`
	R0Saturated     bool    `parquet:"name=r0_saturated, type=BOOLEAN"`
	TrafficIndex    float64 `parquet:"name=traffic_index, type=DOUBLE"`
	TrafficLevel    string  `parquet:"name=traffic_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	TrafficFallback bool    `parquet:"name=traffic_fallback, type=BOOLEAN"`
	ComplianceRate  float64 `parquet:"name=compliance_rate, type=DOUBLE"`
	TotalDeviations int32   `parquet:"name=total_deviations, type=INT32"`
	RouteDistance   float64 `parquet:"name=route_distance_m, type=DOUBLE"`
	EmergencyMode   bool    `parquet:"name=emergency_mode, type=BOOLEAN"`
	EcoFriendlyMode bool    `parquet:"name=eco_friendly_mode, type=BOOLEAN"`
}

// NewTickRecord flattens a snapshot. A saturated R0 is stored as 0 with
// R0Saturated set.
func NewTickRecord(snap domain.SessionSnapshot) TickRecord {
	rec := TickRecord{
		SessionID:       snap.SessionID,
		Tick:            int64(snap.Tick),
		Timestamp:       snap.Timestamp.UnixMilli(),
		CongestionI:     snap.Congestion.I,
		CongestionR:     snap.Congestion.R,
		CongestionS:     snap.Congestion.S,
		Beta:            snap.Congestion.Beta,
		Gamma:           snap.Congestion.Gamma,
		R0Saturated:     snap.Congestion.R0Saturated,
		TrafficIndex:    snap.Traffic.Sample.Index,
		TrafficLevel:    snap.Traffic.Sample.Level,
		TrafficFallback: snap.Traffic.Sample.Fallback,
		ComplianceRate:  snap.Compliance.Rate,
		TotalDeviations: int32(snap.Compliance.TotalDeviations),
		RouteDistance:   snap.Route.DistanceMeters,
		EmergencyMode:   snap.Flags.EmergencyMode,
		EcoFriendlyMode: snap.Flags.EcoFriendlyMode,
	}
	if snap.Congestion.R0 != nil {
		rec.R0 = *snap.Congestion.R0
	}
	if snap.Position != nil {
		rec.HasPosition = true
		rec.Latitude = snap.Position.Latitude
		rec.Longitude = snap.Position.Longitude
	}
	return rec
}

// Uploader ships a finished archive file somewhere durable
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// Recorder streams tick snapshots into a parquet file. The file is opened
// on the first record and finalized by Close.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	uploader Uploader
	path     string
	file     source.ParquetFile
	pw       *writer.ParquetWriter
	rows     int
}

// NewRecorder writes archives under dir. uploader may be nil.
func NewRecorder(dir string, uploader Uploader) *Recorder {
	if dir == "" {
		dir = "./archive"
	}
	return &Recorder{dir: dir, uploader: uploader}
}

// Record appends one snapshot
func (r *Recorder) Record(snap domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pw == nil {
		if err := r.open(snap.SessionID); err != nil {
			return err
		}
	}

	if err := r.pw.Write(NewTickRecord(snap)); err != nil {
		return fmt.Errorf("archive: failed to write tick %d: %w", snap.Tick, err)
	}
	r.rows++
	return nil
}

func (r *Recorder) open(sessionID string) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("archive: failed to create %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%d.parquet", sessionID, time.Now().Unix()))
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("archive: failed to create local file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(TickRecord), 4)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("archive: failed to create ParquetWriter: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	r.path, r.file, r.pw, r.rows = path, fw, pw, 0
	return nil
}

// Rows returns how many ticks the open archive holds
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close finalizes the archive and uploads it when an uploader is set. It
// returns the local path, or "" when nothing was recorded.
func (r *Recorder) Close(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pw == nil {
		return "", nil
	}

	path, rows := r.path, r.rows
	stopErr := r.pw.WriteStop()
	closeErr := r.file.Close()
	r.pw, r.file, r.path, r.rows = nil, nil, "", 0

	if stopErr != nil {
		return path, fmt.Errorf("archive: failed to finalize %s: %w", path, stopErr)
	}
	if closeErr != nil {
		return path, fmt.Errorf("archive: failed to close %s: %w", path, closeErr)
	}

	log.WithFields(log.Fields{"path": path, "rows": rows}).Info("Tick archive written")

	if r.uploader != nil {
		if err := r.uploader.Upload(ctx, filepath.Base(path), path); err != nil {
			return path, fmt.Errorf("archive: upload failed: %w", err)
		}
	}
	return path, nil
}
