package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caraxes029/Navigator/internal/domain"
)

//go:embed schema.sql
var schema string

// PostgresRepository implements domain.SessionRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the session tables when they are missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}

// SaveFlags upserts the flags of a session
func (r *PostgresRepository) SaveFlags(ctx context.Context, sessionID string, flags domain.Flags) error {
	query := `
		INSERT INTO session_flags (session_id, emergency_mode, eco_friendly_mode, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET emergency_mode = EXCLUDED.emergency_mode,
			eco_friendly_mode = EXCLUDED.eco_friendly_mode,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, sessionID, flags.EmergencyMode, flags.EcoFriendlyMode)
	if err != nil {
		return fmt.Errorf("postgres: failed to save flags: %w", err)
	}

	return nil
}

// LoadFlags returns the stored flags of a session, or the zero flags when
// none were saved
func (r *PostgresRepository) LoadFlags(ctx context.Context, sessionID string) (domain.Flags, error) {
	query := `
		SELECT emergency_mode, eco_friendly_mode
		FROM session_flags
		WHERE session_id = $1
	`

	var flags domain.Flags
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&flags.EmergencyMode, &flags.EcoFriendlyMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Flags{}, nil
	}
	if err != nil {
		return domain.Flags{}, fmt.Errorf("postgres: failed to load flags: %w", err)
	}

	return flags, nil
}

// SaveSnapshot persists a tick snapshot. Headline values get their own
// columns; the full snapshot is kept as JSON.
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) error {
	query := `
		INSERT INTO session_snapshots (
			session_id, tick, latitude, longitude, congestion_i, congestion_r,
			traffic_index, traffic_fallback, compliance_rate, total_deviations,
			payload, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode snapshot: %w", err)
	}

	// NULL position when the session has none yet
	var lat, lon *float64
	if snap.Position != nil {
		lat, lon = &snap.Position.Latitude, &snap.Position.Longitude
	}

	_, err = r.pool.Exec(ctx, query,
		snap.SessionID, int64(snap.Tick), lat, lon, snap.Congestion.I, snap.Congestion.R,
		snap.Traffic.Sample.Index, snap.Traffic.Sample.Fallback, snap.Compliance.Rate, snap.Compliance.TotalDeviations,
		payload, snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save snapshot: %w", err)
	}

	return nil
}

// SaveEvent persists a session event
func (r *PostgresRepository) SaveEvent(ctx context.Context, event domain.Event) error {
	query := `
		INSERT INTO session_events (id, session_id, type, message, latitude, longitude, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	var lat, lon *float64
	if event.Position != nil {
		lat, lon = &event.Position.Latitude, &event.Position.Longitude
	}

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.SessionID, string(event.Type), event.Message, lat, lon, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save event: %w", err)
	}

	return nil
}

// GetHistoricalSnapshots retrieves snapshot history from PostgreSQL
func (r *PostgresRepository) GetHistoricalSnapshots(ctx context.Context, from, to time.Time) ([]domain.SessionSnapshot, error) {
	query := `
		SELECT payload
		FROM session_snapshots
		WHERE timestamp BETWEEN $1 AND $2
		ORDER BY timestamp DESC
		LIMIT 100
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query snapshots: %w", err)
	}
	defer rows.Close()

	results := []domain.SessionSnapshot{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan snapshot row: %w", err)
		}
		var snap domain.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode snapshot: %w", err)
		}
		results = append(results, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read snapshots: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
