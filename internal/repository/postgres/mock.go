package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caraxes029/Navigator/internal/domain"
)

// mockHistoryLimit caps how many snapshots and events the mock keeps
const mockHistoryLimit = 1000

// MockRepository implements domain.SessionRepository in memory for
// testing/demo mode
type MockRepository struct {
	mu        sync.RWMutex
	flags     map[string]domain.Flags
	snapshots []domain.SessionSnapshot
	events    []domain.Event
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{flags: make(map[string]domain.Flags)}
}

// SaveFlags stores flags in memory
func (r *MockRepository) SaveFlags(_ context.Context, sessionID string, flags domain.Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[sessionID] = flags
	return nil
}

// LoadFlags returns stored flags, or the zero flags
func (r *MockRepository) LoadFlags(_ context.Context, sessionID string) (domain.Flags, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[sessionID], nil
}

// SaveSnapshot keeps the snapshot in memory
func (r *MockRepository) SaveSnapshot(_ context.Context, snap domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
	if len(r.snapshots) > mockHistoryLimit {
		r.snapshots = r.snapshots[len(r.snapshots)-mockHistoryLimit:]
	}
	return nil
}

// SaveEvent keeps the event in memory
func (r *MockRepository) SaveEvent(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > mockHistoryLimit {
		r.events = r.events[len(r.events)-mockHistoryLimit:]
	}
	return nil
}

// Events returns a copy of the stored events, oldest first
func (r *MockRepository) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Event(nil), r.events...)
}

// GetHistoricalSnapshots returns up to 100 stored snapshots in [from, to],
// newest first
func (r *MockRepository) GetHistoricalSnapshots(_ context.Context, from, to time.Time) ([]domain.SessionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []domain.SessionSnapshot{}
	for _, s := range r.snapshots {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		results = append(results, s)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if len(results) > 100 {
		results = results[:100]
	}
	return results, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
