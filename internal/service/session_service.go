package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/caraxes029/Navigator/internal/domain"
)

// ErrPositionReportsDisabled is returned when the session does not take
// device position reports
var ErrPositionReportsDisabled = errors.New("position reports are not accepted by this session")

// SessionDeps wires a SessionService. Reported and Geocoder may be nil.
type SessionDeps struct {
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	Events     *EventLog
	Reported   *ReportedLocation
	Geocoder   domain.Geocoder
	Repository domain.SessionRepository
}

// DestinationRequest names a destination by address or by coordinate
type DestinationRequest struct {
	Address    string
	Coordinate *domain.Coordinate
}

// SessionService is the facade the API works against. It runs the
// scheduler and the event dispatcher in the background.
type SessionService struct {
	scheduler  *Scheduler
	dispatcher *Dispatcher
	events     *EventLog
	reported   *ReportedLocation
	geocoder   domain.Geocoder
	repo       domain.SessionRepository

	cancel context.CancelFunc
	wgBg   sync.WaitGroup // tracks background goroutines for graceful shutdown
}

// NewSessionService creates a new session service
func NewSessionService(deps SessionDeps) *SessionService {
	return &SessionService{
		scheduler:  deps.Scheduler,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		reported:   deps.Reported,
		geocoder:   deps.Geocoder,
		repo:       deps.Repository,
	}
}

// Start launches the dispatcher and the tick loop
func (s *SessionService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.dispatcher != nil {
		s.wgBg.Add(1)
		go func() {
			defer s.wgBg.Done()
			s.dispatcher.Run(ctx)
		}()
	}

	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Session loop stopped")
		}
	}()
}

// Stop closes the session and waits for the background work to finish
func (s *SessionService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.scheduler.Close(); err != nil {
		log.WithError(err).Warn("Session close failed")
	}
	s.WaitBackground()
}

// WaitBackground blocks until all background goroutines complete.
// Call during graceful shutdown to avoid dropped writes.
func (s *SessionService) WaitBackground() {
	s.wgBg.Wait()
}

// Snapshot returns the latest session state
func (s *SessionService) Snapshot() domain.SessionSnapshot {
	return s.scheduler.Snapshot()
}

// GetTraffic returns the traffic view of the latest snapshot
func (s *SessionService) GetTraffic() domain.Traffic {
	return s.scheduler.Snapshot().Traffic
}

// GetCompliance returns the compliance view of the latest snapshot
func (s *SessionService) GetCompliance() domain.ComplianceView {
	return s.scheduler.Snapshot().Compliance
}

// RecentEvents returns up to limit recent events, newest first
func (s *SessionService) RecentEvents(limit int) []domain.Event {
	if s.events == nil {
		return []domain.Event{}
	}
	return s.events.Recent(limit)
}

// ReportPosition feeds a device location into the session
func (s *SessionService) ReportPosition(c domain.Coordinate) error {
	if s.reported == nil {
		return ErrPositionReportsDisabled
	}
	return s.reported.Report(c)
}

// SetDestination resolves req and routes to it
func (s *SessionService) SetDestination(ctx context.Context, req DestinationRequest) (domain.RouteView, error) {
	var dest domain.Coordinate
	switch {
	case req.Coordinate != nil:
		dest = *req.Coordinate
	case strings.TrimSpace(req.Address) != "":
		if s.geocoder == nil {
			return domain.RouteView{}, fmt.Errorf("session: no geocoder: %w", domain.ErrCollaboratorUnavailable)
		}
		found, err := s.geocoder.Geocode(ctx, strings.TrimSpace(req.Address))
		if err != nil {
			return domain.RouteView{}, fmt.Errorf("session: failed to geocode destination: %w", err)
		}
		if found == nil {
			return domain.RouteView{}, fmt.Errorf("session: %q: %w", req.Address, domain.ErrAddressNotFound)
		}
		dest = *found
	default:
		return domain.RouteView{}, domain.ErrNoDestination
	}

	return s.scheduler.SetDestination(ctx, dest)
}

// Recalculate forces a route recalculation
func (s *SessionService) Recalculate(ctx context.Context) (domain.RouteView, error) {
	return s.scheduler.Recalculate(ctx, TriggerManual)
}

// SetFlags updates the user preference flags
func (s *SessionService) SetFlags(ctx context.Context, flags domain.Flags) (domain.Flags, error) {
	snap, err := s.scheduler.SetFlags(ctx, flags)
	if err != nil {
		return domain.Flags{}, err
	}
	return snap.Flags, nil
}

// GetHistory returns snapshots persisted in the last hours
func (s *SessionService) GetHistory(ctx context.Context, hours int) ([]domain.SessionSnapshot, error) {
	if s.repo == nil {
		return []domain.SessionSnapshot{}, nil
	}
	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	return s.repo.GetHistoricalSnapshots(ctx, from, to)
}

// Health checks the repository
func (s *SessionService) Health(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Health(ctx)
}
