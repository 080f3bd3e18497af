package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-fairfieldcars/internal/booking"
	"backend-fairfieldcars/internal/routing"
	"backend-fairfieldcars/internal/shared/geo"
)

// SampleSource supplies the next driver position for a session. The synthetic
// route generator implements it; device-backed deployments skip it and feed
// OnSample directly.
type SampleSource interface {
	Next() (Sample, bool)
}

// SourceFactory builds a sample source for a freshly started session. A nil
// factory means samples arrive only through ingest.
type SourceFactory func(origin, pickup, dropoff geo.Point) (SampleSource, error)

type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, bookingID string) (Snapshot, error)
}

type Broadcaster interface {
	Publish(bookingID string, payload []byte)
	CloseSession(bookingID string)
}

type Notifier interface {
	StatusChanged(ctx context.Context, bookingID string, status Status)
}

type Planner interface {
	ResolveCoordinates(ctx context.Context, address string) (geo.Point, error)
	CalculateETA(ctx context.Context, from, dest geo.Point) (routing.ETAInfo, error)
}

type BookingRepo interface {
	Get(ctx context.Context, id string) (booking.Booking, error)
	UpdateTracking(ctx context.Context, id string, patch booking.TrackingPatch) error
}

type ManagerConfig struct {
	Store         Store
	Bookings      BookingRepo
	Planner       Planner
	Hub           Broadcaster
	Notifier      Notifier
	SourceFactory SourceFactory
	TickInterval  time.Duration
	Depot         geo.Point
}

// Manager owns one live session per tracked booking. All mutation of a
// session goes through its own lock; sessions never share state.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	snap    Snapshot
	dropoff geo.Point
	source  SampleSource
	ticker  *time.Ticker
	done    chan struct{}
	etaBusy bool
	dirty   bool
	stopped bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		sessions: map[string]*session{},
	}
}

// Start loads the booking, resolves its addresses, resumes any persisted
// snapshot and begins ticking. Starting an already-tracked booking fails.
func (m *Manager) Start(ctx context.Context, bookingID string) (Snapshot, error) {
	m.mu.Lock()
	if _, exists := m.sessions[bookingID]; exists {
		m.mu.Unlock()
		return Snapshot{}, ErrAlreadyTracking
	}
	m.mu.Unlock()

	b, err := m.cfg.Bookings.Get(ctx, bookingID)
	if err != nil {
		return Snapshot{}, err
	}

	pickup, err := m.cfg.Planner.ResolveCoordinates(ctx, b.PickupAddress)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: pickup: %v", ErrAddressResolution, err)
	}
	dropoff, err := m.cfg.Planner.ResolveCoordinates(ctx, b.DropoffAddress)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: dropoff: %v", ErrAddressResolution, err)
	}

	snap := Snapshot{
		BookingID:   bookingID,
		Status:      ParseStatus(b.Status),
		LastUpdated: time.Now(),
	}
	if prev, err := m.cfg.Store.Load(ctx, bookingID); err == nil {
		snap = prev
	} else if !errors.Is(err, ErrSnapshotNotFound) {
		log.Printf("tracking: load snapshot for %s: %v", bookingID, err)
	}

	s := &session{
		snap:    snap,
		dropoff: dropoff,
		done:    make(chan struct{}),
	}
	if m.cfg.SourceFactory != nil {
		source, err := m.cfg.SourceFactory(m.cfg.Depot, pickup, dropoff)
		if err != nil {
			return Snapshot{}, err
		}
		s.source = source
	}

	m.mu.Lock()
	if _, exists := m.sessions[bookingID]; exists {
		m.mu.Unlock()
		return Snapshot{}, ErrAlreadyTracking
	}
	m.sessions[bookingID] = s
	m.mu.Unlock()

	if s.source != nil {
		s.ticker = time.NewTicker(m.cfg.TickInterval)
		go m.run(bookingID, s)
	}
	return snap, nil
}

func (m *Manager) run(bookingID string, s *session) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			m.tick(bookingID, s)
		}
	}
}

// tick consumes one synthetic sample. A tick racing a stop is a no-op.
func (m *Manager) tick(bookingID string, s *session) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	sample, ok := s.source.Next()
	exhausted := !ok
	status := s.snap.Status
	dirty := s.dirty
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if exhausted {
		if status == StatusEnRoute {
			if err := m.UpdateStatus(ctx, bookingID, StatusArrived); err != nil {
				log.Printf("tracking: arrive %s: %v", bookingID, err)
			}
			return
		}
		if dirty {
			m.retrySave(ctx, s)
		}
		return
	}

	if err := m.OnSample(ctx, bookingID, sample); err != nil {
		log.Printf("tracking: tick sample %s: %v", bookingID, err)
	}
}

func (m *Manager) retrySave(ctx context.Context, s *session) {
	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()
	if err := m.cfg.Store.Save(ctx, snap); err != nil {
		log.Printf("tracking: retry save %s: %v", snap.BookingID, err)
		return
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
}

// OnSample applies one driver position to the session: out-of-order samples
// are dropped, accepted ones update the location, kick off an ETA refresh,
// persist and broadcast — in acceptance order.
func (m *Manager) OnSample(ctx context.Context, bookingID string, sample Sample) error {
	s := m.lookup(bookingID)
	if s == nil {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	if s.stopped || s.snap.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if sample.Timestamp.Before(s.snap.LastUpdated) {
		s.mu.Unlock()
		log.Printf("tracking: dropping stale sample for %s (%s < %s)",
			bookingID, sample.Timestamp.Format(time.RFC3339), s.snap.LastUpdated.Format(time.RFC3339))
		return nil
	}

	s.snap.Driver = &sample
	s.snap.LastUpdated = sample.Timestamp

	refreshETA := !s.etaBusy &&
		(s.snap.Status == StatusDriverAssigned || s.snap.Status == StatusEnRoute)
	if refreshETA {
		s.etaBusy = true
	}
	dropoff := s.dropoff
	m.persistAndBroadcastLocked(ctx, s)
	s.mu.Unlock()

	if refreshETA {
		go m.refreshETA(bookingID, Sample{Lat: sample.Lat, Lng: sample.Lng}, dropoff)
	}
	return nil
}

// refreshETA runs the provider call off the tick path and applies the result
// only if the session still exists. Provider failure keeps the previous
// estimate — stale beats absent.
func (m *Manager) refreshETA(bookingID string, from Sample, dropoff geo.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := m.cfg.Planner.CalculateETA(ctx, geo.Point{Lat: from.Lat, Lng: from.Lng}, dropoff)

	s := m.lookup(bookingID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etaBusy = false
	if s.stopped {
		return
	}
	if err != nil {
		log.Printf("tracking: eta refresh %s: %v", bookingID, err)
		return
	}
	if s.snap.Status != StatusDriverAssigned && s.snap.Status != StatusEnRoute {
		return
	}

	arrival := info.EstimatedArrival
	s.snap.EstimatedArrival = &arrival
	s.snap.DistanceMiles = info.DistanceMiles
	s.snap.DurationMinutes = info.DurationMinutes
	s.snap.Traffic = info.Traffic
	m.persistAndBroadcastLocked(ctx, s)
}

// UpdateStatus validates and applies a state-machine transition, then
// persists, broadcasts, patches the booking record and notifies.
func (m *Manager) UpdateStatus(ctx context.Context, bookingID string, next Status) error {
	s := m.lookup(bookingID)
	if s == nil {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	current := s.snap.Status
	if !CanTransition(current, next) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	s.snap.Status = next
	s.snap.LastUpdated = time.Now()
	if statusRank[next] >= statusRank[StatusArrived] || next == StatusCancelled {
		s.snap.EstimatedArrival = nil
		s.snap.DistanceMiles = 0
		s.snap.DurationMinutes = 0
		s.snap.Traffic = ""
	}
	snap := s.snap
	m.persistAndBroadcastLocked(ctx, s)
	s.mu.Unlock()

	patch := booking.TrackingPatch{Status: string(next)}
	if snap.Driver != nil {
		patch.DriverLat = &snap.Driver.Lat
		patch.DriverLng = &snap.Driver.Lng
	}
	patch.EstimatedArrival = snap.EstimatedArrival
	if err := m.cfg.Bookings.UpdateTracking(ctx, bookingID, patch); err != nil {
		log.Printf("tracking: booking patch %s: %v", bookingID, err)
	}

	if m.cfg.Notifier != nil {
		m.cfg.Notifier.StatusChanged(ctx, bookingID, next)
	}

	if next.Terminal() {
		m.Stop(bookingID)
	}
	return nil
}

// Stop is idempotent: it cancels the ticker, closes the push channels and
// forgets the in-memory session. The persisted snapshot stays behind.
func (m *Manager) Stop(bookingID string) {
	m.mu.Lock()
	s := m.sessions[bookingID]
	delete(m.sessions, bookingID)
	m.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	}
	s.mu.Unlock()

	m.cfg.Hub.CloseSession(bookingID)
}

// Snapshot serves the poll path: the live session when present, otherwise the
// last persisted state.
func (m *Manager) Snapshot(ctx context.Context, bookingID string) (Snapshot, error) {
	if s := m.lookup(bookingID); s != nil {
		s.mu.Lock()
		snap := s.snap
		s.mu.Unlock()
		return snap, nil
	}
	return m.cfg.Store.Load(ctx, bookingID)
}

// Shutdown stops every live session; used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

var jsonMarshalFn = json.Marshal

func (m *Manager) lookup(bookingID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[bookingID]
}

// persistAndBroadcastLocked runs with s.mu held so snapshots and deltas go
// out in the order samples were accepted.
func (m *Manager) persistAndBroadcastLocked(ctx context.Context, s *session) {
	if err := m.cfg.Store.Save(ctx, s.snap); err != nil {
		s.dirty = true
		log.Printf("tracking: save %s: %v", s.snap.BookingID, err)
	} else {
		s.dirty = false
	}

	payload, err := jsonMarshalFn(s.snap)
	if err != nil {
		log.Printf("tracking: marshal delta %s: %v", s.snap.BookingID, err)
		return
	}
	m.cfg.Hub.Publish(s.snap.BookingID, payload)
}
