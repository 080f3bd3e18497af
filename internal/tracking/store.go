package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-fairfieldcars/internal/db"
	"backend-fairfieldcars/internal/routing"

	"github.com/jackc/pgx/v5"
)

// SnapshotStore persists the latest session snapshot per booking. The
// in-memory session stays authoritative; this row exists for polling after
// restart and for audit once the session is gone.
type SnapshotStore struct {
	db db.Querier
}

func NewSnapshotStore(q db.Querier) *SnapshotStore {
	return &SnapshotStore{db: q}
}

func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	var lat, lng, heading, speed, accuracy *float64
	var sampleAt any
	if snap.Driver != nil {
		lat, lng = &snap.Driver.Lat, &snap.Driver.Lng
		heading, speed, accuracy = &snap.Driver.HeadingDeg, &snap.Driver.SpeedMph, &snap.Driver.AccuracyM
		sampleAt = snap.Driver.Timestamp
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO tracking_snapshots
			(booking_id, status, lat, lng, heading_degrees, speed_mph, accuracy_meters, sample_at,
			 estimated_arrival, distance_miles, duration_minutes, traffic_condition, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (booking_id) DO UPDATE SET
			status=EXCLUDED.status,
			lat=EXCLUDED.lat,
			lng=EXCLUDED.lng,
			heading_degrees=EXCLUDED.heading_degrees,
			speed_mph=EXCLUDED.speed_mph,
			accuracy_meters=EXCLUDED.accuracy_meters,
			sample_at=EXCLUDED.sample_at,
			estimated_arrival=EXCLUDED.estimated_arrival,
			distance_miles=EXCLUDED.distance_miles,
			duration_minutes=EXCLUDED.duration_minutes,
			traffic_condition=EXCLUDED.traffic_condition,
			last_updated=EXCLUDED.last_updated
	`, snap.BookingID, string(snap.Status), lat, lng, heading, speed, accuracy, sampleAt,
		snap.EstimatedArrival, snap.DistanceMiles, snap.DurationMinutes, string(snap.Traffic), snap.LastUpdated)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, bookingID string) (Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT booking_id, status, lat, lng, heading_degrees, speed_mph, accuracy_meters, sample_at,
		       estimated_arrival, distance_miles, duration_minutes, traffic_condition, last_updated
		FROM tracking_snapshots WHERE booking_id=$1
	`, bookingID)

	var snap Snapshot
	var status, traffic string
	var lat, lng, heading, speed, accuracy *float64
	var sampleAt *time.Time
	if err := row.Scan(&snap.BookingID, &status, &lat, &lng, &heading, &speed, &accuracy, &sampleAt,
		&snap.EstimatedArrival, &snap.DistanceMiles, &snap.DurationMinutes, &traffic, &snap.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	snap.Status = Status(status)
	snap.Traffic = routing.Traffic(traffic)
	if lat != nil && lng != nil {
		snap.Driver = &Sample{Lat: *lat, Lng: *lng}
		if heading != nil {
			snap.Driver.HeadingDeg = *heading
		}
		if speed != nil {
			snap.Driver.SpeedMph = *speed
		}
		if accuracy != nil {
			snap.Driver.AccuracyM = *accuracy
		}
		if sampleAt != nil {
			snap.Driver.Timestamp = *sampleAt
		}
	}
	return snap, nil
}
