package booking

import (
	"context"
	"errors"
	"time"

	"backend-fairfieldcars/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("booking not found")

// Booking is the slice of the booking record the tracking core reads.
// The booking site owns the rest of the row.
type Booking struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	PickupAddress  string    `json:"pickup_address"`
	DropoffAddress string    `json:"dropoff_address"`
	Status         string    `json:"status"`
	PickupAt       time.Time `json:"pickup_at"`
}

// TrackingPatch is the subset of booking fields the session manager writes
// back on status transitions.
type TrackingPatch struct {
	Status           string
	DriverLat        *float64
	DriverLng        *float64
	EstimatedArrival *time.Time
}

type Repo struct {
	db db.Querier
}

func NewRepo(q db.Querier) *Repo {
	return &Repo{db: q}
}

func (r *Repo) Get(ctx context.Context, id string) (Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, customer_id, pickup_address, dropoff_address, status, pickup_at
		FROM bookings WHERE id=$1
	`, id)
	var b Booking
	if err := row.Scan(&b.ID, &b.CustomerID, &b.PickupAddress, &b.DropoffAddress, &b.Status, &b.PickupAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, err
	}
	return b, nil
}

func (r *Repo) UpdateTracking(ctx context.Context, id string, patch TrackingPatch) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status=$2,
		    driver_lat=COALESCE($3, driver_lat),
		    driver_lng=COALESCE($4, driver_lng),
		    estimated_arrival=COALESCE($5, estimated_arrival),
		    updated_at=now()
		WHERE id=$1
	`, id, patch.Status, patch.DriverLat, patch.DriverLng, patch.EstimatedArrival)
	return err
}
