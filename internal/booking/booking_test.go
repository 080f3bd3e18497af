package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestGetBooking(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	pickupAt := time.Now().Add(2 * time.Hour)
	mock.ExpectQuery(`SELECT id, customer_id, pickup_address, dropoff_address, status, pickup_at`).
		WithArgs("booking-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "customer_id", "pickup_address", "dropoff_address", "status", "pickup_at"}).
			AddRow("booking-1", "cust-1", "123 Main St, Fairfield CT", "JFK Airport", "confirmed", pickupAt))

	repo := NewRepo(mock)
	b, err := repo.Get(context.Background(), "booking-1")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.DropoffAddress != "JFK Airport" || b.Status != "confirmed" {
		t.Fatalf("unexpected booking: %+v", b)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetBookingNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, customer_id, pickup_address, dropoff_address, status, pickup_at`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepo(mock)
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTracking(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	lat, lng := 41.14, -73.26
	eta := time.Now().Add(30 * time.Minute)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("booking-1", "en_route", &lat, &lng, &eta).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepo(mock)
	err = repo.UpdateTracking(context.Background(), "booking-1", TrackingPatch{
		Status:           "en_route",
		DriverLat:        &lat,
		DriverLng:        &lng,
		EstimatedArrival: &eta,
	})
	if err != nil {
		t.Fatalf("update tracking: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateTrackingError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("booking-1", "cancelled", nilFloat(), nilFloat(), nilTime()).
		WillReturnError(errBooking)

	repo := NewRepo(mock)
	if err := repo.UpdateTracking(context.Background(), "booking-1", TrackingPatch{Status: "cancelled"}); err == nil {
		t.Fatalf("expected error")
	}
}

func nilFloat() *float64 { return nil }

func nilTime() *time.Time { return nil }

var errBooking = errors.New("booking error")
