package tracking

import (
	"time"

	"backend-fairfieldcars/internal/routing"
)

type Status string

const (
	StatusConfirmed      Status = "confirmed"
	StatusDriverAssigned Status = "driver_assigned"
	StatusEnRoute        Status = "en_route"
	StatusArrived        Status = "arrived"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

var statusRank = map[Status]int{
	StatusConfirmed:      0,
	StatusDriverAssigned: 1,
	StatusEnRoute:        2,
	StatusArrived:        3,
	StatusCompleted:      4,
}

func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal edge: one step forward
// along the trip lifecycle, or cancellation from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// ParseStatus maps a booking-record status onto a session status,
// defaulting to confirmed for anything unknown.
func ParseStatus(raw string) Status {
	s := Status(raw)
	if s.Valid() {
		return s
	}
	return StatusConfirmed
}

// Sample is one reported driver position. Immutable once created.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Timestamp  time.Time `json:"timestamp_utc"`
	HeadingDeg float64   `json:"heading_degrees,omitempty"`
	SpeedMph   float64   `json:"speed_mph,omitempty"`
	AccuracyM  float64   `json:"accuracy_meters,omitempty"`
}

// Snapshot is the full session state for one booking. The same shape is
// persisted, returned from the poll endpoint, and broadcast as the delta
// payload so push and poll can never diverge.
type Snapshot struct {
	BookingID        string          `json:"booking_id"`
	Status           Status          `json:"status"`
	Driver           *Sample         `json:"driver_location,omitempty"`
	EstimatedArrival *time.Time      `json:"estimated_arrival,omitempty"`
	DistanceMiles    float64         `json:"distance_miles,omitempty"`
	DurationMinutes  float64         `json:"duration_minutes,omitempty"`
	Traffic          routing.Traffic `json:"traffic_condition,omitempty"`
	LastUpdated      time.Time       `json:"last_updated"`
}
