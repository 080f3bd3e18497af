package simulate

import (
	"errors"
	"math/rand"
	"time"

	"backend-fairfieldcars/internal/shared/geo"
	"backend-fairfieldcars/internal/tracking"
)

// Synthetic feeds stand in for a real device: a fixed route from the depot
// through the pickup to the dropoff, consumed one point per tick.

const tickSpacing = 30 * time.Second

var ErrTooFewPoints = errors.New("route needs at least two points")

var nowFn = time.Now

type Route struct {
	Points []tracking.Sample
}

// GenerateRoute splits the point budget evenly across the depot->pickup and
// pickup->dropoff legs, interpolating positions and assigning synthetic speed
// and heading. Timestamps run 30 seconds apart starting at call time.
func GenerateRoute(origin, pickup, dropoff geo.Point, pointCount int) (Route, error) {
	if pointCount < 2 {
		return Route{}, ErrTooFewPoints
	}

	start := nowFn()
	firstLeg := pointCount / 2
	secondLeg := pointCount - firstLeg

	points := make([]tracking.Sample, 0, pointCount)
	points = append(points, legPoints(origin, pickup, firstLeg, 25, 35)...)
	points = append(points, legPoints(pickup, dropoff, secondLeg, 30, 45)...)

	for i := range points {
		points[i].Timestamp = start.Add(time.Duration(i) * tickSpacing)
		if i+1 < len(points) {
			points[i].HeadingDeg = geo.BearingDegrees(
				geo.Point{Lat: points[i].Lat, Lng: points[i].Lng},
				geo.Point{Lat: points[i+1].Lat, Lng: points[i+1].Lng},
			)
		} else if i > 0 {
			points[i].HeadingDeg = points[i-1].HeadingDeg
		}
	}
	return Route{Points: points}, nil
}

func legPoints(from, to geo.Point, count int, minMph, maxMph float64) []tracking.Sample {
	points := make([]tracking.Sample, 0, count)
	for i := 0; i < count; i++ {
		t := 1.0
		if count > 1 {
			t = float64(i) / float64(count-1)
		}
		p := geo.Interpolate(from, to, t)
		points = append(points, tracking.Sample{
			Lat:      p.Lat,
			Lng:      p.Lng,
			SpeedMph: minMph + rand.Float64()*(maxMph-minMph),
		})
	}
	return points
}

// Source walks a generated route one sample per call. Exhaustion is the
// normal end of a simulated trip, not an error.
type Source struct {
	route  Route
	cursor int
}

func NewSource(route Route) *Source {
	return &Source{route: route}
}

func (s *Source) Next() (tracking.Sample, bool) {
	if s.cursor >= len(s.route.Points) {
		return tracking.Sample{}, false
	}
	sample := s.route.Points[s.cursor]
	s.cursor++
	return sample, true
}
