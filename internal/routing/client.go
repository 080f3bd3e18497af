package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"backend-fairfieldcars/internal/config"
	"backend-fairfieldcars/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

type Traffic string

const (
	TrafficClear    Traffic = "clear"
	TrafficModerate Traffic = "moderate"
	TrafficHeavy    Traffic = "heavy"
)

var (
	ErrGeocode   = errors.New("geocode request failed")
	ErrRouting   = errors.New("routing request failed")
	ErrThrottled = errors.New("routing provider throttled")
)

// RouteInfo is the raw provider answer for one origin/destination pair.
type RouteInfo struct {
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes float64 `json:"duration_minutes"`
	Traffic         Traffic `json:"traffic_condition"`
}

// ETAInfo is RouteInfo anchored to an absolute arrival time.
type ETAInfo struct {
	EstimatedArrival time.Time `json:"estimated_arrival"`
	DistanceMiles    float64   `json:"distance_miles"`
	DurationMinutes  float64   `json:"duration_minutes"`
	Traffic          Traffic   `json:"traffic_condition"`
}

const (
	geocodeCacheTTL = 24 * time.Hour
	throttleBackoff = 30 * time.Second
)

// Client calls the external geocoding/routing provider. It keeps no session
// state and is safe for concurrent use across sessions.
type Client struct {
	http        *http.Client
	geocodeURL  string
	routeURL    string
	clearMinMph float64
	heavyMaxMph float64
	redis       *redis.Client

	memo sync.Map // address -> geo.Point

	mu           sync.Mutex
	backoffUntil time.Time
}

func NewClient(cfg config.Config, redisClient *redis.Client) *Client {
	return &Client{
		http:        &http.Client{Timeout: 10 * time.Second},
		geocodeURL:  cfg.GeocodeBaseURL,
		routeURL:    cfg.RoutingBaseURL,
		clearMinMph: cfg.TrafficClearMinMph,
		heavyMaxMph: cfg.TrafficHeavyMaxMph,
		redis:       redisClient,
	}
}

// ResolveCoordinates geocodes an address, memoizing results locally and in
// redis so repeated bookings to the same airports skip the provider.
func (c *Client) ResolveCoordinates(ctx context.Context, address string) (geo.Point, error) {
	if cached, ok := c.memo.Load(address); ok {
		return cached.(geo.Point), nil
	}
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, geocodeKey(address)).Bytes()
		if err == nil {
			var p geo.Point
			if json.Unmarshal(raw, &p) == nil {
				c.memo.Store(address, p)
				return p, nil
			}
		}
	}

	u := fmt.Sprintf("%s?address=%s", c.geocodeURL, url.QueryEscape(address))
	var p geo.Point
	if err := c.getJSON(ctx, u, &p); err != nil {
		return geo.Point{}, fmt.Errorf("%w: %s: %v", ErrGeocode, address, err)
	}

	c.memo.Store(address, p)
	if c.redis != nil {
		if raw, err := json.Marshal(p); err == nil {
			c.redis.Set(ctx, geocodeKey(address), raw, geocodeCacheTTL)
		}
	}
	return p, nil
}

// ComputeRoute asks the provider for distance and duration between two points
// and classifies traffic from the implied average speed.
func (c *Client) ComputeRoute(ctx context.Context, origin, dest geo.Point) (RouteInfo, error) {
	if until := c.throttledUntil(); time.Now().Before(until) {
		return RouteInfo{}, fmt.Errorf("%w until %s", ErrThrottled, until.Format(time.RFC3339))
	}

	u := fmt.Sprintf("%s?origin_lat=%f&origin_lng=%f&dest_lat=%f&dest_lng=%f",
		c.routeURL, origin.Lat, origin.Lng, dest.Lat, dest.Lng)

	var info RouteInfo
	if err := c.getJSON(ctx, u, &info); err != nil {
		if errors.Is(err, ErrThrottled) {
			return RouteInfo{}, err
		}
		return RouteInfo{}, fmt.Errorf("%w: %v", ErrRouting, err)
	}
	info.Traffic = c.classify(info.DistanceMiles, info.DurationMinutes)
	return info, nil
}

// CalculateETA composes geocode-free routing into an absolute arrival time.
// Callers treat any error as "keep the previous estimate".
func (c *Client) CalculateETA(ctx context.Context, from, dest geo.Point) (ETAInfo, error) {
	info, err := c.ComputeRoute(ctx, from, dest)
	if err != nil {
		return ETAInfo{}, err
	}
	return ETAInfo{
		EstimatedArrival: time.Now().Add(time.Duration(info.DurationMinutes * float64(time.Minute))),
		DistanceMiles:    info.DistanceMiles,
		DurationMinutes:  info.DurationMinutes,
		Traffic:          info.Traffic,
	}, nil
}

func (c *Client) classify(distanceMiles, durationMinutes float64) Traffic {
	if durationMinutes <= 0 {
		return TrafficClear
	}
	mph := distanceMiles / (durationMinutes / 60)
	switch {
	case mph > c.clearMinMph:
		return TrafficClear
	case mph < c.heavyMaxMph:
		return TrafficHeavy
	default:
		return TrafficModerate
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.mu.Lock()
		c.backoffUntil = time.Now().Add(throttleBackoff)
		c.mu.Unlock()
		return ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) throttledUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoffUntil
}

func geocodeKey(address string) string {
	return "geocode:" + address
}
