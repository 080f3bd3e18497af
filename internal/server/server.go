package server

import (
	"time"

	"backend-fairfieldcars/internal/auth"
	"backend-fairfieldcars/internal/booking"
	"backend-fairfieldcars/internal/config"
	"backend-fairfieldcars/internal/routing"
	"backend-fairfieldcars/internal/shared/geo"
	"backend-fairfieldcars/internal/simulate"
	"backend-fairfieldcars/internal/stream"
	"backend-fairfieldcars/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// fairfieldDepot is where simulated trips begin before heading to the pickup.
var fairfieldDepot = geo.Point{Lat: 41.1408, Lng: -73.2613}

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Tracker *tracking.Manager
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, notifier tracking.Notifier) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	planner := routing.NewClient(cfg, redisClient)

	factory := func(origin, pickup, dropoff geo.Point) (tracking.SampleSource, error) {
		route, err := simulate.GenerateRoute(origin, pickup, dropoff, cfg.RoutePointCount)
		if err != nil {
			return nil, err
		}
		return simulate.NewSource(route), nil
	}

	tracker := tracking.NewManager(tracking.ManagerConfig{
		Store:         tracking.NewSnapshotStore(db),
		Bookings:      booking.NewRepo(db),
		Planner:       planner,
		Hub:           hub,
		Notifier:      notifier,
		SourceFactory: factory,
		TickInterval:  time.Duration(cfg.TickIntervalSec) * time.Second,
		Depot:         fairfieldDepot,
	})

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Stream:  hub,
		Tracker: tracker,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracker, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
