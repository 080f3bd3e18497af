package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.TickIntervalSec != 30 {
		t.Fatalf("expected 30s default tick interval")
	}
	if cfg.RoutePointCount != 20 {
		t.Fatalf("expected default route point count")
	}
	if cfg.TrafficClearMinMph != 35.0 || cfg.TrafficHeavyMaxMph != 20.0 {
		t.Fatalf("unexpected default traffic thresholds")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AMQP_URL", "amqp://rabbit:5672")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TICK_INTERVAL_SEC", "5")
	t.Setenv("TRAFFIC_HEAVY_MAX_MPH", "15")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.AMQPURL != "amqp://rabbit:5672" {
		t.Fatalf("expected override amqp")
	}
	if cfg.TickIntervalSec != 5 {
		t.Fatalf("expected override tick interval")
	}
	if cfg.TrafficHeavyMaxMph != 15 {
		t.Fatalf("expected override heavy threshold")
	}
}
