package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.PlacesDebounce != 300*time.Millisecond || cfg.RedisGeoKey != "requests_geo" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReservationTTL != 30*time.Minute {
		t.Fatalf("unexpected reservation ttl %v", cfg.ReservationTTL)
	}
	if cfg.RedisAddr != "" || cfg.PGDSN != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("backends must be off by default: %+v", cfg)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000")
	t.Setenv("PLACES_DEBOUNCE", "150ms")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("RESERVATION_TTL", "5m")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers: %v", cfg.KafkaBrokers)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.PlacesDebounce != 150*time.Millisecond || !cfg.RunMigrations || cfg.LogLevel != "debug" || cfg.ReservationTTL != 5*time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("LOOKUP_CACHE_TTL", "0s")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_GROUP", "geo-2")
	t.Setenv("REDIS_GEO_KEY", "open_requests")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaGroup != "geo-2" || cfg.RedisGeoKey != "open_requests" || cfg.KafkaTopic != "marketplace-events" {
		t.Fatalf("unexpected consumer config: %+v", cfg)
	}

	t.Setenv("KAFKA_BROKERS", " , ")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected error for empty broker list")
	}
}
