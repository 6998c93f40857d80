package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/transport-marketplace/internal/config"
	"github.com/example/transport-marketplace/internal/geo"
	"github.com/example/transport-marketplace/internal/ingest"
	"github.com/example/transport-marketplace/internal/logging"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total marketplace events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

var errInvalidEvent = errors.New("invalid event")

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("marketplace-geo-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		err = handleMessage(ctx, radapter, cfg.RedisGeoKey, m.Value)
		switch {
		case errors.Is(err, errInvalidEvent):
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
		case err != nil:
			redisErrors.Inc()
			logger.Error("redis update failed", "key", string(m.Key), "error", err)
		}
	}
}

// handleMessage keeps the geo index in step with request events: new requests
// with an origin are added, confirmed reservations remove the request.
func handleMessage(ctx context.Context, rc RedisUpdater, geoKey string, raw []byte) error {
	var e ingest.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("%w: %w", errInvalidEvent, err)
	}
	if e.RequestID == "" {
		return fmt.Errorf("%w: missing request_id", errInvalidEvent)
	}
	switch e.Type {
	case ingest.RequestCreated:
		if e.Origin == nil {
			return nil
		}
		if err := updateRedisWithRetry(ctx, rc, geoKey, e, 3, 200*time.Millisecond); err != nil {
			return err
		}
	case ingest.ReservationConfirmed:
		if err := removeWithRetry(ctx, rc, geoKey, e.RequestID, 3, 200*time.Millisecond); err != nil {
			return err
		}
	default:
		return nil
	}
	redisUpdates.Inc()
	return nil
}

// RedisUpdater defines the small subset of redis operations we need for tests and production.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	ZRem(ctx context.Context, key string, member string) error
	Del(ctx context.Context, key string) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *redisAdapter) ZRem(ctx context.Context, key string, member string) error {
	return r.c.ZRem(ctx, key, member).Err()
}

func (r *redisAdapter) Del(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

// updateRedisWithRetry indexes the request origin and its metadata with retry/backoff.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, geoKey string, e ingest.Event, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error {
		if err := rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: e.Origin.Lng, Latitude: e.Origin.Lat, Name: e.RequestID}); err != nil {
			return err
		}
		return rc.HSet(ctx, geo.MetaKey(e.RequestID), map[string]interface{}{"updated": e.At.Unix(), "source": "consumer"})
	})
}

func removeWithRetry(ctx context.Context, rc RedisUpdater, geoKey, requestID string, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error {
		if err := rc.ZRem(ctx, geoKey, requestID); err != nil {
			return err
		}
		return rc.Del(ctx, geo.MetaKey(requestID))
	})
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
