package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/transport-marketplace/internal/catalog"
	"github.com/example/transport-marketplace/internal/config"
	"github.com/example/transport-marketplace/internal/dispatch"
	"github.com/example/transport-marketplace/internal/geo"
	httpapi "github.com/example/transport-marketplace/internal/http"
	"github.com/example/transport-marketplace/internal/ingest"
	"github.com/example/transport-marketplace/internal/logging"
	"github.com/example/transport-marketplace/internal/marketplace"
	"github.com/example/transport-marketplace/internal/places"
	"github.com/example/transport-marketplace/internal/routing"
	"github.com/example/transport-marketplace/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("marketplace-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := catalog.DemoSeed(time.Now())

	var (
		kv    storage.KV
		index geo.Geo
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		kv = storage.NewRedisKV(rc, "marketplace:")
		index = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
		logger.Info("using redis state", "addr", cfg.RedisAddr, "geo_key", cfg.RedisGeoKey)
	} else {
		kv = storage.NewMemoryKV()
		index = geo.NewIndex()
	}

	offers, closeOffers := openOfferStore(ctx, cfg, seed, logger)
	defer closeOffers()

	var events ingest.Publisher = ingest.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		events = kp
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	market := &marketplace.Service{
		Catalog:      seed.Catalog(),
		Requests:     storage.NewRequestStore(kv, seed.Requests),
		Offers:       offers,
		Prefs:        storage.NewPreferences(kv),
		Geo:          index,
		Events:       events,
		Notify:       dispatch.Fanout{wsreg, &dispatch.LogNotifier{Logger: logger}},
		Logger:       logger,
		GatePassword: cfg.GatePassword,
		SessionTTL:   cfg.ReservationTTL,
	}
	indexOrigins(ctx, market, index, logger)

	var routeClient routing.Client
	if cfg.OSRMEndpoint != "" {
		routeClient = routing.NewOSRMClient(cfg.OSRMEndpoint)
	}

	api := httpapi.NewServer(httpapi.Options{
		Market:      market,
		Places:      places.NewService(places.NewPhotonClient(cfg.PlacesEndpoint), cfg.PlacesDebounce, cfg.LookupCacheTTL, logger),
		Routing:     routing.NewService(routeClient, cfg.LookupCacheTTL, logger),
		WSReg:       wsreg,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("transport marketplace listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// openOfferStore uses Postgres when PG_DSN is set and falls back to memory.
func openOfferStore(ctx context.Context, cfg config.ServerConfig, seed catalog.Seed, logger *slog.Logger) (storage.OfferStore, func()) {
	if cfg.PGDSN == "" {
		return storage.NewMemoryOfferStore(seed.Offers), func() {}
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if cfg.RunMigrations {
		if err := storage.Migrate(ctx, ps.DB(), "migrations", logger); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}
	if err := ps.SeedOffers(ctx, seed.Offers); err != nil {
		logger.Warn("seeding offers failed", "error", err)
	}
	return ps, func() { _ = ps.Close() }
}

// indexOrigins loads the origin of every open request into the geo index.
func indexOrigins(ctx context.Context, market *marketplace.Service, index geo.Geo, logger *slog.Logger) {
	reqs, err := market.Requests.List(ctx)
	if err != nil {
		logger.Warn("listing requests for geo index failed", "error", err)
		return
	}
	n := 0
	for _, r := range reqs {
		p, ok := r.From.Point()
		if !ok || !r.Status.AcceptsOffers() {
			continue
		}
		if err := index.Upsert(ctx, r.ID, p); err != nil {
			logger.Warn("geo index upsert failed", "request_id", r.ID, "error", err)
			continue
		}
		n++
	}
	logger.Info("geo index warmed", "requests", n)
}
