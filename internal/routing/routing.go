package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/example/transport-marketplace/internal/geo"
	"github.com/example/transport-marketplace/internal/models"
	"github.com/example/transport-marketplace/internal/observability"
)

var ErrTooFewPoints = errors.New("routing: at least two waypoints are required")

// Client is the interface used by the service to look up routes.
type Client interface {
	Route(ctx context.Context, waypoints []models.Coord) (Route, error)
}

type Route struct {
	Geometry    []models.Coord `json:"geometry"`
	DistanceKm  float64        `json:"distanceKm"`
	DurationMin float64        `json:"durationMin,omitempty"`
	// Approximate is set when the route is a straight-line fallback.
	Approximate bool `json:"approximate"`
}

// Service wraps a routing client with a TTL cache and a straight-line fallback.
type Service struct {
	client Client
	cache  *cache.Cache
	logger *slog.Logger
}

func NewService(client Client, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, cache: cache.New(ttl, 2*ttl), logger: logger}
}

// Route never fails for two or more waypoints: lookup errors degrade to
// StraightLine.
func (s *Service) Route(ctx context.Context, waypoints []models.Coord) (Route, error) {
	if len(waypoints) < 2 {
		return Route{}, ErrTooFewPoints
	}
	key := cacheKey(waypoints)
	if v, ok := s.cache.Get(key); ok {
		return v.(Route), nil
	}
	if s.client == nil {
		return StraightLine(waypoints), nil
	}
	r, err := s.client.Route(ctx, waypoints)
	if err != nil {
		observability.LookupFailures.WithLabelValues("routing").Inc()
		s.logger.Warn("route lookup failed, using straight line", "error", err, "waypoints", len(waypoints))
		return StraightLine(waypoints), nil
	}
	s.cache.SetDefault(key, r)
	return r, nil
}

// StraightLine connects the waypoints directly.
func StraightLine(waypoints []models.Coord) Route {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += geo.HaversineKm(waypoints[i-1], waypoints[i])
	}
	geom := make([]models.Coord, len(waypoints))
	copy(geom, waypoints)
	return Route{Geometry: geom, DistanceKm: total, Approximate: true}
}

func cacheKey(waypoints []models.Coord) string {
	parts := make([]string, len(waypoints))
	for i, p := range waypoints {
		parts[i] = fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
	}
	return strings.Join(parts, ";")
}
