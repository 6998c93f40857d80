package geo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/example/transport-marketplace/internal/models"
)

const earthRadiusKm = 6371.0

// Geo indexes request origins for radius lookups.
type Geo interface {
	Upsert(ctx context.Context, id string, p models.Coord) error
	Remove(ctx context.Context, id string) error
	Within(ctx context.Context, center models.Coord, radiusKm float64, limit int) ([]Hit, error)
}

type Hit struct {
	ID         string  `json:"id"`
	DistanceKm float64 `json:"distance_km"`
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(a, b models.Coord) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h just past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DistanceKm is HaversineKm rounded to the nearest whole kilometer.
func DistanceKm(a, b models.Coord) float64 {
	return math.Round(HaversineKm(a, b))
}

// RouteDistanceKm returns the rounded distance between two locations.
// ok is false when either end has no coordinates.
func RouteDistanceKm(from, to models.Location) (float64, bool) {
	a, ok := from.Point()
	if !ok {
		return 0, false
	}
	b, ok := to.Point()
	if !ok {
		return 0, false
	}
	return DistanceKm(a, b), true
}

// FormatDistance renders sub-kilometer distances in meters.
func FormatDistance(km float64) string {
	if m := math.Round(km * 1000); m < 1000 {
		return fmt.Sprintf("%d m", int(m))
	}
	return fmt.Sprintf("%d km", int(math.Round(km)))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

type Index struct {
	mu     sync.RWMutex
	points map[string]models.Coord
}

func NewIndex() *Index {
	return &Index{points: make(map[string]models.Coord)}
}

func (g *Index) Upsert(_ context.Context, id string, p models.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points[id] = p
	return nil
}

func (g *Index) Remove(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.points, id)
	return nil
}

// naive scan; fine for a few thousand requests
func (g *Index) Within(_ context.Context, center models.Coord, radiusKm float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hits := make([]Hit, 0, len(g.points))
	for id, p := range g.points {
		d := HaversineKm(center, p)
		if d <= radiusKm {
			hits = append(hits, Hit{ID: id, DistanceKm: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
