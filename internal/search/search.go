// Package search composes the carrier-facing browse view: text, distance,
// budget and radius filters over transport requests, followed by a sort.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/transport-marketplace/internal/geo"
	"github.com/example/transport-marketplace/internal/models"
)

type SortKey string

const (
	SortNewest        SortKey = "newest"
	SortOldest        SortKey = "oldest"
	SortNearest       SortKey = "nearest"
	SortFarthest      SortKey = "farthest"
	SortCheapest      SortKey = "cheapest"
	SortMostExpensive SortKey = "expensive"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortNearest, SortFarthest, SortCheapest, SortMostExpensive:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Range is an inclusive numeric range; a nil bound is open.
type Range struct {
	Min *float64
	Max *float64
}

func (r Range) IsZero() bool { return r.Min == nil && r.Max == nil }

func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Radius restricts results to requests whose origin lies within RadiusKm of Center.
type Radius struct {
	Center   models.Coord `json:"center"`
	RadiusKm float64      `json:"radiusKm"`
}

type Query struct {
	Text     string
	Distance Range
	Budget   Range
	Radius   *Radius
	Sort     SortKey
}

// Apply filters and orders requests. The input slice is not modified.
//
// Missing data is handled per filter:
//   - Distance and Budget ranges let requests without coordinates or a budget
//     ceiling through.
//   - Radius drops requests without an origin point.
//   - Distance and budget sorts place requests without the key last in either
//     direction, keeping their relative order.
func Apply(requests []models.TransportRequest, q Query) []models.TransportRequest {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]models.TransportRequest, 0, len(requests))
	for _, r := range requests {
		if !matchesText(r, text) || !matchesDistance(r, q.Distance) || !matchesBudget(r, q.Budget) || !matchesRadius(r, q.Radius) {
			continue
		}
		out = append(out, r)
	}
	sortRequests(out, q.Sort)
	return out
}

func matchesText(r models.TransportRequest, text string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.From.City), text) ||
		strings.Contains(strings.ToLower(r.To.City), text)
}

func matchesDistance(r models.TransportRequest, rng Range) bool {
	if rng.IsZero() {
		return true
	}
	d, ok := geo.RouteDistanceKm(r.From, r.To)
	if !ok {
		return true
	}
	return rng.Contains(d)
}

func matchesBudget(r models.TransportRequest, rng Range) bool {
	if rng.IsZero() {
		return true
	}
	max, ok := r.Budget.Ceiling()
	if !ok {
		return true
	}
	return rng.Contains(max)
}

func matchesRadius(r models.TransportRequest, rad *Radius) bool {
	if rad == nil {
		return true
	}
	p, ok := r.From.Point()
	if !ok {
		return false
	}
	return geo.HaversineKm(rad.Center, p) <= rad.RadiusKm
}

func sortRequests(rs []models.TransportRequest, key SortKey) {
	switch key {
	case SortOldest:
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
	case SortNearest, SortFarthest:
		sortByOptional(rs, func(r models.TransportRequest) (float64, bool) {
			return geo.RouteDistanceKm(r.From, r.To)
		}, key == SortFarthest)
	case SortCheapest, SortMostExpensive:
		sortByOptional(rs, func(r models.TransportRequest) (float64, bool) {
			return r.Budget.Ceiling()
		}, key == SortMostExpensive)
	default:
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
	}
}

func sortByOptional(rs []models.TransportRequest, key func(models.TransportRequest) (float64, bool), desc bool) {
	type keyed struct {
		r  models.TransportRequest
		v  float64
		ok bool
	}
	ks := make([]keyed, len(rs))
	for i, r := range rs {
		v, ok := key(r)
		ks[i] = keyed{r, v, ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok || a.v == b.v {
			return false
		}
		if desc {
			return a.v > b.v
		}
		return a.v < b.v
	})
	for i := range ks {
		rs[i] = ks[i].r
	}
}
