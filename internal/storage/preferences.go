package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/example/transport-marketplace/internal/models"
)

// GeoFilter is the carrier's saved browse area.
type GeoFilter struct {
	Center   models.Coord `json:"center"`
	RadiusKm float64      `json:"radiusKm"`
}

func (g GeoFilter) Validate() error {
	var errs []error
	if !(g.Center.Lat >= -90 && g.Center.Lat <= 90) {
		errs = append(errs, fmt.Errorf("lat %v out of range", g.Center.Lat))
	}
	if !(g.Center.Lng >= -180 && g.Center.Lng <= 180) {
		errs = append(errs, fmt.Errorf("lng %v out of range", g.Center.Lng))
	}
	if !(g.RadiusKm > 0) || math.IsInf(g.RadiusKm, 0) {
		errs = append(errs, errors.New("radiusKm must be a positive finite number"))
	}
	return errors.Join(errs...)
}

// Preferences keeps per-client state: the gate flag and the geo filter.
type Preferences struct {
	kv KV
}

func NewPreferences(kv KV) *Preferences { return &Preferences{kv: kv} }

func authorizedKey(clientID string) string { return "client:" + clientID + ":site_authorized" }
func geoFilterKey(clientID string) string  { return "client:" + clientID + ":geo_filter" }

func (p *Preferences) Authorized(ctx context.Context, clientID string) (bool, error) {
	b, err := p.kv.Get(ctx, authorizedKey(clientID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(b) == "true", nil
}

func (p *Preferences) SetAuthorized(ctx context.Context, clientID string, ok bool) error {
	if !ok {
		return p.kv.Delete(ctx, authorizedKey(clientID))
	}
	return p.kv.Set(ctx, authorizedKey(clientID), []byte("true"))
}

// GeoFilter returns nil when the client has not saved one.
func (p *Preferences) GeoFilter(ctx context.Context, clientID string) (*GeoFilter, error) {
	b, err := p.kv.Get(ctx, geoFilterKey(clientID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g GeoFilter
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode geo filter: %w", err)
	}
	return &g, nil
}

func (p *Preferences) SetGeoFilter(ctx context.Context, clientID string, g GeoFilter) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, geoFilterKey(clientID), b)
}

func (p *Preferences) ClearGeoFilter(ctx context.Context, clientID string) error {
	return p.kv.Delete(ctx, geoFilterKey(clientID))
}
