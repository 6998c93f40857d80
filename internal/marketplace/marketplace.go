package marketplace

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/example/transport-marketplace/internal/catalog"
	"github.com/example/transport-marketplace/internal/dispatch"
	"github.com/example/transport-marketplace/internal/geo"
	"github.com/example/transport-marketplace/internal/ingest"
	"github.com/example/transport-marketplace/internal/models"
	"github.com/example/transport-marketplace/internal/observability"
	"github.com/example/transport-marketplace/internal/reservation"
	"github.com/example/transport-marketplace/internal/search"
	"github.com/example/transport-marketplace/internal/storage"
)

var (
	ErrNotFound  = storage.ErrNotFound
	ErrConflict  = storage.ErrConflict
	ErrInvalid   = storage.ErrInvalid
	ErrForbidden = errors.New("marketplace: wrong password")
)

const (
	defaultOfferValidity = 7 * 24 * time.Hour
	defaultSessionTTL    = 30 * time.Minute
)

// Service is the marketplace application layer: it owns request, offer and
// reservation workflows on top of the stores.
type Service struct {
	Catalog  *catalog.Catalog
	Requests *storage.RequestStore
	Offers   storage.OfferStore
	Prefs    *storage.Preferences
	Geo      geo.Geo
	Events   ingest.Publisher
	Notify   dispatch.Notifier
	Logger   *slog.Logger
	Now      func() time.Time

	// OfferValidity is applied to offers submitted without a deadline.
	OfferValidity time.Duration
	// GatePassword protects the site; empty disables the gate.
	GatePassword string
	// SessionTTL is how long an idle reservation is kept.
	SessionTTL time.Duration

	mu       sync.Mutex
	sessions *cache.Cache
}

type session struct {
	mu     sync.Mutex
	wizard reservation.Wizard
}

// Reservation is a wizard session as exposed to clients.
type Reservation struct {
	ID string `json:"id"`
	reservation.Wizard
}

type NearbyRequest struct {
	Request    models.TransportRequest `json:"request"`
	DistanceKm float64                 `json:"distanceKm"`
	Distance   string                  `json:"distance"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) publish(ctx context.Context, e ingest.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.logger().Warn("publish event failed", "type", e.Type, "request_id", e.RequestID, "error", err)
	}
}

// Browse lists requests with live offer counts and runs the filter pipeline.
// When q has no radius and the client saved a geo filter, that filter applies.
func (s *Service) Browse(ctx context.Context, clientID string, q search.Query) ([]models.TransportRequest, error) {
	all, err := s.Requests.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.Offers.CountByRequest(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].OfferCount = counts[all[i].ID]
	}
	if q.Radius == nil && clientID != "" && s.Prefs != nil {
		gf, err := s.Prefs.GeoFilter(ctx, clientID)
		if err != nil {
			s.logger().Warn("read geo filter failed", "client_id", clientID, "error", err)
		} else if gf != nil {
			q.Radius = &search.Radius{Center: gf.Center, RadiusKm: gf.RadiusKm}
		}
	}
	out := search.Apply(all, q)
	observability.BrowseResults.Observe(float64(len(out)))
	return out, nil
}

func (s *Service) CreateRequest(ctx context.Context, r models.TransportRequest) (models.TransportRequest, error) {
	created, err := s.Requests.Create(ctx, r)
	if err != nil {
		return models.TransportRequest{}, err
	}
	observability.RequestsCreated.Inc()

	ev := ingest.Event{Type: ingest.RequestCreated, RequestID: created.ID, At: created.CreatedAt}
	if p, ok := created.From.Point(); ok {
		ev.Origin = &p
		if s.Geo != nil {
			if err := s.Geo.Upsert(ctx, created.ID, p); err != nil {
				s.logger().Warn("geo index upsert failed", "request_id", created.ID, "error", err)
			}
		}
	}
	s.publish(ctx, ev)
	s.logger().Info("request created", "request_id", created.ID, "from", created.From.City, "to", created.To.City)
	return created, nil
}

// GetRequest returns a request and counts the view.
func (s *Service) GetRequest(ctx context.Context, id string) (models.TransportRequest, error) {
	r, err := s.Requests.IncrementViews(ctx, id)
	if err != nil {
		return models.TransportRequest{}, err
	}
	offers, err := s.Offers.ListByRequest(ctx, id)
	if err != nil {
		return models.TransportRequest{}, err
	}
	r.OfferCount = len(offers)
	return r, nil
}

// Nearby returns requests whose origin lies within radiusKm of center,
// closest first.
func (s *Service) Nearby(ctx context.Context, center models.Coord, radiusKm float64, limit int) ([]NearbyRequest, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be > 0", ErrInvalid)
	}
	if limit <= 0 {
		limit = 50
	}
	hits, err := s.Geo.Within(ctx, center, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	out := make([]NearbyRequest, 0, len(hits))
	for _, h := range hits {
		r, err := s.Requests.Get(ctx, h.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, NearbyRequest{Request: r, DistanceKm: h.DistanceKm, Distance: geo.FormatDistance(h.DistanceKm)})
	}
	return out, nil
}

// SubmitOffer records a carrier's bid on an open request and notifies the
// passengers watching it.
func (s *Service) SubmitOffer(ctx context.Context, o models.Offer) (models.Offer, error) {
	req, err := s.Requests.Get(ctx, o.RequestID)
	if err != nil {
		return models.Offer{}, err
	}
	if !req.Status.AcceptsOffers() {
		return models.Offer{}, fmt.Errorf("%w: request %s is %s", ErrConflict, req.ID, req.Status)
	}
	if _, err := s.Catalog.Carrier(o.CarrierID); err != nil {
		return models.Offer{}, fmt.Errorf("%w: unknown carrier %q", ErrInvalid, o.CarrierID)
	}
	if !s.Catalog.CarrierOwnsVehicle(o.CarrierID, o.VehicleID) {
		return models.Offer{}, fmt.Errorf("%w: vehicle %q does not belong to carrier %q", ErrInvalid, o.VehicleID, o.CarrierID)
	}

	now := s.now().UTC()
	o.ID = uuid.NewString()
	o.Status = models.OfferPending
	o.CreatedAt = now
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	if o.Currency == "" {
		o.Currency = "PLN"
		if req.Budget != nil && req.Budget.Currency != "" {
			o.Currency = req.Budget.Currency
		}
	}
	if o.ValidUntil.IsZero() {
		validity := s.OfferValidity
		if validity <= 0 {
			validity = defaultOfferValidity
		}
		o.ValidUntil = now.Add(validity)
	}
	if o.IncludedServices == nil {
		o.IncludedServices = []string{}
	}
	if err := o.Validate(); err != nil {
		return models.Offer{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !o.ValidUntil.After(now) {
		return models.Offer{}, fmt.Errorf("%w: validUntil is in the past", ErrInvalid)
	}

	if err := s.Offers.Save(ctx, o); err != nil {
		return models.Offer{}, err
	}
	if req.Status == models.StatusActive {
		if _, err := s.Requests.UpdateStatus(ctx, req.ID, models.StatusOffersReceived); err != nil {
			s.logger().Warn("mark offers received failed", "request_id", req.ID, "error", err)
		}
	}
	observability.OffersSubmitted.Inc()
	s.publish(ctx, ingest.Event{Type: ingest.OfferSubmitted, RequestID: o.RequestID, OfferID: o.ID, CarrierID: o.CarrierID, At: now})
	if s.Notify != nil {
		if err := s.Notify.NotifyOffer(o); err != nil && !errors.Is(err, dispatch.ErrNoSession) {
			s.logger().Warn("offer notification failed", "offer_id", o.ID, "error", err)
		}
	}
	return o, nil
}

// OffersForRequest returns the request's offers ranked by price.
func (s *Service) OffersForRequest(ctx context.Context, requestID string) ([]reservation.RankedOffer, error) {
	offers, err := s.currentOffers(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return reservation.Rank(offers), nil
}

func (s *Service) currentOffers(ctx context.Context, requestID string) ([]models.Offer, error) {
	if _, err := s.Requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	offers, err := s.Offers.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.withEffectiveStatus(offers), nil
}

func (s *Service) withEffectiveStatus(offers []models.Offer) []models.Offer {
	now := s.now()
	for i := range offers {
		offers[i].Status = offers[i].EffectiveStatus(now)
	}
	return offers
}

func (s *Service) Offer(ctx context.Context, id string) (models.Offer, error) {
	o, err := s.Offers.Get(ctx, id)
	if err != nil {
		return models.Offer{}, err
	}
	o.Status = o.EffectiveStatus(s.now())
	return o, nil
}

func (s *Service) OffersByCarrier(ctx context.Context, carrierID string) ([]models.Offer, error) {
	if _, err := s.Catalog.Carrier(carrierID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	offers, err := s.Offers.ListByCarrier(ctx, carrierID)
	if err != nil {
		return nil, err
	}
	return s.withEffectiveStatus(offers), nil
}

// Unlock sets the client's authorized flag when password matches.
func (s *Service) Unlock(ctx context.Context, clientID, password string) error {
	if s.GatePassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(s.GatePassword)) != 1 {
		return ErrForbidden
	}
	return s.Prefs.SetAuthorized(ctx, clientID, true)
}

// Unlocked reports whether the client passed the gate. With no gate
// configured every client is unlocked.
func (s *Service) Unlocked(ctx context.Context, clientID string) (bool, error) {
	if s.GatePassword == "" {
		return true, nil
	}
	return s.Prefs.Authorized(ctx, clientID)
}
