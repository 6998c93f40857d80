package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/example/transport-marketplace/internal/ingest"
	"github.com/example/transport-marketplace/internal/models"
	"github.com/example/transport-marketplace/internal/observability"
	"github.com/example/transport-marketplace/internal/reservation"
)

// StartReservation opens a wizard over the request's current offers.
func (s *Service) StartReservation(ctx context.Context, requestID string) (Reservation, error) {
	offers, err := s.currentOffers(ctx, requestID)
	if err != nil {
		return Reservation{}, err
	}
	id := uuid.NewString()
	w := reservation.New(requestID, offers)

	s.sessionCache().Set(id, &session{wizard: w}, cache.DefaultExpiration)
	return Reservation{ID: id, Wizard: w}, nil
}

// sessionCache holds wizards by reservation id; idle ones expire after
// SessionTTL.
func (s *Service) sessionCache() *cache.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		ttl := s.SessionTTL
		if ttl <= 0 {
			ttl = defaultSessionTTL
		}
		s.sessions = cache.New(ttl, 2*ttl)
	}
	return s.sessions
}

// session looks up a live reservation and extends its expiry.
func (s *Service) session(id string) (*session, error) {
	c := s.sessionCache()
	v, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, id)
	}
	sess := v.(*session)
	c.Set(id, sess, cache.DefaultExpiration)
	return sess, nil
}

func (s *Service) Reservation(_ context.Context, id string) (Reservation, error) {
	sess, err := s.session(id)
	if err != nil {
		return Reservation{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return Reservation{ID: id, Wizard: sess.wizard}, nil
}

// Act applies one wizard action. Confirming accepts the selected offer in
// the offer store first; if another reservation got there first the error
// wraps ErrConflict and the wizard stays where it was.
func (s *Service) Act(ctx context.Context, id string, a reservation.Action) (Reservation, error) {
	sess, err := s.session(id)
	if err != nil {
		return Reservation{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cur := sess.wizard
	next, err := cur.Apply(a)
	if err != nil {
		observability.ReservationActions.WithLabelValues(string(a.Type), "blocked").Inc()
		return Reservation{ID: id, Wizard: cur}, err
	}

	if a.Type == reservation.ActConfirm {
		if err := s.accept(ctx, next); err != nil {
			observability.ReservationActions.WithLabelValues(string(a.Type), "conflict").Inc()
			return Reservation{ID: id, Wizard: cur}, err
		}
	}

	sess.wizard = next
	observability.ReservationActions.WithLabelValues(string(a.Type), "ok").Inc()
	return Reservation{ID: id, Wizard: next}, nil
}

func (s *Service) accept(ctx context.Context, w reservation.Wizard) error {
	now := s.now().UTC()
	accepted, err := s.Offers.Accept(ctx, w.SelectedOfferID, now)
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %w", reservation.ErrOfferUnavailable, err)
		}
		return err
	}
	if _, err := s.Requests.UpdateStatus(ctx, w.RequestID, models.StatusBooked); err != nil {
		s.logger().Error("mark request booked failed", "request_id", w.RequestID, "offer_id", accepted.ID, "error", err)
	}
	if s.Geo != nil {
		if err := s.Geo.Remove(ctx, w.RequestID); err != nil {
			s.logger().Warn("geo index remove failed", "request_id", w.RequestID, "error", err)
		}
	}
	observability.OffersAccepted.Inc()
	s.publish(ctx, ingest.Event{Type: ingest.OfferAccepted, RequestID: w.RequestID, OfferID: accepted.ID, CarrierID: accepted.CarrierID, At: now})
	s.publish(ctx, ingest.Event{Type: ingest.ReservationConfirmed, RequestID: w.RequestID, OfferID: accepted.ID, Method: w.Method, At: now})
	s.logger().Info("reservation confirmed", "request_id", w.RequestID, "offer_id", accepted.ID, "method", w.Method)
	return nil
}
