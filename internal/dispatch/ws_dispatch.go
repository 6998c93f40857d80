package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/transport-marketplace/internal/models"
	"github.com/example/transport-marketplace/internal/observability"
)

// OfferMessage is pushed to passengers watching a request.
type OfferMessage struct {
	Type  string       `json:"type"`
	Offer models.Offer `json:"offer"`
}

// WSSession represents a connected passenger session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// WSRegistry holds passenger sessions grouped by the request they watch.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{}), logger: logger}
}

func (r *WSRegistry) Add(requestID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[requestID] == nil {
		r.sessions[requestID] = make(map[*WSSession]struct{})
	}
	r.sessions[requestID][s] = struct{}{}
	observability.WSWatchers.Inc()
	return s
}

func (r *WSRegistry) Remove(requestID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.sessions[requestID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	observability.WSWatchers.Dec()
	if len(set) == 0 {
		delete(r.sessions, requestID)
	}
}

func (r *WSRegistry) Watchers(requestID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[requestID])
}

// NotifyOffer sends the offer to every session watching its request.
// Sessions that fail to receive are dropped.
func (r *WSRegistry) NotifyOffer(offer models.Offer) error {
	r.mu.RLock()
	targets := make([]*WSSession, 0, len(r.sessions[offer.RequestID]))
	for s := range r.sessions[offer.RequestID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		return ErrNoSession
	}

	var errs []error
	for _, s := range targets {
		if err := s.Send(OfferMessage{Type: "offer", Offer: offer}); err != nil {
			r.logger.Warn("ws send failed", "request_id", offer.RequestID, "error", err)
			r.Remove(offer.RequestID, s)
			_ = s.conn.Close()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var ErrNoSession = errors.New("no ws session")
