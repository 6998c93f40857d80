package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/transport-marketplace/internal/models"
)

// OfferStore persists carrier offers. Accept is the only way an offer
// becomes accepted and must hold at most once per offer and per request.
type OfferStore interface {
	Save(ctx context.Context, o models.Offer) error
	Get(ctx context.Context, id string) (models.Offer, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.Offer, error)
	ListByCarrier(ctx context.Context, carrierID string) ([]models.Offer, error)
	CountByRequest(ctx context.Context) (map[string]int, error)
	Accept(ctx context.Context, id string, now time.Time) (models.Offer, error)
}

type MemoryOfferStore struct {
	mu     sync.RWMutex
	offers map[string]models.Offer
}

func NewMemoryOfferStore(seed []models.Offer) *MemoryOfferStore {
	m := &MemoryOfferStore{offers: make(map[string]models.Offer, len(seed))}
	for _, o := range seed {
		m.offers[o.ID] = o
	}
	return m
}

func (m *MemoryOfferStore) Save(_ context.Context, o models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o
	return nil
}

func (m *MemoryOfferStore) Get(_ context.Context, id string) (models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return models.Offer{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryOfferStore) ListByRequest(_ context.Context, requestID string) ([]models.Offer, error) {
	return m.filter(func(o models.Offer) bool { return o.RequestID == requestID }), nil
}

func (m *MemoryOfferStore) ListByCarrier(_ context.Context, carrierID string) ([]models.Offer, error) {
	return m.filter(func(o models.Offer) bool { return o.CarrierID == carrierID }), nil
}

func (m *MemoryOfferStore) filter(keep func(models.Offer) bool) []models.Offer {
	m.mu.RLock()
	out := []models.Offer{}
	for _, o := range m.offers {
		if keep(o) {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryOfferStore) CountByRequest(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, o := range m.offers {
		out[o.RequestID]++
	}
	return out, nil
}

// Accept flips a pending offer to accepted and rejects its pending siblings.
// It fails with ErrConflict if the offer is not pending (or has expired) or
// if another offer for the same request was accepted first.
func (m *MemoryOfferStore) Accept(_ context.Context, id string, now time.Time) (models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.offers[id]
	if !ok {
		return models.Offer{}, ErrNotFound
	}
	if st := o.EffectiveStatus(now); st != models.OfferPending {
		return models.Offer{}, fmt.Errorf("%w: offer %s is %s", ErrConflict, id, st)
	}
	for _, other := range m.offers {
		if other.RequestID == o.RequestID && other.Status == models.OfferAccepted {
			return models.Offer{}, fmt.Errorf("%w: request %s already accepted offer %s", ErrConflict, o.RequestID, other.ID)
		}
	}
	for oid, other := range m.offers {
		if other.RequestID == o.RequestID && oid != id && other.Status == models.OfferPending {
			other.Status = models.OfferRejected
			m.offers[oid] = other
		}
	}
	o.Status = models.OfferAccepted
	m.offers[id] = o
	return o, nil
}
