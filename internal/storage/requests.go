package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/transport-marketplace/internal/models"
)

// RequestsKey holds the JSON array of passenger-created requests.
const RequestsKey = "transport_requests"

// RequestStore merges the static seed requests with the ones persisted in KV.
// A persisted request with a seed id replaces the seed entry, which is how
// status and view changes to seeded requests are kept.
type RequestStore struct {
	kv   KV
	seed []models.TransportRequest
	// serializes read-modify-write of the persisted array in this process
	mu  sync.Mutex
	now func() time.Time
}

func NewRequestStore(kv KV, seed []models.TransportRequest) *RequestStore {
	return &RequestStore{kv: kv, seed: seed, now: time.Now}
}

func (s *RequestStore) persisted(ctx context.Context) ([]models.TransportRequest, error) {
	b, err := s.kv.Get(ctx, RequestsKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []models.TransportRequest
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", RequestsKey, err)
	}
	return out, nil
}

func (s *RequestStore) save(ctx context.Context, rs []models.TransportRequest) error {
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, RequestsKey, b)
}

// List returns seed and persisted requests, seed order first.
func (s *RequestStore) List(ctx context.Context) ([]models.TransportRequest, error) {
	stored, err := s.persisted(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(stored))
	for i, r := range stored {
		byID[r.ID] = i
	}
	out := make([]models.TransportRequest, 0, len(s.seed)+len(stored))
	used := make(map[string]bool, len(stored))
	for _, r := range s.seed {
		if i, ok := byID[r.ID]; ok {
			r = stored[i]
			used[r.ID] = true
		}
		out = append(out, r)
	}
	for _, r := range stored {
		if !used[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RequestStore) Get(ctx context.Context, id string) (models.TransportRequest, error) {
	all, err := s.List(ctx)
	if err != nil {
		return models.TransportRequest{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return models.TransportRequest{}, ErrNotFound
}

// Create validates r, assigns id, status and timestamps, and persists it.
func (s *RequestStore) Create(ctx context.Context, r models.TransportRequest) (models.TransportRequest, error) {
	r.From.City = strings.TrimSpace(r.From.City)
	r.To.City = strings.TrimSpace(r.To.City)
	if err := r.Validate(); err != nil {
		return models.TransportRequest{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	now := s.now().UTC()
	r.ID = uuid.NewString()
	r.Status = models.StatusActive
	r.ViewCount = 0
	r.OfferCount = 0
	r.CreatedAt = now
	r.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.persisted(ctx)
	if err != nil {
		return models.TransportRequest{}, err
	}
	if err := s.save(ctx, append(stored, r)); err != nil {
		return models.TransportRequest{}, err
	}
	return r, nil
}

// UpdateStatus moves a request along its lifecycle.
func (s *RequestStore) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) (models.TransportRequest, error) {
	return s.update(ctx, id, func(r *models.TransportRequest) error {
		if !models.CanTransition(r.Status, status) {
			return fmt.Errorf("%w: request %s cannot move from %s to %s", ErrConflict, id, r.Status, status)
		}
		r.Status = status
		return nil
	})
}

func (s *RequestStore) IncrementViews(ctx context.Context, id string) (models.TransportRequest, error) {
	return s.update(ctx, id, func(r *models.TransportRequest) error {
		r.ViewCount++
		return nil
	})
}

func (s *RequestStore) update(ctx context.Context, id string, fn func(*models.TransportRequest) error) (models.TransportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.persisted(ctx)
	if err != nil {
		return models.TransportRequest{}, err
	}
	idx := -1
	for i := range stored {
		if stored[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		for _, r := range s.seed {
			if r.ID == id {
				stored = append(stored, r)
				idx = len(stored) - 1
				break
			}
		}
	}
	if idx < 0 {
		return models.TransportRequest{}, ErrNotFound
	}

	r := stored[idx]
	if err := fn(&r); err != nil {
		return models.TransportRequest{}, err
	}
	r.UpdatedAt = s.now().UTC()
	stored[idx] = r
	if err := s.save(ctx, stored); err != nil {
		return models.TransportRequest{}, err
	}
	return r, nil
}
