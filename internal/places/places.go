package places

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/example/transport-marketplace/internal/observability"
)

// ErrSuperseded is returned to a lookup that was replaced by a newer one from
// the same client before it completed.
var ErrSuperseded = errors.New("places: lookup superseded")

type Client interface {
	Suggest(ctx context.Context, query string) ([]Suggestion, error)
}

// Service debounces autocomplete lookups per client and caches the results.
type Service struct {
	client   Client
	debounce time.Duration
	cache    *cache.Cache
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*lookup
}

type lookup struct {
	cancel context.CancelFunc
}

func NewService(client Client, debounce, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		debounce: debounce,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
		inflight: make(map[string]*lookup),
	}
}

// Lookup waits out the debounce window and then queries upstream. A newer
// Lookup for the same clientID cancels this one, which then returns
// ErrSuperseded. Upstream failures yield an empty list.
func (s *Service) Lookup(ctx context.Context, clientID, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLen {
		return []Suggestion{}, nil
	}
	key := strings.ToLower(query)
	if v, ok := s.cache.Get(key); ok {
		return v.([]Suggestion), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l := s.begin(clientID, cancel)
	defer s.end(clientID, l)

	if s.debounce > 0 {
		t := time.NewTimer(s.debounce)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ErrSuperseded
		case <-t.C:
		}
	}

	res, err := s.client.Suggest(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrSuperseded
		}
		observability.LookupFailures.WithLabelValues("places").Inc()
		s.logger.Warn("place lookup failed", "query", query, "error", err)
		return []Suggestion{}, nil
	}
	s.cache.SetDefault(key, res)
	return res, nil
}

func (s *Service) begin(clientID string, cancel context.CancelFunc) *lookup {
	l := &lookup{cancel: cancel}
	if clientID == "" {
		return l
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[clientID]; ok {
		prev.cancel()
	}
	s.inflight[clientID] = l
	return l
}

func (s *Service) end(clientID string, l *lookup) {
	if clientID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[clientID] == l {
		delete(s.inflight, clientID)
	}
}
