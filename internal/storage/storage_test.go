package storage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/transport-marketplace/internal/models"
)

func f64(v float64) *float64 { return &v }

func seedRequests() []models.TransportRequest {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return []models.TransportRequest{
		{ID: "seed-1", UserID: "u1", Status: models.StatusActive, From: models.Location{City: "Kraków"}, To: models.Location{City: "Warszawa"}, DepartureDate: now.Add(48 * time.Hour), PassengerCount: 10, CreatedAt: now},
		{ID: "seed-2", UserID: "u1", Status: models.StatusActive, From: models.Location{City: "Gdańsk"}, To: models.Location{City: "Sopot"}, DepartureDate: now.Add(72 * time.Hour), PassengerCount: 5, CreatedAt: now},
	}
}

func newRequest() models.TransportRequest {
	return models.TransportRequest{
		UserID:         "u2",
		From:           models.NewLocation(" Kraków ", 50.06, 19.94),
		To:             models.Location{City: "Zakopane"},
		DepartureDate:  time.Date(2026, 12, 20, 6, 0, 0, 0, time.UTC),
		PassengerCount: 25,
		Budget:         &models.Budget{Max: f64(3000), Currency: "PLN"},
	}
}

func TestRequestStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewRequestStore(kv, seedRequests())

	created, err := s.Create(ctx, newRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Status != models.StatusActive || created.CreatedAt.IsZero() || created.From.City != "Kraków" {
		t.Fatalf("unexpected created request: %+v", created)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "seed-1" || all[2].ID != created.ID {
		t.Fatalf("unexpected list: %+v", all)
	}

	// a second store over the same KV sees the persisted request
	again := NewRequestStore(kv, seedRequests())
	got, err := again.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) || !got.DepartureDate.Equal(created.DepartureDate) {
		t.Fatalf("dates did not survive persistence: %+v", got)
	}
	if max, _ := got.Budget.Ceiling(); max != 3000 {
		t.Fatalf("budget lost: %+v", got.Budget)
	}
}

func TestRequestStorePersistedLayout(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewRequestStore(kv, nil)
	if _, err := s.Create(ctx, newRequest()); err != nil {
		t.Fatal(err)
	}
	b, err := kv.Get(ctx, RequestsKey)
	if err != nil {
		t.Fatalf("expected persisted array: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil || len(raw) != 1 {
		t.Fatalf("expected JSON array with one entry: %v %s", err, b)
	}
	for _, k := range []string{"departureDate", "createdAt", "updatedAt", "passengerCount", "from", "to"} {
		if _, ok := raw[0][k]; !ok {
			t.Fatalf("missing key %s in %s", k, b)
		}
	}
}

func TestRequestStoreValidation(t *testing.T) {
	s := NewRequestStore(NewMemoryKV(), nil)
	r := newRequest()
	r.Budget = &models.Budget{Min: f64(5000), Max: f64(1000)}
	if _, err := s.Create(context.Background(), r); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestRequestStoreUpdateSeedAndLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewRequestStore(NewMemoryKV(), seedRequests())

	if _, err := s.IncrementViews(ctx, "seed-2"); err != nil {
		t.Fatal(err)
	}
	r, err := s.UpdateStatus(ctx, "seed-2", models.StatusOffersReceived)
	if err != nil {
		t.Fatal(err)
	}
	if r.ViewCount != 1 || r.Status != models.StatusOffersReceived {
		t.Fatalf("unexpected update: %+v", r)
	}
	all, _ := s.List(ctx)
	if len(all) != 2 || all[1].ID != "seed-2" || all[1].Status != models.StatusOffersReceived {
		t.Fatalf("seed override not applied in place: %+v", all)
	}
	if _, err := s.UpdateStatus(ctx, "seed-2", models.StatusActive); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected lifecycle conflict, got %v", err)
	}
	if _, err := s.UpdateStatus(ctx, "missing", models.StatusBooked); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences(NewMemoryKV())

	if ok, _ := p.Authorized(ctx, "c1"); ok {
		t.Fatal("fresh client should not be authorized")
	}
	_ = p.SetAuthorized(ctx, "c1", true)
	if ok, _ := p.Authorized(ctx, "c1"); !ok {
		t.Fatal("expected authorized")
	}
	if ok, _ := p.Authorized(ctx, "c2"); ok {
		t.Fatal("flag must be per client")
	}

	if g, err := p.GeoFilter(ctx, "c1"); err != nil || g != nil {
		t.Fatalf("expected no filter, got %+v %v", g, err)
	}
	want := GeoFilter{Center: models.Coord{Lat: 50.06, Lng: 19.94}, RadiusKm: 50}
	if err := p.SetGeoFilter(ctx, "c1", want); err != nil {
		t.Fatal(err)
	}
	if g, _ := p.GeoFilter(ctx, "c1"); g == nil || *g != want {
		t.Fatalf("got %+v", g)
	}
	if err := p.SetGeoFilter(ctx, "c1", GeoFilter{RadiusKm: -1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	_ = p.ClearGeoFilter(ctx, "c1")
	if g, _ := p.GeoFilter(ctx, "c1"); g != nil {
		t.Fatalf("expected cleared, got %+v", g)
	}
}

func TestGeoFilterValidate(t *testing.T) {
	ok := GeoFilter{Center: models.Coord{Lat: 54.35, Lng: 18.65}, RadiusKm: 25}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid filter rejected: %v", err)
	}
	bad := []GeoFilter{
		{Center: models.Coord{Lat: math.NaN(), Lng: 18}, RadiusKm: 5},
		{Center: models.Coord{Lat: 54, Lng: math.Inf(1)}, RadiusKm: 5},
		{Center: models.Coord{Lat: 54, Lng: 18}, RadiusKm: math.NaN()},
		{Center: models.Coord{Lat: 54, Lng: 18}, RadiusKm: math.Inf(1)},
		{Center: models.Coord{Lat: -90.5, Lng: 18}, RadiusKm: 5},
		{Center: models.Coord{Lat: 54, Lng: 18}, RadiusKm: 0},
	}
	for _, g := range bad {
		if err := g.Validate(); err == nil {
			t.Errorf("expected %+v to be rejected", g)
		}
	}
}

func offerFixture(now time.Time) []models.Offer {
	return []models.Offer{
		{ID: "a", RequestID: "r1", Status: models.OfferPending, Price: 100, ValidUntil: now.Add(time.Hour), CreatedAt: now},
		{ID: "b", RequestID: "r1", Status: models.OfferPending, Price: 90, ValidUntil: now.Add(time.Hour), CreatedAt: now.Add(time.Second)},
		{ID: "c", RequestID: "r1", Status: models.OfferPending, Price: 80, ValidUntil: now.Add(-time.Hour), CreatedAt: now.Add(2 * time.Second)},
		{ID: "d", RequestID: "r2", Status: models.OfferPending, Price: 70, ValidUntil: now.Add(time.Hour), CreatedAt: now},
	}
}

func TestMemoryOfferStoreAccept(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryOfferStore(offerFixture(now))

	if _, err := s.Accept(ctx, "c", now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expired offer must not be accepted, got %v", err)
	}
	o, err := s.Accept(ctx, "a", now)
	if err != nil || o.Status != models.OfferAccepted {
		t.Fatalf("accept: %+v %v", o, err)
	}
	if _, err := s.Accept(ctx, "a", now); !errors.Is(err, ErrConflict) {
		t.Fatalf("second accept of same offer must fail, got %v", err)
	}
	if _, err := s.Accept(ctx, "b", now); !errors.Is(err, ErrConflict) {
		t.Fatalf("sibling accept must fail, got %v", err)
	}
	b, _ := s.Get(ctx, "b")
	if b.Status != models.OfferRejected {
		t.Fatalf("pending sibling should be rejected, got %s", b.Status)
	}
	d, _ := s.Get(ctx, "d")
	if d.Status != models.OfferPending {
		t.Fatalf("other request untouched, got %s", d.Status)
	}
	if _, err := s.Accept(ctx, "zzz", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryOfferStoreAcceptIsAtMostOnceUnderContention(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryOfferStore(offerFixture(now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		id := "a"
		if i%2 == 1 {
			id = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Accept(ctx, id, now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", wins)
	}
}

func TestMemoryOfferStoreListAndCount(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryOfferStore(offerFixture(now))
	_ = s.Save(ctx, models.Offer{ID: "e", RequestID: "r2", CarrierID: "c9", CreatedAt: now.Add(time.Minute)})

	list, _ := s.ListByRequest(ctx, "r1")
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", list)
	}
	counts, _ := s.CountByRequest(ctx)
	if counts["r1"] != 3 || counts["r2"] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	byCarrier, _ := s.ListByCarrier(ctx, "c9")
	if len(byCarrier) != 1 || byCarrier[0].ID != "e" {
		t.Fatalf("unexpected carrier offers: %+v", byCarrier)
	}
	if empty, _ := s.ListByRequest(ctx, "none"); empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %#v", empty)
	}
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	v := []byte("abc")
	_ = kv.Set(ctx, "k", v)
	v[0] = 'x'
	got, _ := kv.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %s", got)
	}
	_ = kv.Delete(ctx, "k")
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "001_a.sql" || filepath.Base(files[1]) != "002_b.sql" {
		t.Fatalf("unexpected migration order: %v", files)
	}
}
