package models

import (
	"encoding/json"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestTransportRequestJSONRoundTrip(t *testing.T) {
	dep := time.Date(2026, 11, 3, 7, 30, 0, 0, time.UTC)
	ret := dep.Add(48 * time.Hour)
	created := time.Date(2026, 10, 1, 12, 0, 0, 123000000, time.UTC)
	in := TransportRequest{
		ID:             "req-1",
		UserID:         "user-1",
		Status:         StatusActive,
		From:           NewLocation("Kraków", 50.0647, 19.945),
		To:             Location{City: "Warszawa", Address: "Marszałkowska 1"},
		DepartureDate:  dep,
		ReturnDate:     &ret,
		IsRoundTrip:    true,
		PassengerCount: 30,
		LuggageInfo:    "30 suitcases",
		Budget:         &Budget{Min: f64(2000), Max: f64(3000), Currency: "PLN"},
		CreatedAt:      created,
		UpdatedAt:      created,
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, k := range []string{"departureDate", "returnDate", "createdAt", "updatedAt"} {
		if _, ok := raw[k].(string); !ok {
			t.Fatalf("expected %s encoded as string, got %T", k, raw[k])
		}
	}

	var out TransportRequest
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.DepartureDate.Equal(in.DepartureDate) || !out.CreatedAt.Equal(in.CreatedAt) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("dates did not round-trip: %+v", out)
	}
	if out.ReturnDate == nil || !out.ReturnDate.Equal(*in.ReturnDate) {
		t.Fatalf("returnDate did not round-trip: %v", out.ReturnDate)
	}
	if p, ok := out.From.Point(); !ok || p.Lat != 50.0647 || p.Lng != 19.945 {
		t.Fatalf("from point lost: %+v", out.From)
	}
	if _, ok := out.To.Point(); ok {
		t.Fatalf("to should have no point")
	}
	if max, ok := out.Budget.Ceiling(); !ok || max != 3000 || out.Budget.Currency != "PLN" {
		t.Fatalf("budget lost: %+v", out.Budget)
	}
	if out.From.City != "Kraków" || out.To.Address != "Marszałkowska 1" || out.PassengerCount != 30 || !out.IsRoundTrip {
		t.Fatalf("fields lost: %+v", out)
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (&Budget{Min: f64(100), Max: f64(50)}).Validate(); err == nil {
		t.Fatal("expected max < min to fail")
	}
	if err := (&Budget{Min: f64(100)}).Validate(); err != nil {
		t.Fatalf("min only should pass: %v", err)
	}
	var nilBudget *Budget
	if err := nilBudget.Validate(); err != nil {
		t.Fatalf("nil budget should pass: %v", err)
	}
	if _, ok := nilBudget.Ceiling(); ok {
		t.Fatal("nil budget has no ceiling")
	}
}

func TestRequestValidateCollectsAllErrors(t *testing.T) {
	err := TransportRequest{}.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) < 4 {
		t.Fatalf("expected several joined errors, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusActive, StatusOffersReceived, true},
		{StatusOffersReceived, StatusBooked, true},
		{StatusBooked, StatusCompleted, true},
		{StatusBooked, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusActive, StatusActive, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("%s -> %s: got %v want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestOfferEffectiveStatus(t *testing.T) {
	now := time.Now()
	o := Offer{Status: OfferPending, ValidUntil: now.Add(-time.Minute)}
	if got := o.EffectiveStatus(now); got != OfferExpired {
		t.Fatalf("expected expired, got %s", got)
	}
	o.Status = OfferAccepted
	if got := o.EffectiveStatus(now); got != OfferAccepted {
		t.Fatalf("accepted offers never expire, got %s", got)
	}
}
