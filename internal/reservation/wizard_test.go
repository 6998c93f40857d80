package reservation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/transport-marketplace/internal/models"
)

var t0 = time.Date(2026, 10, 10, 9, 0, 0, 0, time.UTC)

func offers() []models.Offer {
	return []models.Offer{
		{ID: "o-2800", RequestID: "r1", Price: 2800, Currency: "PLN", Status: models.OfferPending, CreatedAt: t0},
		{ID: "o-2500", RequestID: "r1", Price: 2500, Currency: "PLN", Status: models.OfferPending, CreatedAt: t0.Add(time.Hour)},
		{ID: "o-2650", RequestID: "r1", Price: 2650, Currency: "PLN", Status: models.OfferPending, CreatedAt: t0.Add(2 * time.Hour)},
	}
}

func mustApply(t *testing.T, w Wizard, a Action) Wizard {
	t.Helper()
	next, err := w.Apply(a)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", a.Type, err)
	}
	return next
}

func atPaymentStage(t *testing.T) Wizard {
	w := New("r1", offers())
	w = mustApply(t, w, Action{Type: ActSelect, OfferID: "o-2650"})
	w = mustApply(t, w, Action{Type: ActSetTerms, Accepted: true})
	return mustApply(t, w, Action{Type: ActProceedToPayment})
}

func TestRankOrdersByPriceAndFlagsBest(t *testing.T) {
	ranked := Rank(offers())
	want := []float64{2500, 2650, 2800}
	for i, o := range ranked {
		if o.Price != want[i] {
			t.Fatalf("position %d: got %v want %v", i, o.Price, want[i])
		}
		if o.BestPrice != (i == 0) {
			t.Fatalf("position %d: best price flag %v", i, o.BestPrice)
		}
	}
}

func TestRankTieKeepsEarliest(t *testing.T) {
	ranked := Rank([]models.Offer{
		{ID: "late", Price: 100, CreatedAt: t0.Add(time.Hour)},
		{ID: "early", Price: 100, CreatedAt: t0},
	})
	if ranked[0].ID != "early" || !ranked[0].BestPrice || ranked[1].BestPrice {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
	if len(Rank(nil)) != 0 {
		t.Fatal("expected empty ranking")
	}
}

func TestProceedWithoutTermsIsRejected(t *testing.T) {
	w := mustApply(t, New("r1", offers()), Action{Type: ActSelect, OfferID: "o-2500"})
	for i := 0; i < 3; i++ {
		next, err := w.Apply(Action{Type: ActProceedToPayment})
		if !errors.Is(err, ErrTermsNotAccepted) {
			t.Fatalf("expected terms error, got %v", err)
		}
		var be *BlockedError
		if !errors.As(err, &be) || be.State != OfferSelected {
			t.Fatalf("expected BlockedError in OFFER_SELECTED, got %v", err)
		}
		if !reflect.DeepEqual(next, w) {
			t.Fatalf("blocked action changed state: %+v", next)
		}
	}
}

func TestProceedWithTermsAdvancesOnce(t *testing.T) {
	w := mustApply(t, New("r1", offers()), Action{Type: ActSelect, OfferID: "o-2500"})
	w = mustApply(t, w, Action{Type: ActSetTerms, Accepted: true})
	w = mustApply(t, w, Action{Type: ActProceedToPayment})
	if w.State != TermsAccepted {
		t.Fatalf("expected TERMS_ACCEPTED, got %s", w.State)
	}
	if _, err := w.Apply(Action{Type: ActProceedToPayment}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second proceed should be rejected, got %v", err)
	}
}

func TestPaymentRequiresAllConditions(t *testing.T) {
	cases := []struct {
		name    string
		actions []Action
		missing []error
	}{
		{"nothing", nil, []error{ErrNoPaymentMethod, ErrPaymentTermsNotAccepted, ErrDataProcessingNotAccepted}},
		{"no method", []Action{{Type: ActSetPaymentTerms, Accepted: true}, {Type: ActSetDataProcessing, Accepted: true}}, []error{ErrNoPaymentMethod}},
		{"no payment terms", []Action{{Type: ActChooseMethod, Method: models.PaymentBLIK}, {Type: ActSetDataProcessing, Accepted: true}}, []error{ErrPaymentTermsNotAccepted}},
		{"no data processing", []Action{{Type: ActChooseMethod, Method: models.PaymentCard}, {Type: ActSetPaymentTerms, Accepted: true}}, []error{ErrDataProcessingNotAccepted}},
		{"consent withdrawn", []Action{
			{Type: ActChooseMethod, Method: models.PaymentPayPal},
			{Type: ActSetPaymentTerms, Accepted: true},
			{Type: ActSetDataProcessing, Accepted: true},
			{Type: ActSetDataProcessing, Accepted: false},
		}, []error{ErrDataProcessingNotAccepted}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := atPaymentStage(t)
			for _, a := range c.actions {
				w = mustApply(t, w, a)
			}
			for _, act := range []ActionType{ActSubmitPayment, ActConfirm} {
				next, err := w.Apply(Action{Type: act})
				if err == nil {
					t.Fatalf("%s should be blocked", act)
				}
				for _, m := range c.missing {
					if !errors.Is(err, m) {
						t.Fatalf("%s: expected %v in %v", act, m, err)
					}
				}
				if next.State == PaymentConfirmed || next.State != TermsAccepted {
					t.Fatalf("%s changed state to %s", act, next.State)
				}
			}
		})
	}
}

func TestHappyPathConfirms(t *testing.T) {
	w := atPaymentStage(t)
	w = mustApply(t, w, Action{Type: ActChooseMethod, Method: models.PaymentTransfer})
	w = mustApply(t, w, Action{Type: ActSetPaymentTerms, Accepted: true})
	w = mustApply(t, w, Action{Type: ActSetDataProcessing, Accepted: true})
	w = mustApply(t, w, Action{Type: ActSubmitPayment})
	if w.State != PaymentMethodChosen {
		t.Fatalf("expected PAYMENT_METHOD_CHOSEN, got %s", w.State)
	}
	w = mustApply(t, w, Action{Type: ActConfirm})
	if !w.Terminal() || w.Confirmation == nil {
		t.Fatalf("expected confirmation, got %+v", w)
	}
	want := Confirmation{RequestID: "r1", OfferID: "o-2650", Method: models.PaymentTransfer}
	if *w.Confirmation != want {
		t.Fatalf("confirmation = %+v, want %+v", *w.Confirmation, want)
	}
	if _, err := w.Apply(Action{Type: ActBack}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("back from terminal state should be rejected, got %v", err)
	}
}

func TestBackResetsEverything(t *testing.T) {
	w := atPaymentStage(t)
	w = mustApply(t, w, Action{Type: ActChooseMethod, Method: models.PaymentBLIK})
	w = mustApply(t, w, Action{Type: ActSetPaymentTerms, Accepted: true})
	w = mustApply(t, w, Action{Type: ActBack})

	fresh := New("r1", offers())
	if !reflect.DeepEqual(w, fresh) {
		t.Fatalf("back did not fully reset:\n got %+v\nwant %+v", w, fresh)
	}
	if _, err := w.Apply(Action{Type: ActBack}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("back while browsing should be rejected, got %v", err)
	}
}

func TestSelectRules(t *testing.T) {
	w := New("r1", offers())
	if _, err := w.Apply(Action{Type: ActSelect, OfferID: "nope"}); !errors.Is(err, ErrUnknownOffer) {
		t.Fatalf("expected unknown offer, got %v", err)
	}
	os := offers()
	os[0].Status = models.OfferRejected
	if _, err := New("r1", os).Apply(Action{Type: ActSelect, OfferID: os[0].ID}); !errors.Is(err, ErrOfferUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	w = mustApply(t, w, Action{Type: ActSelect, OfferID: "o-2800"})
	if sel, ok := w.Selected(); !ok || sel.ID != "o-2800" || sel.BestPrice {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if _, err := w.Apply(Action{Type: ActSelect, OfferID: "o-2500"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reselect without back should be rejected, got %v", err)
	}
}

func TestInvalidPaymentMethod(t *testing.T) {
	w := atPaymentStage(t)
	if _, err := w.Apply(Action{Type: ActChooseMethod, Method: "cash"}); !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected invalid method, got %v", err)
	}
	if _, err := w.Apply(Action{Type: "teleport"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
