package reservation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/transport-marketplace/internal/models"
)

type State string

const (
	BrowsingOffers      State = "BROWSING_OFFERS"
	OfferSelected       State = "OFFER_SELECTED"
	TermsAccepted       State = "TERMS_ACCEPTED"
	PaymentMethodChosen State = "PAYMENT_METHOD_CHOSEN"
	PaymentConfirmed    State = "PAYMENT_CONFIRMED"
)

type ActionType string

const (
	ActSelect            ActionType = "select"
	ActSetTerms          ActionType = "set_terms"
	ActProceedToPayment  ActionType = "proceed_to_payment"
	ActChooseMethod      ActionType = "choose_method"
	ActSetPaymentTerms   ActionType = "set_payment_terms"
	ActSetDataProcessing ActionType = "set_data_processing"
	ActSubmitPayment     ActionType = "submit_payment"
	ActConfirm           ActionType = "confirm"
	ActBack              ActionType = "back"
)

// Action is one user interaction with the wizard. Only the fields relevant
// to Type are read.
type Action struct {
	Type     ActionType           `json:"type"`
	OfferID  string               `json:"offerId,omitempty"`
	Accepted bool                 `json:"accepted,omitempty"`
	Method   models.PaymentMethod `json:"method,omitempty"`
}

var (
	ErrInvalidTransition         = errors.New("action is not allowed in the current step")
	ErrUnknownOffer              = errors.New("offer is not listed for this request")
	ErrOfferUnavailable          = errors.New("offer is no longer available")
	ErrTermsNotAccepted          = errors.New("terms of carriage and privacy policy must be accepted")
	ErrInvalidPaymentMethod      = errors.New("unknown payment method")
	ErrNoPaymentMethod           = errors.New("choose a payment method")
	ErrPaymentTermsNotAccepted   = errors.New("payment terms must be accepted")
	ErrDataProcessingNotAccepted = errors.New("consent to data processing for payment is required")
)

// BlockedError is returned when an action's preconditions do not hold.
// The wizard state is never changed by a blocked action.
type BlockedError struct {
	State   State
	Action  ActionType
	Reasons []error
}

func (e *BlockedError) Error() string {
	msgs := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		msgs[i] = r.Error()
	}
	return fmt.Sprintf("%s blocked in %s: %s", e.Action, e.State, strings.Join(msgs, "; "))
}

func (e *BlockedError) Unwrap() []error { return e.Reasons }

type RankedOffer struct {
	models.Offer
	BestPrice bool `json:"bestPrice"`
}

// Rank orders offers by ascending price and flags the cheapest one.
// Equal prices keep the earlier offer first.
func Rank(offers []models.Offer) []RankedOffer {
	out := make([]RankedOffer, len(offers))
	for i, o := range offers {
		out[i] = RankedOffer{Offer: o}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > 0 {
		out[0].BestPrice = true
	}
	return out
}

type Confirmation struct {
	RequestID string               `json:"requestId"`
	OfferID   string               `json:"offerId"`
	Method    models.PaymentMethod `json:"method"`
}

// Wizard is the reservation flow for one request. It is a value: Apply
// returns the next wizard and leaves the receiver untouched.
type Wizard struct {
	RequestID              string               `json:"requestId"`
	State                  State                `json:"state"`
	Offers                 []RankedOffer        `json:"offers"`
	SelectedOfferID        string               `json:"selectedOfferId,omitempty"`
	TermsAccepted          bool                 `json:"termsAccepted"`
	Method                 models.PaymentMethod `json:"method,omitempty"`
	PaymentTermsAccepted   bool                 `json:"paymentTermsAccepted"`
	DataProcessingAccepted bool                 `json:"dataProcessingAccepted"`
	Confirmation           *Confirmation        `json:"confirmation,omitempty"`
}

func New(requestID string, offers []models.Offer) Wizard {
	return Wizard{RequestID: requestID, State: BrowsingOffers, Offers: Rank(offers)}
}

// Selected returns the chosen offer, if any.
func (w Wizard) Selected() (RankedOffer, bool) {
	if w.SelectedOfferID == "" {
		return RankedOffer{}, false
	}
	return w.find(w.SelectedOfferID)
}

func (w Wizard) find(id string) (RankedOffer, bool) {
	for _, o := range w.Offers {
		if o.ID == id {
			return o, true
		}
	}
	return RankedOffer{}, false
}

func (w Wizard) Terminal() bool { return w.State == PaymentConfirmed }

// Apply validates a against the current state and returns the next wizard.
// On a *BlockedError the returned wizard equals w.
func (w Wizard) Apply(a Action) (Wizard, error) {
	blocked := func(reasons ...error) (Wizard, error) {
		return w, &BlockedError{State: w.State, Action: a.Type, Reasons: reasons}
	}
	next := w

	switch a.Type {
	case ActSelect:
		if w.State != BrowsingOffers {
			return blocked(ErrInvalidTransition)
		}
		o, ok := w.find(a.OfferID)
		if !ok {
			return blocked(ErrUnknownOffer)
		}
		if o.Status != models.OfferPending {
			return blocked(ErrOfferUnavailable)
		}
		next.SelectedOfferID = o.ID
		next.State = OfferSelected

	case ActSetTerms:
		if w.State != OfferSelected {
			return blocked(ErrInvalidTransition)
		}
		next.TermsAccepted = a.Accepted

	case ActProceedToPayment:
		if w.State != OfferSelected {
			return blocked(ErrInvalidTransition)
		}
		if !w.TermsAccepted {
			return blocked(ErrTermsNotAccepted)
		}
		next.State = TermsAccepted

	case ActChooseMethod:
		if w.State != TermsAccepted {
			return blocked(ErrInvalidTransition)
		}
		if !a.Method.Valid() {
			return blocked(ErrInvalidPaymentMethod)
		}
		next.Method = a.Method

	case ActSetPaymentTerms:
		if w.State != TermsAccepted {
			return blocked(ErrInvalidTransition)
		}
		next.PaymentTermsAccepted = a.Accepted

	case ActSetDataProcessing:
		if w.State != TermsAccepted {
			return blocked(ErrInvalidTransition)
		}
		next.DataProcessingAccepted = a.Accepted

	case ActSubmitPayment:
		if w.State != TermsAccepted {
			return blocked(ErrInvalidTransition)
		}
		if missing := w.paymentMissing(); len(missing) > 0 {
			return blocked(missing...)
		}
		next.State = PaymentMethodChosen

	case ActConfirm:
		if w.State == TermsAccepted {
			if missing := w.paymentMissing(); len(missing) > 0 {
				return blocked(missing...)
			}
		}
		if w.State != PaymentMethodChosen {
			return blocked(ErrInvalidTransition)
		}
		next.State = PaymentConfirmed
		next.Confirmation = &Confirmation{RequestID: w.RequestID, OfferID: w.SelectedOfferID, Method: w.Method}

	case ActBack:
		switch w.State {
		case OfferSelected, TermsAccepted, PaymentMethodChosen:
			return Wizard{RequestID: w.RequestID, State: BrowsingOffers, Offers: w.Offers}, nil
		}
		return blocked(ErrInvalidTransition)

	default:
		return blocked(fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, a.Type))
	}
	return next, nil
}

func (w Wizard) paymentMissing() []error {
	var missing []error
	if !w.Method.Valid() {
		missing = append(missing, ErrNoPaymentMethod)
	}
	if !w.PaymentTermsAccepted {
		missing = append(missing, ErrPaymentTermsNotAccepted)
	}
	if !w.DataProcessingAccepted {
		missing = append(missing, ErrDataProcessingNotAccepted)
	}
	return missing
}
