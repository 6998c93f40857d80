package models

type RequestStatus string

const (
	StatusActive         RequestStatus = "active"
	StatusOffersReceived RequestStatus = "offers_received"
	StatusBooked         RequestStatus = "booked"
	StatusCompleted      RequestStatus = "completed"
	StatusCancelled      RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus]map[RequestStatus]struct{}{
	StatusActive: {
		StatusOffersReceived: {},
		StatusBooked:         {},
		StatusCancelled:      {},
	},
	StatusOffersReceived: {
		StatusBooked:    {},
		StatusCancelled: {},
	},
	StatusBooked: {
		StatusCompleted: {},
		StatusCancelled: {},
	},
}

// CanTransition returns true when a request may move from current to next.
func CanTransition(current, next RequestStatus) bool {
	if current == next {
		return true
	}
	allowed, ok := requestTransitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// AcceptsOffers reports whether carriers may still bid on a request in this status.
func (s RequestStatus) AcceptsOffers() bool {
	return s == StatusActive || s == StatusOffersReceived
}
