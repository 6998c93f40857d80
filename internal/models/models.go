package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RolePassenger Role = "passenger"
	RoleCarrier   Role = "carrier"
	RoleAdmin     Role = "admin"
)

type VehicleType string

const (
	VehicleMinibus VehicleType = "minibus"
	VehicleBus     VehicleType = "bus"
	VehicleCoach   VehicleType = "coach"
	VehicleVan     VehicleType = "van"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleMinibus, VehicleBus, VehicleCoach, VehicleVan:
		return true
	}
	return false
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

type PaymentMethod string

const (
	PaymentBLIK     PaymentMethod = "blik"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentPayPal   PaymentMethod = "paypal"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentBLIK, PaymentCard, PaymentTransfer, PaymentPayPal:
		return true
	}
	return false
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a city with an optional street address and an optional point.
// Lat and Lng are kept as separate optional fields so the persisted JSON stays
// flat; use Point to read them.
type Location struct {
	City    string   `json:"city"`
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Point reports the location's coordinates, ok is false unless both are set.
func (l Location) Point() (Coord, bool) {
	if l.Lat == nil || l.Lng == nil {
		return Coord{}, false
	}
	return Coord{Lat: *l.Lat, Lng: *l.Lng}, true
}

func NewLocation(city string, lat, lng float64) Location {
	return Location{City: city, Lat: &lat, Lng: &lng}
}

type Budget struct {
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Currency string   `json:"currency"`
}

// Ceiling returns the maximum budget if one was given.
func (b *Budget) Ceiling() (float64, bool) {
	if b == nil || b.Max == nil {
		return 0, false
	}
	return *b.Max, true
}

func (b *Budget) Validate() error {
	if b == nil {
		return nil
	}
	if b.Min != nil && *b.Min < 0 {
		return errors.New("budget min must be >= 0")
	}
	if b.Min != nil && b.Max != nil && *b.Max < *b.Min {
		return fmt.Errorf("budget max %.2f is below min %.2f", *b.Max, *b.Min)
	}
	return nil
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  Role   `json:"role"`
}

type Carrier struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	CompanyName string  `json:"companyName"`
	Rating      float64 `json:"rating"` // 0..5
	ReviewCount int     `json:"reviewCount"`
	Description string  `json:"description"`
	Logo        string  `json:"logo"`
}

type Vehicle struct {
	ID        string      `json:"id"`
	CarrierID string      `json:"carrierId"`
	Type      VehicleType `json:"type"`
	Brand     string      `json:"brand"`
	Model     string      `json:"model"`
	Seats     int         `json:"seats"`
	Features  []string    `json:"features"`
	Images    []string    `json:"images"`
}

func (v Vehicle) Validate() error {
	var errs []error
	if !v.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown vehicle type %q", v.Type))
	}
	if strings.TrimSpace(v.Brand) == "" {
		errs = append(errs, errors.New("brand is required"))
	}
	if strings.TrimSpace(v.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if v.Seats <= 0 {
		errs = append(errs, errors.New("seats must be > 0"))
	}
	return errors.Join(errs...)
}

type TransportRequest struct {
	ID                  string        `json:"id"`
	UserID              string        `json:"userId"`
	Status              RequestStatus `json:"status"`
	From                Location      `json:"from"`
	To                  Location      `json:"to"`
	DepartureDate       time.Time     `json:"departureDate"`
	ReturnDate          *time.Time    `json:"returnDate,omitempty"`
	IsRoundTrip         bool          `json:"isRoundTrip"`
	PassengerCount      int           `json:"passengerCount"`
	LuggageInfo         string        `json:"luggageInfo,omitempty"`
	SpecialRequirements string        `json:"specialRequirements,omitempty"`
	Budget              *Budget       `json:"budget,omitempty"`
	ViewCount           int           `json:"viewCount"`
	OfferCount          int           `json:"offerCount"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Validate checks the fields a passenger must fill in before a request is stored.
func (r TransportRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.UserID) == "" {
		errs = append(errs, errors.New("userId is required"))
	}
	if strings.TrimSpace(r.From.City) == "" {
		errs = append(errs, errors.New("from.city is required"))
	}
	if strings.TrimSpace(r.To.City) == "" {
		errs = append(errs, errors.New("to.city is required"))
	}
	if r.DepartureDate.IsZero() {
		errs = append(errs, errors.New("departureDate is required"))
	}
	if r.PassengerCount <= 0 {
		errs = append(errs, errors.New("passengerCount must be > 0"))
	}
	if r.IsRoundTrip && r.ReturnDate == nil {
		errs = append(errs, errors.New("returnDate is required for a round trip"))
	}
	if r.ReturnDate != nil && r.ReturnDate.Before(r.DepartureDate) {
		errs = append(errs, errors.New("returnDate is before departureDate"))
	}
	if err := r.Budget.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type Offer struct {
	ID                string      `json:"id"`
	RequestID         string      `json:"requestId"`
	CarrierID         string      `json:"carrierId"`
	VehicleID         string      `json:"vehicleId"`
	Status            OfferStatus `json:"status"`
	Price             float64     `json:"price"`
	Currency          string      `json:"currency"`
	Description       string      `json:"description,omitempty"`
	IncludedServices  []string    `json:"includedServices"`
	DepartureTime     time.Time   `json:"departureTime"`
	ReturnTime        *time.Time  `json:"returnTime,omitempty"`
	EstimatedDuration int         `json:"estimatedDuration"` // minutes
	ValidUntil        time.Time   `json:"validUntil"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// EffectiveStatus reports a pending offer past its deadline as expired.
func (o Offer) EffectiveStatus(now time.Time) OfferStatus {
	if o.Status == OfferPending && !o.ValidUntil.IsZero() && now.After(o.ValidUntil) {
		return OfferExpired
	}
	return o.Status
}

func (o Offer) Validate() error {
	var errs []error
	if o.RequestID == "" {
		errs = append(errs, errors.New("requestId is required"))
	}
	if o.CarrierID == "" {
		errs = append(errs, errors.New("carrierId is required"))
	}
	if o.VehicleID == "" {
		errs = append(errs, errors.New("vehicleId is required"))
	}
	if o.Price <= 0 {
		errs = append(errs, errors.New("price must be > 0"))
	}
	if strings.TrimSpace(o.Currency) == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	if o.EstimatedDuration < 0 {
		errs = append(errs, errors.New("estimatedDuration must be >= 0"))
	}
	return errors.Join(errs...)
}
