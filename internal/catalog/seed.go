package catalog

import (
	"time"

	"github.com/example/transport-marketplace/internal/models"
)

// Seed is the static demo data set.
type Seed struct {
	Users    []models.User
	Carriers []models.Carrier
	Vehicles []models.Vehicle
	Requests []models.TransportRequest
	Offers   []models.Offer
}

func ptr[T any](v T) *T { return &v }

// DemoSeed builds the demo data with dates relative to now, so seeded offers
// stay valid whenever the service starts.
func DemoSeed(now time.Time) Seed {
	day := 24 * time.Hour
	at := func(d time.Duration, hour int) time.Time {
		t := now.Add(d).UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
	}

	users := []models.User{
		{ID: "user-1", Email: "anna.kowalska@example.com", Name: "Anna Kowalska", Phone: "+48 600 100 200", Role: models.RolePassenger},
		{ID: "user-2", Email: "biuro@tatratrans.pl", Name: "Piotr Nowak", Phone: "+48 601 200 300", Role: models.RoleCarrier},
		{ID: "user-3", Email: "kontakt@baltbus.pl", Name: "Ewa Wiśniewska", Phone: "+48 602 300 400", Role: models.RoleCarrier},
		{ID: "user-4", Email: "admin@example.com", Name: "Admin", Phone: "+48 603 400 500", Role: models.RoleAdmin},
		{ID: "user-5", Email: "marek.zielinski@example.com", Name: "Marek Zieliński", Phone: "+48 604 500 600", Role: models.RolePassenger},
	}

	carriers := []models.Carrier{
		{ID: "carrier-1", UserID: "user-2", CompanyName: "TatraTrans", Rating: 4.8, ReviewCount: 127, Description: "Coaches and minibuses from Małopolska, 20 years on the road.", Logo: "🚌"},
		{ID: "carrier-2", UserID: "user-3", CompanyName: "BaltBus", Rating: 4.5, ReviewCount: 64, Description: "Group transport along the Baltic coast and to Scandinavia ferries.", Logo: "🚍"},
	}

	vehicles := []models.Vehicle{
		{ID: "vehicle-1", CarrierID: "carrier-1", Type: models.VehicleCoach, Brand: "Setra", Model: "S 516 HD", Seats: 49, Features: []string{"WiFi", "Air conditioning", "WC", "USB"}, Images: []string{}},
		{ID: "vehicle-2", CarrierID: "carrier-1", Type: models.VehicleMinibus, Brand: "Mercedes-Benz", Model: "Sprinter 516", Seats: 20, Features: []string{"Air conditioning", "USB"}, Images: []string{}},
		{ID: "vehicle-3", CarrierID: "carrier-2", Type: models.VehicleBus, Brand: "MAN", Model: "Lion's Coach", Seats: 55, Features: []string{"WiFi", "Air conditioning", "Coffee machine"}, Images: []string{}},
		{ID: "vehicle-4", CarrierID: "carrier-2", Type: models.VehicleVan, Brand: "Volkswagen", Model: "Crafter", Seats: 8, Features: []string{"Air conditioning"}, Images: []string{}},
	}

	requests := []models.TransportRequest{
		{
			ID: "request-1", UserID: "user-1", Status: models.StatusOffersReceived,
			From:          models.Location{City: "Kraków", Address: "Rynek Główny 1", Lat: ptr(50.0614), Lng: ptr(19.9366)},
			To:            models.Location{City: "Warszawa", Address: "Plac Defilad 1", Lat: ptr(52.2319), Lng: ptr(21.0067)},
			DepartureDate: at(14*day, 7), ReturnDate: ptr(at(16*day, 18)), IsRoundTrip: true,
			PassengerCount: 35, LuggageInfo: "One suitcase per person", SpecialRequirements: "School trip, two teachers on board",
			Budget:    &models.Budget{Min: ptr(2000.0), Max: ptr(3000.0), Currency: "PLN"},
			ViewCount: 42, CreatedAt: now.Add(-2 * day), UpdatedAt: now.Add(-2 * day),
		},
		{
			ID: "request-2", UserID: "user-5", Status: models.StatusActive,
			From:          models.Location{City: "Gdańsk", Lat: ptr(54.352), Lng: ptr(18.6466)},
			To:            models.Location{City: "Zakopane", Lat: ptr(49.2992), Lng: ptr(19.9496)},
			DepartureDate: at(30*day, 6), PassengerCount: 18,
			LuggageInfo: "Skis and snowboards",
			Budget:      &models.Budget{Max: ptr(6500.0), Currency: "PLN"},
			ViewCount:   12, CreatedAt: now.Add(-1 * day), UpdatedAt: now.Add(-1 * day),
		},
		{
			ID: "request-3", UserID: "user-1", Status: models.StatusActive,
			From:          models.Location{City: "Poznań"},
			To:            models.Location{City: "Wrocław"},
			DepartureDate: at(9*day, 9), PassengerCount: 8,
			ViewCount: 3, CreatedAt: now.Add(-6 * time.Hour), UpdatedAt: now.Add(-6 * time.Hour),
		},
		{
			ID: "request-4", UserID: "user-5", Status: models.StatusActive,
			From:          models.Location{City: "Łódź", Lat: ptr(51.7592), Lng: ptr(19.456)},
			To:            models.Location{City: "Kraków", Lat: ptr(50.0647), Lng: ptr(19.945)},
			DepartureDate: at(21*day, 8), PassengerCount: 45,
			SpecialRequirements: "Wheelchair access for one passenger",
			Budget:              &models.Budget{Max: ptr(1500.0), Currency: "PLN"},
			CreatedAt:           now.Add(-3 * day), UpdatedAt: now.Add(-3 * day),
		},
	}

	offers := []models.Offer{
		{
			ID: "offer-1", RequestID: "request-1", CarrierID: "carrier-1", VehicleID: "vehicle-1", Status: models.OfferPending,
			Price: 2500, Currency: "PLN", Description: "Direct coach, two drivers.",
			IncludedServices: []string{"Fuel", "Tolls", "Driver accommodation"},
			DepartureTime:    at(14*day, 7), ReturnTime: ptr(at(16*day, 18)), EstimatedDuration: 270,
			ValidUntil: now.Add(7 * day), CreatedAt: now.Add(-36 * time.Hour),
		},
		{
			ID: "offer-2", RequestID: "request-1", CarrierID: "carrier-2", VehicleID: "vehicle-3", Status: models.OfferPending,
			Price: 2650, Currency: "PLN", Description: "Coffee on board.",
			IncludedServices: []string{"Fuel", "Tolls"},
			DepartureTime:    at(14*day, 7), ReturnTime: ptr(at(16*day, 18)), EstimatedDuration: 285,
			ValidUntil: now.Add(5 * day), CreatedAt: now.Add(-30 * time.Hour),
		},
		{
			ID: "offer-3", RequestID: "request-1", CarrierID: "carrier-1", VehicleID: "vehicle-2", Status: models.OfferPending,
			Price: 2800, Currency: "PLN", Description: "Two minibuses, flexible stops.",
			IncludedServices: []string{"Fuel", "Tolls", "Parking"},
			DepartureTime:    at(14*day, 7), ReturnTime: ptr(at(16*day, 18)), EstimatedDuration: 260,
			ValidUntil: now.Add(6 * day), CreatedAt: now.Add(-20 * time.Hour),
		},
	}

	return Seed{Users: users, Carriers: carriers, Vehicles: vehicles, Requests: requests, Offers: offers}
}

// Catalog builds the lookup indexes for the seed's users, carriers and vehicles.
func (s Seed) Catalog() *Catalog {
	return New(s.Users, s.Carriers, s.Vehicles)
}
