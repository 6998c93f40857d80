package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/example/transport-marketplace/internal/models"
)

func TestSeedInvariants(t *testing.T) {
	seed := DemoSeed(time.Now())
	c := seed.Catalog()

	requests := map[string]bool{}
	for _, r := range seed.Requests {
		if err := r.Validate(); err != nil {
			t.Fatalf("seed request %s invalid: %v", r.ID, err)
		}
		requests[r.ID] = true
	}
	for _, o := range seed.Offers {
		if !requests[o.RequestID] {
			t.Fatalf("offer %s references unknown request %s", o.ID, o.RequestID)
		}
		if !c.CarrierOwnsVehicle(o.CarrierID, o.VehicleID) {
			t.Fatalf("offer %s: vehicle %s not owned by %s", o.ID, o.VehicleID, o.CarrierID)
		}
		if err := o.Validate(); err != nil {
			t.Fatalf("offer %s invalid: %v", o.ID, err)
		}
	}
	for _, cr := range seed.Carriers {
		u, err := c.User(cr.UserID)
		if err != nil || u.Role != models.RoleCarrier {
			t.Fatalf("carrier %s must belong to a carrier user", cr.ID)
		}
	}
}

func TestLookups(t *testing.T) {
	c := DemoSeed(time.Now()).Catalog()
	if _, err := c.Vehicle("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := c.Carrier("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if cr, err := c.CarrierByUser("user-3"); err != nil || cr.ID != "carrier-2" {
		t.Fatalf("carrier by user: %+v %v", cr, err)
	}
	if vs := c.VehiclesByCarrier("carrier-1"); len(vs) != 2 || vs[0].ID != "vehicle-1" {
		t.Fatalf("unexpected vehicles: %+v", vs)
	}
	if c.CarrierOwnsVehicle("carrier-2", "vehicle-1") {
		t.Fatal("carrier-2 does not own vehicle-1")
	}
	if top := c.TopCarriers(); top[0].ID != "carrier-1" {
		t.Fatalf("expected highest rated first, got %+v", top)
	}
}

func TestAddVehicle(t *testing.T) {
	c := DemoSeed(time.Now()).Catalog()
	v, err := c.AddVehicle(models.Vehicle{CarrierID: "carrier-2", Type: models.VehicleMinibus, Brand: "Iveco", Model: "Daily", Seats: 19})
	if err != nil {
		t.Fatalf("add vehicle: %v", err)
	}
	if v.ID == "" || !c.CarrierOwnsVehicle("carrier-2", v.ID) {
		t.Fatalf("vehicle not registered: %+v", v)
	}
	if _, err := c.AddVehicle(models.Vehicle{CarrierID: "nobody", Type: models.VehicleVan, Brand: "x", Model: "y", Seats: 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown carrier, got %v", err)
	}
	if _, err := c.AddVehicle(models.Vehicle{CarrierID: "carrier-2", Type: "tram", Seats: 0}); !errors.Is(err, ErrInvalid) {
		t.Fatal("expected validation error")
	}
}
