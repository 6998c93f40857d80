package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/transport-marketplace/internal/models"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrInvalid  = errors.New("catalog: invalid")
)

// Catalog indexes users, carriers and vehicles by id.
type Catalog struct {
	mu       sync.RWMutex
	users    map[string]models.User
	carriers map[string]models.Carrier
	vehicles map[string]models.Vehicle
	// insertion order, so listings are stable
	userIDs    []string
	vehicleIDs []string
}

func New(users []models.User, carriers []models.Carrier, vehicles []models.Vehicle) *Catalog {
	c := &Catalog{
		users:    make(map[string]models.User, len(users)),
		carriers: make(map[string]models.Carrier, len(carriers)),
		vehicles: make(map[string]models.Vehicle, len(vehicles)),
	}
	for _, u := range users {
		c.users[u.ID] = u
		c.userIDs = append(c.userIDs, u.ID)
	}
	for _, cr := range carriers {
		c.carriers[cr.ID] = cr
	}
	for _, v := range vehicles {
		c.vehicles[v.ID] = v
		c.vehicleIDs = append(c.vehicleIDs, v.ID)
	}
	return c
}

func (c *Catalog) User(id string) (models.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (c *Catalog) Users() []models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.User, 0, len(c.userIDs))
	for _, id := range c.userIDs {
		out = append(out, c.users[id])
	}
	return out
}

func (c *Catalog) Carrier(id string) (models.Carrier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cr, ok := c.carriers[id]
	if !ok {
		return models.Carrier{}, ErrNotFound
	}
	return cr, nil
}

// CarrierByUser returns the carrier profile of a carrier-role user.
func (c *Catalog) CarrierByUser(userID string) (models.Carrier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cr := range c.carriers {
		if cr.UserID == userID {
			return cr, nil
		}
	}
	return models.Carrier{}, ErrNotFound
}

func (c *Catalog) Vehicle(id string) (models.Vehicle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[id]
	if !ok {
		return models.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (c *Catalog) VehiclesByCarrier(carrierID string) []models.Vehicle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []models.Vehicle{}
	for _, id := range c.vehicleIDs {
		if v := c.vehicles[id]; v.CarrierID == carrierID {
			out = append(out, v)
		}
	}
	return out
}

func (c *Catalog) CarrierOwnsVehicle(carrierID, vehicleID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[vehicleID]
	return ok && v.CarrierID == carrierID
}

// AddVehicle registers a vehicle for an existing carrier. Vehicles added at
// runtime live in memory only.
func (c *Catalog) AddVehicle(v models.Vehicle) (models.Vehicle, error) {
	if err := v.Validate(); err != nil {
		return models.Vehicle{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.carriers[v.CarrierID]; !ok {
		return models.Vehicle{}, ErrNotFound
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Features == nil {
		v.Features = []string{}
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	if _, exists := c.vehicles[v.ID]; !exists {
		c.vehicleIDs = append(c.vehicleIDs, v.ID)
	}
	c.vehicles[v.ID] = v
	return v, nil
}

// TopCarriers returns carriers by rating, highest first.
func (c *Catalog) TopCarriers() []models.Carrier {
	c.mu.RLock()
	out := make([]models.Carrier, 0, len(c.carriers))
	for _, cr := range c.carriers {
		out = append(out, cr)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating == out[j].Rating {
			return out[i].ID < out[j].ID
		}
		return out[i].Rating > out[j].Rating
	})
	return out
}
