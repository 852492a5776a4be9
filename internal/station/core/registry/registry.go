// Package registry holds the authoritative per-vehicle state of the station.
//
// A Registry is not safe for concurrent use. It is owned by the run loop and
// every mutation happens there; other goroutines read through runloop.Do.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/reducer"
)

var (
	// ErrVehicleNotFound is returned for operations on an id that is not registered.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrNoPendingIdentity is returned when confirming an identity change that never happened.
	ErrNoPendingIdentity = errors.New("no identity change pending")
)

type Registry struct {
	reducer *reducer.Reducer

	vehicles map[string]*model.Vehicle
	order    []string
	active   string
}

func New(r *reducer.Reducer) *Registry {
	if r == nil {
		r = reducer.New(reducer.DefaultConfig())
	}
	return &Registry{
		reducer:  r,
		vehicles: make(map[string]*model.Vehicle),
	}
}

// Register adds a vehicle with empty history. Registering a known id only
// updates its name.
func (r *Registry) Register(id, name string, now time.Time) (created bool) {
	if v, ok := r.vehicles[id]; ok {
		if name != "" {
			v.Name = name
		}
		return false
	}
	if name == "" {
		name = id
	}
	r.vehicles[id] = model.NewVehicle(id, name, now)
	r.order = append(r.order, id)
	return true
}

// Remove deletes a vehicle and clears the selection if it was active.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.vehicles[id]; !ok {
		return false
	}
	delete(r.vehicles, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	if r.active == id {
		r.active = ""
	}
	return true
}

// ApplyTelemetry folds a snapshot into the vehicle as a single step. Frames
// for vehicles that are no longer registered are ignored.
func (r *Registry) ApplyTelemetry(id string, snap model.TelemetrySnapshot, now time.Time) (reducer.Signals, bool) {
	v, ok := r.vehicles[id]
	if !ok {
		return reducer.Signals{}, false
	}
	next, sig := r.reducer.Reduce(*v, snap, now)
	*v = next
	return sig, true
}

// Update runs fn against the live record if the vehicle still exists. It is
// how results of asynchronous requests are applied.
func (r *Registry) Update(id string, fn func(v *model.Vehicle)) bool {
	v, ok := r.vehicles[id]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Select makes id the active vehicle.
func (r *Registry) Select(id string) error {
	if _, ok := r.vehicles[id]; !ok {
		return fmt.Errorf("select %q: %w", id, ErrVehicleNotFound)
	}
	r.active = id
	return nil
}

// Deselect clears the active vehicle.
func (r *Registry) Deselect() { r.active = "" }

// ActiveID returns the id of the active vehicle, or "" if none is selected.
func (r *Registry) ActiveID() string { return r.active }

// Active returns a copy of the active vehicle.
func (r *Registry) Active() (model.Vehicle, bool) {
	if r.active == "" {
		return model.Vehicle{}, false
	}
	return r.Get(r.active)
}

// ActiveMode returns the flight mode reported by the active vehicle.
func (r *Registry) ActiveMode() (string, bool) {
	v, ok := r.vehicles[r.active]
	if !ok {
		return "", false
	}
	return v.Telemetry.Mode, true
}

// Get returns a copy of the vehicle.
func (r *Registry) Get(id string) (model.Vehicle, bool) {
	v, ok := r.vehicles[id]
	if !ok {
		return model.Vehicle{}, false
	}
	return v.Clone(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.vehicles[id]
	return ok
}

// List returns copies of all vehicles in registration order.
func (r *Registry) List() []model.Vehicle {
	out := make([]model.Vehicle, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.vehicles[id].Clone())
	}
	return out
}

// Len returns the number of registered vehicles.
func (r *Registry) Len() int { return len(r.vehicles) }

// ResolveIdentity settles a pending identity change. Accepting adopts the new
// identity and drops mission, fence and parameter caches; declining keeps the
// current identity and caches.
func (r *Registry) ResolveIdentity(id string, accept bool) error {
	v, ok := r.vehicles[id]
	if !ok {
		return fmt.Errorf("resolve identity of %q: %w", id, ErrVehicleNotFound)
	}
	if v.PendingIdentity == nil {
		return fmt.Errorf("resolve identity of %q: %w", id, ErrNoPendingIdentity)
	}
	if accept {
		v.Identity = v.PendingIdentity
		v.ResetCaches()
	}
	v.PendingIdentity = nil
	return nil
}
