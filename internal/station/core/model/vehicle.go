package model

import (
	"maps"
	"slices"
	"time"
)

// MissionItem is one waypoint or fence item, kept opaque to the core.
type MissionItem struct {
	Seq     int        `json:"seq"`
	Command int        `json:"command"`
	Frame   int        `json:"frame"`
	Lat     float64    `json:"lat"`
	Lon     float64    `json:"lon"`
	Alt     float64    `json:"alt"`
	Params  [4]float64 `json:"params"`
}

// Vehicle is the station's view of one connected vehicle.
type Vehicle struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Telemetry     TelemetrySnapshot `json:"telemetry"`
	MissionStatus string            `json:"mission_status"`

	Trail               []TrailPoint    `json:"trail"`
	BatteryHistory      []BatterySample `json:"battery_history"`
	LastBatterySampleAt time.Time       `json:"-"`

	Params  map[string]float64 `json:"params,omitempty"`
	Mission []MissionItem      `json:"mission,omitempty"`
	Fence   []MissionItem      `json:"fence,omitempty"`

	Identity        *Identity `json:"identity,omitempty"`
	PendingIdentity *Identity `json:"pending_identity,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
}

// NewVehicle returns an empty vehicle record.
func NewVehicle(id, name string, now time.Time) *Vehicle {
	return &Vehicle{
		ID:            id,
		Name:          name,
		Telemetry:     DefaultTelemetry(),
		MissionStatus: MissionStatusIdle,
		Params:        map[string]float64{},
		RegisteredAt:  now,
	}
}

// Clone returns a deep copy that shares no mutable state with v.
func (v *Vehicle) Clone() Vehicle {
	c := *v
	c.Trail = slices.Clone(v.Trail)
	c.BatteryHistory = slices.Clone(v.BatteryHistory)
	c.Params = maps.Clone(v.Params)
	c.Mission = slices.Clone(v.Mission)
	c.Fence = slices.Clone(v.Fence)
	if v.Identity != nil {
		id := *v.Identity
		c.Identity = &id
	}
	if v.PendingIdentity != nil {
		id := *v.PendingIdentity
		c.PendingIdentity = &id
	}
	return c
}

// ResetCaches drops everything that belongs to a specific airframe.
func (v *Vehicle) ResetCaches() {
	v.Params = map[string]float64{}
	v.Mission = nil
	v.Fence = nil
}
