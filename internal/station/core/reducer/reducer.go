// Package reducer folds telemetry snapshots into vehicle records.
package reducer

import (
	"time"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

const (
	DefaultTrailLimit      = 500
	DefaultBatteryLimit    = 300
	DefaultBatteryInterval = time.Second
	DefaultLowBattery      = 20
)

// Config bounds the history the reducer keeps per vehicle.
type Config struct {
	TrailLimit      int
	BatteryLimit    int
	BatteryInterval time.Duration
	// LowBatteryPercent is the remaining charge below which a LowBattery
	// signal is raised. Zero disables the check.
	LowBatteryPercent int
}

// DefaultConfig returns the standard history bounds.
func DefaultConfig() Config {
	return Config{
		TrailLimit:        DefaultTrailLimit,
		BatteryLimit:      DefaultBatteryLimit,
		BatteryInterval:   DefaultBatteryInterval,
		LowBatteryPercent: DefaultLowBattery,
	}
}

// Signals are the derived events one reduction produced.
type Signals struct {
	// IdentityChanged is raised once per distinct new identity seen after the
	// first heartbeat. The new identity is held in Vehicle.PendingIdentity.
	IdentityChanged bool
	Previous        model.Identity
	Current         model.Identity

	// LowBattery is raised when the remaining charge crosses below the threshold.
	LowBattery bool
	Remaining  int

	// ArmedChanged is raised on every armed/disarmed edge after the first frame.
	ArmedChanged bool
	Armed        bool
}

// Reducer is stateless; all history lives in the vehicle it is given.
type Reducer struct {
	cfg Config
}

func New(cfg Config) *Reducer {
	if cfg.TrailLimit <= 0 {
		cfg.TrailLimit = DefaultTrailLimit
	}
	if cfg.BatteryLimit <= 0 {
		cfg.BatteryLimit = DefaultBatteryLimit
	}
	if cfg.BatteryInterval <= 0 {
		cfg.BatteryInterval = DefaultBatteryInterval
	}
	return &Reducer{cfg: cfg}
}

// Reduce applies snap, received at now, to v and returns the updated vehicle.
// The input is not modified.
func (r *Reducer) Reduce(v model.Vehicle, snap model.TelemetrySnapshot, now time.Time) (model.Vehicle, Signals) {
	var sig Signals
	prev := v.Telemetry
	seen := !prev.ReceivedAt.IsZero()

	snap.ReceivedAt = now
	if snap.MissionStatus == "" {
		snap.MissionStatus = model.MissionStatusIdle
	}
	v.Telemetry = snap
	v.MissionStatus = snap.MissionStatus

	if snap.Lat != 0 && snap.Lon != 0 {
		p := model.TrailPoint{Lat: snap.Lat, Lon: snap.Lon}
		if n := len(v.Trail); n == 0 || v.Trail[n-1] != p {
			v.Trail = appendCapped(v.Trail, p, r.cfg.TrailLimit)
		}
	}

	if snap.Voltage > 0 && now.Sub(v.LastBatterySampleAt) >= r.cfg.BatteryInterval {
		v.BatteryHistory = appendCapped(v.BatteryHistory, model.BatterySample{
			At:      now,
			Voltage: snap.Voltage,
			Current: snap.Current,
		}, r.cfg.BatteryLimit)
		v.LastBatterySampleAt = now
	}

	if id, ok := snap.Identity(); ok {
		switch {
		case v.Identity == nil:
			v.Identity = &id
		case *v.Identity == id:
			v.PendingIdentity = nil
		case v.PendingIdentity == nil || *v.PendingIdentity != id:
			sig.IdentityChanged = true
			sig.Previous = *v.Identity
			sig.Current = id
			v.PendingIdentity = &id
		}
	}

	if t := r.cfg.LowBatteryPercent; t > 0 && snap.Remaining >= 0 && snap.Remaining < t {
		if prev.Remaining < 0 || prev.Remaining >= t {
			sig.LowBattery = true
			sig.Remaining = snap.Remaining
		}
	}

	if seen && prev.Armed != snap.Armed {
		sig.ArmedChanged = true
		sig.Armed = snap.Armed
	}

	return v, sig
}

// appendCapped returns a new slice holding s plus item, with the oldest
// entries dropped so that at most limit remain.
func appendCapped[T any](s []T, item T, limit int) []T {
	start := 0
	if len(s)+1 > limit {
		start = len(s) + 1 - limit
	}
	out := make([]T, 0, len(s)-start+1)
	out = append(out, s[start:]...)
	return append(out, item)
}
