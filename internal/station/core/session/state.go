// Package session is the station's state service: the vehicle registry, the
// alert list, the input arbiter and the preferences, constructed once and
// injected into every component that needs them.
package session

import (
	"fmt"
	"time"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core"
	"github.com/autopeer-io/groundlink/internal/station/core/alert"
	"github.com/autopeer-io/groundlink/internal/station/core/input"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/reducer"
	"github.com/autopeer-io/groundlink/internal/station/core/registry"
	"github.com/autopeer-io/groundlink/pkg/log"
)

// Config sizes the state service.
type Config struct {
	Reducer    reducer.Config
	Input      input.Config
	AlertLimit int
	AlertTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Reducer:    reducer.DefaultConfig(),
		Input:      input.DefaultConfig(),
		AlertLimit: alert.DefaultLimit,
		AlertTTL:   alert.DefaultTTL,
	}
}

// State is owned by the run loop. Nothing here is safe for concurrent use.
type State struct {
	sched  runloop.Scheduler
	store  core.PreferenceStore
	logger log.Logger

	Vehicles *registry.Registry
	Alerts   *alert.Bus
	Input    *input.Arbiter

	prefs       model.Preferences
	viewVisible bool
	onInput     []func()

	// removed holds vehicles disconnected on purpose. Their telemetry does
	// not register them again until they are readmitted.
	removed map[string]struct{}
}

func New(sched runloop.Scheduler, store core.PreferenceStore, cfg Config) *State {
	if store == nil {
		store = &core.MemoryPreferenceStore{}
	}
	return &State{
		sched:       sched,
		store:       store,
		logger:      log.WithName("session"),
		Vehicles:    registry.New(reducer.New(cfg.Reducer)),
		Alerts:      alert.New(sched, cfg.AlertLimit, cfg.AlertTTL),
		Input:       input.NewArbiter(cfg.Input),
		prefs:       model.DefaultPreferences(),
		viewVisible: true,
		removed:     make(map[string]struct{}),
	}
}

// Init loads the saved preferences. A store that cannot be read is reported
// and the defaults are used instead.
func (s *State) Init() error {
	p, err := s.store.Load()
	if err != nil {
		s.logger.Error(err, "Failed to load preferences, using defaults")
		s.Alerts.Warn("Preferences could not be loaded; defaults are in effect")
		p = model.DefaultPreferences()
	}
	s.ApplyPreferences(p)
	s.logger.Info("Session initialized", "keyboard", p.KeyboardEnabled, "gamepad", p.GamepadEnabled, "lastVehicle", p.LastVehicle)
	return nil
}

// Dispose saves the preferences and drops pending alerts.
func (s *State) Dispose() error {
	s.Alerts.Clear()
	if err := s.store.Save(s.prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Preferences returns the preferences currently in effect.
func (s *State) Preferences() model.Preferences { return s.prefs }

// ApplyPreferences puts p into effect without saving it. It is used at Init
// and when the preference file changes on disk.
func (s *State) ApplyPreferences(p model.Preferences) {
	s.prefs = p
	s.Input.SetDeadzone(p.Deadzone)
	s.Input.SetAxisInvert(input.Pitch, p.InvertPitch)
	s.Input.SetAxisInvert(input.Throttle, p.InvertThrottle)

	changed := s.Input.KeyboardEnabled() != p.KeyboardEnabled || s.Input.GamepadEnabled() != p.GamepadEnabled
	s.Input.SetKeyboardEnabled(p.KeyboardEnabled)
	s.Input.SetGamepadEnabled(p.GamepadEnabled)
	if changed {
		s.notifyInput()
	}

	if p.LastVehicle != "" && s.Vehicles.Has(p.LastVehicle) {
		_ = s.Vehicles.Select(p.LastVehicle)
	}
}

// OnInputChange registers fn to run after an input source is toggled.
func (s *State) OnInputChange(fn func()) { s.onInput = append(s.onInput, fn) }

func (s *State) notifyInput() {
	for _, fn := range s.onInput {
		fn()
	}
}

// SetKeyboardEnabled toggles the keyboard source and remembers the choice.
func (s *State) SetKeyboardEnabled(on bool) {
	s.Input.SetKeyboardEnabled(on)
	s.prefs.KeyboardEnabled = on
	s.save()
	s.notifyInput()
}

// SetGamepadEnabled toggles the gamepad source and remembers the choice.
func (s *State) SetGamepadEnabled(on bool) {
	s.Input.SetGamepadEnabled(on)
	s.prefs.GamepadEnabled = on
	s.save()
	s.notifyInput()
}

// Select makes id the active vehicle and remembers it.
func (s *State) Select(id string) error {
	if err := s.Vehicles.Select(id); err != nil {
		return err
	}
	s.prefs.LastVehicle = id
	s.save()
	return nil
}

// ConfirmIdentity settles a pending identity change of vehicle id.
func (s *State) ConfirmIdentity(id string, accept bool) error {
	if err := s.Vehicles.ResolveIdentity(id, accept); err != nil {
		return err
	}
	if accept {
		s.Alerts.Info(fmt.Sprintf("%s: new vehicle identity accepted, mission and parameters cleared", id))
	}
	return nil
}

// SetViewVisible records whether the operator is looking at the station.
// Background refreshes pause while it is hidden.
func (s *State) SetViewVisible(v bool) { s.viewVisible = v }
func (s *State) ViewVisible() bool     { return s.viewVisible }

func (s *State) save() {
	if err := s.store.Save(s.prefs); err != nil {
		s.logger.Error(err, "Failed to save preferences")
		s.Alerts.Warn("Preferences could not be saved")
	}
}

// RegisterVehicle adds a vehicle and selects it if nothing is active yet or
// it was the vehicle selected last time.
func (s *State) RegisterVehicle(id, name string) {
	if id == "" {
		return
	}
	delete(s.removed, id)
	if s.Vehicles.Register(id, name, s.sched.Now()) {
		s.logger.Info("Vehicle registered", "vehicle", id, "name", name)
		s.Alerts.Info(fmt.Sprintf("Vehicle %s connected", displayName(id, name)))
	}
	if s.Vehicles.ActiveID() == "" || id == s.prefs.LastVehicle {
		_ = s.Vehicles.Select(id)
	}
	metrics.VehiclesRegistered.Set(float64(s.Vehicles.Len()))
}

// RemoveVehicle drops a vehicle and all of its state. Late telemetry for id
// is ignored until RegisterVehicle or Readmit.
func (s *State) RemoveVehicle(id string) {
	if id != "" {
		s.removed[id] = struct{}{}
	}
	if !s.Vehicles.Remove(id) {
		return
	}
	s.logger.Info("Vehicle removed", "vehicle", id)
	s.Alerts.Warn(fmt.Sprintf("Vehicle %s disconnected", id))
	metrics.VehiclesRegistered.Set(float64(s.Vehicles.Len()))
}

// Readmit lets telemetry for a previously removed vehicle register it again.
func (s *State) Readmit(id string) {
	delete(s.removed, id)
}

// Removed reports whether id was disconnected and not readmitted since.
func (s *State) Removed(id string) bool {
	_, ok := s.removed[id]
	return ok
}

func displayName(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
