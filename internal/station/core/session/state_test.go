package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type failingStore struct{}

func (failingStore) Load() (model.Preferences, error) { return model.Preferences{}, errors.New("disk on fire") }
func (failingStore) Save(model.Preferences) error     { return errors.New("disk on fire") }

func newState(store core.PreferenceStore) (*State, *runloop.Loop, *clocktesting.FakeClock) {
	clk := clocktesting.NewFakeClock(t0)
	loop := runloop.New(clk, logr.Discard())
	return New(loop, store, DefaultConfig()), loop, clk
}

func telemetry(id string, mut func(s *model.TelemetrySnapshot)) model.InboundFrame {
	s := model.DefaultTelemetry()
	if mut != nil {
		mut(&s)
	}
	return model.InboundFrame{Type: model.FrameTelemetry, VehicleID: id, Telemetry: &s}
}

func alertMessages(s *State) []string {
	var out []string
	for _, a := range s.Alerts.List() {
		out = append(out, a.Message)
	}
	return out
}

func TestVehicleFrames(t *testing.T) {
	s, _, _ := newState(nil)

	s.HandleFrame(model.InboundFrame{Type: model.FrameVehicle, VehicleID: "sitl-1", Vehicle: &model.VehicleEvent{Name: "Copter", Connected: true}})
	s.HandleFrame(model.InboundFrame{Type: model.FrameVehicle, VehicleID: "sitl-2", Vehicle: &model.VehicleEvent{Connected: true}})

	if s.Vehicles.Len() != 2 {
		t.Fatalf("registered %d vehicles, want 2", s.Vehicles.Len())
	}
	if s.Vehicles.ActiveID() != "sitl-1" {
		t.Errorf("active = %q, want the first vehicle", s.Vehicles.ActiveID())
	}

	s.HandleFrame(model.InboundFrame{Type: model.FrameVehicle, VehicleID: "sitl-1", Vehicle: &model.VehicleEvent{}})
	if s.Vehicles.Has("sitl-1") || s.Vehicles.ActiveID() != "" {
		t.Error("disconnect did not remove the active vehicle")
	}
}

func TestTelemetryRouting(t *testing.T) {
	s, _, _ := newState(nil)

	// Nothing registered and no id: dropped.
	s.HandleFrame(telemetry("", nil))
	if s.Vehicles.Len() != 0 {
		t.Fatal("frame without a vehicle created one")
	}

	// An explicit id registers the vehicle and selects it.
	s.HandleFrame(telemetry("v1", func(t *model.TelemetrySnapshot) { t.Lat, t.Lon = 1, 1 }))
	if s.Vehicles.ActiveID() != "v1" {
		t.Fatalf("active = %q, want v1", s.Vehicles.ActiveID())
	}

	// No id: routed to the active vehicle.
	s.HandleFrame(telemetry("", func(t *model.TelemetrySnapshot) { t.Lat, t.Lon = 2, 2 }))
	v, _ := s.Vehicles.Get("v1")
	if len(v.Trail) != 2 {
		t.Errorf("trail = %v, want two points", v.Trail)
	}
}

func TestLateTelemetryAfterDisconnect(t *testing.T) {
	s, _, _ := newState(nil)
	connect := model.InboundFrame{Type: model.FrameVehicle, VehicleID: "sitl-1", Vehicle: &model.VehicleEvent{Name: "Copter", Connected: true}}
	disconnect := model.InboundFrame{Type: model.FrameVehicle, VehicleID: "sitl-1", Vehicle: &model.VehicleEvent{}}

	s.HandleFrame(connect)
	s.HandleFrame(telemetry("sitl-1", nil))
	s.HandleFrame(disconnect)
	s.HandleFrame(telemetry("sitl-1", func(t *model.TelemetrySnapshot) { t.Lat, t.Lon = 1, 1 }))

	if s.Vehicles.Has("sitl-1") || s.Vehicles.ActiveID() != "" || s.Vehicles.Len() != 0 {
		t.Fatalf("late telemetry revived the vehicle: active=%q len=%d", s.Vehicles.ActiveID(), s.Vehicles.Len())
	}
	want := []string{"Vehicle Copter (sitl-1) connected", "Vehicle sitl-1 disconnected"}
	if diff := cmp.Diff(want, alertMessages(s)); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}

	// Other vehicles still register from telemetry.
	s.HandleFrame(telemetry("sitl-2", nil))
	if !s.Vehicles.Has("sitl-2") {
		t.Error("telemetry for a new vehicle was dropped")
	}

	// A new announcement brings it back and telemetry flows again.
	s.HandleFrame(connect)
	s.HandleFrame(telemetry("sitl-1", func(t *model.TelemetrySnapshot) { t.Lat, t.Lon = 2, 2 }))
	if v, ok := s.Vehicles.Get("sitl-1"); !ok || len(v.Trail) != 1 {
		t.Errorf("reconnected vehicle = %+v, %v", v.Trail, ok)
	}
}

func TestReadmitAllowsTelemetry(t *testing.T) {
	s, _, _ := newState(nil)
	s.HandleFrame(telemetry("v1", nil))
	s.RemoveVehicle("v1")
	if !s.Removed("v1") {
		t.Fatal("removal was not recorded")
	}

	s.Readmit("v1")
	s.HandleFrame(telemetry("v1", nil))
	if !s.Vehicles.Has("v1") || s.Removed("v1") {
		t.Error("readmitted vehicle did not register from telemetry")
	}
}

func TestSignalsBecomeAlerts(t *testing.T) {
	s, _, _ := newState(nil)
	hb := func(sys int) func(*model.TelemetrySnapshot) {
		return func(t *model.TelemetrySnapshot) {
			t.SystemID = sys
			t.Autopilot = "ardupilot"
			t.PlatformType = "quadrotor"
			t.Remaining = 50
		}
	}

	s.RegisterVehicle("v1", "")
	s.Alerts.Clear()

	s.HandleFrame(telemetry("v1", hb(1)))
	if got := len(s.Alerts.List()); got != 0 {
		t.Fatalf("first heartbeat raised %d alerts: %v", got, alertMessages(s))
	}

	s.HandleFrame(telemetry("v1", hb(2)))
	s.HandleFrame(telemetry("v1", func(t *model.TelemetrySnapshot) { hb(2)(t); t.Remaining = 12 }))

	msgs := alertMessages(s)
	if len(msgs) != 2 {
		t.Fatalf("alerts = %v, want identity and battery", msgs)
	}
	if !strings.Contains(msgs[0], "different vehicle") || !strings.Contains(msgs[1], "battery low (12%)") {
		t.Errorf("unexpected alerts: %v", msgs)
	}
	for _, a := range s.Alerts.List() {
		if a.Severity != model.SeverityWarning {
			t.Errorf("alert %q has severity %s", a.Message, a.Severity)
		}
	}

	if err := s.ConfirmIdentity("v1", true); err != nil {
		t.Fatalf("ConfirmIdentity: %v", err)
	}
	v, _ := s.Vehicles.Get("v1")
	if v.Identity.SystemID != 2 {
		t.Errorf("identity after confirm = %+v", v.Identity)
	}
}

func TestStatusTextSeverity(t *testing.T) {
	s, _, _ := newState(nil)
	s.RegisterVehicle("v1", "")
	s.Alerts.Clear()

	f := telemetry("v1", nil)
	f.StatusTexts = []model.StatusText{{Severity: 2, Text: "PreArm: RC not calibrated"}, {Severity: 6, Text: " "}}
	s.HandleFrame(f)
	s.HandleFrame(model.InboundFrame{Type: model.FrameStatusText, StatusTexts: []model.StatusText{{Severity: 4, Text: "EKF variance"}}})

	got := s.Alerts.List()
	want := []model.Alert{
		{Message: "v1: PreArm: RC not calibrated", Severity: model.SeverityError},
		{Message: "v1: EKF variance", Severity: model.SeverityWarning},
	}
	if diff := cmp.Diff(want, got, cmpAlertIgnoreIdentity); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}
}

var cmpAlertIgnoreIdentity = cmp.Transformer("alert", func(a model.Alert) struct {
	Message  string
	Severity model.Severity
} {
	return struct {
		Message  string
		Severity model.Severity
	}{a.Message, a.Severity}
})

func TestPreferencesLifecycle(t *testing.T) {
	saved := model.DefaultPreferences()
	saved.GamepadEnabled = true
	saved.LastVehicle = "v2"
	store := &core.MemoryPreferenceStore{Prefs: &saved}

	s, _, _ := newState(store)
	notified := 0
	s.OnInputChange(func() { notified++ })

	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !s.Input.GamepadEnabled() || s.Input.KeyboardEnabled() {
		t.Error("input flags not restored from preferences")
	}
	if notified != 1 {
		t.Errorf("input listeners notified %d times on Init, want 1", notified)
	}

	s.RegisterVehicle("v1", "")
	s.RegisterVehicle("v2", "")
	if s.Vehicles.ActiveID() != "v2" {
		t.Errorf("active = %q, want the last selected vehicle v2", s.Vehicles.ActiveID())
	}

	s.SetKeyboardEnabled(true)
	if err := s.Select("v1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	if !store.Prefs.KeyboardEnabled || store.Prefs.LastVehicle != "v1" {
		t.Errorf("saved preferences = %+v", *store.Prefs)
	}
	if len(s.Alerts.List()) != 0 {
		t.Error("Dispose left alerts behind")
	}
}

func TestUnreadablePreferences(t *testing.T) {
	s, _, _ := newState(failingStore{})

	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if diff := cmp.Diff(model.DefaultPreferences(), s.Preferences()); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
	if len(s.Alerts.List()) != 1 {
		t.Errorf("alerts = %v, want one warning", alertMessages(s))
	}
	if err := s.Dispose(); err == nil {
		t.Error("Dispose succeeded with a failing store")
	}
}

func TestAlertsExpireThroughLoop(t *testing.T) {
	s, loop, clk := newState(nil)
	s.RegisterVehicle("v1", "")

	clk.Step(5 * time.Second)
	loop.RunPending()
	if len(s.Alerts.List()) != 0 {
		t.Error("registration alert did not expire")
	}
}
