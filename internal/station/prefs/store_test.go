package prefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

func TestLoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "prefs.yaml"))

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(model.DefaultPreferences(), got); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "station", "prefs.yaml"))
	want := model.Preferences{
		KeyboardEnabled:   true,
		Deadzone:          0.05,
		InvertPitch:       true,
		LastVehicle:       "sitl-2",
		ParamPollInterval: 3 * time.Second,
	}

	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("gamepad-enabled: true\nparam-poll-interval: 4s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := model.DefaultPreferences()
	want.GamepadEnabled = true
	want.ParamPollInterval = 4 * time.Second
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("deadzone: [not, a, number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Error("Load() of a corrupt file succeeded")
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s := NewFileStore(path)
	if err := s.Save(model.DefaultPreferences()); err != nil {
		t.Fatal(err)
	}

	changes := make(chan model.Preferences, 8)
	s.Watch(func(p model.Preferences) { changes <- p })

	if err := os.WriteFile(path, []byte("keyboard-enabled: true\nlast-vehicle: uav-3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-changes:
			if p.KeyboardEnabled && p.LastVehicle == "uav-3" {
				return
			}
		case <-timeout:
			t.Fatal("no change notification for an external edit")
		}
	}
}
