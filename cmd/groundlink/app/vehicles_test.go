package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	stationhttp "github.com/autopeer-io/groundlink/internal/station/server/http"
)

func TestVehiclesCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vehicles" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]stationhttp.VehicleSummary{
			{ID: "sitl-1", Name: "Copter", Active: true, Mode: "LOITER", Remaining: 76},
			{ID: "sitl-2", Mode: "unknown", Remaining: -1, PendingIdentity: true},
		})
	}))
	defer srv.Close()

	cmd := newVehiclesCommand()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", srv.URL})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"sitl-1", "LOITER", "76%", "identity changed"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and two rows:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[1]), "*") {
		t.Errorf("active vehicle not marked: %q", lines[1])
	}
}

func TestVehiclesCommandEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	cmd := newVehiclesCommand()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", srv.URL})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "No vehicles") {
		t.Errorf("output = %q", out.String())
	}
}

func TestVehiclesCommandServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loop stalled", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := newVehiclesCommand()
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	cmd.SetArgs([]string{"--server", srv.URL})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("Execute() succeeded against a failing station")
	}
}
