package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/groundlink/internal/station/core/input"
	"github.com/autopeer-io/groundlink/pkg/options"
)

// fakeBackend accepts one WebSocket at a time, announces a vehicle and
// forwards everything the station sends.
func fakeBackend(t *testing.T, received chan<- map[string]any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		telemetry := `{"type":"telemetry","vehicle_id":"sitl-1","mode":"STABILIZE","remaining":80}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(telemetry)); err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				select {
				case received <- m:
				default:
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, backendURL string) *Config {
	t.Helper()

	prefsFile := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(prefsFile, []byte("keyboard-enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	to := options.NewTransportOptions()
	to.URL = "ws" + strings.TrimPrefix(backendURL, "http") + "/ws"
	to.ReconnectDelay = 50 * time.Millisecond

	bo := options.NewBackendOptions()
	bo.BaseURL = backendURL

	ho := options.NewHttpOptions()
	ho.Addr = ""

	co := options.NewControlOptions()
	co.Period = 10 * time.Millisecond

	return &Config{
		TransportOptions:  to,
		MqttOptions:       options.NewMqttOptions(),
		BackendOptions:    bo,
		HttpOptions:       ho,
		ControlOptions:    co,
		PreferenceOptions: &options.PreferenceOptions{File: prefsFile},
	}
}

func TestStationStreamsManualControl(t *testing.T) {
	received := make(chan map[string]any, 64)
	backend := fakeBackend(t, received)

	st, err := testConfig(t, backend.URL).NewStation()
	if err != nil {
		t.Fatalf("NewStation() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	timeout := time.After(5 * time.Second)
	for got := false; !got; {
		select {
		case m := <-received:
			if m["type"] == "rc_override" && m["vehicle_id"] == "sitl-1" {
				got = true
			}
		case <-timeout:
			t.Fatal("no rc_override frame reached the backend")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if v, ok := st.state.Vehicles.Get("sitl-1"); !ok || v.Telemetry.Remaining != 80 {
		t.Errorf("vehicle sitl-1 = %+v, %v", v.Telemetry, ok)
	}
	if st.state.Vehicles.ActiveID() != "sitl-1" {
		t.Errorf("active vehicle = %q, want sitl-1", st.state.Vehicles.ActiveID())
	}
}

func TestNewStationRejectsBadBindings(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ControlOptions.KeyBindings = map[string]string{"x": "elevator:100"}
	if _, err := cfg.NewStation(); err == nil {
		t.Error("NewStation() accepted an unknown channel")
	}
}

func TestInputConfigOverrides(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ControlOptions.KeyBindings = map[string]string{"w": "throttle:200", "z": "yaw:-100"}

	c, err := cfg.inputConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Keys["w"]; got != (input.Binding{Channel: input.Throttle, Delta: 200}) {
		t.Errorf("w = %+v", got)
	}
	if got := c.Keys["z"]; got != (input.Binding{Channel: input.Yaw, Delta: -100}) {
		t.Errorf("z = %+v", got)
	}
	if got := c.Keys["s"]; got != (input.Binding{Channel: input.Pitch, Delta: input.KeyStep}) {
		t.Errorf("default s = %+v", got)
	}
}
