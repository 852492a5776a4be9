package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/groundlink/internal/station/backend"
	"github.com/autopeer-io/groundlink/internal/station/core/input"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/registry"
	"github.com/autopeer-io/groundlink/internal/station/transport"
)

// VehicleSummary is one row of GET /api/vehicles.
type VehicleSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Active          bool    `json:"active"`
	Mode            string  `json:"mode"`
	Armed           bool    `json:"armed"`
	Remaining       int     `json:"remaining"`
	Voltage         float64 `json:"voltage"`
	Satellites      int     `json:"satellites"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Alt             float64 `json:"alt"`
	MissionStatus   string  `json:"mission_status"`
	PendingIdentity bool    `json:"pending_identity"`
}

// ControlStatus is the body of GET /api/control.
type ControlStatus struct {
	model.ManualControlState
	Transport string `json:"transport"`
	Keyboard  bool   `json:"keyboard_enabled"`
	Gamepad   bool   `json:"gamepad_enabled"`
}

func summarize(v model.Vehicle, active string) VehicleSummary {
	t := v.Telemetry
	return VehicleSummary{
		ID:              v.ID,
		Name:            v.Name,
		Active:          v.ID == active,
		Mode:            t.Mode,
		Armed:           t.Armed,
		Remaining:       t.Remaining,
		Voltage:         t.Voltage,
		Satellites:      t.Satellites,
		Lat:             t.Lat,
		Lon:             t.Lon,
		Alt:             t.Alt,
		MissionStatus:   v.MissionStatus,
		PendingIdentity: v.PendingIdentity != nil,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeCommandError maps errors from the core and the backend to statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	var se *backend.StatusError
	switch {
	case errors.Is(err, registry.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, registry.ErrNoPendingIdentity):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		writeJSON(w, se.StatusCode, map[string]string{"error": se.Message})
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// onLoop runs fn on the run loop, answering 503 if the loop does not pick it
// up before the request is done.
func (s *Server) onLoop(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.deps.Loop.Do(r.Context(), fn); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz is ready once the backend channel is up.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	var state transport.State
	if !s.onLoop(w, r, func() { state = s.deps.Link.State() }) {
		return
	}
	if state != transport.StateUp {
		http.Error(w, "backend "+state.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	var out []VehicleSummary
	ok := s.onLoop(w, r, func() {
		active := s.deps.State.Vehicles.ActiveID()
		out = []VehicleSummary{}
		for _, v := range s.deps.State.Vehicles.List() {
			out = append(out, summarize(v, active))
		}
	})
	if ok {
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var (
		v     model.Vehicle
		found bool
	)
	if !s.onLoop(w, r, func() { v, found = s.deps.State.Vehicles.Get(id) }) {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, registry.ErrVehicleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) selectVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var err error
	if !s.onLoop(w, r, func() { err = s.deps.State.Select(id) }) {
		return
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveIdentity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Accept bool `json:"accept"`
	}
	if !decode(w, r, &req) {
		return
	}
	var err error
	if !s.onLoop(w, r, func() { err = s.deps.State.ConfirmIdentity(id, req.Accept) }) {
		return
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	var out []model.Alert
	if s.onLoop(w, r, func() { out = s.deps.State.Alerts.List() }) {
		if out == nil {
			out = []model.Alert{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var found bool
	if !s.onLoop(w, r, func() { found = s.deps.State.Alerts.Dismiss(id) }) {
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) controlStatus(w http.ResponseWriter, r *http.Request) {
	var out ControlStatus
	ok := s.onLoop(w, r, func() {
		out = ControlStatus{
			ManualControlState: s.deps.Control.Status(),
			Transport:          s.deps.Link.State().String(),
			Keyboard:           s.deps.State.Input.KeyboardEnabled(),
			Gamepad:            s.deps.State.Input.GamepadEnabled(),
		}
	})
	if ok {
		writeJSON(w, http.StatusOK, out)
	}
}

type toggle struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setKeyboard(w http.ResponseWriter, r *http.Request) {
	var req toggle
	if decode(w, r, &req) && s.onLoop(w, r, func() { s.deps.State.SetKeyboardEnabled(req.Enabled) }) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) setGamepad(w http.ResponseWriter, r *http.Request) {
	var req toggle
	if decode(w, r, &req) && s.onLoop(w, r, func() { s.deps.State.SetGamepadEnabled(req.Enabled) }) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) setKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		Held bool   `json:"held"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key is required"))
		return
	}
	if s.onLoop(w, r, func() { s.deps.State.Input.SetKey(req.Key, req.Held) }) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// setAxes latches the reading; the gamepad poller samples it on its own
// schedule.
func (s *Server) setAxes(w http.ResponseWriter, r *http.Request) {
	var req input.GamepadState
	if !decode(w, r, &req) {
		return
	}
	s.deps.Gamepad.Store(req)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if decode(w, r, &req) && s.onLoop(w, r, func() { s.deps.State.SetViewVisible(req.Visible) }) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) connectVehicle(w http.ResponseWriter, r *http.Request) {
	var req backend.ConnectRequest
	if !decode(w, r, &req) {
		return
	}
	s.reply(w, s.deps.Commands.ConnectVehicle(r.Context(), mux.Vars(r)["id"], req))
}

func (s *Server) disconnectVehicle(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.deps.Commands.DisconnectVehicle(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) arm(arm bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, s.deps.Commands.Arm(r.Context(), mux.Vars(r)["id"], arm))
	}
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, errors.New("mode is required"))
		return
	}
	s.reply(w, s.deps.Commands.SetMode(r.Context(), mux.Vars(r)["id"], req.Mode))
}

func (s *Server) refreshParams(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.deps.Commands.RefreshParams(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) setParam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Value float64 `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.deps.Commands.SetParam(r.Context(), vars["id"], vars["name"], req.Value)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) downloadMission(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Commands.DownloadMission(r.Context(), mux.Vars(r)["id"])
	s.replyItems(w, items, err)
}

func (s *Server) uploadMission(w http.ResponseWriter, r *http.Request) {
	var items []model.MissionItem
	if decode(w, r, &items) {
		s.reply(w, s.deps.Commands.UploadMission(r.Context(), mux.Vars(r)["id"], items))
	}
}

func (s *Server) downloadFence(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Commands.DownloadFence(r.Context(), mux.Vars(r)["id"])
	s.replyItems(w, items, err)
}

func (s *Server) uploadFence(w http.ResponseWriter, r *http.Request) {
	var items []model.MissionItem
	if decode(w, r, &items) {
		s.reply(w, s.deps.Commands.UploadFence(r.Context(), mux.Vars(r)["id"], items))
	}
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sensor string `json:"sensor"`
	}
	if decode(w, r, &req) {
		s.reply(w, s.deps.Commands.Calibrate(r.Context(), mux.Vars(r)["id"], req.Sensor))
	}
}

func (s *Server) pointGimbal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pitch float64 `json:"pitch"`
		Yaw   float64 `json:"yaw"`
	}
	if decode(w, r, &req) {
		s.reply(w, s.deps.Commands.PointGimbal(r.Context(), mux.Vars(r)["id"], req.Pitch, req.Yaw))
	}
}

func (s *Server) setServo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel int `json:"channel"`
		PWM     int `json:"pwm"`
	}
	if decode(w, r, &req) {
		s.reply(w, s.deps.Commands.SetServo(r.Context(), mux.Vars(r)["id"], req.Channel, req.PWM))
	}
}

func (s *Server) testMotor(w http.ResponseWriter, r *http.Request) {
	var req backend.MotorTest
	if decode(w, r, &req) {
		s.reply(w, s.deps.Commands.TestMotor(r.Context(), mux.Vars(r)["id"], req))
	}
}

func (s *Server) weather(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := latLon(w, r)
	if !ok {
		return
	}
	out, err := s.deps.Commands.Weather(r.Context(), lat, lon)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) terrain(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := latLon(w, r)
	if !ok {
		return
	}
	out, err := s.deps.Commands.Terrain(r.Context(), lat, lon)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func latLon(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return 0, 0, false
	}
	return lat, lon, true
}

func (s *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) replyItems(w http.ResponseWriter, items []model.MissionItem, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if items == nil {
		items = []model.MissionItem{}
	}
	writeJSON(w, http.StatusOK, items)
}
