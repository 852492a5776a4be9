package session

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/internal/station/core/reducer"
)

// HandleFrame routes one decoded backend frame. Frames for the same vehicle
// must be handed over in the order they were received.
func (s *State) HandleFrame(f model.InboundFrame) {
	metrics.FramesReceivedTotal.WithLabelValues(string(f.Type)).Inc()

	switch f.Type {
	case model.FrameTelemetry:
		s.handleTelemetry(f)
	case model.FrameStatusText:
		s.handleStatusTexts(s.route(f.VehicleID), f.StatusTexts)
	case model.FrameLog:
		s.handleLog(f.Log)
	case model.FrameVehicle:
		if f.Vehicle.Connected {
			s.RegisterVehicle(f.VehicleID, f.Vehicle.Name)
		} else {
			s.RemoveVehicle(f.VehicleID)
		}
	}
}

// route resolves the vehicle a frame belongs to. Frames that do not name a
// vehicle go to the active one.
func (s *State) route(id string) string {
	if id != "" {
		return id
	}
	return s.Vehicles.ActiveID()
}

func (s *State) handleTelemetry(f model.InboundFrame) {
	id := s.route(f.VehicleID)
	if id == "" {
		metrics.FramesDroppedTotal.WithLabelValues("unrouted").Inc()
		return
	}
	if f.VehicleID != "" && !s.Vehicles.Has(id) {
		if s.Removed(id) {
			metrics.FramesDroppedTotal.WithLabelValues("unrouted").Inc()
			return
		}
		s.RegisterVehicle(id, "")
	}

	sig, ok := s.Vehicles.ApplyTelemetry(id, *f.Telemetry, s.sched.Now())
	if !ok {
		metrics.FramesDroppedTotal.WithLabelValues("unrouted").Inc()
		return
	}
	s.handleSignals(id, sig)
	s.handleStatusTexts(id, f.StatusTexts)
}

func (s *State) handleSignals(id string, sig reducer.Signals) {
	if sig.IdentityChanged {
		s.logger.Warn("Vehicle identity changed", "vehicle", id,
			"previousSystemID", sig.Previous.SystemID, "systemID", sig.Current.SystemID,
			"autopilot", sig.Current.Autopilot, "platform", sig.Current.Platform)
		s.Alerts.Warn(fmt.Sprintf("%s: a different vehicle is answering (system %d, %s %s); confirm to reset mission and parameters",
			id, sig.Current.SystemID, sig.Current.Autopilot, sig.Current.Platform))
	}
	if sig.LowBattery {
		s.Alerts.Warn(fmt.Sprintf("%s: battery low (%d%%)", id, sig.Remaining))
	}
	if sig.ArmedChanged {
		state := "disarmed"
		if sig.Armed {
			state = "armed"
		}
		s.logger.Info("Vehicle "+state, "vehicle", id)
		s.Alerts.Info(fmt.Sprintf("%s %s", id, state))
	}
}

func (s *State) handleStatusTexts(id string, texts []model.StatusText) {
	for _, st := range texts {
		text := strings.TrimSpace(st.Text)
		if text == "" {
			continue
		}
		if id != "" {
			text = id + ": " + text
		}
		s.Alerts.Push(text, model.SeverityFromStatusText(st.Severity))
	}
}

func (s *State) handleLog(l *model.LogLine) {
	logger := s.logger.WithName("backend")
	switch strings.ToLower(l.Level) {
	case "debug":
		logger.Debug(l.Message)
	case "warn", "warning":
		logger.Warn(l.Message)
	case "error", "critical":
		logger.Error(nil, l.Message)
	default:
		logger.Info(l.Message)
	}
}
