package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

// ErrMalformedFrame is wrapped by every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// vehicleID accepts both "vehicle_id": "sitl-1" and "vehicle_id": 1.
type vehicleID string

func (v *vehicleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = vehicleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("vehicle_id %s is not an integer", n)
	}
	*v = vehicleID(n.String())
	return nil
}

// wireInt accepts any JSON number for an integer field. Fractions are
// truncated toward zero.
type wireInt struct {
	set bool
	v   int
}

func (w *wireInt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("%v is out of range", f)
	}
	w.set, w.v = true, int(f)
	return nil
}

func (w wireInt) apply(dst *int) {
	if w.set {
		*dst = w.v
	}
}

// telemetryWire shadows the integer fields of the snapshot so a backend
// reporting them as floats does not cost the whole frame.
type telemetryWire struct {
	*model.TelemetrySnapshot

	Remaining  wireInt `json:"remaining"`
	FixType    wireInt `json:"fix_type"`
	Satellites wireInt `json:"satellites"`
	SystemID   wireInt `json:"system_id"`
}

func decodeTelemetry(data []byte) (model.TelemetrySnapshot, error) {
	snap := model.DefaultTelemetry()
	w := telemetryWire{TelemetrySnapshot: &snap}
	if err := json.Unmarshal(data, &w); err != nil {
		return model.TelemetrySnapshot{}, err
	}
	w.Remaining.apply(&snap.Remaining)
	w.FixType.apply(&snap.FixType)
	w.Satellites.apply(&snap.Satellites)
	w.SystemID.apply(&snap.SystemID)
	normalizeTelemetry(&snap)
	return snap, nil
}

// envelope holds the fields shared by all inbound frame types.
type envelope struct {
	Type      model.FrameType `json:"type"`
	VehicleID vehicleID       `json:"vehicle_id"`

	// telemetry
	StatusText []model.StatusText `json:"statustext"`

	// statustext
	Severity *int   `json:"severity"`
	Text     string `json:"text"`

	// log
	Level   string `json:"level"`
	Message string `json:"message"`

	// vehicle
	Name      string `json:"name"`
	Connected *bool  `json:"connected"`
}

// DecodeFrame parses one inbound message. hint is the vehicle id implied by
// the channel the message arrived on, used when the frame does not name one.
func DecodeFrame(data []byte, hint string) (model.InboundFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := model.InboundFrame{Type: env.Type, VehicleID: string(env.VehicleID)}
	if f.VehicleID == "" {
		f.VehicleID = hint
	}

	switch env.Type {
	case model.FrameTelemetry:
		snap, err := decodeTelemetry(data)
		if err != nil {
			return model.InboundFrame{}, fmt.Errorf("%w: telemetry: %v", ErrMalformedFrame, err)
		}
		f.Telemetry = &snap
		f.StatusTexts = env.StatusText

	case model.FrameStatusText:
		if env.Severity == nil || strings.TrimSpace(env.Text) == "" {
			return model.InboundFrame{}, fmt.Errorf("%w: statustext without severity or text", ErrMalformedFrame)
		}
		f.StatusTexts = []model.StatusText{{Severity: *env.Severity, Text: env.Text}}

	case model.FrameLog:
		if env.Message == "" {
			return model.InboundFrame{}, fmt.Errorf("%w: log without message", ErrMalformedFrame)
		}
		f.Log = &model.LogLine{Level: env.Level, Message: env.Message}

	case model.FrameVehicle:
		if f.VehicleID == "" {
			return model.InboundFrame{}, fmt.Errorf("%w: vehicle frame without vehicle_id", ErrMalformedFrame)
		}
		connected := env.Connected == nil || *env.Connected
		f.Vehicle = &model.VehicleEvent{Name: env.Name, Connected: connected}

	default:
		return model.InboundFrame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, env.Type)
	}

	return f, nil
}

func normalizeTelemetry(s *model.TelemetrySnapshot) {
	if s.Mode == "" {
		s.Mode = model.Unknown
	}
	if s.Autopilot == "" {
		s.Autopilot = model.Unknown
	}
	if s.PlatformType == "" {
		s.PlatformType = model.Unknown
	}
	// The receipt time is stamped by the station, never taken from the wire.
	s.ReceivedAt = time.Time{}
}

// EncodeFrame serializes an outbound frame.
func EncodeFrame(f model.OutboundFrame) ([]byte, error) {
	return json.Marshal(f)
}
