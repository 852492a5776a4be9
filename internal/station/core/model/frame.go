package model

// FrameType tags every message exchanged with the backend.
type FrameType string

const (
	FrameTelemetry  FrameType = "telemetry"
	FrameStatusText FrameType = "statustext"
	FrameLog        FrameType = "log"
	FrameVehicle    FrameType = "vehicle"
	FrameRCOverride FrameType = "rc_override"
)

// StatusText is a human readable message emitted by the vehicle.
type StatusText struct {
	Severity int    `json:"severity"`
	Text     string `json:"text"`
}

// LogLine is a log message forwarded by the backend.
type LogLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// VehicleEvent announces that the backend gained or lost a vehicle link.
type VehicleEvent struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// InboundFrame is a decoded backend message. Exactly one payload field is set,
// matching Type. StatusTexts may accompany a telemetry frame.
type InboundFrame struct {
	Type FrameType
	// VehicleID is empty when the backend did not say which vehicle the frame
	// belongs to.
	VehicleID string

	Telemetry   *TelemetrySnapshot
	StatusTexts []StatusText
	Log         *LogLine
	Vehicle     *VehicleEvent
}

// OutboundFrame is a message the station sends to the backend.
type OutboundFrame interface {
	Kind() FrameType
	// Target is the vehicle the frame is addressed to, empty for the default.
	Target() string
}

// RCOverride carries one manual control sample.
type RCOverride struct {
	Type      FrameType `json:"type"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Channels  Channels  `json:"channels"`
}

// NewRCOverride builds an rc_override frame for vehicleID.
func NewRCOverride(vehicleID string, ch Channels) RCOverride {
	return RCOverride{Type: FrameRCOverride, VehicleID: vehicleID, Channels: ch}
}

func (f RCOverride) Kind() FrameType { return FrameRCOverride }
func (f RCOverride) Target() string  { return f.VehicleID }
