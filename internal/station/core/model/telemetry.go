package model

import "time"

// Unknown is the placeholder for string telemetry fields the backend omitted.
const Unknown = "unknown"

// MissionStatusIdle is reported when a frame carries no mission status.
const MissionStatusIdle = "idle"

// TelemetrySnapshot is the flat, fully populated state of one vehicle as
// reported by a single telemetry frame. It is replaced wholesale per frame.
type TelemetrySnapshot struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Alt    float64 `json:"alt"`
	AltMSL float64 `json:"alt_msl"`

	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Yaw     float64 `json:"yaw"`
	Heading float64 `json:"heading"`

	Groundspeed float64 `json:"groundspeed"`
	Airspeed    float64 `json:"airspeed"`
	Climb       float64 `json:"climb"`

	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	// Remaining is the battery charge in percent, or -1 when not reported.
	Remaining int `json:"remaining"`

	FixType    int     `json:"fix_type"`
	Satellites int     `json:"satellites"`
	HDOP       float64 `json:"hdop"`

	Armed         bool    `json:"armed"`
	Mode          string  `json:"mode"`
	Autopilot     string  `json:"autopilot"`
	PlatformType  string  `json:"platform_type"`
	SystemID      int     `json:"system_id"`
	HeartbeatAge  float64 `json:"heartbeat_age"`
	MissionStatus string  `json:"mission_status"`

	ReceivedAt time.Time `json:"received_at"`
}

// DefaultTelemetry is the snapshot a freshly registered vehicle starts with.
func DefaultTelemetry() TelemetrySnapshot {
	return TelemetrySnapshot{
		Remaining:     -1,
		Mode:          Unknown,
		Autopilot:     Unknown,
		PlatformType:  Unknown,
		MissionStatus: MissionStatusIdle,
	}
}

// Identity returns the vehicle identity carried by the snapshot's heartbeat.
// ok is false when the snapshot holds no heartbeat information yet.
func (s TelemetrySnapshot) Identity() (id Identity, ok bool) {
	if s.SystemID <= 0 && s.Autopilot == Unknown && s.PlatformType == Unknown {
		return Identity{}, false
	}
	return Identity{SystemID: s.SystemID, Autopilot: s.Autopilot, Platform: s.PlatformType}, true
}

// Identity is what the station uses to notice that a different vehicle now
// answers under the same id.
type Identity struct {
	SystemID  int    `json:"system_id"`
	Autopilot string `json:"autopilot"`
	Platform  string `json:"platform"`
}

// TrailPoint is one position on the flown track.
type TrailPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BatterySample is one entry of the battery history chart.
type BatterySample struct {
	At      time.Time `json:"at"`
	Voltage float64   `json:"voltage"`
	Current float64   `json:"current"`
}
