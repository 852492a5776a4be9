package model

import "time"

// InputSource names where the current channel tuple came from.
type InputSource string

const (
	InputNone     InputSource = "none"
	InputKeyboard InputSource = "keyboard"
	InputGamepad  InputSource = "gamepad"
)

// Channels is the manual control tuple in roll, pitch, throttle, yaw order.
type Channels [4]int

// ManualControlState describes the outbound manual control stream.
type ManualControlState struct {
	Active       bool        `json:"active"`
	Source       InputSource `json:"source"`
	LastChannels Channels    `json:"last_channels"`
	LastSentAt   time.Time   `json:"last_sent_at"`
	// ModeWarning is set while the active vehicle reports a flight mode that
	// is not known to accept manual control.
	ModeWarning bool   `json:"mode_warning"`
	Mode        string `json:"mode,omitempty"`
	State       string `json:"state"`
}

// Preferences is the small set of settings that outlives the process.
type Preferences struct {
	KeyboardEnabled   bool          `json:"keyboard-enabled" mapstructure:"keyboard-enabled"`
	GamepadEnabled    bool          `json:"gamepad-enabled" mapstructure:"gamepad-enabled"`
	Deadzone          float64       `json:"deadzone" mapstructure:"deadzone"`
	InvertPitch       bool          `json:"invert-pitch" mapstructure:"invert-pitch"`
	InvertThrottle    bool          `json:"invert-throttle" mapstructure:"invert-throttle"`
	LastVehicle       string        `json:"last-vehicle" mapstructure:"last-vehicle"`
	ParamPollInterval time.Duration `json:"param-poll-interval" mapstructure:"param-poll-interval"`
}

// DefaultPreferences returns the settings used when nothing was saved yet.
func DefaultPreferences() Preferences {
	return Preferences{
		Deadzone:          0.1,
		InvertThrottle:    true,
		ParamPollInterval: 2 * time.Second,
	}
}
