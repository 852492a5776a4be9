// Package input turns keyboard and gamepad state into manual control channels.
package input

import (
	"math"

	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

const (
	ChannelMin    = 1000
	ChannelMax    = 2000
	ChannelCenter = 1500
	// KeyStep is how far one held key or button moves its channel.
	KeyStep = 300
	// AxisSpan is the offset from center at full axis deflection.
	AxisSpan = 500

	DefaultDeadzone = 0.1
)

// Centered is the neutral channel tuple.
var Centered = model.Channels{ChannelCenter, ChannelCenter, ChannelCenter, ChannelCenter}

// GamepadState is one poll of a gamepad. Axes are in [-1, 1].
type GamepadState struct {
	Axes    []float64 `json:"axes"`
	Buttons []bool    `json:"buttons"`
}

// Config holds the bindings used by the arbiter.
type Config struct {
	Keys     map[string]Binding
	Axes     []AxisBinding
	Buttons  map[int]Binding
	Deadzone float64
}

func DefaultConfig() Config {
	return Config{
		Keys:     DefaultKeyMap(),
		Axes:     DefaultAxes(),
		Buttons:  DefaultButtons(),
		Deadzone: DefaultDeadzone,
	}
}

// Arbiter merges the enabled input sources into one channel tuple. When both
// sources are enabled, whichever was recomputed last wins. It never sends.
type Arbiter struct {
	cfg Config

	keyboard bool
	gamepad  bool

	held map[string]struct{}
	pad  GamepadState

	channels model.Channels
	source   model.InputSource
}

func NewArbiter(cfg Config) *Arbiter {
	if cfg.Keys == nil {
		cfg.Keys = DefaultKeyMap()
	}
	return &Arbiter{
		cfg:      cfg,
		held:     make(map[string]struct{}),
		channels: Centered,
		source:   model.InputNone,
	}
}

// Enabled reports whether any source is enabled.
func (a *Arbiter) Enabled() bool { return a.keyboard || a.gamepad }

func (a *Arbiter) KeyboardEnabled() bool { return a.keyboard }
func (a *Arbiter) GamepadEnabled() bool  { return a.gamepad }

// SetKeyboardEnabled toggles the keyboard source. Disabling it releases all
// held keys.
func (a *Arbiter) SetKeyboardEnabled(on bool) {
	a.keyboard = on
	if !on {
		clear(a.held)
	} else {
		a.computeKeyboard()
	}
	a.settle()
}

// SetGamepadEnabled toggles the gamepad source.
func (a *Arbiter) SetGamepadEnabled(on bool) {
	a.gamepad = on
	if !on {
		a.pad = GamepadState{}
	} else {
		a.computeGamepad()
	}
	a.settle()
}

// SetDeadzone replaces the gamepad deadzone.
func (a *Arbiter) SetDeadzone(dz float64) { a.cfg.Deadzone = dz }

// SetAxisInvert flips the invert flag of every axis bound to ch.
func (a *Arbiter) SetAxisInvert(ch Channel, invert bool) {
	for i := range a.cfg.Axes {
		if a.cfg.Axes[i].Channel == ch {
			a.cfg.Axes[i].Invert = invert
		}
	}
}

// AxisInverted reports the invert flag of the first axis bound to ch.
func (a *Arbiter) AxisInverted(ch Channel) bool {
	for _, b := range a.cfg.Axes {
		if b.Channel == ch {
			return b.Invert
		}
	}
	return false
}

// Deadzone returns the gamepad deadzone.
func (a *Arbiter) Deadzone() float64 { return a.cfg.Deadzone }

// SetKey records a key press or release. Keys are ignored while the keyboard
// source is disabled.
func (a *Arbiter) SetKey(key string, down bool) {
	if !a.keyboard {
		return
	}
	if down {
		a.held[key] = struct{}{}
	} else {
		delete(a.held, key)
	}
	a.computeKeyboard()
}

// HeldKeys returns the number of keys currently held.
func (a *Arbiter) HeldKeys() int { return len(a.held) }

// SetGamepad records a gamepad poll.
func (a *Arbiter) SetGamepad(s GamepadState) {
	if !a.gamepad {
		return
	}
	a.pad = s
	a.computeGamepad()
}

// Channels returns the current tuple and the source that produced it.
func (a *Arbiter) Channels() (model.Channels, model.InputSource) {
	return a.channels, a.source
}

func (a *Arbiter) computeKeyboard() {
	keys := make([]string, 0, len(a.held))
	for k := range a.held {
		keys = append(keys, k)
	}
	a.channels = KeyboardChannels(keys, a.cfg.Keys)
	a.source = model.InputKeyboard
}

func (a *Arbiter) computeGamepad() {
	a.channels = GamepadChannels(a.pad, a.cfg)
	a.source = model.InputGamepad
}

// settle recenters the output once no source is left, or hands it to the
// remaining source when the one that produced it was disabled.
func (a *Arbiter) settle() {
	switch {
	case !a.keyboard && !a.gamepad:
		a.channels, a.source = Centered, model.InputNone
	case a.source == model.InputKeyboard && !a.keyboard:
		a.computeGamepad()
	case a.source == model.InputGamepad && !a.gamepad:
		a.computeKeyboard()
	}
}

// KeyboardChannels sums the bindings of all held keys on top of center.
func KeyboardChannels(held []string, keys map[string]Binding) model.Channels {
	out := Centered
	for _, k := range held {
		if b, ok := keys[k]; ok && b.Channel >= Roll && b.Channel <= Yaw {
			out[b.Channel] += b.Delta
		}
	}
	return Clamp(out)
}

// GamepadChannels maps axes linearly to +/-AxisSpan around center after the
// deadzone, then adds bound buttons like keys.
func GamepadChannels(s GamepadState, cfg Config) model.Channels {
	out := Centered
	for _, b := range cfg.Axes {
		if b.Axis < 0 || b.Axis >= len(s.Axes) || b.Channel < Roll || b.Channel > Yaw {
			continue
		}
		v := s.Axes[b.Axis]
		if math.IsNaN(v) || math.Abs(v) < cfg.Deadzone {
			v = 0
		}
		v = max(-1, min(1, v))
		if b.Invert {
			v = -v
		}
		out[b.Channel] += int(math.Round(v * AxisSpan))
	}
	for idx, b := range cfg.Buttons {
		if idx >= 0 && idx < len(s.Buttons) && s.Buttons[idx] && b.Channel >= Roll && b.Channel <= Yaw {
			out[b.Channel] += b.Delta
		}
	}
	return Clamp(out)
}

// Clamp bounds every channel to [ChannelMin, ChannelMax].
func Clamp(ch model.Channels) model.Channels {
	for i, v := range ch {
		ch[i] = min(max(v, ChannelMin), ChannelMax)
	}
	return ch
}
