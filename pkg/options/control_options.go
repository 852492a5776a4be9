package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ControlOptions)(nil)

// ControlOptions tune manual control.
type ControlOptions struct {
	// Period between two rc_override frames.
	Period time.Duration `json:"period" mapstructure:"period"`

	// ManualModes are flight modes that accept manual control. Sending in any
	// other mode raises a warning but is not blocked.
	ManualModes []string `json:"manual-modes" mapstructure:"manual-modes"`

	// KeyBindings override the default key map, as key=channel:delta,
	// e.g. w=pitch:-300.
	KeyBindings map[string]string `json:"key-bindings" mapstructure:"key-bindings"`

	GamepadPeriod time.Duration `json:"gamepad-period" mapstructure:"gamepad-period"`
}

func NewControlOptions() *ControlOptions {
	return &ControlOptions{
		Period:        50 * time.Millisecond,
		KeyBindings:   map[string]string{},
		GamepadPeriod: 16 * time.Millisecond,
	}
}

func (o *ControlOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Period <= 0 {
		errs = append(errs, fmt.Errorf("--control.period must be positive"))
	}
	if o.GamepadPeriod <= 0 {
		errs = append(errs, fmt.Errorf("--control.gamepad-period must be positive"))
	}
	for key, b := range o.KeyBindings {
		if _, _, err := SplitBinding(b); err != nil {
			errs = append(errs, fmt.Errorf("--control.key-bindings %s: %w", key, err))
		}
	}
	return errs
}

func (o *ControlOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Period, "control.period", o.Period, "Interval between manual control frames.")
	fs.StringSliceVar(&o.ManualModes, "control.manual-modes", o.ManualModes, "Flight modes known to accept manual control. Empty uses the built-in list.")
	fs.StringToStringVar(&o.KeyBindings, "control.key-bindings", o.KeyBindings, "Key binding overrides as key=channel:delta.")
	fs.DurationVar(&o.GamepadPeriod, "control.gamepad-period", o.GamepadPeriod, "Interval at which gamepad readings are sampled.")
}

// SplitBinding parses "channel:delta".
func SplitBinding(s string) (channel string, delta int, err error) {
	channel, d, ok := strings.Cut(s, ":")
	if !ok || channel == "" {
		return "", 0, fmt.Errorf("binding %q is not channel:delta", s)
	}
	delta, err = strconv.Atoi(d)
	if err != nil {
		return "", 0, fmt.Errorf("binding %q: %w", s, err)
	}
	return channel, delta, nil
}
