// Package dispatch streams manual control samples to the backend at a fixed
// rate while the channel is up and an input source is enabled.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/groundlink/internal/pkg/util/fsm"
	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/pkg/log"
)

// DefaultPeriod is the 20 Hz send interval.
const DefaultPeriod = 50 * time.Millisecond

// DefaultManualModes lists flight modes known to accept RC override on
// ArduPilot and PX4 vehicles.
var DefaultManualModes = []string{
	"MANUAL", "STABILIZE", "ACRO", "ALT_HOLD", "POSHOLD", "LOITER",
	"FBWA", "FBWB", "CRUISE", "TRAINING", "POSCTL", "ALTCTL",
}

// Sender delivers frames to the backend without blocking or reporting errors.
type Sender interface {
	Send(frame model.OutboundFrame)
}

// Source supplies the current channel tuple.
type Source interface {
	Enabled() bool
	Channels() (model.Channels, model.InputSource)
}

// Vehicles exposes the active vehicle.
type Vehicles interface {
	ActiveID() string
	ActiveMode() (string, bool)
}

// Scheduler is what the loop needs from the run loop.
type Scheduler interface {
	Now() time.Time
	Every(d time.Duration, fn func()) *runloop.Timer
}

// Options configure a Loop.
type Options struct {
	Period      time.Duration
	ManualModes []string
}

// Loop is the manual control dispatcher. It is owned by the run loop.
type Loop struct {
	sched    Scheduler
	sender   Sender
	input    Source
	vehicles Vehicles
	logger   log.Logger

	period time.Duration
	gate   *ModeGate

	fsm       *fsm.FSM
	connected bool
	ticker    *runloop.Timer

	last          model.ManualControlState
	onModeWarning func(vehicleID, mode string)
}

func New(sched Scheduler, sender Sender, input Source, vehicles Vehicles, opts Options) *Loop {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if len(opts.ManualModes) == 0 {
		opts.ManualModes = DefaultManualModes
	}

	l := &Loop{
		sched:    sched,
		sender:   sender,
		input:    input,
		vehicles: vehicles,
		logger:   log.WithName("dispatch"),
		period:   opts.Period,
		gate:     NewModeGate(opts.ManualModes),
		last:     model.ManualControlState{Source: model.InputNone},
	}
	l.fsm = l.newStateMachine()
	return l
}

// OnModeWarning registers fn to be called when the active vehicle enters a
// flight mode that is not known to accept manual control while sending.
func (l *Loop) OnModeWarning(fn func(vehicleID, mode string)) { l.onModeWarning = fn }

// SetConnected informs the loop of the channel state.
func (l *Loop) SetConnected(up bool) {
	l.connected = up
	l.reconcile()
}

// InputChanged must be called whenever an input source is enabled or disabled.
func (l *Loop) InputChanged() { l.reconcile() }

// State returns the current state machine state.
func (l *Loop) State() string { return l.fsm.Current() }

// Status returns a snapshot of the manual control stream.
func (l *Loop) Status() model.ManualControlState {
	s := l.last
	s.State = l.fsm.Current()
	s.Active = s.State == StateArmed
	if _, src := l.input.Channels(); l.input.Enabled() {
		s.Source = src
	}
	return s
}

// Stop returns to idle and cancels the ticker.
func (l *Loop) Stop() {
	l.stopTicker()
	l.fsm.SetState(StateIdle)
}

func (l *Loop) reconcile() {
	enabled := l.input.Enabled()

	var event string
	switch l.fsm.Current() {
	case StateIdle:
		if l.connected && enabled {
			event = EventArm
		}
	case StateArmed:
		if !enabled {
			event = EventDisarm
		} else if !l.connected {
			event = EventSuspend
		}
	case StateSuspended:
		if !enabled {
			event = EventDisarm
		} else if l.connected {
			event = EventResume
		}
	}
	if event == "" {
		return
	}

	if err := fsmutil.IgnoreNoTransition(l.fsm.Event(context.Background(), event)); err != nil {
		l.logger.Error(err, "Manual control transition failed", "event", event, "state", l.fsm.Current())
	}
}

func (l *Loop) tick() {
	// The condition may have changed since the tick was scheduled.
	if !l.connected || !l.input.Enabled() {
		l.reconcile()
		return
	}

	ch, src := l.input.Channels()
	id := l.vehicles.ActiveID()
	l.sender.Send(model.NewRCOverride(id, ch))
	metrics.ControlFramesSentTotal.WithLabelValues(string(src)).Inc()

	l.last.LastChannels = ch
	l.last.LastSentAt = l.sched.Now()
	l.last.Source = src
	l.checkMode(id)
}

func (l *Loop) checkMode(id string) {
	mode, ok := l.vehicles.ActiveMode()
	warn := ok && !l.gate.Accepts(mode)
	if warn && (!l.last.ModeWarning || l.last.Mode != mode) && l.onModeWarning != nil {
		l.onModeWarning(id, mode)
	}
	l.last.ModeWarning = warn
	l.last.Mode = mode
}

func (l *Loop) stopTicker() {
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
}

// ModeGate is the advisory allow-list of flight modes that accept manual
// control. It never blocks sending.
type ModeGate struct {
	allowed map[string]struct{}
}

func NewModeGate(modes []string) *ModeGate {
	g := &ModeGate{allowed: make(map[string]struct{}, len(modes))}
	for _, m := range modes {
		g.allowed[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	return g
}

// Accepts reports whether mode is on the list. A mode the vehicle has not
// reported yet is given the benefit of the doubt.
func (g *ModeGate) Accepts(mode string) bool {
	if mode == "" || mode == model.Unknown {
		return true
	}
	_, ok := g.allowed[strings.ToUpper(mode)]
	return ok
}
