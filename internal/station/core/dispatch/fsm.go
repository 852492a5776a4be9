package dispatch

import (
	"context"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/groundlink/internal/pkg/util/fsm"
)

const (
	// StateIdle: no input source is enabled, or the channel has never been up
	// while one was.
	StateIdle = "idle"
	// StateArmed: the 50 ms ticker is running and frames are being sent.
	StateArmed = "armed"
	// StateSuspended: input is enabled but the channel is down.
	StateSuspended = "suspended"
)

const (
	// EventArm (Active) starts sending once the channel is up and input is enabled.
	EventArm = "arm"
	// EventDisarm stops sending because input was disabled.
	EventDisarm = "disarm"
	// EventSuspend pauses sending because the channel went down.
	EventSuspend = "suspend"
	// EventResume restarts sending when the channel comes back.
	EventResume = "resume"
)

func (l *Loop) newStateMachine() *fsm.FSM {
	events := fsm.Events{
		{Name: EventArm, Src: []string{StateIdle}, Dst: StateArmed},
		{Name: EventDisarm, Src: []string{StateArmed, StateSuspended}, Dst: StateIdle},
		{Name: EventSuspend, Src: []string{StateArmed}, Dst: StateSuspended},
		{Name: EventResume, Src: []string{StateSuspended}, Dst: StateArmed},
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventArm:    fsmutil.WrapEvent(l.guardSendable),
		"before_" + EventResume: fsmutil.WrapEvent(l.guardSendable),

		// Side-Effects
		"enter_" + StateArmed: fsmutil.WrapEvent(l.actionEnterArmed),
		"leave_" + StateArmed: fsmutil.WrapEvent(l.actionLeaveArmed),
		"enter_state":         fsmutil.WrapEvent(l.actionEnterState),
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}

// guardSendable cancels a transition into StateArmed unless the channel is up
// and an input source is enabled.
func (l *Loop) guardSendable(ctx context.Context, e *fsm.Event) error {
	if !l.connected || !l.input.Enabled() {
		e.Cancel(fsm.NoTransitionError{})
	}
	return nil
}

// actionEnterArmed starts the ticker. The first frame goes out one period
// later, never immediately.
func (l *Loop) actionEnterArmed(ctx context.Context, e *fsm.Event) error {
	if l.ticker == nil {
		l.ticker = l.sched.Every(l.period, l.tick)
	}
	return nil
}

// actionLeaveArmed stops the ticker synchronously so no stale sample is sent.
func (l *Loop) actionLeaveArmed(ctx context.Context, e *fsm.Event) error {
	l.stopTicker()
	return nil
}

func (l *Loop) actionEnterState(ctx context.Context, e *fsm.Event) error {
	l.logger.Info("Manual control state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	return nil
}
