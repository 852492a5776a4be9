package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error to fsm.Callback by
// storing the error on the event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IgnoreNoTransition filters out the error looplab/fsm returns when an event
// leaves the machine in the state it was already in. A guard that cancels
// with fsm.NoTransitionError is filtered too, since fsm.CanceledError
// unwraps to it.
func IgnoreNoTransition(err error) error {
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
