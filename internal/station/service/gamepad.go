package service

import (
	"slices"
	"sync"
	"time"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/input"
)

const DefaultGamepadPeriod = 16 * time.Millisecond

// GamepadLatch holds the most recent gamepad reading reported by the
// operator's client. It is written from request goroutines and read by the
// poller on the loop.
type GamepadLatch struct {
	mu    sync.Mutex
	state input.GamepadState
	seq   uint64
}

// Store replaces the latched reading.
func (l *GamepadLatch) Store(s input.GamepadState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = input.GamepadState{Axes: slices.Clone(s.Axes), Buttons: slices.Clone(s.Buttons)}
	l.seq++
}

func (l *GamepadLatch) load() (input.GamepadState, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.seq
}

// GamepadPoller samples the latch into the arbiter at a fixed rate while the
// gamepad source is enabled.
type GamepadPoller struct {
	loop    runloop.Scheduler
	arbiter *input.Arbiter
	latch   *GamepadLatch
	period  time.Duration

	timer *runloop.Timer
	seen  uint64
}

func NewGamepadPoller(loop runloop.Scheduler, arbiter *input.Arbiter, latch *GamepadLatch, period time.Duration) *GamepadPoller {
	if period <= 0 {
		period = DefaultGamepadPeriod
	}
	return &GamepadPoller{loop: loop, arbiter: arbiter, latch: latch, period: period}
}

// Sync starts or stops sampling to match the arbiter. Call it whenever an
// input source is toggled.
func (g *GamepadPoller) Sync() {
	switch {
	case g.arbiter.GamepadEnabled() && g.timer == nil:
		g.seen = 0
		g.timer = g.loop.Every(g.period, g.poll)
	case !g.arbiter.GamepadEnabled() && g.timer != nil:
		g.Stop()
	}
}

// Running reports whether the poller is sampling.
func (g *GamepadPoller) Running() bool { return g.timer != nil }

func (g *GamepadPoller) Stop() {
	g.timer.Stop()
	g.timer = nil
}

func (g *GamepadPoller) poll() {
	if !g.arbiter.GamepadEnabled() {
		g.Stop()
		return
	}
	s, seq := g.latch.load()
	if seq == g.seen {
		return
	}
	g.seen = seq
	g.arbiter.SetGamepad(s)
}
