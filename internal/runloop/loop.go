// Package runloop provides the single logical thread the station core runs on.
//
// Goroutines that own sockets or block on I/O never touch core state directly.
// They Post closures to the loop, which executes them in FIFO order interleaved
// with timers in deadline order. Timers are driven by a k8s.io/utils clock, so
// tests substitute a fake clock, step it, and call RunPending to drain due work
// deterministically.
package runloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Scheduler is the subset of Loop that components need to schedule work.
type Scheduler interface {
	Now() time.Time
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) *Timer
	Every(d time.Duration, fn func()) *Timer
}

var _ Scheduler = (*Loop)(nil)

// Loop executes posted tasks and timers on a single goroutine.
type Loop struct {
	clock  clock.Clock
	logger logr.Logger

	mu     sync.Mutex
	tasks  []func()
	timers timerHeap
	seq    uint64
	// firing is the deadline of the timer currently executing, zero otherwise.
	firing time.Time

	wake chan struct{}
}

// New returns a loop driven by clk.
func New(clk clock.Clock, logger logr.Logger) *Loop {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Loop{
		clock:  clk,
		logger: logger.WithName("runloop"),
		wake:   make(chan struct{}, 1),
	}
}

// Timer is a handle to a one-shot or periodic callback scheduled on a Loop.
type Timer struct {
	loop    *Loop
	when    time.Time
	period  time.Duration
	fn      func()
	seq     uint64
	index   int
	stopped bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
// A periodic timer stopped from inside its own callback does not fire again.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
		return true
	}
	// Periodic timer in the middle of its own callback.
	return t.period > 0
}

// Now returns the loop's notion of the current time. While a timer callback
// runs, it is the timer's scheduled deadline, so work chained from a timer is
// scheduled relative to when it was due rather than when it actually ran.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nowLocked()
}

func (l *Loop) nowLocked() time.Time {
	if !l.firing.IsZero() {
		return l.firing
	}
	return l.clock.Now()
}

// Post queues fn to run on the loop. It is safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.notify()
}

// AfterFunc schedules fn to run once after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return l.schedule(d, 0, fn)
}

// Every schedules fn to run every d, starting d from now. Deadlines advance
// by exactly d each time, so a late tick does not shift the ones after it.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		panic("runloop: non-positive interval for Every")
	}
	return l.schedule(d, d, fn)
}

func (l *Loop) schedule(d, period time.Duration, fn func()) *Timer {
	l.mu.Lock()
	l.seq++
	t := &Timer{
		loop:   l,
		when:   l.nowLocked().Add(d),
		period: period,
		fn:     fn,
		seq:    l.seq,
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.notify()
	return t
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending executes every posted task and every timer whose deadline is at
// or before the clock's current time, including work they schedule that is
// itself already due. It returns the number of callbacks executed. It must
// only be called from the goroutine that owns the loop.
func (l *Loop) RunPending() int {
	n := 0
	for l.step() {
		n++
	}
	return n
}

func (l *Loop) step() bool {
	l.mu.Lock()

	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		l.invoke(fn)
		return true
	}

	if len(l.timers) == 0 || l.timers[0].when.After(l.clock.Now()) {
		l.mu.Unlock()
		return false
	}

	t := heap.Pop(&l.timers).(*Timer)
	l.firing = t.when
	l.mu.Unlock()

	l.invoke(t.fn)

	l.mu.Lock()
	l.firing = time.Time{}
	if t.period > 0 && !t.stopped {
		t.when = t.when.Add(t.period)
		heap.Push(&l.timers, t)
	} else {
		t.stopped = true
	}
	l.mu.Unlock()
	return true
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(nil, "Recovered from panic in loop callback", "panic", r)
		}
	}()
	fn()
}

// Run drives the loop on the calling goroutine until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.V(1).Info("Run loop started")
	defer l.logger.V(1).Info("Run loop stopped")

	for {
		l.RunPending()

		var timerC <-chan time.Time
		var timer clock.Timer

		l.mu.Lock()
		if len(l.timers) > 0 {
			timer = l.clock.NewTimer(l.timers[0].when.Sub(l.clock.Now()))
			timerC = timer.C()
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Do runs fn on the loop and waits for it to finish. It lets goroutines such
// as HTTP handlers read or mutate loop-owned state safely.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports the number of queued tasks and armed timers.
func (l *Loop) Pending() (tasks, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.timers)
}

// timerHeap orders timers by deadline, breaking ties by creation order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
