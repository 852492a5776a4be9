package runloop

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLoop() (*Loop, *clocktesting.FakeClock) {
	clk := clocktesting.NewFakeClock(epoch)
	return New(clk, logr.Discard()), clk
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := newTestLoop()

	var got []int
	for i := 0; i < 3; i++ {
		l.Post(func() { got = append(got, i) })
	}
	if n := l.RunPending(); n != 3 {
		t.Fatalf("RunPending() = %d, want 3", n)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestAfterFuncFiresAtDeadline(t *testing.T) {
	l, clk := newTestLoop()

	var firedAt time.Time
	l.AfterFunc(2*time.Second, func() { firedAt = l.Now() })

	clk.Step(1999 * time.Millisecond)
	l.RunPending()
	if !firedAt.IsZero() {
		t.Fatalf("timer fired early at %v", firedAt)
	}

	clk.Step(time.Millisecond)
	l.RunPending()
	if want := epoch.Add(2 * time.Second); !firedAt.Equal(want) {
		t.Errorf("timer fired at %v, want %v", firedAt, want)
	}
}

func TestEveryKeepsCadence(t *testing.T) {
	l, clk := newTestLoop()

	var ticks []time.Duration
	l.Every(50*time.Millisecond, func() { ticks = append(ticks, l.Now().Sub(epoch)) })

	clk.Step(175 * time.Millisecond)
	l.RunPending()

	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	if diff := cmp.Diff(want, ticks); diff != "" {
		t.Errorf("tick times mismatch (-want +got):\n%s", diff)
	}
}

func TestStop(t *testing.T) {
	t.Run("before deadline", func(t *testing.T) {
		l, clk := newTestLoop()
		fired := false
		tm := l.AfterFunc(time.Second, func() { fired = true })

		if !tm.Stop() {
			t.Error("Stop() = false for a pending timer")
		}
		if tm.Stop() {
			t.Error("second Stop() = true")
		}
		clk.Step(time.Hour)
		l.RunPending()
		if fired {
			t.Error("stopped timer fired")
		}
	})

	t.Run("periodic from own callback", func(t *testing.T) {
		l, clk := newTestLoop()
		count := 0
		var tm *Timer
		tm = l.Every(10*time.Millisecond, func() {
			count++
			if count == 2 {
				tm.Stop()
			}
		})

		clk.Step(100 * time.Millisecond)
		l.RunPending()
		if count != 2 {
			t.Errorf("periodic timer ran %d times, want 2", count)
		}
		if _, timers := l.Pending(); timers != 0 {
			t.Errorf("%d timers still armed", timers)
		}
	})
}

func TestChainedTimerUsesDeadline(t *testing.T) {
	l, clk := newTestLoop()

	var second time.Time
	l.AfterFunc(time.Second, func() {
		l.AfterFunc(time.Second, func() { second = l.Now() })
	})

	// A single large step must still run the chained timer relative to the
	// first deadline, not relative to the stepped wall clock.
	clk.Step(5 * time.Second)
	l.RunPending()

	if want := epoch.Add(2 * time.Second); !second.Equal(want) {
		t.Errorf("chained timer fired at %v, want %v", second, want)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	l, _ := newTestLoop()

	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.RunPending()

	if !ran {
		t.Error("task after a panicking task did not run")
	}
}

func TestRunAndDo(t *testing.T) {
	l := New(nil, logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	fired := make(chan struct{})
	if err := l.Do(ctx, func() {
		l.AfterFunc(5*time.Millisecond, func() { close(fired) })
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer scheduled through Do never fired")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
