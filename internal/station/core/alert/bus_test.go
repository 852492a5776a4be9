package alert

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newBus() (*Bus, *runloop.Loop, *clocktesting.FakeClock) {
	clk := clocktesting.NewFakeClock(t0)
	loop := runloop.New(clk, logr.Discard())
	return New(loop, DefaultLimit, DefaultTTL), loop, clk
}

func messages(as []model.Alert) []string {
	var out []string
	for _, a := range as {
		out = append(out, a.Message)
	}
	return out
}

func TestPushCapsVisibleAlerts(t *testing.T) {
	b, _, _ := newBus()

	for i := 1; i <= 6; i++ {
		b.Push(fmt.Sprintf("a%d", i), model.SeverityInfo)
	}

	want := []string{"a2", "a3", "a4", "a5", "a6"}
	if diff := cmp.Diff(want, messages(b.List())); diff != "" {
		t.Errorf("visible alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestEachAlertExpiresOnItsOwnSchedule(t *testing.T) {
	b, loop, clk := newBus()

	b.Push("first", model.SeverityInfo)
	clk.Step(2 * time.Second)
	loop.RunPending()
	b.Push("second", model.SeverityWarning)

	clk.Step(2999 * time.Millisecond)
	loop.RunPending()
	if got := len(b.List()); got != 2 {
		t.Fatalf("at t=4.999s %d alerts visible, want 2", got)
	}

	clk.Step(time.Millisecond)
	loop.RunPending()
	if diff := cmp.Diff([]string{"second"}, messages(b.List())); diff != "" {
		t.Fatalf("at t=5s visible mismatch (-want +got):\n%s", diff)
	}

	clk.Step(2 * time.Second)
	loop.RunPending()
	if got := len(b.List()); got != 0 {
		t.Errorf("at t=7s %d alerts visible, want 0", got)
	}
}

func TestNoDeduplication(t *testing.T) {
	b, _, _ := newBus()

	x := b.Push("link lost", model.SeverityError)
	y := b.Push("link lost", model.SeverityError)

	if x.ID == y.ID {
		t.Error("identical messages share an id")
	}
	if got := len(b.List()); got != 2 {
		t.Errorf("%d alerts visible, want 2", got)
	}
}

func TestEvictedAndDismissedTimersAreCancelled(t *testing.T) {
	b, loop, _ := newBus()

	first := b.Push("one", model.SeverityInfo)
	for i := 0; i < DefaultLimit; i++ {
		b.Push("filler", model.SeverityInfo)
	}
	if _, timers := loop.Pending(); timers != DefaultLimit {
		t.Errorf("%d timers armed after eviction, want %d", timers, DefaultLimit)
	}
	if b.Dismiss(first.ID) {
		t.Error("Dismiss succeeded for an evicted alert")
	}

	last := b.List()[DefaultLimit-1]
	if !b.Dismiss(last.ID) {
		t.Fatal("Dismiss failed for a visible alert")
	}
	if _, timers := loop.Pending(); timers != DefaultLimit-1 {
		t.Errorf("%d timers armed after dismiss, want %d", timers, DefaultLimit-1)
	}

	b.Clear()
	if _, timers := loop.Pending(); timers != 0 || len(b.List()) != 0 {
		t.Error("Clear left alerts or timers behind")
	}
}

func TestCreatedAtUsesLoopTime(t *testing.T) {
	b, _, clk := newBus()
	clk.Step(1500 * time.Millisecond)

	a := b.Warn("battery low")
	if !a.CreatedAt.Equal(t0.Add(1500 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v", a.CreatedAt)
	}
	if a.Severity != model.SeverityWarning {
		t.Errorf("Severity = %q", a.Severity)
	}
}
