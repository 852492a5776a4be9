package dispatch

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/input"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sent struct {
	at    time.Duration
	frame model.RCOverride
}

type recordingSender struct {
	now    func() time.Time
	frames []sent
}

func (s *recordingSender) Send(f model.OutboundFrame) {
	s.frames = append(s.frames, sent{at: s.now().Sub(t0), frame: f.(model.RCOverride)})
}

func (s *recordingSender) times() []time.Duration {
	var out []time.Duration
	for _, f := range s.frames {
		out = append(out, f.at)
	}
	return out
}

type fakeVehicles struct {
	id   string
	mode string
}

func (v *fakeVehicles) ActiveID() string { return v.id }
func (v *fakeVehicles) ActiveMode() (string, bool) {
	return v.mode, v.id != ""
}

type harness struct {
	clk      *clocktesting.FakeClock
	loop     *runloop.Loop
	arbiter  *input.Arbiter
	vehicles *fakeVehicles
	sender   *recordingSender
	dispatch *Loop
}

func newHarness() *harness {
	h := &harness{clk: clocktesting.NewFakeClock(t0)}
	h.loop = runloop.New(h.clk, logr.Discard())
	h.arbiter = input.NewArbiter(input.DefaultConfig())
	h.vehicles = &fakeVehicles{id: "v1", mode: "STABILIZE"}
	h.sender = &recordingSender{now: h.loop.Now}
	h.dispatch = New(h.loop, h.sender, h.arbiter, h.vehicles, Options{})
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clk.Step(d)
	h.loop.RunPending()
}

func (h *harness) enableKeyboard() {
	h.arbiter.SetKeyboardEnabled(true)
	h.dispatch.InputChanged()
}

func TestNoFramesWhileDown(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()

	h.advance(time.Second)
	if len(h.sender.frames) != 0 {
		t.Fatalf("%d frames sent while the channel was down", len(h.sender.frames))
	}
	if h.dispatch.State() != StateIdle {
		t.Errorf("state = %s, want %s", h.dispatch.State(), StateIdle)
	}
}

func TestFirstFrameOnNextTick(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.advance(20 * time.Millisecond)

	h.dispatch.SetConnected(true)
	h.loop.RunPending()
	if len(h.sender.frames) != 0 {
		t.Fatal("frame sent immediately on connect")
	}

	h.advance(49 * time.Millisecond)
	if len(h.sender.frames) != 0 {
		t.Fatal("frame sent before the first period elapsed")
	}

	h.advance(time.Millisecond)
	h.advance(100 * time.Millisecond)

	want := []time.Duration{70 * time.Millisecond, 120 * time.Millisecond, 170 * time.Millisecond}
	if diff := cmp.Diff(want, h.sender.times()); diff != "" {
		t.Errorf("send times mismatch (-want +got):\n%s", diff)
	}
}

func TestFramesCarryCurrentChannels(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.dispatch.SetConnected(true)

	h.advance(50 * time.Millisecond)
	h.arbiter.SetKey("ArrowUp", true)
	h.advance(50 * time.Millisecond)

	if len(h.sender.frames) != 2 {
		t.Fatalf("sent %d frames, want 2", len(h.sender.frames))
	}
	want := model.RCOverride{Type: model.FrameRCOverride, VehicleID: "v1", Channels: model.Channels{1500, 1500, 1800, 1500}}
	if diff := cmp.Diff(want, h.sender.frames[1].frame); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	st := h.dispatch.Status()
	if !st.Active || st.Source != model.InputKeyboard || st.LastChannels != want.Channels {
		t.Errorf("status = %+v", st)
	}
	if !st.LastSentAt.Equal(t0.Add(100 * time.Millisecond)) {
		t.Errorf("LastSentAt = %v", st.LastSentAt)
	}
}

func TestDisableStopsImmediately(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.dispatch.SetConnected(true)
	h.advance(120 * time.Millisecond)

	h.arbiter.SetKeyboardEnabled(false)
	h.dispatch.InputChanged()
	h.advance(time.Second)

	if got := len(h.sender.frames); got != 2 {
		t.Errorf("sent %d frames, want 2", got)
	}
	if h.dispatch.State() != StateIdle {
		t.Errorf("state = %s, want %s", h.dispatch.State(), StateIdle)
	}
	if _, timers := h.loop.Pending(); timers != 0 {
		t.Errorf("%d timers armed after disable", timers)
	}
}

func TestSuspendAndResume(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.dispatch.SetConnected(true)
	h.advance(100 * time.Millisecond)

	h.dispatch.SetConnected(false)
	if h.dispatch.State() != StateSuspended {
		t.Fatalf("state = %s, want %s", h.dispatch.State(), StateSuspended)
	}
	h.advance(time.Second)
	if got := len(h.sender.frames); got != 2 {
		t.Fatalf("sent %d frames while suspended, want 2 from before", got)
	}

	h.dispatch.SetConnected(true)
	if h.dispatch.State() != StateArmed {
		t.Fatalf("state = %s, want %s", h.dispatch.State(), StateArmed)
	}
	h.advance(50 * time.Millisecond)

	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 1150 * time.Millisecond}
	if diff := cmp.Diff(want, h.sender.times()); diff != "" {
		t.Errorf("send times mismatch (-want +got):\n%s", diff)
	}

	h.arbiter.SetKeyboardEnabled(false)
	h.dispatch.SetConnected(false)
	h.dispatch.InputChanged()
	if h.dispatch.State() != StateIdle {
		t.Errorf("state = %s, want %s", h.dispatch.State(), StateIdle)
	}
}

func TestTickRechecksCondition(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.dispatch.SetConnected(true)

	// Disable without notifying the loop: the next tick must notice.
	h.arbiter.SetKeyboardEnabled(false)
	h.advance(50 * time.Millisecond)

	if len(h.sender.frames) != 0 {
		t.Error("tick sent a frame although input was disabled")
	}
	if h.dispatch.State() != StateIdle {
		t.Errorf("state = %s, want %s", h.dispatch.State(), StateIdle)
	}
}

func TestModeWarningIsAdvisory(t *testing.T) {
	h := newHarness()
	h.vehicles.mode = "AUTO"

	var warnings []string
	h.dispatch.OnModeWarning(func(id, mode string) { warnings = append(warnings, id+":"+mode) })

	h.enableKeyboard()
	h.dispatch.SetConnected(true)
	h.advance(150 * time.Millisecond)

	if got := len(h.sender.frames); got != 3 {
		t.Fatalf("sent %d frames in a non-manual mode, want 3", got)
	}
	if !h.dispatch.Status().ModeWarning {
		t.Error("ModeWarning not exposed")
	}

	h.vehicles.mode = "GUIDED"
	h.advance(50 * time.Millisecond)
	h.vehicles.mode = "loiter"
	h.advance(50 * time.Millisecond)

	if diff := cmp.Diff([]string{"v1:AUTO", "v1:GUIDED"}, warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if h.dispatch.Status().ModeWarning {
		t.Error("ModeWarning still set in LOITER")
	}
}

func TestModeGate(t *testing.T) {
	g := NewModeGate(DefaultManualModes)
	tests := []struct {
		mode string
		want bool
	}{
		{"STABILIZE", true},
		{"alt_hold", true},
		{"POSCTL", true},
		{"AUTO", false},
		{"RTL", false},
		{"", true},
		{model.Unknown, true},
	}
	for _, tt := range tests {
		if got := g.Accepts(tt.mode); got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestStop(t *testing.T) {
	h := newHarness()
	h.enableKeyboard()
	h.dispatch.SetConnected(true)

	h.dispatch.Stop()
	h.advance(time.Second)
	if len(h.sender.frames) != 0 || h.dispatch.State() != StateIdle {
		t.Errorf("Stop left the loop sending: %d frames, state %s", len(h.sender.frames), h.dispatch.State())
	}
}
