package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeConn struct {
	in     chan Message
	mu     sync.Mutex
	writes []Message
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan Message, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (Message, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.closed:
		return Message{}, io.EOF
	}
}

func (c *fakeConn) WriteMessage(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.writes...)
}

// fakeDialer hands out queued results, one per Dial call, and blocks until
// one is available.
type fakeDialer struct {
	results chan dialResult
	calls   atomic.Int32
}

type dialResult struct {
	conn Conn
	err  error
}

func newFakeDialer() *fakeDialer { return &fakeDialer{results: make(chan dialResult, 8)} }

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.calls.Add(1)
	select {
	case r := <-d.results:
		return r.conn, r.err
	default:
	}
	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type harness struct {
	clk    *clocktesting.FakeClock
	loop   *runloop.Loop
	dialer *fakeDialer
	tr     *Transport
	states []bool
	frames []model.InboundFrame
}

func newHarness() *harness {
	h := &harness{clk: clocktesting.NewFakeClock(t0), dialer: newFakeDialer()}
	h.loop = runloop.New(h.clk, logr.Discard())
	h.tr = New(h.loop, h.dialer, Options{})
	h.tr.OnStateChange(func(up bool) { h.states = append(h.states, up) })
	h.tr.OnFrame(func(f model.InboundFrame) { h.frames = append(h.frames, f) })
	return h
}

// eventually drains the loop until cond holds. Dial and read results arrive
// from other goroutines, so the loop is polled in real time.
func (h *harness) eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.loop.RunPending()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) advance(d time.Duration) {
	h.clk.Step(d)
	h.loop.RunPending()
}

func (h *harness) connectUp(t *testing.T) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	h.dialer.results <- dialResult{conn: conn}
	h.tr.Connect()
	h.eventually(t, "connection up", func() bool { return h.tr.State() == StateUp })
	return conn
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness()
	h.tr.Connect()
	h.tr.Connect()
	if h.tr.State() != StateConnecting {
		t.Fatalf("state = %s, want connecting", h.tr.State())
	}

	h.dialer.results <- dialResult{conn: newFakeConn()}
	h.eventually(t, "connection up", func() bool { return h.tr.State() == StateUp })
	h.tr.Connect()

	if got := h.dialer.calls.Load(); got != 1 {
		t.Errorf("Dial called %d times, want 1", got)
	}
	if diff := cmp.Diff([]bool{true}, h.states); diff != "" {
		t.Errorf("state changes mismatch (-want +got):\n%s", diff)
	}
}

func TestReconnectAfterFixedDelay(t *testing.T) {
	h := newHarness()
	h.dialer.results <- dialResult{err: errors.New("connection refused")}
	h.tr.Connect()
	h.eventually(t, "dial failure", func() bool { return h.tr.State() == StateDown })

	h.advance(1999 * time.Millisecond)
	if got := h.dialer.calls.Load(); got != 1 {
		t.Fatalf("redialed after %d calls before the delay elapsed", got)
	}

	// The next attempt fails too; the one after that succeeds.
	h.dialer.results <- dialResult{err: errors.New("connection refused")}
	h.advance(time.Millisecond)
	h.eventually(t, "redial at the 2s mark", func() bool { return h.dialer.calls.Load() == 2 })
	h.eventually(t, "second failure", func() bool { return h.tr.State() == StateDown })

	h.dialer.results <- dialResult{conn: newFakeConn()}
	h.advance(2 * time.Second)
	h.eventually(t, "connection up", func() bool { return h.tr.State() == StateUp })

	if got := h.dialer.calls.Load(); got != 3 {
		t.Errorf("Dial calls = %d, want 3", got)
	}
	if diff := cmp.Diff([]bool{true}, h.states); diff != "" {
		t.Errorf("failed attempts must not report state changes (-want +got):\n%s", diff)
	}
}

func TestConnectionLossSchedulesReconnect(t *testing.T) {
	h := newHarness()
	conn := h.connectUp(t)

	_ = conn.Close()
	h.eventually(t, "connection down", func() bool { return h.tr.State() == StateDown })
	if diff := cmp.Diff([]bool{true, false}, h.states); diff != "" {
		t.Errorf("state changes mismatch (-want +got):\n%s", diff)
	}

	h.dialer.results <- dialResult{conn: newFakeConn()}
	h.advance(2 * time.Second)
	h.eventually(t, "reconnected", func() bool { return h.tr.State() == StateUp })
}

func TestInboundFrames(t *testing.T) {
	h := newHarness()
	conn := h.connectUp(t)

	conn.in <- Message{Data: []byte(`{"type":"log","message":"one"}`)}
	conn.in <- Message{Data: []byte(`{"type":"bogus"}`)}
	conn.in <- Message{Data: []byte(`{not json`)}
	conn.in <- Message{Data: []byte(`{"type":"log","message":"two"}`), VehicleID: "v9"}

	h.eventually(t, "two frames", func() bool { return len(h.frames) == 2 })

	want := []model.InboundFrame{
		{Type: model.FrameLog, Log: &model.LogLine{Message: "one"}},
		{Type: model.FrameLog, VehicleID: "v9", Log: &model.LogLine{Message: "two"}},
	}
	if diff := cmp.Diff(want, h.frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if h.tr.State() != StateUp {
		t.Error("malformed frames closed the connection")
	}
}

func TestSend(t *testing.T) {
	h := newHarness()

	// Down: dropped without error.
	h.tr.Send(model.NewRCOverride("v1", model.Channels{1500, 1500, 1500, 1500}))

	conn := h.connectUp(t)
	h.tr.Send(model.NewRCOverride("v1", model.Channels{1500, 1500, 1800, 1500}))

	h.eventually(t, "write", func() bool { return len(conn.written()) == 1 })
	want := Message{
		Data:      []byte(`{"type":"rc_override","vehicle_id":"v1","channels":[1500,1500,1800,1500]}`),
		VehicleID: "v1",
	}
	if diff := cmp.Diff(want, conn.written()[0]); diff != "" {
		t.Errorf("write mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseCancelsReconnect(t *testing.T) {
	h := newHarness()
	h.dialer.results <- dialResult{err: errors.New("no route to host")}
	h.tr.Connect()
	h.eventually(t, "dial failure", func() bool { return h.tr.State() == StateDown })

	h.tr.Close()
	h.advance(10 * time.Second)
	h.tr.Connect()

	if got := h.dialer.calls.Load(); got != 1 {
		t.Errorf("Dial calls = %d after Close, want 1", got)
	}
	if _, timers := h.loop.Pending(); timers != 0 {
		t.Errorf("%d timers armed after Close", timers)
	}
}

func TestStaleDialIsDiscarded(t *testing.T) {
	h := newHarness()
	late := newFakeConn()
	h.dialer.results <- dialResult{conn: late}
	h.tr.Connect()
	h.tr.Close()

	h.eventually(t, "late connection closed", func() bool {
		select {
		case <-late.closed:
			return true
		default:
			return false
		}
	})
	if h.tr.State() != StateDown || len(h.states) != 0 {
		t.Errorf("stale dial changed state: %s, %v", h.tr.State(), h.states)
	}
}
