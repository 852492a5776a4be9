// Package transport maintains the station's single persistent duplex channel
// to the vehicle backend.
//
// The channel decodes inbound frames and hands them to one consumer on the
// run loop, sends outbound frames best-effort, and after any failure retries
// after a fixed delay, forever, until it is closed.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/autopeer-io/groundlink/internal/pkg/metrics"
	"github.com/autopeer-io/groundlink/internal/runloop"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/pkg/log"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultSendQueue      = 16
)

// ErrTransportClosed is reported to readers when the channel is torn down locally.
var ErrTransportClosed = errors.New("transport closed")

// State of the channel.
type State int

const (
	StateDown State = iota
	StateConnecting
	StateUp
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUp:
		return "up"
	default:
		return "down"
	}
}

// Message is one unit on the wire. VehicleID is the vehicle implied by the
// channel the message travels on, if the underlying protocol has one.
type Message struct {
	Data      []byte
	VehicleID string
}

// Conn is one established connection. ReadMessage is called from a single
// goroutine and WriteMessage from another; Close may be called concurrently
// with both and must unblock ReadMessage.
type Conn interface {
	ReadMessage() (Message, error)
	WriteMessage(m Message) error
	Close() error
}

// Dialer opens one connection. It does not retry.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Options configure a Transport.
type Options struct {
	ReconnectDelay time.Duration
	SendQueue      int
}

// Transport is owned by the run loop: every method must be called there.
type Transport struct {
	loop   runloop.Scheduler
	dialer Dialer
	opts   Options
	logger log.Logger

	state State
	// gen identifies the current connection attempt. Callbacks carrying an
	// older generation are ignored.
	gen        uint64
	conn       Conn
	out        chan Message
	cancelDial context.CancelFunc
	reconnect  *runloop.Timer
	closed     bool

	onFrame   func(model.InboundFrame)
	observers []func(up bool)
}

func New(loop runloop.Scheduler, dialer Dialer, opts Options) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	return &Transport{
		loop:   loop,
		dialer: dialer,
		opts:   opts,
		logger: log.WithName("transport"),
	}
}

// OnFrame registers the single consumer of decoded inbound frames.
func (t *Transport) OnFrame(fn func(model.InboundFrame)) { t.onFrame = fn }

// OnStateChange registers an observer of up/down transitions.
func (t *Transport) OnStateChange(fn func(up bool)) { t.observers = append(t.observers, fn) }

// State returns the current channel state.
func (t *Transport) State() State { return t.state }

// Connect opens the channel. It is a no-op while a connection is open or
// being opened. A pending reconnect is brought forward.
func (t *Transport) Connect() {
	if t.closed || t.state != StateDown {
		return
	}
	t.stopReconnect()

	t.gen++
	gen := t.gen
	t.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	t.cancelDial = cancel

	t.logger.Debug("Dialing backend", "attempt", gen)
	go func() {
		conn, err := t.dialer.Dial(ctx)
		t.loop.Post(func() { t.onDialed(gen, conn, err) })
	}()
}

// Send hands a frame to the writer. It never blocks and never reports an
// error: when the channel is down or the writer is backed up, the frame is
// dropped.
func (t *Transport) Send(f model.OutboundFrame) {
	if t.state != StateUp {
		metrics.FramesDroppedTotal.WithLabelValues("down").Inc()
		return
	}
	data, err := EncodeFrame(f)
	if err != nil {
		t.logger.Error(err, "Failed to encode frame", "type", f.Kind())
		return
	}
	select {
	case t.out <- Message{Data: data, VehicleID: f.Target()}:
	default:
		metrics.FramesDroppedTotal.WithLabelValues("backpressure").Inc()
	}
}

// Close tears the channel down and cancels any pending reconnect. The
// transport cannot be reused afterwards.
func (t *Transport) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.stopReconnect()
	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	wasUp := t.state == StateUp
	t.teardown()
	t.state = StateDown
	t.gen++
	if wasUp {
		t.notify(false)
	}
	t.logger.Info("Transport closed")
}

func (t *Transport) onDialed(gen uint64, conn Conn, err error) {
	if gen != t.gen || t.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	t.cancelDial = nil

	if err != nil {
		t.logger.Warn("Backend connection failed", "error", err, "retryIn", t.opts.ReconnectDelay)
		t.state = StateDown
		t.scheduleReconnect()
		return
	}

	t.conn = conn
	t.out = make(chan Message, t.opts.SendQueue)
	t.state = StateUp
	go t.readLoop(gen, conn)
	go t.writeLoop(conn, t.out)

	t.logger.Info("Backend connection up")
	t.notify(true)
}

func (t *Transport) onClosed(gen uint64, err error) {
	if gen != t.gen || t.state != StateUp {
		return
	}
	t.logger.Warn("Backend connection lost", "error", err, "retryIn", t.opts.ReconnectDelay)
	t.teardown()
	t.state = StateDown
	t.notify(false)
	t.scheduleReconnect()
}

func (t *Transport) scheduleReconnect() {
	if t.closed || t.reconnect != nil {
		return
	}
	metrics.TransportReconnectsTotal.Inc()
	t.reconnect = t.loop.AfterFunc(t.opts.ReconnectDelay, func() {
		t.reconnect = nil
		t.Connect()
	})
}

func (t *Transport) stopReconnect() {
	if t.reconnect != nil {
		t.reconnect.Stop()
		t.reconnect = nil
	}
}

func (t *Transport) teardown() {
	if t.out != nil {
		close(t.out)
		t.out = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) notify(up bool) {
	if up {
		metrics.TransportConnected.Set(1)
	} else {
		metrics.TransportConnected.Set(0)
	}
	for _, fn := range t.observers {
		fn(up)
	}
}

// readLoop decodes frames on its own goroutine and posts them to the loop in
// arrival order. Malformed frames are dropped here.
func (t *Transport) readLoop(gen uint64, conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			t.loop.Post(func() { t.onClosed(gen, err) })
			return
		}

		frame, err := DecodeFrame(msg.Data, msg.VehicleID)
		if err != nil {
			metrics.FramesDroppedTotal.WithLabelValues("malformed").Inc()
			t.logger.Debug("Dropping malformed frame", "error", err)
			continue
		}

		t.loop.Post(func() {
			if gen == t.gen && t.onFrame != nil {
				t.onFrame(frame)
			}
		})
	}
}

// writeLoop drains out until it is closed. A write error closes the
// connection, which makes readLoop report the failure.
func (t *Transport) writeLoop(conn Conn, out <-chan Message) {
	for msg := range out {
		if err := conn.WriteMessage(msg); err != nil {
			t.logger.Debug("Write failed, closing connection", "error", err)
			_ = conn.Close()
			for range out {
				metrics.FramesDroppedTotal.WithLabelValues("down").Inc()
			}
			return
		}
	}
}
