package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 5 * time.Second

// WebSocketDialer connects to the backend's telemetry socket.
type WebSocketDialer struct {
	URL          string
	Header       http.Header
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, err
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &wsConn{ws: ws, writeTimeout: timeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// ReadMessage skips binary and control messages; the backend only speaks
// JSON text frames.
func (c *wsConn) ReadMessage() (Message, error) {
	for {
		ty, data, err := c.ws.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		if ty == websocket.TextMessage {
			return Message{Data: data}, nil
		}
	}
}

func (c *wsConn) WriteMessage(m Message) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, m.Data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
