package mqtt

import (
	"context"
	"errors"
)

// ErrClosed is reported by Err after Close was called.
var ErrClosed = errors.New("mqtt session closed")

// MessageHandler defines the callback function for processing received MQTT messages.
// Handlers run on the session's reader goroutine, in arrival order.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is one connection to a broker. It does not reconnect: once Done is
// closed the client is finished and a new one must be dialed.
type Client interface {
	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers a handler for a topic filter and sends the SUBSCRIBE packet.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler and sends an UNSUBSCRIBE packet.
	Unsubscribe(ctx context.Context, topic string) error

	// Close disconnects cleanly.
	Close(ctx context.Context) error

	// Done is closed when the connection ends for any reason.
	Done() <-chan struct{}

	// Err returns why the connection ended, nil while it is up.
	Err() error
}
