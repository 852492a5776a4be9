package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

var _ IOptions = (*TransportOptions)(nil)

// TransportOptions select and tune the persistent channel to the vehicle
// backend.
type TransportOptions struct {
	// Kind is websocket or mqtt. MQTT reads its broker settings from MqttOptions.
	Kind string `json:"kind" mapstructure:"kind"`

	// URL of the backend's WebSocket endpoint.
	URL string `json:"url" mapstructure:"url"`

	ReconnectDelay time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`
	WriteTimeout   time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	SendQueue      int           `json:"send-queue" mapstructure:"send-queue"`
}

func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Kind:           TransportWebSocket,
		URL:            "ws://127.0.0.1:8000/ws",
		ReconnectDelay: 2 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendQueue:      16,
	}
}

func (o *TransportOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	switch o.Kind {
	case TransportWebSocket:
		u, err := url.Parse(o.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("--transport.url: %w", err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("--transport.url must use ws or wss, got %q", u.Scheme))
		}
	case TransportMQTT:
	default:
		errs = append(errs, fmt.Errorf("--transport.kind must be %s or %s, got %q", TransportWebSocket, TransportMQTT, o.Kind))
	}
	if o.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("--transport.reconnect-delay must be positive"))
	}
	if o.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("--transport.send-queue must be positive"))
	}
	return errs
}

func (o *TransportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Kind, "transport.kind", o.Kind, "Channel to the vehicle backend: websocket or mqtt.")
	fs.StringVar(&o.URL, "transport.url", o.URL, "WebSocket URL of the vehicle backend.")
	fs.DurationVar(&o.ReconnectDelay, "transport.reconnect-delay", o.ReconnectDelay, "Fixed delay before reconnecting after the channel drops.")
	fs.DurationVar(&o.WriteTimeout, "transport.write-timeout", o.WriteTimeout, "Deadline for writing one frame.")
	fs.IntVar(&o.SendQueue, "transport.send-queue", o.SendQueue, "Outbound frames buffered before new ones are dropped.")
}
