package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/groundlink/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/groundlink/internal/station/core/model"
	"github.com/autopeer-io/groundlink/pkg/log"
	"github.com/autopeer-io/groundlink/pkg/mqtt"
	"github.com/autopeer-io/groundlink/pkg/mqtt/topic"
)

const mqttInboxSize = 64

// MQTTDialer reaches the backend through a broker instead of a direct socket.
// Every vehicle has its own telemetry and command topics; the topic supplies
// the vehicle id when a frame omits it.
type MQTTDialer struct {
	Config *mqtt.ClientConfig
	Topics *topic.Builder
	QoS    int

	// DialFunc opens the broker session. Defaults to mqtt.Dial.
	DialFunc func(ctx context.Context, cfg *mqtt.ClientConfig) (mqtt.Client, error)
}

func (d *MQTTDialer) Dial(ctx context.Context) (Conn, error) {
	dial := d.DialFunc
	if dial == nil {
		dial = mqtt.Dial
	}
	// Dial mutates the config it is handed while applying defaults.
	cfg := *d.Config
	client, err := dial(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	c := &mqttConn{
		client: client,
		topics: d.Topics,
		qos:    d.QoS,
		inbox:  make(chan Message, mqttInboxSize),
		closed: make(chan struct{}),
		logger: log.WithName("transport.mqtt"),
	}

	subs := []struct {
		filter  string
		handler mqtt.MessageHandler
	}{
		{d.Topics.Wildcard(paths.Telemetry), c.onTelemetry},
		{d.Topics.Wildcard(paths.Online), c.onOnline},
	}
	for _, s := range subs {
		if err := client.Subscribe(ctx, s.filter, d.QoS, s.handler); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("subscribe %s: %w", s.filter, err)
		}
	}
	return c, nil
}

type mqttConn struct {
	client mqtt.Client
	topics *topic.Builder
	qos    int
	logger log.Logger

	inbox     chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

type onlinePayload struct {
	Online bool   `json:"online"`
	Name   string `json:"name"`
}

type vehiclePayload struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicle_id"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
}

func (c *mqttConn) onTelemetry(ctx context.Context, t string, payload []byte) {
	_, id, ok := c.topics.Parse(t)
	if !ok {
		return
	}
	c.deliver(Message{Data: payload, VehicleID: id})
}

// onOnline turns presence messages into vehicle frames so the station sees
// one frame vocabulary regardless of how it is connected.
func (c *mqttConn) onOnline(ctx context.Context, t string, payload []byte) {
	_, id, ok := c.topics.Parse(t)
	if !ok || id == "" {
		return
	}
	var p onlinePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Debug("Ignoring malformed presence message", "topic", t, "error", err)
		return
	}
	data, err := json.Marshal(vehiclePayload{
		Type:      string(model.FrameVehicle),
		VehicleID: id,
		Name:      p.Name,
		Connected: p.Online,
	})
	if err != nil {
		return
	}
	c.deliver(Message{Data: data, VehicleID: id})
}

// deliver blocks the broker reader when the station falls behind; frames are
// never dropped between broker and decoder.
func (c *mqttConn) deliver(m Message) {
	select {
	case c.inbox <- m:
	case <-c.closed:
	case <-c.client.Done():
	}
}

func (c *mqttConn) ReadMessage() (Message, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	case <-c.closed:
		return Message{}, ErrTransportClosed
	case <-c.client.Done():
		if err := c.client.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, mqtt.ErrClosed
	}
}

func (c *mqttConn) WriteMessage(m Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	return c.client.Publish(ctx, c.topics.Build(paths.Command, m.VehicleID), c.qos, false, m.Data)
}

func (c *mqttConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = c.client.Close(ctx)
	})
	return err
}
