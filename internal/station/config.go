package station

import (
	"fmt"
	"os"

	"github.com/autopeer-io/groundlink/internal/station/core/input"
	"github.com/autopeer-io/groundlink/internal/station/transport"
	"github.com/autopeer-io/groundlink/pkg/mqtt/topic"
	"github.com/autopeer-io/groundlink/pkg/options"
)

// Config is everything needed to assemble a Station.
type Config struct {
	TransportOptions  *options.TransportOptions
	MqttOptions       *options.MqttOptions
	BackendOptions    *options.BackendOptions
	HttpOptions       *options.HttpOptions
	ControlOptions    *options.ControlOptions
	PreferenceOptions *options.PreferenceOptions
}

// newDialer picks the channel implementation named by the transport options.
func (cfg *Config) newDialer() (transport.Dialer, error) {
	switch cfg.TransportOptions.Kind {
	case options.TransportWebSocket:
		return &transport.WebSocketDialer{
			URL:          cfg.TransportOptions.URL,
			WriteTimeout: cfg.TransportOptions.WriteTimeout,
		}, nil
	case options.TransportMQTT:
		mc := cfg.MqttOptions.ToClientConfig()
		if mc.ClientID == "" {
			hostname, _ := os.Hostname()
			mc.ClientID = fmt.Sprintf("groundlink-%s", hostname)
		}
		return &transport.MQTTDialer{
			Config: mc,
			Topics: topic.NewBuilder(cfg.MqttOptions.TopicRoot),
			QoS:    cfg.MqttOptions.QoS,
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.TransportOptions.Kind)
}

// inputConfig applies the key binding overrides on top of the default map.
func (cfg *Config) inputConfig() (input.Config, error) {
	c := input.DefaultConfig()
	for key, b := range cfg.ControlOptions.KeyBindings {
		name, delta, err := options.SplitBinding(b)
		if err != nil {
			return c, err
		}
		ch, ok := input.ParseChannel(name)
		if !ok {
			return c, fmt.Errorf("key %s: unknown channel %q", key, name)
		}
		c.Keys[key] = input.Binding{Channel: ch, Delta: delta}
	}
	return c, nil
}
