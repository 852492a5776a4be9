package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for dialing an MQTT broker.
type ClientConfig struct {
	// BrokerURL uses one of the schemes tcp, mqtt, ssl, tls or mqtts.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// SessionExpiry in seconds. Zero ends the session with the connection.
	SessionExpiry uint32

	// ConnectTimeout bounds dialing and the CONNECT handshake. Default is 5s.
	ConnectTimeout time.Duration

	// CleanStart indicates whether to start a clean session.
	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Will message published by the broker if the station vanishes.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// setDefaultConfig applies safe default values to the configuration.
func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker url %q has no host", c.BrokerURL)
	}
	return nil
}
