package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/groundlink/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions configure the broker connection used when the backend channel
// runs over MQTT.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify accepts any certificate presented by the broker.
	// Only for bench setups.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/{segment}/{vehicle}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
	QoS       int    `json:"qos" mapstructure:"qos"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://127.0.0.1:1883",
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		TopicRoot:      "gcs/v1",
		QoS:            0,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.TopicRoot == "" {
		errs = append(errs, errors.New("--mqtt.topic-root must not be empty"))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, errors.New("--mqtt.qos must be 0, 1 or 2"))
	}
	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, usually generated).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on every connect.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix shared with the vehicle backend.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS for telemetry subscriptions and control publishes.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
