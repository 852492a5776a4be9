package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/groundlink/pkg/log"
)

type session struct {
	cfg    *ClientConfig
	client *paho.Client

	// subscriptions holds the registered handlers.
	// Key: topic filter (string), Value: subscriptionEntry
	subscriptions sync.Map

	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	err      error
}

type subscriptionEntry struct {
	topic   string
	qos     int
	handler MessageHandler
}

var _ Client = (*session)(nil)

// Dial connects to the broker and completes the CONNECT handshake.
func Dial(ctx context.Context, cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := dialBroker(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	s := &session{cfg: cfg, done: make(chan struct{})}
	s.client = paho.NewClient(paho.ClientConfig{
		ClientID:           cfg.ClientID,
		Conn:               conn,
		OnClientError:      s.onClientError,
		OnServerDisconnect: s.onServerDisconnect,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			s.router,
		},
	})

	connect := &paho.Connect{
		KeepAlive:    cfg.KeepAlive,
		ClientID:     cfg.ClientID,
		CleanStart:   cfg.CleanStart,
		Username:     cfg.Username,
		UsernameFlag: cfg.Username != "",
		Password:     []byte(cfg.Password),
		PasswordFlag: cfg.Password != "",
		WillMessage:  s.willMessage(),
	}
	if cfg.SessionExpiry > 0 {
		expiry := cfg.SessionExpiry
		connect.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}

	log.Debug("Connecting to MQTT broker", "broker", cfg.BrokerURL, "clientID", cfg.ClientID)
	if _, err := s.client.Connect(ctx, connect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return s, nil
}

func dialBroker(ctx context.Context, cfg *ClientConfig) (net.Conn, error) {
	u, _ := url.Parse(cfg.BrokerURL) // Already validated

	switch u.Scheme {
	case "ssl", "tls", "mqtts":
		d := &tls.Dialer{Config: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ServerName:         u.Hostname(),
		}}
		return d.DialContext(ctx, "tcp", hostPort(u, "8883"))
	default:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", hostPort(u, "1883"))
	}
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}

func (s *session) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	_, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (s *session) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	s.subscriptions.Store(topic, subscriptionEntry{
		topic:   topic,
		qos:     qos,
		handler: handler,
	})

	if _, err := s.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	}); err != nil {
		s.subscriptions.Delete(topic)
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	log.Debug("Subscribed to topic", "topic", topic)
	return nil
}

func (s *session) Unsubscribe(ctx context.Context, topic string) error {
	s.subscriptions.Delete(topic)

	_, err := s.client.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{topic},
	})
	return err
}

func (s *session) Close(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	err := s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	s.finish(ErrClosed)
	return err
}

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// --- Internal Callbacks ---

func (s *session) onClientError(err error) {
	log.Debug("MQTT client error", "error", err)
	s.finish(err)
}

func (s *session) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT server requested disconnect", "code", d.ReasonCode, "reason", reason)
	s.finish(fmt.Errorf("server disconnect: code %d %s", d.ReasonCode, reason))
}

// router dispatches incoming messages to the registered handlers. Handlers
// run inline so that messages on one topic keep their order.
func (s *session) router(p paho.PublishReceived) (bool, error) {
	matched := false
	s.subscriptions.Range(func(key, value any) bool {
		entry := value.(subscriptionEntry)
		if topicsMatch(topicFilter(entry.topic), p.Packet.Topic) {
			entry.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
			matched = true
		}
		return true
	})

	if !matched {
		log.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}

	return true, nil // Always acknowledge reception
}

func (s *session) willMessage() *paho.WillMessage {
	if s.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   s.cfg.WillTopic,
		Payload: s.cfg.WillPayload,
		QoS:     s.cfg.WillQoS,
		Retain:  s.cfg.WillRetain,
	}
}

// topicsMatch checks if a topic matches a filter (supports wildcards + and #).
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}

	if !strings.Contains(filter, "+") && !strings.Contains(filter, "#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

func topicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		// Format: $share/<group>/<topic>
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}
