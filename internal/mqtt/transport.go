// Package mqtt implements the MQTT transport contract the tag
// intake is built on: connect with a configured identity, subscribe/publish
// at the documented QoS, and reconnect with exponential backoff capped at a
// configured maximum, re-subscribing every known topic on reconnection.
// Built on github.com/eclipse/paho.mqtt.golang, the
// standard Go Eclipse Paho client, with backoff driven by
// github.com/cenkalti/backoff/v5.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/logging"
)

// QoS levels the transport uses. Subscribe and Publish are both QoS 1,
// at-least-once.
const (
	qosAtLeastOnce byte = 1
)

// Config is the connection identity and reconnect policy.
type Config struct {
	Host                string
	Port                int
	Username            string
	Password            string
	ClientID            string
	KeepaliveSeconds    int
	TLSConfig           *tls.Config
	ReconnectMaxBackoff time.Duration

	// WillTopic/WillPayload, when WillTopic is non-empty, are published by
	// the broker as the connection's Last-Will-and-Testament — the
	// Sparkplug-B NDEATH certificate.
	WillTopic   string
	WillPayload []byte
}

// MessageHandler processes one received message on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Transport is a reconnecting MQTT client bound to one broker identity.
type Transport struct {
	cfg    Config
	log    *logging.Logger
	client paho.Client

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// New builds a Transport. Connect must be called before Subscribe/Publish.
func New(cfg Config, log *logging.Logger) *Transport {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.ReconnectMaxBackoff <= 0 {
		cfg.ReconnectMaxBackoff = 60 * time.Second
	}
	return &Transport{cfg: cfg, log: log, subs: make(map[string]MessageHandler)}
}

// Connect dials the broker and installs a connection-lost handler that
// reconnects with capped exponential backoff and replays every active
// subscription.
func (t *Transport) Connect() error {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", t.cfg.Host, t.cfg.Port))
	if t.cfg.ClientID != "" {
		opts.SetClientID(t.cfg.ClientID)
	}
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.KeepaliveSeconds > 0 {
		opts.SetKeepAlive(time.Duration(t.cfg.KeepaliveSeconds) * time.Second)
	}
	if t.cfg.TLSConfig != nil {
		opts.SetTLSConfig(t.cfg.TLSConfig)
	}
	if t.cfg.WillTopic != "" {
		opts.SetBinaryWill(t.cfg.WillTopic, t.cfg.WillPayload, qosAtLeastOnce, false)
	}
	// The client's own auto-reconnect is disabled: reconnection and topic
	// replay are driven explicitly below so the backoff cap and
	// resubscription behavior are under this package's control, not
	// paho's internal retry policy.
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.log.Warn("mqtt connection lost", "error", err)
		go t.reconnectLoop()
	})

	t.client = paho.NewClient(opts)
	token := t.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect to %s:%d: %w: %w", t.cfg.Host, t.cfg.Port, err, errs.ErrTransport)
	}
	return nil
}

// reconnectLoop retries Connect with exponential backoff capped at
// cfg.ReconnectMaxBackoff, then replays every subscription recorded before
// the disconnect.
func (t *Transport) reconnectLoop() {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = t.cfg.ReconnectMaxBackoff

	delay := b.NextBackOff()
	for {
		time.Sleep(delay)

		if err := t.Connect(); err != nil {
			delay = b.NextBackOff()
			t.log.Warn("mqtt reconnect attempt failed", "error", err, "next_delay", delay)
			continue
		}
		t.log.Info("mqtt reconnected")
		t.resubscribeAll()
		return
	}
}

func (t *Transport) resubscribeAll() {
	t.mu.Lock()
	topics := make(map[string]MessageHandler, len(t.subs))
	for topic, h := range t.subs {
		topics[topic] = h
	}
	t.mu.Unlock()

	for topic, handler := range topics {
		if err := t.subscribeClient(topic, handler); err != nil {
			t.log.Error("mqtt resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Subscribe registers handler for topic (which may contain MQTT wildcards)
// at QoS 1, and remembers it so reconnection can replay it.
func (t *Transport) Subscribe(topic string, handler MessageHandler) error {
	t.mu.Lock()
	t.subs[topic] = handler
	t.mu.Unlock()
	return t.subscribeClient(topic, handler)
}

func (t *Transport) subscribeClient(topic string, handler MessageHandler) error {
	token := t.client.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w: %w", topic, err, errs.ErrTransport)
	}
	return nil
}

// Unsubscribe removes topic from both the broker subscription and the
// resubscription set.
func (t *Transport) Unsubscribe(topic string) error {
	t.mu.Lock()
	delete(t.subs, topic)
	t.mu.Unlock()

	token := t.client.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: unsubscribe %s: %w: %w", topic, err, errs.ErrTransport)
	}
	return nil
}

// Publish sends payload to topic at QoS 1.
func (t *Transport) Publish(topic string, payload []byte) error {
	token := t.client.Publish(topic, qosAtLeastOnce, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w: %w", topic, err, errs.ErrTransport)
	}
	return nil
}

// Disconnect closes the connection gracefully, waiting up to quiesce for
// in-flight work to drain.
func (t *Transport) Disconnect(quiesce time.Duration) {
	if t.client != nil {
		t.client.Disconnect(uint(quiesce.Milliseconds()))
	}
}
