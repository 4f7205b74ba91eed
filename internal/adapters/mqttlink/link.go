package mqttlink

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each broker round trip.
const DefaultTimeout = 2 * time.Second

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: broker did not acknowledge in time")

// TLSFiles names PEM files for a TLS broker connection.
type TLSFiles struct {
	CA   string
	Cert string
	Key  string
}

// Will is the retained QoS 1 message the broker publishes if the link drops.
type Will struct {
	Topic   string
	Payload []byte
}

// Options configures a link.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLS       TLSFiles
	Timeout   time.Duration
	Will      *Will
	Logger    *zap.Logger
	// Trace logs every publish, subscribe and delivery with a payload preview.
	Trace bool
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// Link is a broker connection that restores its subscriptions after an
// automatic reconnect.
type Link struct {
	conn    paho.Client
	log     *zap.Logger
	timeout time.Duration
	trace   bool

	mu   sync.Mutex
	subs map[string]subscription
}

// Dial connects to the broker, giving up when ctx ends.
func Dial(ctx context.Context, opts Options) (*Link, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("broker url required")
	}
	tlsConfig, err := opts.TLS.Config()
	if err != nil {
		return nil, err
	}
	l := &Link{
		log:     opts.Logger,
		timeout: opts.Timeout,
		trace:   opts.Trace,
		subs:    map[string]subscription{},
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.timeout <= 0 {
		l.timeout = DefaultTimeout
	}

	po := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetConnectTimeout(l.timeout).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(l.restore).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			l.log.Warn("mqtt link lost", zap.String("broker", opts.BrokerURL), zap.Error(err))
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.Will != nil && opts.Will.Topic != "" {
		po.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, 1, true)
	}
	if tlsConfig != nil {
		po.SetTLSConfig(tlsConfig)
	}

	l.conn = paho.NewClient(po)
	token := l.conn.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", opts.BrokerURL, err)
		}
	case <-ctx.Done():
		l.conn.Disconnect(0)
		return nil, ctx.Err()
	}
	l.log.Info("mqtt link up", zap.String("broker", opts.BrokerURL), zap.String("client_id", opts.ClientID))
	return l, nil
}

// Publish sends payload and waits for the broker acknowledgement.
func (l *Link) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if l.trace {
		l.log.Debug("mqtt publish", zap.String("topic", topic), zap.Bool("retained", retained), zap.String("payload", preview(payload)))
	}
	return l.await(l.conn.Publish(topic, qos, retained, payload))
}

// Subscribe registers handler and remembers it for reconnects.
func (l *Link) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	if l.trace {
		inner := handler
		handler = func(c paho.Client, msg paho.Message) {
			l.log.Debug("mqtt delivery", zap.String("topic", msg.Topic()), zap.String("payload", preview(msg.Payload())))
			inner(c, msg)
		}
	}
	if err := l.await(l.conn.Subscribe(topic, qos, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	l.mu.Lock()
	l.subs[topic] = subscription{qos: qos, handler: handler}
	l.mu.Unlock()
	return nil
}

// Unsubscribe drops topic.
func (l *Link) Unsubscribe(topic string) error {
	l.mu.Lock()
	delete(l.subs, topic)
	l.mu.Unlock()
	return l.await(l.conn.Unsubscribe(topic))
}

// Subscriptions returns the number of remembered subscriptions.
func (l *Link) Subscriptions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close disconnects after a short quiesce.
func (l *Link) Close() {
	l.conn.Disconnect(250)
}

// restore runs on every (re)connect. A clean session forgets subscriptions,
// so the remembered ones are sent again.
func (l *Link) restore(c paho.Client) {
	l.mu.Lock()
	subs := make(map[string]subscription, len(l.subs))
	for topic, sub := range l.subs {
		subs[topic] = sub
	}
	l.mu.Unlock()

	restored := 0
	for topic, sub := range subs {
		if err := l.await(c.Subscribe(topic, sub.qos, sub.handler)); err != nil {
			l.log.Warn("mqtt resubscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		restored++
	}
	if restored > 0 {
		l.log.Info("mqtt subscriptions restored", zap.Int("topics", restored))
	}
}

func (l *Link) await(token paho.Token) error {
	if !token.WaitTimeout(l.timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// preview shortens payloads for trace logging.
func preview(payload []byte) string {
	const limit = 512
	if len(payload) <= limit {
		return string(payload)
	}
	return fmt.Sprintf("%s... (%d bytes)", payload[:limit], len(payload))
}

// Config builds the TLS settings, or nil when no file is named.
func (f TLSFiles) Config() (*tls.Config, error) {
	if f == (TLSFiles{}) {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if f.CA != "" {
		pem, err := os.ReadFile(f.CA)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", f.CA)
		}
		cfg.RootCAs = pool
	}
	if (f.Cert == "") != (f.Key == "") {
		return nil, errors.New("tls cert and key must be set together")
	}
	if f.Cert != "" {
		pair, err := tls.LoadX509KeyPair(f.Cert, f.Key)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	return cfg, nil
}
