package embeddedmqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

const presenceSubscriptionID = 1

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
	// TopicBase scopes the presence table. Empty means remote.BaseTopic.
	TopicBase string
}

// Module runs an embedded MQTT broker for the state bridge and keeps a
// table of the nodes announcing presence through it.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
	ready  chan struct{}

	mu    sync.Mutex
	nodes map[string]remote.Presence
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:1883"
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = remote.BaseTopic
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{
		log:    log,
		server: server,
		config: cfg,
		ready:  make(chan struct{}),
		nodes:  map[string]remote.Presence{},
	}, nil
}

// Ready is closed once the listener is accepting connections.
func (m *Module) Ready() <-chan struct{} {
	return m.ready
}

// TLSEnabled reports whether the listener serves TLS.
func (m *Module) TLSEnabled() bool {
	return m.config.TLSCert != "" || m.config.TLSKey != ""
}

// URL returns the broker URL clients should dial.
func (m *Module) URL() string {
	return BrokerURL(m.config.Listen, m.TLSEnabled())
}

// Nodes lists the nodes whose last presence announced them online.
func (m *Module) Nodes() []remote.Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]remote.Presence, 0, len(m.nodes))
	for _, p := range m.nodes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Run starts the embedded broker.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-embedded", Address: m.config.Listen}
	if m.config.TLSCert != "" || m.config.TLSKey != "" || m.config.TLSCA != "" {
		tlsConfig, err := buildTLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	listener := listeners.NewTCP(listenerConfig)
	if err := m.server.AddListener(listener); err != nil {
		return err
	}
	if err := m.watchPresence(); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- m.server.Serve()
	}()
	m.log.Info("embedded mqtt listening", zap.String("url", m.URL()))
	close(m.ready)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			m.server.Close()
			return err
		}
		<-ctx.Done()
	}
	_ = m.server.Unsubscribe(presenceFilter(m.config.TopicBase), presenceSubscriptionID)
	m.server.Close()
	return nil
}

func (m *Module) watchPresence() error {
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		m.observePresence(pk.TopicName, pk.Payload)
	}
	return m.server.Subscribe(presenceFilter(m.config.TopicBase), presenceSubscriptionID, handler)
}

func (m *Module) observePresence(topic string, payload []byte) {
	var presence remote.Presence
	if err := json.Unmarshal(payload, &presence); err != nil {
		m.log.Debug("ignoring malformed presence", zap.String("topic", topic), zap.Error(err))
		return
	}
	if presence.NodeID == "" {
		return
	}
	m.mu.Lock()
	_, known := m.nodes[presence.NodeID]
	if presence.Online {
		m.nodes[presence.NodeID] = presence
	} else {
		delete(m.nodes, presence.NodeID)
	}
	m.mu.Unlock()

	switch {
	case presence.Online && !known:
		m.log.Info("node online", zap.String("node", presence.NodeID), zap.String("name", presence.Name))
	case !presence.Online && known:
		m.log.Info("node offline", zap.String("node", presence.NodeID), zap.String("name", presence.Name))
	}
}

func presenceFilter(base string) string {
	return strings.TrimSuffix(base, "/") + "/node/+/presence"
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	options := &mqtt.Options{InlineClient: true, Logger: newSlogLogger(log.Named("broker"))}
	server := mqtt.New(options)

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}

	return server, nil
}

// buildTLSConfig builds the listener TLS config. A CA bundle turns on
// client certificate verification.
func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("embedded mqtt tls requires cert and key")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return config, nil
}

// BrokerURL returns the broker URL for a listen address. Wildcard hosts
// are rewritten to loopback so local clients can dial them.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	switch {
	case strings.HasPrefix(listen, ":"):
		listen = "127.0.0.1" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		listen = "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
