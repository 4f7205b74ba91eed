package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/dispatch"
	"github.com/mikey-austin/echo_remote/internal/playersync"
	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Client is the MQTT surface the bridge needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// TrustChecker reports whether a controller device id has been paired.
type TrustChecker interface {
	Contains(deviceID string) bool
}

// Config configures the bridge.
type Config struct {
	NodeID       string
	TopicBase    string
	Name         string
	Port         int
	TickInterval time.Duration
}

// Deps are the collaborators of the bridge.
type Deps struct {
	Engine     ports.PlaybackEngine
	Extensions ports.ExtensionRegistry
	Dispatcher *dispatch.Dispatcher
	// Trust gates the command topic. Nil makes the bridge publish-only.
	Trust TrustChecker
	// Sync is the synchronizer shared with the remote player.
	Sync *playersync.Hub
}

// syncOwner names the bridge's hold on the shared synchronizer.
const syncOwner = "mqtt_bridge"

// Module mirrors player state onto MQTT and accepts commands from paired
// controllers.
type Module struct {
	log        *zap.Logger
	client     Client
	registry   ports.ExtensionRegistry
	dispatcher *dispatch.Dispatcher
	trust      TrustChecker
	sync       *playersync.Hub
	config     Config

	presenceTopic string
	stateTopic    string
	cmdTopic      string
	evtTopic      string
}

// NewModule creates the bridge and attaches it to the shared synchronizer.
func NewModule(log *zap.Logger, client Client, deps Deps, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		return nil, errors.New("mqtt client required")
	}
	if deps.Engine == nil {
		return nil, errors.New("playback engine required")
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("mqtt bridge node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = remote.BaseTopic
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.NewDispatcher(log, deps.Engine, dispatch.NewValidator(log, deps.Extensions))
	}
	if deps.Sync == nil {
		deps.Sync = playersync.NewHub(log.Named("sync"), deps.Engine, playersync.Options{TickInterval: cfg.TickInterval})
	}

	m := &Module{
		log:           log,
		client:        client,
		registry:      deps.Extensions,
		dispatcher:    deps.Dispatcher,
		trust:         deps.Trust,
		sync:          deps.Sync,
		config:        cfg,
		presenceTopic: remote.TopicPresence(cfg.TopicBase, cfg.NodeID),
		stateTopic:    remote.TopicState(cfg.TopicBase, cfg.NodeID),
		cmdTopic:      remote.TopicCommands(cfg.TopicBase, cfg.NodeID),
		evtTopic:      remote.TopicEvents(cfg.TopicBase, cfg.NodeID),
	}
	m.sync.Attach(m)
	return m, nil
}

// OfflinePresence is the payload published when the node goes away. It is
// also suitable as the client's will message.
func OfflinePresence(nodeID string, name string) []byte {
	payload, _ := json.Marshal(remote.Presence{NodeID: nodeID, Kind: "player", Name: name, Online: false})
	return payload
}

// Run starts the bridge.
func (m *Module) Run(ctx context.Context) error {
	if m.trust != nil {
		handler := func(_ paho.Client, msg paho.Message) {
			m.handleCommand(ctx, msg.Payload())
		}
		if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
			return err
		}
		defer m.client.Unsubscribe(m.cmdTopic)
	} else {
		m.log.Info("no trust store, mqtt bridge is publish-only")
	}

	if err := m.publishPresence(true); err != nil {
		return err
	}
	m.sync.Hold(ctx, syncOwner)

	<-ctx.Done()
	m.sync.Release(syncOwner)
	if err := m.publishPresence(false); err != nil {
		m.log.Warn("publish offline presence", zap.Error(err))
	}
	return nil
}

func (m *Module) publishPresence(online bool) error {
	presence := remote.Presence{
		NodeID: m.config.NodeID,
		Kind:   "player",
		Name:   m.config.Name,
		Port:   m.config.Port,
		Online: online,
		TS:     time.Now().Unix(),
	}
	if m.registry != nil {
		presence.Extensions = m.registry.InstalledIDs()
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(m.presenceTopic, 1, true, payload)
}

// Broadcast routes synchronizer output: snapshots are retained on the state
// topic, everything else goes to the events topic.
func (m *Module) Broadcast(msg remote.Message) {
	payload, err := remote.Encode(msg)
	if err != nil {
		m.log.Error("encode state", zap.Error(err))
		return
	}
	topic, qos, retained := m.evtTopic, byte(0), false
	if _, ok := msg.(remote.PlayerState); ok {
		topic, qos, retained = m.stateTopic, 1, true
	}
	if err := m.client.Publish(topic, qos, retained, payload); err != nil {
		m.log.Warn("publish state", zap.String("topic", topic), zap.Error(err))
	}
}

func (m *Module) handleCommand(ctx context.Context, payload []byte) {
	sender := remote.CommandSender(payload)
	if sender == "" || !m.trust.Contains(sender) {
		m.log.Warn("dropping command from untrusted device", zap.String("device_id", sender))
		m.Broadcast(remote.ErrorMessage(remote.ErrorUnknown, "Device not trusted", sender))
		return
	}
	msg, err := remote.Decode(payload)
	if err != nil {
		m.log.Warn("invalid command", zap.String("device_id", sender), zap.Error(err))
		m.Broadcast(remote.ErrorMessage(remote.ErrorUnknown, "Failed to parse message", ""))
		return
	}
	if !dispatch.IsCommand(msg) {
		m.log.Warn("ignoring non-command message", zap.String("type", string(msg.Type())))
		return
	}
	if err := m.dispatcher.Dispatch(ctx, msg); err != nil {
		m.log.Warn("command failed", zap.String("type", string(msg.Type())), zap.Error(err))
		m.Broadcast(dispatch.ErrorFor(err))
	}
}
