package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/clock"
	"github.com/mikey-austin/echo_remote/internal/adapters/extensions"
	"github.com/mikey-austin/echo_remote/internal/adapters/identity"
	"github.com/mikey-austin/echo_remote/internal/adapters/idgen"
	"github.com/mikey-austin/echo_remote/internal/adapters/mdns"
	"github.com/mikey-austin/echo_remote/internal/adapters/mqttlink"
	"github.com/mikey-austin/echo_remote/internal/adapters/settings"
	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/internal/connection"
	"github.com/mikey-austin/echo_remote/internal/discovery"
	"github.com/mikey-austin/echo_remote/internal/echod"
	embeddedmqtt "github.com/mikey-austin/echo_remote/internal/modules/embedded_mqtt"
	enginecore "github.com/mikey-austin/echo_remote/internal/modules/engine_core"
	mqttbridge "github.com/mikey-austin/echo_remote/internal/modules/mqtt_bridge"
	remoteplayer "github.com/mikey-austin/echo_remote/internal/modules/remote_player"
	"github.com/mikey-austin/echo_remote/internal/playersync"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

type overrides struct {
	name      string
	listen    string
	logLevel  string
	logFormat string
	logOutput string
	logSource bool
	logUTC    bool
	logColor  bool
	noMDNS    bool
}

type adminFlags struct {
	enablePlayer  bool
	disablePlayer bool
	listTrusted   bool
	untrust       string
	clearTrusted  bool
}

func main() {
	var (
		configPath  string
		ov          overrides
		admin       adminFlags
		printConfig bool
		dryRun      bool
	)

	defaultConfig := echod.DefaultConfigPath()
	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&ov.name, "name", "", "advertised player name override")
	flag.StringVar(&ov.listen, "listen", "", "websocket listen address override")
	flag.StringVar(&ov.logLevel, "log-level", "", "log level override")
	flag.StringVar(&ov.logFormat, "log-format", "", "log format override (console|json)")
	flag.StringVar(&ov.logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&ov.logSource, "log-source", false, "include caller in logs")
	flag.BoolVar(&ov.logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&ov.logColor, "log-color", false, "enable colored log output (console only)")
	flag.BoolVar(&ov.noMDNS, "no-mdns", false, "do not advertise over mDNS")
	flag.BoolVar(&admin.enablePlayer, "enable-player", false, "enable remote player mode and persist it")
	flag.BoolVar(&admin.disablePlayer, "disable-player", false, "disable remote player mode and persist it")
	flag.BoolVar(&admin.listTrusted, "list-trusted", false, "list trusted controller ids and exit")
	flag.StringVar(&admin.untrust, "untrust", "", "remove a trusted controller id and exit")
	flag.BoolVar(&admin.clearTrusted, "clear-trusted", false, "forget all trusted controllers and exit")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	if admin.enablePlayer && admin.disablePlayer {
		fmt.Fprintln(os.Stderr, "-enable-player and -disable-player are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := loadConfig(configPath, defaultConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, ov)

	if printConfig {
		printResolvedConfig(os.Stdout, cfg)
		return
	}
	if dryRun {
		if _, err := remoteplayer.NewApprover(cfg.Player.Approval); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := echod.NewLogger(echod.LogConfigFrom(cfg.Server))
	defer func() { _ = logger.Sync() }()

	store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path)
	if err != nil {
		logger.Error("failed to open settings", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	trust, err := connection.NewTrustStore(logger.Named("trust"), store)
	if err != nil {
		logger.Error("failed to load trusted devices", zap.Error(err))
		os.Exit(1)
	}

	handled, err := runAdmin(os.Stdout, admin, store, trust)
	if err != nil {
		logger.Error("admin command failed", zap.Error(err))
		os.Exit(1)
	}
	if handled && !admin.enablePlayer {
		return
	}

	playerMode, err := settings.PlayerModeEnabled(store)
	if err != nil {
		logger.Warn("invalid player mode setting, treating as disabled", zap.Error(err))
	}
	deviceID, err := identity.DeviceID(store, idgen.Generator{}, cfg.Server.DeviceID)
	if err != nil {
		logger.Error("failed to resolve device id", zap.Error(err))
		os.Exit(1)
	}
	cfg.Server.DeviceID = deviceID

	logger.Info("echod starting",
		zap.String("name", cfg.Server.Name),
		zap.String("device_id", cfg.Server.DeviceID),
		zap.String("listen", cfg.Server.Listen),
		zap.Bool("player_mode", playerMode),
		zap.String("approval", cfg.Player.Approval),
		zap.Strings("extensions", cfg.Extensions.Installed),
		zap.Strings("modules", enabledModules(cfg, playerMode)),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	skipEmbedded := false
	if cfg.Modules.EmbeddedMQTT.Enabled && cfg.Modules.MQTTBridge.Enabled && cfg.Modules.MQTTBridge.Broker == embeddedBrokerURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	modules, cleanup, err := buildModules(cfg, logger, trust, playerMode, skipEmbedded)
	defer cleanup()
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}
	if len(modules) == 0 {
		logger.Info("remote player mode is disabled; run with -enable-player to accept controllers")
		return
	}

	supervisor := echod.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string, defaultPath string) (echod.Config, error) {
	if path == defaultPath {
		return echod.LoadConfigOrDefaults(path)
	}
	return echod.LoadConfig(path)
}

func applyOverrides(cfg *echod.Config, ov overrides) {
	if ov.name != "" {
		cfg.Server.Name = ov.name
	}
	if ov.listen != "" {
		cfg.Server.Listen = ov.listen
	}
	if ov.logLevel != "" {
		cfg.Server.LogLevel = ov.logLevel
	}
	if ov.logFormat != "" {
		cfg.Server.LogFormat = ov.logFormat
	}
	if ov.logOutput != "" {
		cfg.Server.LogOutput = ov.logOutput
	}
	if ov.logSource {
		cfg.Server.LogSource = true
	}
	if ov.logUTC {
		cfg.Server.LogUTC = true
	}
	if ov.logColor {
		cfg.Server.LogColor = true
	}
	if ov.noMDNS {
		cfg.Server.DisableMDNS = true
	}
	bridge := &cfg.Modules.MQTTBridge
	if bridge.TopicBase == "" {
		bridge.TopicBase = remote.BaseTopic
	}
	if bridge.Enabled && bridge.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		bridge.Broker = embeddedBrokerURL(*cfg)
	}
}

// runAdmin handles the settings flags. It reports whether any ran.
func runAdmin(out io.Writer, admin adminFlags, store settings.Store, trust *connection.TrustStore) (bool, error) {
	handled := false
	if admin.enablePlayer || admin.disablePlayer {
		handled = true
		if err := settings.SetPlayerMode(store, admin.enablePlayer); err != nil {
			return true, err
		}
		if admin.enablePlayer {
			fmt.Fprintln(out, "remote player mode enabled")
		} else {
			fmt.Fprintln(out, "remote player mode disabled")
		}
	}
	if admin.untrust != "" {
		handled = true
		if !trust.Contains(admin.untrust) {
			return true, fmt.Errorf("device %q is not trusted", admin.untrust)
		}
		if err := trust.Remove(admin.untrust); err != nil {
			return true, err
		}
		fmt.Fprintf(out, "untrusted %s\n", admin.untrust)
	}
	if admin.clearTrusted {
		handled = true
		if err := trust.Clear(); err != nil {
			return true, err
		}
		fmt.Fprintln(out, "cleared trusted devices")
	}
	if admin.listTrusted {
		handled = true
		ids := trust.List()
		if len(ids) == 0 {
			fmt.Fprintln(out, "no trusted devices")
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
	}
	return handled, nil
}

func buildModules(cfg echod.Config, logger *zap.Logger, trust *connection.TrustStore, playerMode bool, skipEmbedded bool) ([]echod.ModuleRunner, func(), error) {
	modules := []echod.ModuleRunner{}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		mod, err := newEmbeddedBroker(cfg, logger)
		if err != nil {
			return nil, cleanup, err
		}
		modules = append(modules, echod.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	if !playerMode {
		if cfg.Modules.MQTTBridge.Enabled {
			logger.Info("mqtt bridge needs remote player mode, not starting it")
		}
		return modules, cleanup, nil
	}

	registry := extensions.NewStatic(cfg.Extensions.Installed...)
	engine := enginecore.NewEngine(logger.Named("engine"), &enginecore.NullDriver{}, enginecore.Options{
		Clock:  clock.Clock{},
		Volume: cfg.Player.Volume,
	})
	modules = append(modules, echod.ModuleRunner{Name: "engine", Run: engine.Run})

	tick := time.Duration(cfg.Player.TickIntervalMS) * time.Millisecond
	hub := playersync.NewHub(logger.Named("sync"), engine, playersync.Options{TickInterval: tick})

	approver, err := remoteplayer.NewApprover(cfg.Player.Approval)
	if err != nil {
		return nil, cleanup, err
	}
	var advertiser discovery.Advertiser
	if !cfg.Server.DisableMDNS {
		advertiser = mdns.NewAdvertiser(logger.Named("mdns"))
	}
	player, err := remoteplayer.NewModule(logger.With(zap.String("module", "remote_player")), remoteplayer.Deps{
		Engine:     engine,
		Extensions: registry,
		Trust:      trust,
		Advertiser: advertiser,
		Approver:   approver,
		Sync:       hub,
	}, remoteplayer.Config{
		Name:         cfg.Server.Name,
		DeviceID:     cfg.Server.DeviceID,
		Listen:       cfg.Server.Listen,
		Advertise:    advertiser != nil,
		TickInterval: tick,
		Server:       ws.ServerOptions{IdleTimeout: time.Duration(cfg.Server.IdleTimeoutMS) * time.Millisecond},
	})
	if err != nil {
		return nil, cleanup, err
	}
	modules = append(modules, echod.ModuleRunner{Name: "remote_player", Run: player.Run})

	if cfg.Modules.MQTTBridge.Enabled {
		bridgeCfg := cfg.Modules.MQTTBridge
		nodeID := bridgeCfg.NodeID
		if nodeID == "" {
			nodeID = cfg.Server.DeviceID
		}
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 5*time.Second)
		link, err := mqttlink.Dial(dialCtx, mqttlink.Options{
			BrokerURL: bridgeCfg.Broker,
			ClientID:  fmt.Sprintf("echod-%s", nodeID),
			Username:  bridgeCfg.Username,
			Password:  bridgeCfg.Password,
			TLS:       mqttlink.TLSFiles{CA: bridgeCfg.TLSCA, Cert: bridgeCfg.TLSCert, Key: bridgeCfg.TLSKey},
			Logger:    logger.Named("mqtt"),
			Trace:     bridgeCfg.Debug,
			Will: &mqttlink.Will{
				Topic:   remote.TopicPresence(bridgeCfg.TopicBase, nodeID),
				Payload: mqttbridge.OfflinePresence(nodeID, cfg.Server.Name),
			},
		})
		cancelDial()
		if err != nil {
			return nil, cleanup, fmt.Errorf("mqtt connection failed: %w", err)
		}
		cleanups = append(cleanups, link.Close)

		bridge, err := mqttbridge.NewModule(logger.With(zap.String("module", "mqtt_bridge")), link, mqttbridge.Deps{
			Engine:     engine,
			Extensions: registry,
			Dispatcher: player.Dispatcher(),
			Trust:      trust,
			Sync:       hub,
		}, mqttbridge.Config{
			NodeID:       nodeID,
			TopicBase:    bridgeCfg.TopicBase,
			Name:         cfg.Server.Name,
			Port:         listenPort(cfg.Server.Listen),
			TickInterval: tick,
		})
		if err != nil {
			return nil, cleanup, err
		}
		modules = append(modules, echod.ModuleRunner{Name: "mqtt_bridge", Run: bridge.Run})
	}

	return modules, cleanup, nil
}

func enabledModules(cfg echod.Config, playerMode bool) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if playerMode {
		out = append(out, "remote_player")
	}
	if playerMode && cfg.Modules.MQTTBridge.Enabled {
		out = append(out, "mqtt_bridge")
	}
	return out
}

func printResolvedConfig(out io.Writer, cfg echod.Config) {
	fmt.Fprintf(out,
		"name=%s listen=%s mdns=%t approval=%s settings=%s extensions=%s log_level=%s log_format=%s log_output=%s log_source=%t log_utc=%t log_color=%t mqtt_bridge=%t broker=%s embedded_mqtt=%t\n",
		cfg.Server.Name,
		cfg.Server.Listen,
		!cfg.Server.DisableMDNS,
		cfg.Player.Approval,
		cfg.Settings.Backend,
		strings.Join(cfg.Extensions.Installed, ","),
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogSource,
		cfg.Server.LogUTC,
		cfg.Server.LogColor,
		cfg.Modules.MQTTBridge.Enabled,
		cfg.Modules.MQTTBridge.Broker,
		cfg.Modules.EmbeddedMQTT.Enabled,
	)
}

func listenPort(listen string) int {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(port, "%d", &n)
	return n
}

func embeddedBrokerURL(cfg echod.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return embeddedmqtt.BrokerURL(listen, cfg.Modules.EmbeddedMQTT.TLSEnabled())
}

func newEmbeddedBroker(cfg echod.Config, logger *zap.Logger) (*embeddedmqtt.Module, error) {
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
		TopicBase:      cfg.Modules.MQTTBridge.TopicBase,
	})
}

// startEmbeddedBroker runs the broker ahead of the bridge so its client
// can connect during module construction.
func startEmbeddedBroker(ctx context.Context, cfg echod.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := newEmbeddedBroker(cfg, logger)
	if err != nil {
		return err
	}
	stopped := make(chan error, 1)
	go func() {
		err := mod.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
		stopped <- err
	}()

	select {
	case <-mod.Ready():
	case err := <-stopped:
		if err == nil {
			err = errors.New("embedded mqtt stopped before it was ready")
		}
		return err
	case <-time.After(3 * time.Second):
		return fmt.Errorf("embedded mqtt not ready at %s", mod.URL())
	}
	return waitForListen(cfg.Modules.EmbeddedMQTT.Listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
