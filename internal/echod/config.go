package echod

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const appName = "echo-remote"

// Config is the top-level configuration for echod.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Player     PlayerConfig     `toml:"player"`
	Settings   SettingsConfig   `toml:"settings"`
	Extensions ExtensionsConfig `toml:"extensions"`
	Modules    ModulesConfig    `toml:"modules"`
}

// ServerConfig defines the websocket endpoint and logging.
type ServerConfig struct {
	Name          string `toml:"name"`
	DeviceID      string `toml:"device_id"`
	Listen        string `toml:"listen"`
	DisableMDNS   bool   `toml:"disable_mdns"`
	IdleTimeoutMS int64  `toml:"idle_timeout_ms"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogOutput     string `toml:"log_output"`
	LogSource     bool   `toml:"log_source"`
	LogUTC        bool   `toml:"log_utc"`
	LogColor      bool   `toml:"log_color"`
}

// PlayerConfig configures the local player.
type PlayerConfig struct {
	// Approval is how untrusted controllers are handled:
	// prompt, accept, reject or manual.
	Approval       string  `toml:"approval"`
	TickIntervalMS int64   `toml:"tick_interval_ms"`
	Volume         float64 `toml:"volume"`
}

// SettingsConfig selects the persistence backend.
type SettingsConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// ExtensionsConfig lists the content extensions installed locally.
type ExtensionsConfig struct {
	Installed []string `toml:"installed"`
}

// ModulesConfig holds optional module configurations.
type ModulesConfig struct {
	MQTTBridge   MQTTBridgeConfig   `toml:"mqtt_bridge"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// MQTTBridgeConfig configures the MQTT state bridge.
type MQTTBridgeConfig struct {
	Enabled   bool   `toml:"enabled"`
	Broker    string `toml:"broker"`
	NodeID    string `toml:"node_id"`
	TopicBase string `toml:"topic_base"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLSCA     string `toml:"tls_ca"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
	Debug     bool   `toml:"debug"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// TLSEnabled reports whether the broker listener serves TLS.
func (c EmbeddedMQTTConfig) TLSEnabled() bool {
	return c.TLSCert != "" || c.TLSKey != ""
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	cfg := Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills unset fields with their defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Server.Name) == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Server.Name = host
		} else {
			c.Server.Name = "Echo Player"
		}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8765"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "console"
	}
	if c.Player.Approval == "" {
		c.Player.Approval = "prompt"
	}
	if c.Player.Volume <= 0 || c.Player.Volume > 1 {
		c.Player.Volume = 1
	}
	if c.Settings.Backend == "" {
		c.Settings.Backend = "file"
	}
	if c.Modules.EmbeddedMQTT.Enabled && c.Modules.EmbeddedMQTT.Listen == "" {
		c.Modules.EmbeddedMQTT.Listen = "127.0.0.1:1883"
	}
}

// LoadConfig loads a config file from path and normalizes it.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	return cfg, nil
}

// LoadConfigOrDefaults loads path, falling back to Defaults when the file
// does not exist.
func LoadConfigOrDefaults(path string) (Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "echod.toml")
}
