package echod

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echod.toml")
	data := []byte("" +
		"[server]\n" +
		"name = \"Living Room\"\n" +
		"listen = \"127.0.0.1:9000\"\n" +
		"\n" +
		"[player]\n" +
		"approval = \"manual\"\n" +
		"\n" +
		"[settings]\n" +
		"backend = \"sqlite\"\n" +
		"\n" +
		"[extensions]\n" +
		"installed = [\"local\", \"spotify\"]\n" +
		"\n" +
		"[modules.embedded_mqtt]\n" +
		"enabled = true\n" +
		"allow_anonymous = true\n" +
		"\n" +
		"[modules.mqtt_bridge]\n" +
		"enabled = true\n" +
		"node_id = \"den\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Name != "Living Room" || cfg.Server.Listen != "127.0.0.1:9000" {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.Player.Approval != "manual" || cfg.Settings.Backend != "sqlite" {
		t.Fatalf("unexpected player/settings %+v %+v", cfg.Player, cfg.Settings)
	}
	if len(cfg.Extensions.Installed) != 2 {
		t.Fatalf("expected two extensions, got %v", cfg.Extensions.Installed)
	}
	if cfg.Modules.EmbeddedMQTT.Listen != "127.0.0.1:1883" {
		t.Fatalf("expected default broker listen, got %q", cfg.Modules.EmbeddedMQTT.Listen)
	}
	if !cfg.Modules.MQTTBridge.Enabled || cfg.Modules.MQTTBridge.NodeID != "den" {
		t.Fatalf("expected bridge config, got %+v", cfg.Modules.MQTTBridge)
	}
	if cfg.Player.Volume != 1 {
		t.Fatalf("expected default volume, got %v", cfg.Player.Volume)
	}
}

func TestLoadConfigRejectsDirectory(t *testing.T) {
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigOrDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadConfigOrDefaults(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != ":8765" || cfg.Player.Approval != "prompt" || cfg.Settings.Backend != "file" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.Name == "" {
		t.Fatalf("expected a default name")
	}
}

func TestLoadConfigOrDefaultsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echod.toml")
	if err := os.WriteFile(path, []byte("[server\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigOrDefaults(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join("echo-remote", "echod.toml")) {
		t.Fatalf("unexpected path %q", path)
	}
}
