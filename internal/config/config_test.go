package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aethercast/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.P2P.ConnectTimeout != 30*time.Second {
		t.Errorf("P2P.ConnectTimeout = %v, want %v", cfg.P2P.ConnectTimeout, 30*time.Second)
	}
	if cfg.Metrics.Addr != ":9111" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9111")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
p2p:
  dedicated_interface: "p2p0"
  connect_timeout: "10s"
metrics:
  addr: ":9200"
log:
  level: "debug"
  format: "json"
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.P2P.DedicatedInterface != "p2p0" {
		t.Errorf("P2P.DedicatedInterface = %q, want %q", cfg.P2P.DedicatedInterface, "p2p0")
	}
	if cfg.P2P.ConnectTimeout != 10*time.Second {
		t.Errorf("P2P.ConnectTimeout = %v, want %v", cfg.P2P.ConnectTimeout, 10*time.Second)
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadFirmwareSettings(t *testing.T) {
	yamlContent := `
p2p:
  need_firmware: true
  firmware_command: "/usr/bin/load-wifi-fw"
  firmware_args: ["--board", "rpi4"]
  firmware_sentinel: "/sys/class/net/p2p0/firmware_loaded"
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if !cfg.P2P.NeedFirmware {
		t.Error("P2P.NeedFirmware = false, want true")
	}
	if cfg.P2P.FirmwareCommand != "/usr/bin/load-wifi-fw" {
		t.Errorf("P2P.FirmwareCommand = %q, want %q", cfg.P2P.FirmwareCommand, "/usr/bin/load-wifi-fw")
	}
	if want := []string{"--board", "rpi4"}; len(cfg.P2P.FirmwareArgs) != len(want) || cfg.P2P.FirmwareArgs[0] != want[0] || cfg.P2P.FirmwareArgs[1] != want[1] {
		t.Errorf("P2P.FirmwareArgs = %v, want %v", cfg.P2P.FirmwareArgs, want)
	}
	if cfg.P2P.FirmwareSentinel != "/sys/class/net/p2p0/firmware_loaded" {
		t.Errorf("P2P.FirmwareSentinel = %q, want %q", cfg.P2P.FirmwareSentinel, "/sys/class/net/p2p0/firmware_loaded")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	path := writeTemp(t, "p2p:\n  dedicated_interface: \"p2p0\"\n")

	t.Setenv("AETHERCAST_P2P_DEDICATED_INTERFACE", "wlan0_p2p")
	t.Setenv("AETHERCAST_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.P2P.DedicatedInterface != "wlan0_p2p" {
		t.Errorf("P2P.DedicatedInterface = %q, want env override %q", cfg.P2P.DedicatedInterface, "wlan0_p2p")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override %q", cfg.Log.Level, "warn")
	}
}

func TestValidateRejectsZeroConnectTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.P2P.ConnectTimeout = 0

	if err := config.Validate(cfg); err != config.ErrInvalidConnectTimeout {
		t.Errorf("Validate() = %v, want %v", err, config.ErrInvalidConnectTimeout)
	}
}

func TestValidateRejectsEmptyMetricsAddr(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Addr = ""

	if err := config.Validate(cfg); err != config.ErrEmptyMetricsAddr {
		t.Errorf("Validate() = %v, want %v", err, config.ErrEmptyMetricsAddr)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
