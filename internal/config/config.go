// Package config manages the aethercastd daemon configuration using
// koanf/v2, grounded on dantte-lp-gobfd/internal/config's
// defaults-then-file-then-env layering.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete aethercastd configuration.
type Config struct {
	P2P     P2PConfig     `koanf:"p2p"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// P2PConfig holds the connection manager's own settings.
type P2PConfig struct {
	// DedicatedInterface pins interface selection to a single named
	// interface instead of accepting whatever wpa_supplicant reports as
	// p2p-capable.
	DedicatedInterface string `koanf:"dedicated_interface"`

	// ManagementInterface names the interface the MIRACAST 0 driver
	// command is issued on when a connection enters Disconnected.
	ManagementInterface string `koanf:"management_interface"`

	// NeedFirmware gates LifecycleController on internal/firmware.Loader
	// before proceeding past presence.
	NeedFirmware bool `koanf:"need_firmware"`

	// FirmwareCommand/FirmwareArgs are the vendor firmware-load script and
	// its fixed arguments; the interface name is appended by the loader.
	// FirmwareSentinel is a path under /sys or /dev whose existence means
	// the firmware is already loaded.
	FirmwareCommand  string   `koanf:"firmware_command"`
	FirmwareArgs     []string `koanf:"firmware_args"`
	FirmwareSentinel string   `koanf:"firmware_sentinel"`

	// ConnectTimeout bounds how long a connect(device) attempt waits
	// before failing with ErrTimeout.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		P2P: P2PConfig{
			ConnectTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9111",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envPrefix is the environment variable prefix for aethercastd
// configuration. Variables are named AETHERCAST_<section>_<key>, e.g.
// AETHERCAST_P2P_DEDICATED_INTERFACE.
const envPrefix = "AETHERCAST_"

// Load reads configuration from a YAML file at path (if it exists),
// overlays environment variable overrides, and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips
// the file layer entirely.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envKeyMapper transforms AETHERCAST_P2P_DEDICATED_INTERFACE into
// p2p.dedicated_interface. The bare names AETHERCAST_DEDICATED_P2P_INTERFACE
// and AETHERCAST_NEED_FIRMWARE map onto p2p.dedicated_interface and
// p2p.need_firmware.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	switch s {
	case "DEDICATED_P2P_INTERFACE":
		return "p2p.dedicated_interface"
	case "NEED_FIRMWARE":
		return "p2p.need_firmware"
	}
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"p2p.dedicated_interface":  defaults.P2P.DedicatedInterface,
		"p2p.management_interface": defaults.P2P.ManagementInterface,
		"p2p.need_firmware":        defaults.P2P.NeedFirmware,
		"p2p.firmware_command":     defaults.P2P.FirmwareCommand,
		"p2p.firmware_args":        defaults.P2P.FirmwareArgs,
		"p2p.firmware_sentinel":    defaults.P2P.FirmwareSentinel,
		"p2p.connect_timeout":      defaults.P2P.ConnectTimeout.String(),
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrInvalidConnectTimeout = errors.New("p2p.connect_timeout must be > 0")
	ErrEmptyMetricsAddr      = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.P2P.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	return nil
}
