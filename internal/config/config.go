package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ClientConfig configures the thermoctl CLI and gateway.
type ClientConfig struct {
	Name    string        `toml:"name"`
	Device  DeviceConfig  `toml:"device"`
	Session SessionConfig `toml:"session"`
	Gateway GatewayConfig `toml:"gateway"`
}

type DeviceConfig struct {
	Addr           string `toml:"addr"`
	Service        string `toml:"service"`
	Characteristic string `toml:"characteristic"`
	ConnectTimeout string `toml:"connect_timeout"`
	IOTimeout      string `toml:"io_timeout"`
}

type SessionConfig struct {
	Attempts       int    `toml:"attempts"`
	BackoffUnit    string `toml:"backoff_unit"`
	PollWait       string `toml:"poll_wait"`
	FailFastStatus bool   `toml:"fail_fast_status"`
}

type GatewayConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token guards write routes when set.
	Token string `toml:"token"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Name:    "thermoctl",
		Device:  DeviceConfig{Addr: "127.0.0.1:7400"},
		Gateway: GatewayConfig{Addr: ":9200"},
	}
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("client config missing name")
	}
	if strings.TrimSpace(cfg.Device.Addr) == "" {
		return fmt.Errorf("client config missing device.addr")
	}
	if _, err := cfg.Device.Endpoint(); err != nil {
		return fmt.Errorf("client config device: %w", err)
	}
	for key, raw := range map[string]string{
		"device.connect_timeout": cfg.Device.ConnectTimeout,
		"device.io_timeout":      cfg.Device.IOTimeout,
		"session.backoff_unit":   cfg.Session.BackoffUnit,
		"session.poll_wait":      cfg.Session.PollWait,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("client config %s: %w", key, err)
		}
	}
	if cfg.Session.Attempts < 0 {
		return fmt.Errorf("client config session.attempts must not be negative")
	}
	return nil
}

// parseDuration treats a blank value as unset.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", raw)
	}
	return d, nil
}
