// Package config loads the bridge's YAML configuration file, generalizing
// the teacher's single-printer Config/LoadConfig (gopkg.in/yaml.v3) to a
// list of configured devices, then layers environment-variable overrides on
// top via github.com/caarlos0/env — the teacher has no env-override layer,
// but every deployment-facing setting (ports, log level) benefits from one
// in a dockerized/systemd context, per SPEC_FULL's ambient-stack expansion.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the whole bridge configuration file.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Devices []DeviceConfig `yaml:"devices"`
	LogLevel string        `yaml:"log_level" env:"BRIDGE_LOG_LEVEL"`
}

// ServerConfig controls the bridge's own HTTP/control surface.
type ServerConfig struct {
	Host string `yaml:"host" env:"BRIDGE_HOST"`
	Port int    `yaml:"port" env:"BRIDGE_PORT"`
}

// DeviceConfig is one printer entry: enough to skip discovery and dial
// directly, plus the optional proxy settings from model.ConnectionConfig.
type DeviceConfig struct {
	Name           string `yaml:"name"`
	Serial         string `yaml:"serial"`
	IPAddress      string `yaml:"ip_address"`
	ProtocolKind   string `yaml:"protocol_kind"`
	AccessCode     string `yaml:"access_code" env:"-"`
	ProxyEnabled   bool   `yaml:"proxy_enabled"`
	ProxyWsPort    int    `yaml:"proxy_ws_port"`
	ProxyVideoPort int    `yaml:"proxy_video_port"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8099},
		LogLevel: "info",
	}
}

// Load reads path, applying environment-variable overrides on top of
// whatever the file specifies. A missing file falls back to Default()
// before overrides are applied, so a purely env-driven deployment works
// without a config file at all.
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}

	return cfg, nil
}

// ListenAddr is the bridge's own control-surface address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
