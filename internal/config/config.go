// Package config loads client and server settings from an optional YAML
// file and CHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Transports supported by the client.
const (
	TransportNhooyr  = "nhooyr"
	TransportGorilla = "gorilla"
)

// Config holds every tunable of the two binaries.
type Config struct {
	ServerURL      string        `yaml:"server_url" env:"CHAT_SERVER_URL"`
	Transport      string        `yaml:"transport" env:"CHAT_TRANSPORT"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"CHAT_RECONNECT_DELAY"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env:"CHAT_DIAL_TIMEOUT"`
	SendTimeout    time.Duration `yaml:"send_timeout" env:"CHAT_SEND_TIMEOUT"`
	ListenAddr     string        `yaml:"listen_addr" env:"CHAT_LISTEN_ADDR"`
	LogLevel       string        `yaml:"log_level" env:"CHAT_LOG_LEVEL"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ServerURL:      "ws://127.0.0.1:8080/ws",
		Transport:      TransportNhooyr,
		ReconnectDelay: 5 * time.Second,
		DialTimeout:    10 * time.Second,
		SendTimeout:    10 * time.Second,
		ListenAddr:     "127.0.0.1:8080",
		LogLevel:       "info",
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings for values the binaries cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	switch c.Transport {
	case TransportNhooyr, TransportGorilla:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("reconnect_delay must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if c.SendTimeout <= 0 {
		return errors.New("send_timeout must be positive")
	}
	return nil
}
