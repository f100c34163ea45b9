// Package config loads command defaults from the environment. Command-line
// flags are bound on top of the loaded values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gosuda/pipe-chat/internal/wire"
)

// Client configures chat-client.
type Client struct {
	Username         string        `env:"PIPECHAT_USERNAME"`
	Server           string        `env:"PIPECHAT_SERVER"            envDefault:"localhost:10000"`
	Wire             string        `env:"PIPECHAT_WIRE"              envDefault:"pipe"`
	HandshakeTimeout time.Duration `env:"PIPECHAT_HANDSHAKE_TIMEOUT" envDefault:"0s"`
	LogLevel         string        `env:"PIPECHAT_LOG_LEVEL"         envDefault:"info"`
	LogFile          string        `env:"PIPECHAT_LOG_FILE"`
	Plain            bool          `env:"PIPECHAT_PLAIN"`
}

// Server configures chat-server.
type Server struct {
	Listen     string   `env:"PIPECHAT_LISTEN"      envDefault:":10000"`
	Name       string   `env:"PIPECHAT_NAME"        envDefault:"pipe-chat"`
	RelayURLs  []string `env:"RELAY"                envSeparator:","`
	CredKey    string   `env:"PIPECHAT_CRED_KEY"`
	MaxMessage int      `env:"PIPECHAT_MAX_MESSAGE" envDefault:"10000"`
	LogLevel   string   `env:"PIPECHAT_LOG_LEVEL"   envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Codec resolves the configured wire format.
func (c Client) Codec() (wire.Codec, error) {
	return wire.ByName(c.Wire)
}

// Validate checks values that flags may have overridden.
func (c Client) Validate() error {
	if _, err := c.Codec(); err != nil {
		return err
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must not be negative, got %s", c.HandshakeTimeout)
	}
	return nil
}

// Relays returns the configured relay URLs, split on commas and trimmed.
func (s Server) Relays() []string {
	var out []string
	for _, raw := range s.RelayURLs {
		for _, p := range strings.Split(raw, ",") {
			if u := strings.TrimSpace(p); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func (s Server) Validate() error {
	if strings.TrimSpace(s.Listen) == "" && len(s.Relays()) == 0 {
		return fmt.Errorf("nothing to serve on: set --listen or --relay-url")
	}
	if s.MaxMessage <= 0 {
		return fmt.Errorf("max message must be positive, got %d", s.MaxMessage)
	}
	return nil
}
