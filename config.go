package cometd

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds the client and TCP transport settings read from the environment.
type Config struct {
	BufferSize       int           `env:"BUFFER_SIZE" envDefault:"16" json:"bufferSize"`
	MaxFrameSize     int           `env:"MAX_FRAME_SIZE" envDefault:"1048576" json:"maxFrameSize"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"0s" json:"idleTimeout"`
	ExtensionFailure string        `env:"EXTENSION_FAILURE" envDefault:"forward" json:"extensionFailure"`
}

// EnvPrefix prefixes every variable read by LoadConfig.
const EnvPrefix = "COMETD_"

// LoadConfig reads Config from COMETD_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if _, err := ParseFailureAction(cfg.ExtensionFailure); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options converts the config into client options.
func (c Config) Options() []Option {
	action, _ := ParseFailureAction(c.ExtensionFailure)
	return []Option{
		BufferSizeOption(c.BufferSize),
		FailureActionOption(action),
	}
}

// TCPOptions converts the config into TCP transport options.
func (c Config) TCPOptions() []TCPOption {
	return []TCPOption{
		TCPMaxFrameSize(c.MaxFrameSize),
		TCPIdleTimeout(c.IdleTimeout),
	}
}
