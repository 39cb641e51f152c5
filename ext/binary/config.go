package binary

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every variable read by LoadConfig.
const EnvPrefix = "COMETD_BINARY_"

// Config is the environment form of the extension settings.
type Config struct {
	ChunkSize           int    `env:"CHUNK_SIZE" envDefault:"32768" json:"chunkSize"`
	ReassemblyTimeoutMs int    `env:"REASSEMBLY_TIMEOUT_MS" envDefault:"30000" json:"reassemblyTimeoutMs"`
	Encoding            string `env:"ENCODING" envDefault:"z85" json:"encoding"`
	Compression         string `env:"COMPRESSION" json:"compression"`
	MaxPayloadSize      int    `env:"MAX_PAYLOAD_SIZE" envDefault:"67108864" json:"maxPayloadSize"`
}

// LoadConfig reads Config from COMETD_BINARY_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if _, err := LookupEncoding(cfg.Encoding); err != nil {
		return Config{}, err
	}
	if err := checkCompression(cfg.Compression); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options converts the config into extension options.
func (c Config) Options() []Option {
	return []Option{
		ChunkSizeOption(c.ChunkSize),
		ReassemblyTimeoutOption(time.Duration(c.ReassemblyTimeoutMs) * time.Millisecond),
		EncodingOption(c.Encoding),
		CompressionOption(c.Compression),
		MaxPayloadSizeOption(c.MaxPayloadSize),
	}
}
