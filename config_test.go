package cometd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, Config{
		BufferSize:       16,
		MaxFrameSize:     1048576,
		IdleTimeout:      0,
		ExtensionFailure: "forward",
	}, cfg)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("COMETD_BUFFER_SIZE", "64")
	t.Setenv("COMETD_MAX_FRAME_SIZE", "4096")
	t.Setenv("COMETD_IDLE_TIMEOUT", "90s")
	t.Setenv("COMETD_EXTENSION_FAILURE", "drop")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, 4096, cfg.MaxFrameSize)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)

	var opts options
	for _, o := range cfg.Options() {
		o(&opts)
	}
	assert.Equal(t, 64, opts.bufferSize)
	assert.Equal(t, Drop, opts.failureAction)

	var tcp tcpOptions
	for _, o := range cfg.TCPOptions() {
		o(&tcp)
	}
	assert.Equal(t, 4096, tcp.maxFrameSize)
	assert.Equal(t, 90*time.Second, tcp.idleTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("COMETD_EXTENSION_FAILURE", "retry")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("COMETD_EXTENSION_FAILURE", "forward")
	t.Setenv("COMETD_BUFFER_SIZE", "many")
	_, err = LoadConfig()
	assert.Error(t, err)
}
