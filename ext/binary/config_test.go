package binary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, int(DefaultReassemblyTimeout/time.Millisecond), cfg.ReassemblyTimeoutMs)
	assert.Equal(t, EncodingZ85, cfg.Encoding)
	assert.Equal(t, CompressionNone, cfg.Compression)
	assert.Equal(t, DefaultMaxPayloadSize, cfg.MaxPayloadSize)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("COMETD_BINARY_CHUNK_SIZE", "1024")
	t.Setenv("COMETD_BINARY_REASSEMBLY_TIMEOUT_MS", "1500")
	t.Setenv("COMETD_BINARY_ENCODING", "base64")
	t.Setenv("COMETD_BINARY_COMPRESSION", "snappy")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	e, err := New(cfg.Options()...)
	require.NoError(t, err)
	defer e.Unregistered()

	assert.Equal(t, 1024, e.opts.chunkSize)
	assert.Equal(t, 1500*time.Millisecond, e.opts.timeout)
	assert.Equal(t, EncodingBase64, e.enc.Name())
	assert.Equal(t, CompressionSnappy, e.opts.compression)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("COMETD_BINARY_ENCODING", "rot13")
	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrUnknownEncoding)

	t.Setenv("COMETD_BINARY_ENCODING", "z85")
	t.Setenv("COMETD_BINARY_COMPRESSION", "gzip")
	_, err = LoadConfig()
	assert.ErrorIs(t, err, ErrUnknownCompression)

	t.Setenv("COMETD_BINARY_CHUNK_SIZE", "lots")
	_, err = LoadConfig()
	assert.Error(t, err)
}
